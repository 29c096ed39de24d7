// Package store persists crawl progress on a filesystem: the checkpoint
// snapshot and the accumulated record collection. Writes go to a temporary
// file that is renamed over the target, so a crash never leaves a torn file.
// Loads are forgiving: a missing or unreadable file yields the empty default.
package store
