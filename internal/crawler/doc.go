// Package crawler implements the two-phase listing crawl: discovery walks the
// paginated directory collecting record URLs, and extraction fetches each
// record page under a bounded concurrency limit. Progress is checkpointed so
// an interrupted or crashed run resumes without redoing finished work.
package crawler
