package crawler

import (
	"context"
)

// PageFetcher fetches a URL and returns its body. Failures are *FetchError.
// A single call performs a single attempt; retries belong to RetryingFetcher.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Extractor turns raw pages into record URLs and records. Implementations are
// pure and stateless.
type Extractor interface {
	// RecordURLs lists the record URLs found on a directory page, in page order.
	RecordURLs(page Page) []string
	// TotalPages inspects a directory page's pagination. ok is false when the
	// page carries no pagination information.
	TotalPages(page Page) (total int, ok bool)
	// Record parses a record page. ok is false when the page does not have
	// the expected shape.
	Record(page Page) (rec Record, ok bool)
}

// CheckpointStore persists the crawl checkpoint. Load never fails: a missing
// or corrupt snapshot yields a fresh checkpoint.
type CheckpointStore interface {
	Load() *Checkpoint
	Save(cp *Checkpoint) error
}

// RecordStore persists the whole record collection. Load never fails: a
// missing or corrupt file yields an empty collection.
type RecordStore interface {
	Load() []Record
	Save(records []Record) error
}

// DirectoryPager builds the URL of a directory listing page.
type DirectoryPager interface {
	PageURL(page int) string
}
