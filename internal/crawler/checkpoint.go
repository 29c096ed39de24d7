package crawler

import (
	"encoding/json"
	"slices"
	"sort"
)

// Checkpoint is the durable snapshot of crawl progress. CompletedURLs and
// PendingURLs are kept disjoint by every mutator.
type Checkpoint struct {
	Phase             Phase
	LastDiscoveryPage int
	TotalPages        int
	CompletedURLs     map[string]struct{}
	PendingURLs       []string

	// FailedPages are directory pages at or below LastDiscoveryPage that
	// still owe a retry.
	FailedPages []int
}

// checkpointJSON is the on-disk shape. Missing keys decode to zero values.
// LastPage is the older name of last_discovery_page and is only read.
type checkpointJSON struct {
	Phase             Phase    `json:"phase"`
	LastDiscoveryPage int      `json:"last_discovery_page"`
	LastPage          int      `json:"last_page,omitempty"`
	TotalPages        int      `json:"total_pages"`
	CompletedURLs     []string `json:"completed_urls"`
	PendingURLs       []string `json:"pending_urls"`
	FailedPages       []int    `json:"failed_pages,omitempty"`
	CompletedRecords  int      `json:"completed_records"`
}

// NewCheckpoint returns the default state of a fresh crawl.
func NewCheckpoint() *Checkpoint {
	return &Checkpoint{
		Phase:         PhaseDiscovering,
		CompletedURLs: make(map[string]struct{}),
		PendingURLs:   []string{},
	}
}

// MarshalJSON writes completed URLs in sorted order so identical checkpoints
// always serialize to identical bytes. Completed URLs are filtered out of the
// pending list.
func (c *Checkpoint) MarshalJSON() ([]byte, error) {
	completed := make([]string, 0, len(c.CompletedURLs))
	for u := range c.CompletedURLs {
		completed = append(completed, u)
	}
	sort.Strings(completed)
	pending := c.Remaining()
	phase := c.Phase
	if phase == "" {
		phase = PhaseDiscovering
	}
	return json.Marshal(checkpointJSON{
		Phase:             phase,
		LastDiscoveryPage: c.LastDiscoveryPage,
		TotalPages:        c.TotalPages,
		CompletedURLs:     completed,
		PendingURLs:       pending,
		FailedPages:       normalizePages(c.FailedPages),
		CompletedRecords:  len(completed),
	})
}

// UnmarshalJSON accepts partial documents and normalizes the result.
func (c *Checkpoint) UnmarshalJSON(data []byte) error {
	var raw checkpointJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Checkpoint{
		Phase:             raw.Phase,
		LastDiscoveryPage: raw.LastDiscoveryPage,
		TotalPages:        raw.TotalPages,
		CompletedURLs:     make(map[string]struct{}, len(raw.CompletedURLs)),
		PendingURLs:       raw.PendingURLs,
		FailedPages:       raw.FailedPages,
	}
	if c.LastDiscoveryPage == 0 {
		c.LastDiscoveryPage = raw.LastPage
	}
	if c.Phase == "" {
		c.Phase = PhaseDiscovering
	}
	for _, u := range raw.CompletedURLs {
		if u != "" {
			c.CompletedURLs[u] = struct{}{}
		}
	}
	c.Normalize()
	return nil
}

// Normalize de-duplicates PendingURLs and removes any URL already completed.
// FailedPages are sorted and de-duplicated. Negative counters are clamped to
// zero.
func (c *Checkpoint) Normalize() {
	if c.CompletedURLs == nil {
		c.CompletedURLs = make(map[string]struct{})
	}
	seen := make(map[string]struct{}, len(c.PendingURLs))
	out := make([]string, 0, len(c.PendingURLs))
	for _, u := range c.PendingURLs {
		if u == "" {
			continue
		}
		if _, done := c.CompletedURLs[u]; done {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	c.PendingURLs = out
	c.FailedPages = normalizePages(c.FailedPages)
	if c.LastDiscoveryPage < 0 {
		c.LastDiscoveryPage = 0
	}
	if c.TotalPages < 0 {
		c.TotalPages = 0
	}
}

func normalizePages(pages []int) []int {
	if len(pages) == 0 {
		return nil
	}
	out := make([]int, 0, len(pages))
	for _, p := range pages {
		if p > 0 {
			out = append(out, p)
		}
	}
	sort.Ints(out)
	return slices.Compact(out)
}

// AddFailedPage records page as owing a retry.
func (c *Checkpoint) AddFailedPage(page int) {
	if !slices.Contains(c.FailedPages, page) {
		c.FailedPages = append(c.FailedPages, page)
	}
}

// ClearFailedPage drops page from the retry list.
func (c *Checkpoint) ClearFailedPage(page int) {
	c.FailedPages = slices.DeleteFunc(c.FailedPages, func(p int) bool { return p == page })
}

// IsCompleted reports whether u has been extracted successfully.
func (c *Checkpoint) IsCompleted(u string) bool {
	_, ok := c.CompletedURLs[u]
	return ok
}

// MarkCompleted adds u to the completed set. PendingURLs is pruned lazily by
// Normalize; the serialized form never lists a completed URL as pending.
func (c *Checkpoint) MarkCompleted(u string) {
	c.CompletedURLs[u] = struct{}{}
}

// Remaining returns the pending URLs that are not yet completed, in order.
func (c *Checkpoint) Remaining() []string {
	out := make([]string, 0, len(c.PendingURLs))
	for _, u := range c.PendingURLs {
		if _, done := c.CompletedURLs[u]; !done {
			out = append(out, u)
		}
	}
	return out
}

// Clone returns a deep copy safe to hand to another goroutine.
func (c *Checkpoint) Clone() *Checkpoint {
	out := &Checkpoint{
		Phase:             c.Phase,
		LastDiscoveryPage: c.LastDiscoveryPage,
		TotalPages:        c.TotalPages,
		CompletedURLs:     make(map[string]struct{}, len(c.CompletedURLs)),
		PendingURLs:       append([]string(nil), c.PendingURLs...),
		FailedPages:       append([]int(nil), c.FailedPages...),
	}
	for u := range c.CompletedURLs {
		out.CompletedURLs[u] = struct{}{}
	}
	return out
}
