package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

const testSite = "https://site.test"

type testPager struct{}

func (testPager) PageURL(page int) string {
	return fmt.Sprintf("%s/list?page=%d", testSite, page)
}

func recordURL(n int) string {
	return fmt.Sprintf("%s/elan/item-%d", testSite, n)
}

// fakeFetcher serves canned pages. Bodies use a line format understood by
// fakeExtractor: "total N", "url U", or "record TITLE".
type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]Page
	fail    map[string]error
	failN   map[string]int
	calls   map[string]int
	order   []string
	onFetch func(url string)
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages: make(map[string]Page),
		fail:  make(map[string]error),
		failN: make(map[string]int),
		calls: make(map[string]int),
	}
}

// newSite builds a directory of total pages with perPage record URLs each.
// URLs are numbered from 1 across pages.
func newSite(total, perPage int) (*fakeFetcher, []string) {
	f := newFakeFetcher()
	var urls []string
	n := 0
	for page := 1; page <= total; page++ {
		lines := []string{"total " + strconv.Itoa(total)}
		for i := 0; i < perPage; i++ {
			n++
			u := recordURL(n)
			urls = append(urls, u)
			lines = append(lines, "url "+u)
			f.setPage(u, "record title-"+strconv.Itoa(n))
		}
		f.setPage(testPager{}.PageURL(page), strings.Join(lines, "\n"))
	}
	return f, urls
}

func (f *fakeFetcher) setPage(u, body string) {
	f.pages[u] = Page{URL: u, StatusCode: 200, Body: []byte(body)}
}

func (f *fakeFetcher) Fetch(_ context.Context, u string) (Page, error) {
	f.mu.Lock()
	f.calls[u]++
	f.order = append(f.order, u)
	hook := f.onFetch
	err, failing := f.fail[u]
	transient := false
	if f.failN[u] > 0 {
		f.failN[u]--
		transient = true
	}
	page, ok := f.pages[u]
	f.mu.Unlock()

	if hook != nil {
		hook(u)
	}
	switch {
	case failing:
		return Page{}, err
	case transient:
		return Page{}, &FetchError{URL: u, Kind: FailureNetwork, Err: fmt.Errorf("connection reset")}
	case !ok:
		return Page{}, &FetchError{URL: u, Kind: FailureHTTPStatus, StatusCode: 404}
	}
	return page, nil
}

func (f *fakeFetcher) callsFor(u string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[u]
}

func (f *fakeFetcher) fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

type fakeExtractor struct {
	panicOn string
}

func (fakeExtractor) lines(p Page) []string {
	return strings.Split(strings.TrimSpace(string(p.Body)), "\n")
}

func (e fakeExtractor) RecordURLs(p Page) []string {
	var out []string
	for _, line := range e.lines(p) {
		if rest, ok := strings.CutPrefix(line, "url "); ok {
			out = append(out, rest)
		}
	}
	return out
}

func (e fakeExtractor) TotalPages(p Page) (int, bool) {
	for _, line := range e.lines(p) {
		if rest, ok := strings.CutPrefix(line, "total "); ok {
			n, err := strconv.Atoi(rest)
			return n, err == nil
		}
	}
	return 0, false
}

func (e fakeExtractor) Record(p Page) (Record, bool) {
	if e.panicOn != "" && p.URL == e.panicOn {
		panic("malformed markup")
	}
	rest, ok := strings.CutPrefix(string(p.Body), "record ")
	if !ok {
		return nil, false
	}
	return Record{"title": rest}, true
}

// memCheckpoints round-trips the checkpoint through its JSON form and keeps
// every raw snapshot for later inspection.
type memCheckpoints struct {
	mu    sync.Mutex
	data  []byte
	saves []checkpointJSON

	// records, when set, is inspected on every save to confirm the record
	// collection never lags behind the completed set.
	records    *memRecords
	violations int
}

func (m *memCheckpoints) Load() *Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := NewCheckpoint()
	if m.data == nil {
		return cp
	}
	if err := json.Unmarshal(m.data, cp); err != nil {
		return NewCheckpoint()
	}
	return cp
}

func (m *memCheckpoints) Save(cp *Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	var snap checkpointJSON
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	lagging := m.records != nil && len(m.records.Load()) < len(snap.CompletedURLs)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = data
	m.saves = append(m.saves, snap)
	if lagging {
		m.violations++
	}
	return nil
}

func (m *memCheckpoints) last() checkpointJSON {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves[len(m.saves)-1]
}

func (m *memCheckpoints) snapshots() []checkpointJSON {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]checkpointJSON(nil), m.saves...)
}

type memRecords struct {
	mu   sync.Mutex
	data []byte
}

func (m *memRecords) Load() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil
	}
	var out []Record
	if err := json.Unmarshal(m.data, &out); err != nil {
		return nil
	}
	return out
}

func (m *memRecords) Save(records []Record) error {
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = data
	return nil
}

// failingCheckpoints never persists anything; every Save reports an error.
type failingCheckpoints struct {
	mu    sync.Mutex
	saves int
}

func (*failingCheckpoints) Load() *Checkpoint { return NewCheckpoint() }

func (m *failingCheckpoints) Save(*Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	return errors.New("disk full")
}

func (m *failingCheckpoints) attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

type failingRecords struct {
	mu    sync.Mutex
	saves int
}

func (*failingRecords) Load() []Record { return nil }

func (m *failingRecords) Save([]Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	return errors.New("disk full")
}

func (m *failingRecords) attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func testConfig() Config {
	return Config{
		StartPage:                   1,
		DefaultTotalPages:           10,
		Concurrency:                 2,
		RequestDelay:                0,
		RetryFailedDelay:            0,
		DiscoveryCheckpointInterval: 10,
		CheckpointInterval:          25,
		ProgressInterval:            10,
	}
}

func instantPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts}
}
