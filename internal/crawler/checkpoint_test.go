package crawler

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpoint_MarshalIsDeterministic(t *testing.T) {
	cp := NewCheckpoint()
	cp.Phase = PhaseExtracting
	cp.PendingURLs = []string{"c", "a", "d"}
	for _, u := range []string{"z", "b", "a"} {
		cp.MarkCompleted(u)
	}

	first, err := json.Marshal(cp)
	require.NoError(t, err)
	second, err := json.Marshal(cp.Clone())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var raw checkpointJSON
	require.NoError(t, json.Unmarshal(first, &raw))
	assert.Equal(t, []string{"a", "b", "z"}, raw.CompletedURLs)
	assert.Equal(t, []string{"c", "d"}, raw.PendingURLs, "completed URLs never appear as pending")
	assert.Equal(t, 3, raw.CompletedRecords)
}

func TestCheckpoint_UnmarshalIsTolerant(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		phase   Phase
		pending []string
	}{
		{name: "empty object", doc: `{}`, phase: PhaseDiscovering, pending: []string{}},
		{name: "legacy collecting", doc: `{"phase":"collecting","pending_urls":["a"]}`, phase: PhaseDiscovering, pending: []string{"a"}},
		{name: "legacy scraping", doc: `{"phase":"scraping","pending_urls":["a"]}`, phase: PhaseExtracting, pending: []string{"a"}},
		{name: "unknown phase", doc: `{"phase":"paused"}`, phase: PhaseDiscovering, pending: []string{}},
		{name: "overlap and duplicates", doc: `{"phase":"extracting","completed_urls":["a"],"pending_urls":["a","b","b",""]}`, phase: PhaseExtracting, pending: []string{"b"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cp := NewCheckpoint()
			require.NoError(t, json.Unmarshal([]byte(tc.doc), cp))
			assert.Equal(t, tc.phase, cp.Phase)
			assert.Equal(t, tc.pending, cp.PendingURLs)
			assert.NotNil(t, cp.CompletedURLs)
		})
	}
}

func TestCheckpoint_NormalizeClampsCounters(t *testing.T) {
	cp := &Checkpoint{LastDiscoveryPage: -4, TotalPages: -1}
	cp.Normalize()
	assert.Zero(t, cp.LastDiscoveryPage)
	assert.Zero(t, cp.TotalPages)
	assert.NotNil(t, cp.CompletedURLs)
}

func TestCheckpoint_MarkCompletedPrunesLazily(t *testing.T) {
	cp := NewCheckpoint()
	cp.PendingURLs = []string{"a", "b", "c"}
	cp.MarkCompleted("b")

	assert.Equal(t, []string{"a", "c"}, cp.Remaining())
	assert.True(t, cp.IsCompleted("b"))

	cp.Normalize()
	assert.Equal(t, []string{"a", "c"}, cp.PendingURLs)
}

func TestCheckpoint_CloneIsIndependent(t *testing.T) {
	cp := NewCheckpoint()
	cp.PendingURLs = []string{"a"}
	clone := cp.Clone()
	clone.MarkCompleted("a")
	clone.PendingURLs = append(clone.PendingURLs, "b")

	assert.False(t, cp.IsCompleted("a"))
	assert.Equal(t, []string{"a"}, cp.PendingURLs)
}

func TestCheckpoint_DiscoveryCursorKeys(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		lastPage int
		failed   []int
	}{
		{name: "missing keys", doc: `{"phase":"discovering"}`, lastPage: 0, failed: nil},
		{name: "legacy last_page", doc: `{"phase":"collecting","last_page":7}`, lastPage: 7, failed: nil},
		{name: "current key wins", doc: `{"last_discovery_page":9,"last_page":7}`, lastPage: 9, failed: nil},
		{name: "failed pages normalized", doc: `{"last_discovery_page":9,"failed_pages":[5,2,5,0,-1]}`, lastPage: 9, failed: []int{2, 5}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cp := NewCheckpoint()
			require.NoError(t, json.Unmarshal([]byte(tc.doc), cp))
			assert.Equal(t, tc.lastPage, cp.LastDiscoveryPage)
			assert.Equal(t, tc.failed, cp.FailedPages)
		})
	}
}

func TestCheckpoint_FailedPagesRoundTrip(t *testing.T) {
	cp := NewCheckpoint()
	cp.LastDiscoveryPage = 6
	cp.AddFailedPage(4)
	cp.AddFailedPage(2)
	cp.AddFailedPage(4)

	data, err := json.Marshal(cp)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"failed_pages":[2,4]`)
	assert.NotContains(t, string(data), `"last_page"`)

	loaded := NewCheckpoint()
	require.NoError(t, json.Unmarshal(data, loaded))
	assert.Equal(t, []int{2, 4}, loaded.FailedPages)

	loaded.ClearFailedPage(2)
	assert.Equal(t, []int{4}, loaded.FailedPages)
	assert.Equal(t, []int{4, 2}, cp.FailedPages, "clearing a loaded copy leaves the source alone")

	data, err = json.Marshal(NewCheckpoint())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "failed_pages")
}
