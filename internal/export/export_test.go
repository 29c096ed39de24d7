package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

func sampleRecords() []crawler.Record {
	return []crawler.Record{
		{
			"url":         "https://yeniemlak.az/elan/menzil-101",
			"id":          "101",
			"price":       "185 000",
			"features":    []string{"Qaz", "Su"},
			"images":      []string{"a.jpg", "b.jpg"},
			"image_count": 2,
			"description": `Təmirli, "əla" <vəziyyət>`,
			"unexported":  "x",
		},
		{"url": "https://yeniemlak.az/elan/ev-202", "id": "202", "image_count": float64(0)},
	}
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRecords()))

	raw := buf.String()
	require.True(t, strings.HasPrefix(raw, "\ufeff"))

	rows, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(raw, "\ufeff"))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Columns, rows[0])

	col := func(name string) int {
		for i, c := range Columns {
			if c == name {
				return i
			}
		}
		t.Fatalf("unknown column %s", name)
		return -1
	}
	first := rows[1]
	assert.Equal(t, "101", first[col("id")])
	assert.Equal(t, "Qaz, Su", first[col("features")])
	assert.Equal(t, "a.jpg, b.jpg", first[col("images")])
	assert.Equal(t, "2", first[col("image_count")])
	assert.Equal(t, `Təmirli, "əla" <vəziyyət>`, first[col("description")])
	assert.Equal(t, "", first[col("phone")])
	assert.Equal(t, "0", rows[2][col("image_count")])
	assert.NotContains(t, raw, "unexported")
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleRecords()))

	assert.Contains(t, buf.String(), "<vəziyyət>")
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "x", decoded[0]["unexported"])
}

func TestFormatValue(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", FormatValue(nil))
	assert.Equal(t, "12", FormatValue(float64(12)))
	assert.Equal(t, "12.5", FormatValue(12.5))
	assert.Equal(t, "a, b", FormatValue([]any{"a", "b"}))
	assert.Equal(t, "true", FormatValue(true))
	assert.Equal(t, "7", FormatValue(int64(7)))
}

func TestWriter_Write(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	w := New(fs, nil)

	paths, err := w.Write("/out/listings", []string{"csv", "JSON"}, sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, []string{"/out/listings.csv", "/out/listings.json"}, paths)
	for _, p := range paths {
		ok, err := afero.Exists(fs, p)
		require.NoError(t, err)
		assert.True(t, ok, p)
	}
}

func TestWriter_EmptyCollectionWritesNothing(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	paths, err := New(fs, nil).Write("listings", []string{"csv"}, nil)
	require.NoError(t, err)
	assert.Empty(t, paths)

	ok, err := afero.Exists(fs, "listings.csv")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriter_UnknownFormat(t *testing.T) {
	t.Parallel()
	_, err := New(afero.NewMemMapFs(), nil).Write("listings", []string{"xml"}, sampleRecords())
	assert.ErrorContains(t, err, "xml")
}
