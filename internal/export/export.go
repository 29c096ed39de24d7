// Package export writes the final record collection as CSV and JSON.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

// Supported formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Columns is the CSV column order. Record keys outside it are not exported
// to CSV.
var Columns = []string{
	"id", "elan_id", "url", "sale_type", "property_type", "price",
	"rooms", "area_m2", "land_area_sot", "floors",
	"region", "address", "description", "features",
	"contact_name", "contact_type", "phone",
	"views", "date", "image_count", "images",
}

const (
	utf8BOM       = "\ufeff"
	listSeparator = ", "
)

// Writer writes exports onto a filesystem.
type Writer struct {
	fs     afero.Fs
	logger *zap.Logger
}

// New returns a Writer.
func New(fs afero.Fs, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{fs: fs, logger: logger}
}

// Write stores records as "<base>.<format>" for each format and returns the
// paths written. An empty collection writes nothing.
func (w *Writer) Write(base string, formats []string, records []crawler.Record) ([]string, error) {
	if len(records) == 0 {
		w.logger.Info("no records to export")
		return nil, nil
	}
	var written []string
	for _, format := range formats {
		var (
			buf bytes.Buffer
			err error
		)
		format = strings.ToLower(strings.TrimSpace(format))
		switch format {
		case FormatCSV:
			err = WriteCSV(&buf, records)
		case FormatJSON:
			err = WriteJSON(&buf, records)
		default:
			return written, fmt.Errorf("unsupported export format %q", format)
		}
		if err != nil {
			return written, err
		}
		path := base + "." + format
		if err := afero.WriteFile(w.fs, path, buf.Bytes(), 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		w.logger.Info("exported records", zap.String("path", path), zap.Int("records", len(records)))
		written = append(written, path)
	}
	return written, nil
}

// WriteCSV writes a BOM-prefixed CSV with a header row and one row per record.
func WriteCSV(out io.Writer, records []crawler.Record) error {
	if _, err := io.WriteString(out, utf8BOM); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	cw := csv.NewWriter(out)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	row := make([]string, len(Columns))
	for _, rec := range records {
		for i, col := range Columns {
			row[i] = FormatValue(rec[col])
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteJSON writes records as an indented JSON array without HTML escaping.
func WriteJSON(out io.Writer, records []crawler.Record) error {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}

// FormatValue renders a record value as a single CSV cell.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []string:
		return strings.Join(val, listSeparator)
	case []any:
		parts := make([]string, 0, len(val))
		for _, p := range val {
			parts = append(parts, FormatValue(p))
		}
		return strings.Join(parts, listSeparator)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1e15 {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}
