package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Phase represents the lifecycle stage of a crawl.
type Phase string

// Phase values persisted in the checkpoint file.
const (
	PhaseDiscovering Phase = "discovering"
	PhaseExtracting  Phase = "extracting"
	PhaseDone        Phase = "done"
)

// ParsePhase maps a persisted phase name onto a Phase. Older checkpoint files
// used "collecting" and "scraping". Unknown values fall back to Discovering.
func ParsePhase(raw string) Phase {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(PhaseExtracting), "scraping":
		return PhaseExtracting
	case string(PhaseDone):
		return PhaseDone
	default:
		return PhaseDiscovering
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	*p = ParsePhase(string(text))
	return nil
}

// Record is a flat mapping of extracted field names to values. Values are
// strings, numbers, or []string. Every record carries "url" and "id".
type Record map[string]any

// Record keys that are always present.
const (
	FieldURL = "url"
	FieldID  = "id"
)

// URL returns the record's source URL.
func (r Record) URL() string {
	v, _ := r[FieldURL].(string)
	return v
}

// ID returns the record's identifier.
func (r Record) ID() string {
	v, _ := r[FieldID].(string)
	return v
}

var trailingID = regexp.MustCompile(`-(\d+)$`)

// DeriveRecordID returns the identifier encoded in a record URL: the trailing
// "-<digits>" group, or the last path segment when there is none.
func DeriveRecordID(rawURL string) string {
	trimmed := strings.TrimRight(rawURL, "/")
	if m := trailingID.FindStringSubmatch(trimmed); m != nil {
		return m[1]
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}
	p := strings.Trim(u.Path, "/")
	if idx := strings.LastIndex(p, "/"); idx >= 0 {
		p = p[idx+1:]
	}
	return p
}

// Page is the raw content of a successfully fetched page.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}

// FailureKind classifies why a fetch did not produce a page.
type FailureKind string

// Fetch failure kinds.
const (
	FailureTimeout     FailureKind = "timeout"
	FailureRateLimited FailureKind = "rate_limited"
	FailureHTTPStatus  FailureKind = "http_status"
	FailureNetwork     FailureKind = "network"
	FailureCanceled    FailureKind = "canceled"
)

// FetchError is the typed failure returned by page fetchers.
type FetchError struct {
	URL        string
	Kind       FailureKind
	StatusCode int
	Attempts   int
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" after %d attempt(s)", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying transport error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// ErrShutdown reports that work was skipped because shutdown was requested.
var ErrShutdown = errors.New("shutdown requested")

// ErrNoRecord reports that a record page did not have the expected shape.
var ErrNoRecord = errors.New("page did not yield a record")

// FailureKindOf returns the kind of a fetch failure, or "" for other errors.
func FailureKindOf(err error) FailureKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsCanceled reports whether err stems from a shutdown request rather than a
// genuine failure of the URL.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrShutdown) || FailureKindOf(err) == FailureCanceled
}
