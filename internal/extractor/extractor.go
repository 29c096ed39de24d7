// Package extractor parses the listing site's directory and record pages
// with goquery. It is stateless and safe for concurrent use.
package extractor

import (
	"bytes"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

var (
	listingHref = regexp.MustCompile(`/elan/[a-z0-9-]+-\d+$`)
	pageHref    = regexp.MustCompile(`page=(\d+)`)
)

// Extractor implements crawler.Extractor for the listing site.
type Extractor struct {
	base *url.URL
}

var _ crawler.Extractor = (*Extractor)(nil)

// New returns an Extractor resolving relative links against baseURL.
func New(baseURL string) (*Extractor, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Extractor{base: base}, nil
}

func parse(page crawler.Page) (*goquery.Document, bool) {
	if len(page.Body) == 0 {
		return nil, false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, false
	}
	return doc, true
}

// RecordURLs returns the absolute listing URLs linked from a directory page,
// de-duplicated in page order. Search links are ignored.
func (e *Extractor) RecordURLs(page crawler.Page) []string {
	doc, ok := parse(page)
	if !ok {
		return nil
	}
	var out []string
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !listingHref.MatchString(href) || strings.Contains(href, "axtar") {
			return
		}
		abs := e.resolve(href)
		if abs == "" {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
	})
	return out
}

// TotalPages returns the highest page number linked from the pagination.
func (e *Extractor) TotalPages(page crawler.Page) (int, bool) {
	doc, ok := parse(page)
	if !ok {
		return 0, false
	}
	highest := 0
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		m := pageHref.FindStringSubmatch(href)
		if m == nil {
			return
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
			highest = n
		}
	})
	return highest, highest > 0
}

func (e *Extractor) resolve(href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return e.base.ResolveReference(ref).String()
}

// strippedText concatenates every descendant text node, each trimmed.
func strippedText(s *goquery.Selection) string {
	var b strings.Builder
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			b.WriteString(strings.TrimSpace(c.Text()))
			return
		}
		b.WriteString(strippedText(c))
	})
	return b.String()
}
