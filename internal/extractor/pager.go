package extractor

import (
	"strconv"
	"strings"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

// Pager builds directory page URLs by appending the page parameter to the
// search URL. The search URL's own query string is kept byte for byte.
type Pager struct {
	directoryURL string
	param        string
}

var _ crawler.DirectoryPager = Pager{}

// NewPager returns a Pager for directoryURL. param defaults to "page".
func NewPager(directoryURL, param string) Pager {
	if param == "" {
		param = "page"
	}
	return Pager{directoryURL: directoryURL, param: param}
}

// PageURL returns the URL of directory page n.
func (p Pager) PageURL(n int) string {
	sep := "?"
	if strings.Contains(p.directoryURL, "?") {
		sep = "&"
		if strings.HasSuffix(p.directoryURL, "?") || strings.HasSuffix(p.directoryURL, "&") {
			sep = ""
		}
	}
	return p.directoryURL + sep + p.param + "=" + strconv.Itoa(n)
}
