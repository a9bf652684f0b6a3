package spider

import (
	"fmt"
	"strconv"
	"strings"
)

// PageNumber extracts the page index from the trailing numeric segment of a
// listing URL, e.g. ".../y_0_0_0_0_0_2_12.html" yields 12.
func PageNumber(listingURL string) (int, error) {
	trimmed := strings.TrimSuffix(listingURL, ".html")
	idx := strings.LastIndex(trimmed, "_")
	if idx < 0 || idx == len(trimmed)-1 {
		return 0, fmt.Errorf("listing url %q has no page segment", listingURL)
	}
	page, err := strconv.Atoi(trimmed[idx+1:])
	if err != nil {
		return 0, fmt.Errorf("parse page segment of %q: %w", listingURL, err)
	}
	return page, nil
}

// NextListingURL returns the URL for the page after listingURL together with
// its page number, formed by incrementing the trailing segment.
func NextListingURL(listingURL string) (string, int, error) {
	page, err := PageNumber(listingURL)
	if err != nil {
		return "", 0, err
	}
	next := page + 1
	old := fmt.Sprintf("_%d.html", page)
	replacement := fmt.Sprintf("_%d.html", next)
	if !strings.HasSuffix(listingURL, old) {
		return "", 0, fmt.Errorf("listing url %q does not end with %q", listingURL, old)
	}
	return strings.TrimSuffix(listingURL, old) + replacement, next, nil
}
