// Package spider implements the listing/detail crawl over the book site:
// listing rows become partially filled items, detail pages enrich them, and
// pagination advances by rewriting the trailing page segment of the listing
// URL.
package spider

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/yunqi-data/bookharvest/internal/book"
	"github.com/yunqi-data/bookharvest/internal/fetch"
)

// Selectors for the listing grid. Each listing page carries a #BookContent
// container whose TwoBox02_02 cells hold one book apiece; the stats box
// interleaves labels and values, so clicks and word count sit at fixed span
// offsets.
const (
	listingCellSelector = "#BookContent div.TwoBox02_02"
	listingCoverImage   = "div.TwoBox02_03 a img"
	listingTitleLink    = "div.TwoBox02_08 h1 a"
	listingAuthorLink   = "div.TwoBox02_09 span a"
	listingStatsSpan    = "div.TwoBox02_10 span"
)

// Selectors for the detail page.
const (
	detailSummaryPara = "div.T-L-T-C-Box1 p"
	detailTagLink     = "a.LXbq"
	detailFlowers     = "#flowers"
	detailRating      = "#score"
	detailRewards     = "#rewards"
)

// ParseListing extracts one partially filled item per listing cell. Cover
// and detail URLs are promoted to absolute https URLs. A cell without a
// detail link still yields an item; it just cannot be enriched.
func ParseListing(doc *goquery.Document) []book.Item {
	var items []book.Item
	doc.Find(listingCellSelector).Each(func(_ int, cell *goquery.Selection) {
		var item book.Item

		titleLink := cell.Find(listingTitleLink).First()
		item.Title = strings.TrimSpace(titleLink.Text())
		if href, ok := titleLink.Attr("href"); ok {
			item.BookURL = fetch.EnsureScheme(strings.TrimSpace(href))
		}
		item.Author = strings.TrimSpace(cell.Find(listingAuthorLink).First().Text())

		stats := cell.Find(listingStatsSpan)
		item.MonthlyClicks = strings.TrimSpace(stats.Eq(1).Text())
		item.WordCount = strings.TrimSpace(stats.Eq(3).Text())

		if src, ok := cell.Find(listingCoverImage).First().Attr("src"); ok {
			if img := fetch.EnsureScheme(strings.TrimSpace(src)); img != "" {
				item.ImageURLs = []string{img}
			}
		}

		if item.Title == "" && item.BookURL == "" {
			return
		}
		items = append(items, item)
	})
	return items
}

// DetailFields holds the enrichment extracted from a detail page.
type DetailFields struct {
	Summary string
	Tags    []string
	Flowers string
	Rating  string
	Rewards string
}

// ParseDetail extracts summary, tags, and the raw metric texts from a detail
// document. Absent fields stay empty.
func ParseDetail(doc *goquery.Document) DetailFields {
	var fields DetailFields

	var paras []string
	doc.Find(detailSummaryPara).Each(func(_ int, p *goquery.Selection) {
		if text := strings.TrimSpace(p.Text()); text != "" {
			paras = append(paras, text)
		}
	})
	fields.Summary = strings.Join(paras, "\n")

	doc.Find(detailTagLink).Each(func(_ int, a *goquery.Selection) {
		if tag := strings.TrimSpace(a.Text()); tag != "" {
			fields.Tags = append(fields.Tags, tag)
		}
	})

	fields.Flowers = strings.TrimSpace(doc.Find(detailFlowers).First().Text())
	fields.Rating = strings.TrimSpace(doc.Find(detailRating).First().Text())
	fields.Rewards = strings.TrimSpace(doc.Find(detailRewards).First().Text())
	return fields
}

// Apply merges the detail fields into item. Empty values never overwrite
// whatever the listing stage already filled in.
func (f DetailFields) Apply(item *book.Item) {
	if f.Summary != "" {
		item.Summary = f.Summary
	}
	if len(f.Tags) > 0 {
		item.Tags = f.Tags
	}
	if f.Flowers != "" {
		item.Flowers = f.Flowers
	}
	if f.Rating != "" {
		item.Rating = f.Rating
	}
	if f.Rewards != "" {
		item.Rewards = f.Rewards
	}
}
