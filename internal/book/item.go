// Package book defines the record types assembled by the crawl and consumed
// by the image and persistence stages.
package book

// Image pairs a source URL with the path the cover was stored under,
// relative to the image root.
type Image struct {
	SourceURL string
	LocalPath string
}

// Item is one in-flight book record, from first listing sighting through
// final persistence. The click/word/flower/rating/reward fields carry the
// site's raw unit-suffixed text (e.g. "12万"); normalizing them is an
// analytics concern, not an ingestion one.
type Item struct {
	Title         string
	Author        string
	MonthlyClicks string
	WordCount     string
	Summary       string

	// BookURL is the natural key: absolute and unique across the dataset.
	// Re-crawling the same URL updates the stored record in place.
	BookURL string

	Flowers string
	Rating  string
	Rewards string
	Tags    []string

	// ImageURLs are the source cover URLs in listing order.
	ImageURLs []string
	// Images holds the successful downloads, populated by the image stage.
	// Empty when every download failed; that is valid input downstream.
	Images []Image
}
