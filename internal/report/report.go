// Package report builds a read-only aggregation snapshot over the persisted
// schema for operator review.
package report

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/yunqi-data/bookharvest/internal/store"
)

// Snapshot is one point-in-time aggregation of the dataset.
type Snapshot struct {
	Books   int
	Tags    int
	Images  int
	TopTags []store.TagCount
}

// Build queries the reader for the snapshot. topN bounds the tag listing.
func Build(ctx context.Context, r store.Reader, topN int) (Snapshot, error) {
	var snap Snapshot
	var err error

	if snap.Books, err = r.CountBooks(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("count books: %w", err)
	}
	if snap.Tags, err = r.CountTags(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("count tags: %w", err)
	}
	if snap.Images, err = r.CountImages(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("count images: %w", err)
	}
	if snap.TopTags, err = r.TopTags(ctx, topN); err != nil {
		return Snapshot{}, fmt.Errorf("top tags: %w", err)
	}
	return snap, nil
}

// Write renders the snapshot as an aligned table.
func (s Snapshot) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "books\t%d\n", s.Books)
	fmt.Fprintf(tw, "tags\t%d\n", s.Tags)
	fmt.Fprintf(tw, "images\t%d\n", s.Images)
	if len(s.TopTags) > 0 {
		fmt.Fprintln(tw, "\ntag\tbooks")
		for _, tc := range s.TopTags {
			fmt.Fprintf(tw, "%s\t%d\n", tc.Name, tc.Books)
		}
	}
	return tw.Flush()
}
