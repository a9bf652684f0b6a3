// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal  *prometheus.CounterVec
	imagesTotal *prometheus.CounterVec
	itemsTotal  *prometheus.CounterVec

	once sync.Once
)

// Init registers the collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookharvest_pages_total",
				Help: "Pages fetched, labeled by page kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)
		imagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookharvest_images_total",
				Help: "Cover downloads, labeled by outcome.",
			},
			[]string{"outcome"},
		)
		itemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookharvest_items_total",
				Help: "Items persisted, labeled by outcome.",
			},
			[]string{"outcome"},
		)
	})
}

// Handler returns the /metrics handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// PageFetched records one page fetch ("listing" or "detail").
func PageFetched(kind, outcome string) {
	if pagesTotal == nil {
		return
	}
	pagesTotal.WithLabelValues(kind, outcome).Inc()
}

// ImagesObserved records the per-item download tally.
func ImagesObserved(saved, failed int) {
	if imagesTotal == nil {
		return
	}
	imagesTotal.WithLabelValues("saved").Add(float64(saved))
	imagesTotal.WithLabelValues("failed").Add(float64(failed))
}

// ItemPersisted records one persistence attempt.
func ItemPersisted(ok bool) {
	if itemsTotal == nil {
		return
	}
	outcome := "saved"
	if !ok {
		outcome = "failed"
	}
	itemsTotal.WithLabelValues(outcome).Inc()
}
