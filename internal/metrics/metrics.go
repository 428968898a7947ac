package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the crawler and monitor.
type Metrics struct {
	Registry            *prometheus.Registry
	RequestsTotal       *prometheus.CounterVec
	RateLimitHitsTotal  prometheus.Counter
	ItemsCollectedTotal prometheus.Counter
	PagesCrawledTotal   prometheus.Counter
	RefreshesTotal      *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "romarket_requests_total",
			Help: "Total outbound request attempts by outcome.",
		},
		[]string{"outcome"},
	)
	rateLimitHits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "romarket_rate_limit_hits_total",
			Help: "Total observed rate-limit responses.",
		},
	)
	itemsCollected := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "romarket_items_collected_total",
			Help: "Total listing rows accumulated by the bulk crawl.",
		},
	)
	pagesCrawled := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "romarket_pages_crawled_total",
			Help: "Total listing pages completed by the bulk crawl.",
		},
	)
	refreshes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "romarket_refreshes_total",
			Help: "Total watch-list refresh operations by outcome.",
		},
		[]string{"outcome"},
	)

	registry.MustRegister(requests, rateLimitHits, itemsCollected, pagesCrawled, refreshes)

	return &Metrics{
		Registry:            registry,
		RequestsTotal:       requests,
		RateLimitHitsTotal:  rateLimitHits,
		ItemsCollectedTotal: itemsCollected,
		PagesCrawledTotal:   pagesCrawled,
		RefreshesTotal:      refreshes,
	}
}

// IncRequest increments the request counter for an outcome label.
func (m *Metrics) IncRequest(outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
}

// IncRateLimitHit increments the rate-limit hit counter.
func (m *Metrics) IncRateLimitHit() {
	if m == nil {
		return
	}
	m.RateLimitHitsTotal.Inc()
}

// AddItemsCollected adds to the collected item counter.
func (m *Metrics) AddItemsCollected(n int) {
	if m == nil {
		return
	}
	m.ItemsCollectedTotal.Add(float64(n))
}

// IncPageCrawled increments the completed page counter.
func (m *Metrics) IncPageCrawled() {
	if m == nil {
		return
	}
	m.PagesCrawledTotal.Inc()
}

// IncRefresh increments the refresh counter for an outcome label.
func (m *Metrics) IncRefresh(outcome string) {
	if m == nil {
		return
	}
	m.RefreshesTotal.WithLabelValues(outcome).Inc()
}
