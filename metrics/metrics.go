// Package metrics bundles the Prometheus collectors for the crawl pipeline
// on a dedicated registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all pipeline collectors.
type Metrics struct {
	Registry *prometheus.Registry

	PagesScraped      prometheus.Counter
	PageFetchDuration prometheus.Histogram
	ItemsExtracted    prometheus.Counter
	MatchesCreated    prometheus.Counter
	MatchesUpdated    prometheus.Counter
	ProfileErrors     *prometheus.CounterVec
	RunsTotal         *prometheus.CounterVec
	WebhooksTotal     *prometheus.CounterVec
	QueueDepth        prometheus.Gauge
	RateLimited       prometheus.Gauge
}

// New constructs and registers all metrics on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "radar_pages_scraped_total",
		Help: "Total catalog pages fetched.",
	})
	fetchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "radar_page_fetch_duration_seconds",
		Help:    "Catalog page fetch latency.",
		Buckets: prometheus.DefBuckets,
	})
	items := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "radar_items_extracted_total",
		Help: "Total well-formed items extracted from pages.",
	})
	created := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "radar_matches_created_total",
		Help: "Total new matches persisted.",
	})
	updated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "radar_matches_updated_total",
		Help: "Total matches updated on price change.",
	})
	profileErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "radar_profile_errors_total",
		Help: "Per-profile crawl failures by kind.",
	}, []string{"kind"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "radar_runs_total",
		Help: "Crawl runs by outcome.",
	}, []string{"outcome"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "radar_webhooks_total",
		Help: "Outbound webhook deliveries by result.",
	}, []string{"result"})
	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "radar_notification_queue_depth",
		Help: "Outbound notifications waiting for delivery.",
	})
	rateLimited := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "radar_webhook_rate_limited",
		Help: "1 while the webhook dispatcher is in a rate-limit cooldown.",
	})

	registry.MustRegister(pages, fetchDuration, items, created, updated,
		profileErrors, runs, webhooks, queueDepth, rateLimited)

	return &Metrics{
		Registry:          registry,
		PagesScraped:      pages,
		PageFetchDuration: fetchDuration,
		ItemsExtracted:    items,
		MatchesCreated:    created,
		MatchesUpdated:    updated,
		ProfileErrors:     profileErrors,
		RunsTotal:         runs,
		WebhooksTotal:     webhooks,
		QueueDepth:        queueDepth,
		RateLimited:       rateLimited,
	}
}

// IncPage counts a fetched catalog page.
func (m *Metrics) IncPage() {
	if m == nil {
		return
	}
	m.PagesScraped.Inc()
}

// IncItems counts extracted items.
func (m *Metrics) IncItems(n int) {
	if m == nil {
		return
	}
	m.ItemsExtracted.Add(float64(n))
}

// IncMatchCreated counts a newly persisted match.
func (m *Metrics) IncMatchCreated() {
	if m == nil {
		return
	}
	m.MatchesCreated.Inc()
}

// IncMatchUpdated counts a price-change update.
func (m *Metrics) IncMatchUpdated() {
	if m == nil {
		return
	}
	m.MatchesUpdated.Inc()
}

// ObserveFetch records a page fetch duration.
func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.PageFetchDuration.Observe(d.Seconds())
}

// IncProfileError counts a per-profile failure.
func (m *Metrics) IncProfileError(kind string) {
	if m == nil {
		return
	}
	m.ProfileErrors.WithLabelValues(kind).Inc()
}

// IncRun counts a finished run by outcome.
func (m *Metrics) IncRun(outcome string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
}

// IncWebhook counts a delivery attempt result.
func (m *Metrics) IncWebhook(result string) {
	if m == nil {
		return
	}
	m.WebhooksTotal.WithLabelValues(result).Inc()
}

// SetQueueDepth publishes the dispatcher backlog size.
func (m *Metrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
}

// SetRateLimited flips the dispatcher rate-limit gauge.
func (m *Metrics) SetRateLimited(limited bool) {
	if m == nil {
		return
	}
	if limited {
		m.RateLimited.Set(1)
	} else {
		m.RateLimited.Set(0)
	}
}
