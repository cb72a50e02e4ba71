// Package metrics exposes Prometheus instruments for the ingestion pipeline.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/models"
)

// Message outcomes counted by MessagesTotal.
const (
	OutcomeCommitted = "committed"
	OutcomeQueued    = "queued"
	OutcomeEmpty     = "empty"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
)

// Metrics holds the pipeline instruments. A nil *Metrics is valid and records nothing,
// so services and tests can run without a registry.
//
// Metrics:
//   - salesagent_messages_total{outcome}
//   - salesagent_extraction_confidence{method}
//   - salesagent_llm_tokens_total{kind}
//   - salesagent_llm_cost_usd_total
//   - salesagent_resolver_matches_total{kind,tier}
//   - salesagent_review_decisions_total{status}
//   - salesagent_review_pending
//   - salesagent_run_duration_seconds{kind}
//   - salesagent_run_busy_total
//   - salesagent_http_request_duration_seconds{route,code}
type Metrics struct {
	MessagesTotal        *prometheus.CounterVec
	ExtractionConfidence *prometheus.HistogramVec
	LLMTokensTotal       *prometheus.CounterVec
	LLMCostUSDTotal      prometheus.Counter
	ResolverMatchesTotal *prometheus.CounterVec
	ReviewDecisionsTotal *prometheus.CounterVec
	ReviewPending        prometheus.Gauge
	RunDuration          *prometheus.HistogramVec
	RunBusyTotal         prometheus.Counter
	HTTPDuration         *prometheus.HistogramVec
}

// New creates the instruments and registers them with reg. Passing a fresh
// prometheus.NewRegistry() keeps tests independent of the global registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MessagesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salesagent_messages_total",
				Help: "Messages considered by ingestion runs, by outcome",
			},
			[]string{"outcome"},
		),
		ExtractionConfidence: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "salesagent_extraction_confidence",
				Help:    "Confidence of the final extraction result per message",
				Buckets: []float64{0.3, 0.5, 0.7, 0.8, 0.85, 0.9, 0.95, 1},
			},
			[]string{"method"},
		),
		LLMTokensTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salesagent_llm_tokens_total",
				Help: "Tokens consumed by the fallback extractor",
			},
			[]string{"kind"}, // "prompt" or "completion"
		),
		LLMCostUSDTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "salesagent_llm_cost_usd_total",
			Help: "Estimated fallback extractor spend in USD",
		}),
		ResolverMatchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salesagent_resolver_matches_total",
				Help: "Entity resolution outcomes by kind and tier",
			},
			[]string{"kind", "tier"},
		),
		ReviewDecisionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salesagent_review_decisions_total",
				Help: "Review queue decisions by terminal status",
			},
			[]string{"status"},
		),
		ReviewPending: f.NewGauge(prometheus.GaugeOpts{
			Name: "salesagent_review_pending",
			Help: "Review items awaiting a decision",
		}),
		RunDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "salesagent_run_duration_seconds",
				Help:    "Wall time of ingestion and backfill runs",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"kind"}, // "ingest" or "backfill"
		),
		RunBusyTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "salesagent_run_busy_total",
			Help: "Run triggers refused because another run held the lock",
		}),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "salesagent_http_request_duration_seconds",
				Help:    "HTTP API latency by route pattern and status code",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "code"},
		),
	}
}

// Message counts one message outcome.
func (m *Metrics) Message(outcome string) {
	if m == nil {
		return
	}
	m.MessagesTotal.WithLabelValues(outcome).Inc()
}

// Extraction observes the final confidence for a message.
func (m *Metrics) Extraction(method models.ExtractionMethod, confidence float64) {
	if m == nil {
		return
	}
	m.ExtractionConfidence.WithLabelValues(string(method)).Observe(confidence)
}

// LLMUsage adds one fallback call's usage.
func (m *Metrics) LLMUsage(u *models.LLMUsage) {
	if m == nil || u == nil {
		return
	}
	m.LLMTokensTotal.WithLabelValues("prompt").Add(float64(u.PromptTokens))
	m.LLMTokensTotal.WithLabelValues("completion").Add(float64(u.CompletionTokens))
	m.LLMCostUSDTotal.Add(u.CostUSD)
}

// Resolution counts one resolver outcome.
func (m *Metrics) Resolution(kind models.EntityKind, tier models.MatchTier) {
	if m == nil {
		return
	}
	m.ResolverMatchesTotal.WithLabelValues(string(kind), string(tier)).Inc()
}

// ReviewDecision counts a terminal review transition.
func (m *Metrics) ReviewDecision(status models.ReviewStatus) {
	if m == nil {
		return
	}
	m.ReviewDecisionsTotal.WithLabelValues(string(status)).Inc()
}

// SetReviewPending publishes the pending review count.
func (m *Metrics) SetReviewPending(n int) {
	if m == nil {
		return
	}
	m.ReviewPending.Set(float64(n))
}

// Run observes a finished run.
func (m *Metrics) Run(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// Busy counts a refused run trigger.
func (m *Metrics) Busy() {
	if m == nil {
		return
	}
	m.RunBusyTotal.Inc()
}

// HTTPRequest observes one served request. route is the mux pattern, never the
// raw path, to keep label cardinality bounded.
func (m *Metrics) HTTPRequest(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.HTTPDuration.WithLabelValues(route, strconv.Itoa(code)).Observe(d.Seconds())
}
