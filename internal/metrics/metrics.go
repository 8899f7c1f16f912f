package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for ingest runs.
type Metrics struct {
	// Finished jobs by terminal status
	JobsTotal *prometheus.CounterVec

	// Wall-clock duration of a full run
	JobDuration prometheus.Histogram

	// Per-provision enrichment outcomes: "enriched" or a failure kind
	EnrichmentOutcome *prometheus.CounterVec

	// Tokens consumed by direction: "input", "output"
	Tokens *prometheus.CounterVec

	// Article writes by outcome: "inserted", "updated", "unchanged"
	ArticlesWritten *prometheus.CounterVec

	ObligationsInserted prometheus.Counter
}

// New registers all ingest metrics on reg. A nil registerer uses the default one.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		JobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "regingest_jobs_total",
			Help: "Total finished ingest jobs by status",
		}, []string{"status"}),

		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "regingest_job_duration_seconds",
			Help:    "Duration of ingest jobs from fetch to finalization",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}),

		EnrichmentOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "regingest_enrichment_outcomes_total",
			Help: "Per-provision enrichment outcomes",
		}, []string{"outcome"}),

		Tokens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "regingest_llm_tokens_total",
			Help: "Tokens consumed by the enrichment model",
		}, []string{"direction"}),

		ArticlesWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "regingest_articles_written_total",
			Help: "Article persistence outcomes",
		}, []string{"outcome"}),

		ObligationsInserted: factory.NewCounter(prometheus.CounterOpts{
			Name: "regingest_obligations_inserted_total",
			Help: "Obligations created by ingest runs",
		}),
	}
}

// ObserveJob records one finished job.
func (m *Metrics) ObserveJob(status string, d time.Duration) {
	if m != nil {
		m.JobsTotal.WithLabelValues(status).Inc()
		m.JobDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementEnrichment(outcome string) {
	if m != nil {
		m.EnrichmentOutcome.WithLabelValues(outcome).Inc()
	}
}

// AddTokens records model usage.
func (m *Metrics) AddTokens(input, output int) {
	if m != nil {
		m.Tokens.WithLabelValues("input").Add(float64(input))
		m.Tokens.WithLabelValues("output").Add(float64(output))
	}
}

// AddArticles records persistence outcomes of one run.
func (m *Metrics) AddArticles(inserted, updated, unchanged, obligations int) {
	if m != nil {
		m.ArticlesWritten.WithLabelValues("inserted").Add(float64(inserted))
		m.ArticlesWritten.WithLabelValues("updated").Add(float64(updated))
		m.ArticlesWritten.WithLabelValues("unchanged").Add(float64(unchanged))
		m.ObligationsInserted.Add(float64(obligations))
	}
}
