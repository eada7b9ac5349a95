// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MessagesGenerated     prometheus.Counter
	DuplicateRetries      prometheus.Counter
	ForcedDisambiguations prometheus.Counter
	PoolRefills           prometheus.Counter
	MessagesRendered      *prometheus.CounterVec // label: kind
	RenderErrors          prometheus.Counter
	EngineTicks           prometheus.Counter
	CascadeReplies        prometheus.Counter
	Joins                 prometheus.Counter
	SeededMessages        prometheus.Counter

	// Histograms (seconds)
	SeedDuration prometheus.Observer

	// Gauges
	PoolSizeGauge prometheus.Gauge
	UnseenGauge   prometheus.Gauge
	MembersGauge  prometheus.Gauge
	OnlineGauge   prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesGenerated = promauto.NewCounter(prometheus.CounterOpts{Name: "feedsim_messages_generated_total", Help: "Number of synthetic messages generated"})
		DuplicateRetries = promauto.NewCounter(prometheus.CounterOpts{Name: "feedsim_duplicate_retries_total", Help: "Number of generation retries due to fingerprint duplicates"})
		ForcedDisambiguations = promauto.NewCounter(prometheus.CounterOpts{Name: "feedsim_forced_disambiguations_total", Help: "Number of generations that exhausted retries and were force-disambiguated"})
		PoolRefills = promauto.NewCounter(prometheus.CounterOpts{Name: "feedsim_pool_refills_total", Help: "Number of asynchronous pool refills"})
		MessagesRendered = promauto.NewCounterVec(prometheus.CounterOpts{Name: "feedsim_messages_rendered_total", Help: "Number of messages inserted into the view"}, []string{"kind"})
		RenderErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "feedsim_render_errors_total", Help: "Number of messages skipped during rendering"})
		EngineTicks = promauto.NewCounter(prometheus.CounterOpts{Name: "feedsim_engine_ticks_total", Help: "Number of posting scheduler ticks"})
		CascadeReplies = promauto.NewCounter(prometheus.CounterOpts{Name: "feedsim_cascade_replies_total", Help: "Number of reaction cascade replies scheduled"})
		Joins = promauto.NewCounter(prometheus.CounterOpts{Name: "feedsim_joins_total", Help: "Number of simulated joins"})
		SeededMessages = promauto.NewCounter(prometheus.CounterOpts{Name: "feedsim_seeded_messages_total", Help: "Number of synthetic history messages seeded"})
		SeedDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "feedsim_seed_duration_seconds", Help: "Synthetic history seeding duration seconds", Buckets: prometheus.DefBuckets})
		PoolSizeGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "feedsim_pool_size", Help: "Current number of pre-generated messages in the pool"})
		UnseenGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "feedsim_unseen_messages", Help: "Current unseen message count in the view"})
		MembersGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "feedsim_members", Help: "Simulated member count"})
		OnlineGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "feedsim_online", Help: "Simulated online count"})
	})
}

// Inc increments a counter, tolerating uninitialized metrics.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// Add adds n to a counter, tolerating uninitialized metrics.
func Add(c prometheus.Counter, n float64) {
	if c != nil {
		c.Add(n)
	}
}

// SetPoolSize records the current pool depth.
func SetPoolSize(n int) {
	if PoolSizeGauge != nil {
		PoolSizeGauge.Set(float64(n))
	}
}

// SetUnseen records the current unseen counter.
func SetUnseen(n int) {
	if UnseenGauge != nil {
		UnseenGauge.Set(float64(n))
	}
}

// SetPresence records the simulated member/online counts.
func SetPresence(members, online int) {
	if MembersGauge != nil {
		MembersGauge.Set(float64(members))
	}
	if OnlineGauge != nil {
		OnlineGauge.Set(float64(online))
	}
}

// CountRendered increments the rendered counter for a message kind.
func CountRendered(kind string) {
	if MessagesRendered != nil {
		MessagesRendered.WithLabelValues(kind).Inc()
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
