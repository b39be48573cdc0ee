package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric collectors for the perfecto server.
// Every recording method is a no-op on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Account metrics.
	AuthEventsTotal *prometheus.CounterVec

	// Domain metrics.
	OrgEventsTotal        *prometheus.CounterVec
	InvitationEventsTotal *prometheus.CounterVec
	ReviewsCreatedTotal   prometheus.Counter
	AchievementsTotal     prometheus.Counter
	ScoreSubmissionsTotal *prometheus.CounterVec

	// Rate limiting.
	RateLimitRejectionsTotal *prometheus.CounterVec

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perfecto_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "perfecto_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		HTTPResponseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "perfecto_http_response_size_bytes",
			Help:    "HTTP response size in bytes.",
			Buckets: prometheus.ExponentialBuckets(100, 10, 6),
		}, []string{"method", "path_pattern"}),

		AuthEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perfecto_auth_events_total",
			Help: "Account events by kind and outcome.",
		}, []string{"event", "outcome"}),

		OrgEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perfecto_org_events_total",
			Help: "Company and team changes by kind.",
		}, []string{"event"}),

		InvitationEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perfecto_invitation_events_total",
			Help: "Invitation lifecycle events by invitation type.",
		}, []string{"type", "event"}),

		ReviewsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perfecto_reviews_created_total",
			Help: "Total number of performance reviews created.",
		}),

		AchievementsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perfecto_achievements_created_total",
			Help: "Total number of achievements created.",
		}),

		ScoreSubmissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perfecto_score_submissions_total",
			Help: "Score submissions split by whether a row was created or updated.",
		}, []string{"outcome"}),

		RateLimitRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perfecto_ratelimit_rejections_total",
			Help: "Total number of rate limit rejections.",
		}, []string{"scope"}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "perfecto_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.AuthEventsTotal,
		m.OrgEventsTotal,
		m.InvitationEventsTotal,
		m.ReviewsCreatedTotal,
		m.AchievementsTotal,
		m.ScoreSubmissionsTotal,
		m.RateLimitRejectionsTotal,
		m.ServerStartTime,
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Prometheus serves the registry in the Prometheus text exposition format.
func (m *Metrics) Prometheus() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// DBPoolStatFunc reports connection pool occupancy. It keeps pgxpool out of
// this package.
type DBPoolStatFunc func() (total, idle, acquired int32)

// RegisterDBPoolCollector exposes pool occupancy as gauges read on scrape.
func (m *Metrics) RegisterDBPoolCollector(stat DBPoolStatFunc) {
	pick := func(i int) func() float64 {
		return func() float64 {
			total, idle, acquired := stat()
			return float64([3]int32{total, idle, acquired}[i])
		}
	}
	for i, g := range []struct{ name, help string }{
		{"perfecto_db_pool_total_conns", "Connections currently held by the database pool."},
		{"perfecto_db_pool_idle_conns", "Idle connections in the database pool."},
		{"perfecto_db_pool_acquired_conns", "Connections checked out of the database pool."},
	} {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: g.name, Help: g.help}, pick(i)))
	}
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(method, pattern string, status int, elapsed time.Duration, bytes int) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, pattern, fmt.Sprintf("%d", status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pattern).Observe(elapsed.Seconds())
	m.HTTPResponseSize.WithLabelValues(method, pattern).Observe(float64(bytes))
}

// IncAuthEvent counts a login, registration or logout attempt.
func (m *Metrics) IncAuthEvent(event string, ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.AuthEventsTotal.WithLabelValues(event, outcome).Inc()
}

// IncOrgEvent counts a company or team change.
func (m *Metrics) IncOrgEvent(event string) {
	if m == nil {
		return
	}
	m.OrgEventsTotal.WithLabelValues(event).Inc()
}

// IncInvitation counts an invitation event (created, accepted, declined or
// expired) for the given invitation type.
func (m *Metrics) IncInvitation(typ, event string) {
	if m == nil {
		return
	}
	m.InvitationEventsTotal.WithLabelValues(typ, event).Inc()
}

// AddReviewsCreated counts newly created reviews.
func (m *Metrics) AddReviewsCreated(n int) {
	if m == nil {
		return
	}
	m.ReviewsCreatedTotal.Add(float64(n))
}

// IncAchievementCreated counts a new achievement.
func (m *Metrics) IncAchievementCreated() {
	if m == nil {
		return
	}
	m.AchievementsTotal.Inc()
}

// IncScoreSubmission counts a score submission.
func (m *Metrics) IncScoreSubmission(created bool) {
	if m == nil {
		return
	}
	outcome := "updated"
	if created {
		outcome = "created"
	}
	m.ScoreSubmissionsTotal.WithLabelValues(outcome).Inc()
}

// IncRateLimitRejection increments the rate limit rejection counter.
func (m *Metrics) IncRateLimitRejection(scope string) {
	if m == nil {
		return
	}
	m.RateLimitRejectionsTotal.WithLabelValues(scope).Inc()
}
