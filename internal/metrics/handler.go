package metrics

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"time"

	dto "github.com/prometheus/client_model/go"
)

// Summary is the JSON response for the metrics summary endpoint.
type Summary struct {
	HTTP        httpSummary    `json:"http"`
	Auth        authInfo       `json:"auth"`
	Org         orgInfo        `json:"org"`
	Invitations invitationInfo `json:"invitations"`
	Reviews     reviewInfo     `json:"reviews"`
	RateLimit   rateLimitInfo  `json:"rateLimit"`
	DB          dbInfo         `json:"db"`
	Server      serverInfo     `json:"server"`
}

type httpSummary struct {
	TotalRequests float64 `json:"totalRequests"`
	ErrorRate     float64 `json:"errorRate"`
	P50Latency    float64 `json:"p50Latency"`
	P95Latency    float64 `json:"p95Latency"`
	P99Latency    float64 `json:"p99Latency"`
}

type authInfo struct {
	Logins        float64 `json:"logins"`
	LoginFailures float64 `json:"loginFailures"`
	Registrations float64 `json:"registrations"`
}

type orgInfo struct {
	Companies float64 `json:"companies"`
	Teams     float64 `json:"teams"`
}

type invitationInfo struct {
	Created  float64 `json:"created"`
	Accepted float64 `json:"accepted"`
	Declined float64 `json:"declined"`
	Expired  float64 `json:"expired"`
}

type reviewInfo struct {
	Created       float64 `json:"created"`
	Achievements  float64 `json:"achievements"`
	ScoresCreated float64 `json:"scoresCreated"`
	ScoresUpdated float64 `json:"scoresUpdated"`
}

type rateLimitInfo struct {
	Rejections float64 `json:"rejections"`
}

type serverInfo struct {
	StartTime     float64 `json:"startTime"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

type dbInfo struct {
	TotalConns    float64 `json:"totalConns"`
	IdleConns     float64 `json:"idleConns"`
	AcquiredConns float64 `json:"acquiredConns"`
}

// Handler returns an http.HandlerFunc that serves a JSON summary of the
// registry.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := m.Summarize()
		if err != nil {
			http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store")
		_ = json.NewEncoder(w).Encode(summary)
	}
}

// Summarize gathers the registry and condenses it into a Summary.
func (m *Metrics) Summarize() (*Summary, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}

	fam := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		fam[f.GetName()] = f
	}

	requests := fam["perfecto_http_requests_total"]
	durations := fam["perfecto_http_request_duration_seconds"]
	auth := fam["perfecto_auth_events_total"]
	invitations := fam["perfecto_invitation_events_total"]
	scores := fam["perfecto_score_submissions_total"]
	start := gaugeValue(fam["perfecto_server_start_time_seconds"])

	return &Summary{
		HTTP: httpSummary{
			TotalRequests: sumCounter(requests),
			ErrorRate:     computeErrorRate(requests),
			P50Latency:    histogramPercentile(durations, 0.50),
			P95Latency:    histogramPercentile(durations, 0.95),
			P99Latency:    histogramPercentile(durations, 0.99),
		},
		Auth: authInfo{
			Logins:        sumCounterWithLabels(auth, "event", "login", "outcome", "success"),
			LoginFailures: sumCounterWithLabels(auth, "event", "login", "outcome", "failure"),
			Registrations: sumCounterWithLabels(auth, "event", "register", "outcome", "success"),
		},
		Org: orgInfo{
			Companies: sumCounterWithLabels(fam["perfecto_org_events_total"], "event", "company_created"),
			Teams:     sumCounterWithLabels(fam["perfecto_org_events_total"], "event", "team_created"),
		},
		Invitations: invitationInfo{
			Created:  sumCounterWithLabels(invitations, "event", "created"),
			Accepted: sumCounterWithLabels(invitations, "event", "accepted"),
			Declined: sumCounterWithLabels(invitations, "event", "declined"),
			Expired:  sumCounterWithLabels(invitations, "event", "expired"),
		},
		Reviews: reviewInfo{
			Created:       sumCounter(fam["perfecto_reviews_created_total"]),
			Achievements:  sumCounter(fam["perfecto_achievements_created_total"]),
			ScoresCreated: sumCounterWithLabels(scores, "outcome", "created"),
			ScoresUpdated: sumCounterWithLabels(scores, "outcome", "updated"),
		},
		RateLimit: rateLimitInfo{
			Rejections: sumCounter(fam["perfecto_ratelimit_rejections_total"]),
		},
		DB: dbInfo{
			TotalConns:    gaugeValue(fam["perfecto_db_pool_total_conns"]),
			IdleConns:     gaugeValue(fam["perfecto_db_pool_idle_conns"]),
			AcquiredConns: gaugeValue(fam["perfecto_db_pool_acquired_conns"]),
		},
		Server: serverInfo{
			StartTime:     start,
			UptimeSeconds: float64(time.Now().Unix()) - start,
		},
	}, nil
}

// --- Prometheus metric helpers ---

func sumCounter(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() != nil {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func gaugeValue(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	ms := f.GetMetric()
	if len(ms) == 0 {
		return 0
	}
	if ms[0].GetGauge() != nil {
		return ms[0].GetGauge().GetValue()
	}
	return 0
}

func hasLabel(m *dto.Metric, name, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}

// sumCounterWithLabels sums the counters matching every name/value pair in
// pairs.
func sumCounterWithLabels(f *dto.MetricFamily, pairs ...string) float64 {
	if f == nil {
		return 0
	}
	var total float64
outer:
	for _, m := range f.GetMetric() {
		if m.GetCounter() == nil {
			continue
		}
		for i := 0; i+1 < len(pairs); i += 2 {
			if !hasLabel(m, pairs[i], pairs[i+1]) {
				continue outer
			}
		}
		total += m.GetCounter().GetValue()
	}
	return total
}

func computeErrorRate(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total, errors float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() == nil {
			continue
		}
		v := m.GetCounter().GetValue()
		total += v
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "status_code" {
				code := lp.GetValue()
				if len(code) > 0 && code[0] >= '5' {
					errors += v
				}
			}
		}
	}
	if total == 0 {
		return 0
	}
	return errors / total
}

// histogramPercentile computes a percentile from aggregated histogram buckets
// using linear interpolation.
func histogramPercentile(f *dto.MetricFamily, q float64) float64 {
	if f == nil {
		return 0
	}

	type bucket struct {
		upperBound      float64
		cumulativeCount uint64
	}
	var totalCount uint64
	bucketMap := make(map[float64]uint64)

	for _, m := range f.GetMetric() {
		h := m.GetHistogram()
		if h == nil {
			continue
		}
		totalCount += h.GetSampleCount()
		for _, b := range h.GetBucket() {
			bucketMap[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}

	if totalCount == 0 {
		return 0
	}

	buckets := make([]bucket, 0, len(bucketMap))
	for ub, count := range bucketMap {
		buckets = append(buckets, bucket{upperBound: ub, cumulativeCount: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].upperBound < buckets[j].upperBound
	})

	rank := q * float64(totalCount)

	var prevBound float64
	var prevCount uint64
	for _, b := range buckets {
		if math.IsInf(b.upperBound, 1) {
			break
		}
		if float64(b.cumulativeCount) >= rank {
			bucketCount := b.cumulativeCount - prevCount
			if bucketCount == 0 {
				return b.upperBound
			}
			fraction := (rank - float64(prevCount)) / float64(bucketCount)
			return prevBound + fraction*(b.upperBound-prevBound)
		}
		prevBound = b.upperBound
		prevCount = b.cumulativeCount
	}

	for i := len(buckets) - 1; i >= 0; i-- {
		if !math.IsInf(buckets[i].upperBound, 1) {
			return buckets[i].upperBound
		}
	}
	return 0
}
