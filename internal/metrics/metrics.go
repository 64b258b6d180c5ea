// Package metrics holds the prometheus collectors shared across the service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AITokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policy_tracker_ai_tokens_total",
			Help: "Tokens consumed by AI completions",
		},
		[]string{"model", "type"},
	)

	AICost = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policy_tracker_ai_cost_usd_total",
			Help: "Estimated AI spend in USD",
		},
		[]string{"model"},
	)

	AIConfidence = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "policy_tracker_ai_confidence",
			Help:    "Confidence reported by AI analyses",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
		[]string{"function"},
	)

	TasksCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policy_tracker_tasks_created_total",
			Help: "Tasks written to the ledger",
		},
		[]string{"task_type"},
	)

	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policy_tracker_rate_limited_total",
			Help: "Requests rejected by a daily quota",
		},
		[]string{"endpoint"},
	)

	Candidates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policy_tracker_candidates_total",
			Help: "Candidate import outcomes",
		},
		[]string{"outcome"},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policy_tracker_http_requests_total",
			Help: "HTTP requests served",
		},
		[]string{"route", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "policy_tracker_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	OpenTasks = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "policy_tracker_open_tasks",
		Help: "Non-terminal tasks created within the health lookback window",
	})

	StaleTasks = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "policy_tracker_stale_tasks",
		Help: "Open tasks that have not moved within the stale window",
	})

	WindowCost = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "policy_tracker_ai_window_cost_usd",
		Help: "Estimated AI spend within the health lookback window",
	})
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		AITokens, AICost, AIConfidence, TasksCreated,
		RateLimited, Candidates, HTTPRequests, HTTPDuration,
		OpenTasks, StaleTasks, WindowCost,
	}
}

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

var defaultOnce sync.Once

// Handler registers the collectors with the default registry once and
// returns the scrape handler.
func Handler() http.Handler {
	defaultOnce.Do(func() {
		_ = Register(prometheus.DefaultRegisterer)
	})
	return promhttp.Handler()
}

// ObserveCompletion records token usage and spend for one AI call.
func ObserveCompletion(model string, inputTokens, outputTokens int, usd float64) {
	AITokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	AITokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	AICost.WithLabelValues(model).Add(usd)
}

// ObserveRequest records one served HTTP request.
func ObserveRequest(route string, status int, elapsed time.Duration) {
	HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveHealth publishes the latest health snapshot.
func ObserveHealth(openTasks, staleTasks int, windowUSD float64) {
	OpenTasks.Set(float64(openTasks))
	StaleTasks.Set(float64(staleTasks))
	WindowCost.Set(windowUSD)
}
