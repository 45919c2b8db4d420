// Package metrics holds the engine's Prometheus collectors. They register
// on the default registry, which /metrics serves.
package metrics

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// status: started/resumed/limit_exceeded
	AttemptStarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_attempt_starts_total",
			Help: "Total number of start requests by outcome",
		},
		[]string{"status"},
	)

	// reason: manual/timeout, result: passed/failed
	AttemptsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_attempts_completed_total",
			Help: "Total number of attempts completed",
		},
		[]string{"reason", "result"},
	)

	AttemptsAbandoned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_attempts_abandoned_total",
			Help: "Total number of attempts abandoned",
		},
	)

	// type: question type, correct: true/false
	AnswersSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_answers_submitted_total",
			Help: "Total number of answers evaluated",
		},
		[]string{"type", "correct"},
	)

	AttemptScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quiz_attempt_score_percent",
			Help:    "Distribution of completed attempt scores",
			Buckets: prometheus.LinearBuckets(10, 10, 10),
		},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quiz_http_request_duration_seconds",
			Help:    "Time spent handling API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest records the time since start for route.
func ObserveRequest(route, method string, start time.Time) {
	RequestDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
}

// Instrument is mux middleware timing every request by route template.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		ObserveRequest(route, r.Method, start)
	})
}

func Bool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
