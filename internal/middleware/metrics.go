package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics stores application metrics
type Metrics struct {
	RequestsTotal         atomic.Uint64
	RequestsInProgress    atomic.Int64
	RequestsSuccess       atomic.Uint64
	RequestsFailed        atomic.Uint64
	EvaluationsTotal      atomic.Uint64
	EvaluationsRunning    atomic.Int64
	EvaluationsSuccess    atomic.Uint64
	EvaluationsPartial    atomic.Uint64
	EvaluationsFailed     atomic.Uint64
	GuidelineChecks       atomic.Uint64
	GuidelineChecksDenied atomic.Uint64
	StartTime             time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{StartTime: time.Now()}
}

// EvaluationStarted marks an evaluation in flight. The returned func
// records its final status.
func (m *Metrics) EvaluationStarted() func(status string) {
	m.EvaluationsTotal.Add(1)
	m.EvaluationsRunning.Add(1)
	return func(status string) {
		m.EvaluationsRunning.Add(-1)
		switch status {
		case "success":
			m.EvaluationsSuccess.Add(1)
		case "partial success":
			m.EvaluationsPartial.Add(1)
		default:
			m.EvaluationsFailed.Add(1)
		}
	}
}

func (m *Metrics) GuidelineChecked(granted bool) {
	m.GuidelineChecks.Add(1)
	if !granted {
		m.GuidelineChecksDenied.Add(1)
	}
}

// Snapshot returns current metrics
func (m *Metrics) Snapshot() map[string]any {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return map[string]any{
		"requests_total":          m.RequestsTotal.Load(),
		"requests_in_progress":    m.RequestsInProgress.Load(),
		"requests_success":        m.RequestsSuccess.Load(),
		"requests_failed":         m.RequestsFailed.Load(),
		"evaluations_total":       m.EvaluationsTotal.Load(),
		"evaluations_running":     m.EvaluationsRunning.Load(),
		"evaluations_success":     m.EvaluationsSuccess.Load(),
		"evaluations_partial":     m.EvaluationsPartial.Load(),
		"evaluations_failed":      m.EvaluationsFailed.Load(),
		"guideline_checks":        m.GuidelineChecks.Load(),
		"guideline_checks_denied": m.GuidelineChecksDenied.Load(),
		"uptime_seconds":          time.Since(m.StartTime).Seconds(),
		"memory": map[string]any{
			"alloc_bytes":       mem.Alloc,
			"total_alloc_bytes": mem.TotalAlloc,
			"sys_bytes":         mem.Sys,
			"num_gc":            mem.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// Middleware tracks request metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.RequestsTotal.Add(1)
		m.RequestsInProgress.Add(1)
		defer m.RequestsInProgress.Add(-1)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			m.RequestsSuccess.Add(1)
		} else {
			m.RequestsFailed.Add(1)
		}
	})
}

// Handler returns metrics as JSON
func (m *Metrics) Handler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m.Snapshot())
}
