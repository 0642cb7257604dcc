package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	authzDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Authorization decisions by action and reason.",
		},
		[]string{"action", "reason"},
	)

	workflowTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_transitions_total",
			Help: "Verification workflow transitions by resource kind and target status.",
		},
		[]string{"kind", "to"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the readiness probe last succeeded.",
	})

	initOnce sync.Once
)

// Init registers the service metrics in the default registry.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			authzDecisions, workflowTransitions, ready,
		)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDecision counts an authorization outcome; an empty reason means allowed.
func ObserveDecision(action, reason string) {
	if reason == "" {
		reason = "allowed"
	}
	authzDecisions.WithLabelValues(action, reason).Inc()
}

// ObserveTransition counts a workflow status change.
func ObserveTransition(kind, to string) {
	workflowTransitions.WithLabelValues(kind, to).Inc()
}

// SetReady records the last readiness probe result.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// Instrument records RPS, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// collections maps an id-bearing collection to the sub-resources it serves.
var collections = map[string][]string{
	"admins":   {"role", "permissions"},
	"receipts": {"verify", "reject"},
	"reports":  nil,
	"products": nil,
}

// CanonicalPath collapses record ids so metric label cardinality stays bounded.
func CanonicalPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	if len(parts) < 3 || parts[0] != "v1" {
		return raw
	}
	subs, ok := collections[parts[1]]
	if !ok {
		return raw
	}
	switch len(parts) {
	case 3:
		return "/v1/" + parts[1] + "/:id"
	case 4:
		for _, s := range subs {
			if parts[3] == s {
				return "/v1/" + parts[1] + "/:id/" + s
			}
		}
	}
	return raw
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
