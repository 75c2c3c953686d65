package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsRouted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "engine_events_routed_total",
		Help: "Normalized events accepted by the router",
	})
	TriggerEventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_trigger_events_dropped_total",
			Help: "Trigger-stage events dropped by full campaign queues",
		}, []string{"campaign_id"},
	)
	InstancesTerminal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_instances_terminal_total",
			Help: "Instances reaching a terminal status",
		}, []string{"status"},
	)
	DispatchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_dispatch_errors_total",
			Help: "Action dispatch failures after retry exhaustion",
		}, []string{"action"},
	)
	LookupRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "engine_lookup_retries_total",
		Help: "Account-context lookup retries in the filter stage",
	})
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"code"},
	)
	Latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Request latency seconds",
		Buckets: prometheus.DefBuckets,
	})
	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight",
		Help: "In-flight HTTP requests",
	})
)

func init() {
	prometheus.MustRegister(
		EventsRouted, TriggerEventsDropped, InstancesTerminal,
		DispatchErrors, LookupRetries,
		RequestsTotal, Latency, InFlight,
	)
}

func MetricsHandler() http.Handler { return promhttp.Handler() }

type rec struct {
	http.ResponseWriter
	code int
}

func (r *rec) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func Measure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		InFlight.Inc()
		defer InFlight.Dec()

		rr := &rec{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rr, r)

		Latency.Observe(time.Since(start).Seconds())
		RequestsTotal.WithLabelValues(strconv.Itoa(rr.code)).Inc()
	})
}
