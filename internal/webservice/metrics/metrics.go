// Package metrics provides middleware for collecting metrics in the web service, to be interpreted by Prometheus.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/public-data-space/zenodo-adapter/internal/common/constants"
)

type label string

// LabelRoute is the label used for the matched route in metrics.
const LabelRoute label = "route"

// Middleware is a middleware for collecting HTTP request metrics.
type Middleware struct {
	buckets  []float64
	registry prometheus.Registerer
}

// New creates a new Middleware instance registering its collectors on registry.
func New(registry prometheus.Registerer) *Middleware {
	return &Middleware{
		// Streams and ingestions can run long, so the buckets go up to about 41s.
		buckets:  prometheus.ExponentialBuckets(0.005, 2, 14),
		registry: registry,
	}
}

// Monitor wraps an HTTP handler to collect metrics under handlerName.
func (m *Middleware) Monitor(handlerName string, handler http.Handler) http.HandlerFunc {
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"handler": handlerName}, m.registry)
	labels := []string{"method", "code", string(LabelRoute)}

	requestsTotal := promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: constants.MetricsNamespace,
			Name:      "http_requests_total",
			Help:      "Tracks the number of HTTP requests.",
		}, labels,
	)
	requestDuration := promauto.With(reg).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: constants.MetricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "Tracks the latencies for HTTP requests.",
			Buckets:   m.buckets,
		},
		labels,
	)

	routeLabel := promhttp.WithLabelFromCtx(string(LabelRoute), routeLabelFromCtx)
	base := promhttp.InstrumentHandlerCounter(
		requestsTotal,
		promhttp.InstrumentHandlerDuration(requestDuration, handler, routeLabel),
		routeLabel,
	)

	return base.ServeHTTP
}

func routeLabelFromCtx(ctx context.Context) string {
	if route, ok := ctx.Value(LabelRoute).(string); ok {
		return route
	}
	return "unknown"
}

// ApplyLabels stores the matched route of r in its context.
// The mux pattern is used when available so that identifiers in paths do not become label values.
func ApplyLabels(r *http.Request) {
	route := r.Pattern
	if route == "" {
		route = r.URL.Path
	}
	ctx := context.WithValue(r.Context(), LabelRoute, route)
	*r = *r.WithContext(ctx)
}

// HandlerApplyLabels is a middleware helper function to apply labels to an HTTP handler.
func HandlerApplyLabels(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ApplyLabels(r)
		handler.ServeHTTP(w, r)
	})
}
