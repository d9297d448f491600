// Package metrics records Prometheus metrics for the actions dispatched
// through anansi stores.
//
//	reg := prometheus.NewRegistry()
//	store := anansi.NewStore(
//	    anansi.WithStorage(storage),
//	    anansi.WithMiddleware(metrics.Middleware(reg)),
//	)
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/syssam/anansi"
)

// Collector holds the store metrics.
type Collector struct {
	ActionsTotal   *prometheus.CounterVec
	ActionDuration *prometheus.HistogramVec
	ActionErrors   *prometheus.CounterVec
	InFlight       prometheus.Gauge
}

// DefaultNamespace is the metric namespace of collectors naming none.
const DefaultNamespace = "anansi"

// Option configures a Collector.
type Option func(*options)

type options struct {
	namespace string
}

// WithNamespace sets the metric namespace.
func WithNamespace(ns string) Option {
	return func(o *options) { o.namespace = ns }
}

// New creates a collector registered with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer, opts ...Option) *Collector {
	o := options{namespace: DefaultNamespace}
	for _, opt := range opts {
		opt(&o)
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Collector{
		ActionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: o.namespace,
				Subsystem: "store",
				Name:      "actions_total",
				Help:      "Total number of dispatched store actions",
			},
			[]string{"action", "schema"},
		),
		ActionDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: o.namespace,
				Subsystem: "store",
				Name:      "action_duration_seconds",
				Help:      "Store action duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"action", "schema"},
		),
		ActionErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: o.namespace,
				Subsystem: "store",
				Name:      "errors_total",
				Help:      "Total number of failed store actions",
			},
			[]string{"action", "schema", "error_type"},
		),
		InFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: o.namespace,
				Subsystem: "store",
				Name:      "actions_in_flight",
				Help:      "Number of store actions currently running",
			},
		),
	}
}

// Middleware returns a store middleware recording every action.
func (c *Collector) Middleware() anansi.Middleware {
	return anansi.MiddlewareFunc(func(next anansi.Handler) anansi.Handler {
		return func(ctx context.Context, a anansi.Action) (any, error) {
			action, schema := a.Kind().String(), schemaName(a)
			c.InFlight.Inc()
			start := time.Now()
			out, err := next(ctx, a)
			c.InFlight.Dec()
			c.ActionsTotal.WithLabelValues(action, schema).Inc()
			c.ActionDuration.WithLabelValues(action, schema).Observe(time.Since(start).Seconds())
			if err != nil {
				c.ActionErrors.WithLabelValues(action, schema, ErrorType(err)).Inc()
			}
			return out, err
		}
	})
}

// Middleware creates a collector registered with reg and returns its
// middleware.
func Middleware(reg prometheus.Registerer, opts ...Option) anansi.Middleware {
	return New(reg, opts...).Middleware()
}

func schemaName(a anansi.Action) string {
	if s := a.Target(); s != nil {
		return s.Name()
	}
	return ""
}

// ErrorType returns the error_type label of err.
func ErrorType(err error) string {
	switch {
	case anansi.IsNotFound(err):
		return "not_found"
	case anansi.IsValidationError(err):
		return "validation"
	case anansi.IsConstraintError(err):
		return "constraint"
	case anansi.IsPrivacyError(err):
		return "privacy"
	case anansi.IsReadOnly(err):
		return "read_only"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}
