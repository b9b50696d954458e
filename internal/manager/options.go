package manager

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/scmgo/scm-server/internal/telemetry"
)

// DefaultNativeType is the type assigned to created entities without one.
const DefaultNativeType = "memory"

type options struct {
	nativeType string
	tracer     trace.Tracer
	metrics    *telemetry.EntityMetrics
	clock      func() time.Time
}

// Option configures a Manager
type Option func(*options)

// WithNativeType sets the type assigned to created entities without one,
// normally the storage type name.
func WithNativeType(t string) Option {
	return func(o *options) {
		o.nativeType = t
	}
}

// WithTracer sets the tracer used for manager spans
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithMetrics sets the entity metrics; nil disables them
func WithMetrics(m *telemetry.EntityMetrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithClock replaces the wall clock
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// ListOptions bounds the result of GetAll
type ListOptions struct {
	// Start is the zero based offset of the first entity
	Start int

	// Limit is the maximum number of entities; zero or negative means unlimited
	Limit int
}

// ListOption configures a listing
type ListOption func(*ListOptions) error

// WithWindow returns limit entities starting at the start-th one.
func WithWindow(start, limit int) ListOption {
	return func(o *ListOptions) error {
		if start < 0 {
			return ErrInvalidWindow
		}
		o.Start = start
		o.Limit = limit
		return nil
	}
}

func (o ListOptions) apply(n int) (from, to int) {
	from = min(o.Start, n)
	to = n
	if o.Limit > 0 {
		to = min(from+o.Limit, n)
	}
	return from, to
}
