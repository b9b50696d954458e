// Package hook turns notifications of backend hooks into hook events.
package hook

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/scmgo/scm-server/internal/event"
	"github.com/scmgo/scm-server/internal/manager"
	"github.com/scmgo/scm-server/internal/otel"
	"github.com/scmgo/scm-server/internal/telemetry"
)

// Status is the outcome of one notification.
type Status string

const (
	// StatusDispatched means the hook event was published
	StatusDispatched Status = "dispatched"

	// StatusRepositoryNotFound means no repository of the kind and name exists
	StatusRepositoryNotFound Status = "repository-not-found"

	// StatusFailed means the notification could not be dispatched for another reason
	StatusFailed Status = "failed"
)

// Notification reports that a backend hook observed a change.
type Notification struct {
	BackendKind    string
	RepositoryName string
	ChangeType     string
	Node           string
}

// Result is reported back to the notifier.
type Result struct {
	Status  Status `json:"status"`
	EventID string `json:"eventId,omitempty"`
}

// Dispatcher publishes the hook event of a repository. It is implemented by
// manager.RepositoryManager.
type Dispatcher interface {
	FireHookEvent(ctx context.Context, kind, name string, ev *event.HookEvent) error
}

// Bridge handles hook notifications. It holds no mutable state.
type Bridge struct {
	dispatcher Dispatcher
	metrics    *telemetry.HookMetrics
	tracer     trace.Tracer
}

// Option configures a Bridge
type Option func(*Bridge)

// WithMetrics counts notifications by outcome; nil disables it
func WithMetrics(m *telemetry.HookMetrics) Option {
	return func(b *Bridge) {
		b.metrics = m
	}
}

// WithTracer sets the tracer used for hook spans
func WithTracer(tracer trace.Tracer) Option {
	return func(b *Bridge) {
		b.tracer = tracer
	}
}

// NewBridge creates a bridge dispatching through d.
func NewBridge(d Dispatcher, opts ...Option) *Bridge {
	b := &Bridge{dispatcher: d}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Handle dispatches one notification. It never fails; the outcome is in the result.
func (b *Bridge) Handle(ctx context.Context, n Notification) Result {
	ctx, span := otel.StartSpan(ctx, b.tracer, "hook.Handle", trace.WithAttributes(
		otel.AttrBackendKind.String(n.BackendKind),
		otel.AttrRepositoryName.String(n.RepositoryName),
	))
	defer span.End()

	ev := event.NewHookEvent(n.BackendKind, n.RepositoryName, n.ChangeType, n.Node)
	err := b.dispatcher.FireHookEvent(ctx, n.BackendKind, n.RepositoryName, ev)

	var result Result
	switch {
	case err == nil:
		slog.DebugContext(ctx, "Dispatched hook event",
			"backend", n.BackendKind,
			"repository", n.RepositoryName,
			"change_type", n.ChangeType,
			"event_id", ev.ID)
		result = Result{Status: StatusDispatched, EventID: ev.ID}
	case errors.Is(err, manager.ErrRepositoryNotFound):
		slog.ErrorContext(ctx, "could not find repository",
			"backend", n.BackendKind,
			"repository", n.RepositoryName)
		result = Result{Status: StatusRepositoryNotFound}
	default:
		slog.ErrorContext(ctx, "Failed to dispatch hook event",
			"backend", n.BackendKind,
			"repository", n.RepositoryName,
			"error", err)
		otel.RecordError(span, err)
		result = Result{Status: StatusFailed}
	}

	span.SetAttributes(otel.AttrHookStatus.String(string(result.Status)))
	b.metrics.RecordNotification(ctx, n.BackendKind, string(result.Status))
	return result
}
