package state

import "github.com/mangasync/mangasync/pkg/telemetry"

// Option configures an Engine.
type Option[S, E any] func(*Engine[S, E])

// WithName sets the engine name used in logs, metrics and events.
func WithName[S, E any](name string) Option[S, E] {
	return func(e *Engine[S, E]) {
		e.name = name
	}
}

// WithSource registers a must-succeed intent source. A source that returns
// an error other than the engine's own cancellation fails the engine.
func WithSource[S, E any](name string, src Source[E]) Option[S, E] {
	return func(e *Engine[S, E]) {
		e.sources = append(e.sources, namedSource[E]{name: name, run: src})
	}
}

// WithEffect registers a best-effort side-effect task.
func WithEffect[S, E any](effect Effect[S]) Option[S, E] {
	return func(e *Engine[S, E]) {
		e.effects = append(e.effects, effect)
	}
}

// WithTelemetry sets logger, metrics and events from one telemetry handle.
func WithTelemetry[S, E any](tel *telemetry.Telemetry) Option[S, E] {
	return func(e *Engine[S, E]) {
		tel = telemetry.OrNop(tel)
		e.logger = tel.Logger
		e.metrics = tel.Metrics
		e.events = tel.Events
		e.tracer = tel.Tracer
	}
}

// WithLogger sets the engine logger.
func WithLogger[S, E any](logger *telemetry.Logger) Option[S, E] {
	return func(e *Engine[S, E]) {
		e.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics[S, E any](metrics *telemetry.Metrics) Option[S, E] {
	return func(e *Engine[S, E]) {
		e.metrics = metrics
	}
}

// WithEventPublisher sets the publisher for lifecycle and effect failure events.
func WithEventPublisher[S, E any](events *telemetry.EventPublisher) Option[S, E] {
	return func(e *Engine[S, E]) {
		e.events = events
	}
}
