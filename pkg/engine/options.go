package engine

import (
	"time"

	"github.com/mangasync/mangasync/pkg/telemetry"
)

// Option configures an interactor.
type Option func(*options)

type options struct {
	tel *telemetry.Telemetry
	now func() time.Time
}

// WithTelemetry sets the telemetry used for logging, tracing, metrics and events.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(o *options) {
		o.tel = tel
	}
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func newOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	o.tel = telemetry.OrNop(o.tel)
	return o
}
