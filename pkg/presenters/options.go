package presenters

import (
	"context"

	"github.com/mangasync/mangasync/pkg/telemetry"
)

// RevisionSource reports changes to a source's catalogue as an increasing
// revision number.
type RevisionSource interface {
	Watch(ctx context.Context) (<-chan int, error)
}

// Option configures a presenter.
type Option func(*options)

type options struct {
	tel       *telemetry.Telemetry
	revisions RevisionSource
}

// WithTelemetry sets the telemetry shared by the presenter, its engine and
// the interactors it drives.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(o *options) {
		o.tel = tel
	}
}

// WithRevisions feeds catalogue revisions into the presenter. Each new
// revision triggers a chapter sync.
func WithRevisions(src RevisionSource) Option {
	return func(o *options) {
		o.revisions = src
	}
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	o.tel = telemetry.OrNop(o.tel)
	return o
}
