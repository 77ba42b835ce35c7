package presenters

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/mangasync/mangasync/pkg/state"
	"github.com/mangasync/mangasync/pkg/steps"
)

// InstallViewState is an immutable snapshot of extension installs keyed by
// package name.
type InstallViewState struct {
	Steps    map[string]steps.InstallStep `json:"steps"`
	Failures map[string]string            `json:"failures,omitempty"`
}

// Packages returns the package names in the state, sorted.
func (s InstallViewState) Packages() []string {
	out := make([]string, 0, len(s.Steps))
	for pkg := range s.Steps {
		out = append(out, pkg)
	}
	sort.Strings(out)
	return out
}

// InstallChange is an intent folded into an InstallViewState.
type InstallChange interface {
	isInstallChange()
}

// StepChanged reports a tracker update for a package.
type StepChanged struct {
	Package string
	Update  steps.Update
}

// Acknowledged removes a finished package from the state.
type Acknowledged struct {
	Package string
}

func (StepChanged) isInstallChange()  {}
func (Acknowledged) isInstallChange() {}

// ReduceInstall folds change into s. Maps are copied, never modified in
// place. Acknowledging a package that has not finished is ignored.
func ReduceInstall(s InstallViewState, change InstallChange) InstallViewState {
	switch c := change.(type) {
	case StepChanged:
		s.Steps = cloneMap(s.Steps)
		s.Steps[c.Package] = c.Update.Step
		if c.Update.Step == steps.StepError {
			s.Failures = cloneMap(s.Failures)
			reason := "install failed"
			if c.Update.Err != nil {
				reason = c.Update.Err.Error()
			}
			s.Failures[c.Package] = reason
		}
	case Acknowledged:
		step, ok := s.Steps[c.Package]
		if !ok || !step.IsCompleted() {
			return s
		}
		s.Steps = cloneMap(s.Steps)
		delete(s.Steps, c.Package)
		if _, failed := s.Failures[c.Package]; failed {
			s.Failures = cloneMap(s.Failures)
			delete(s.Failures, c.Package)
		}
	}
	return s
}

func cloneMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m)+1)
	maps.Copy(out, m)
	return out
}

// InstallPresenter folds the progress of several install operations into one
// InstallViewState.
type InstallPresenter struct {
	*state.Engine[InstallViewState, InstallChange]

	opts options

	mu      sync.Mutex
	ack     state.Emitter[InstallChange]
	pending []string
}

type installOption = state.Option[InstallViewState, InstallChange]

// NewInstallPresenter builds a presenter over trackers keyed by package name.
func NewInstallPresenter(trackers map[string]*steps.Tracker, opts ...Option) *InstallPresenter {
	p := &InstallPresenter{opts: newOptions(opts)}

	engineOpts := []installOption{
		state.WithName[InstallViewState, InstallChange]("install"),
		state.WithTelemetry[InstallViewState, InstallChange](p.opts.tel),
		state.WithSource[InstallViewState, InstallChange]("acknowledgements", p.ackSource),
	}

	pkgs := make([]string, 0, len(trackers))
	for pkg := range trackers {
		pkgs = append(pkgs, pkg)
	}
	sort.Strings(pkgs)
	for _, pkg := range pkgs {
		engineOpts = append(engineOpts,
			state.WithSource[InstallViewState, InstallChange]("install:"+pkg, p.trackerSource(pkg, trackers[pkg])))
	}

	p.Engine = state.New[InstallViewState, InstallChange](InstallViewState{}, ReduceInstall, engineOpts...)
	return p
}

func (p *InstallPresenter) trackerSource(pkg string, tracker *steps.Tracker) state.Source[InstallChange] {
	return func(ctx context.Context, emit state.Emitter[InstallChange]) error {
		tel := p.opts.tel
		logger := tel.Logger.WithOperationID(tracker.ID()).WithField("package", pkg)

		for u := range tracker.Updates(ctx) {
			tel.Metrics.RecordInstallStep(string(u.Step))
			_ = tel.Events.PublishInstallStep(u.OperationID, string(u.Step))
			logger.Debugf("install step %s", u.Step)
			emit(StepChanged{Package: pkg, Update: u})
		}
		return nil
	}
}

func (p *InstallPresenter) ackSource(ctx context.Context, emit state.Emitter[InstallChange]) error {
	p.mu.Lock()
	p.ack = emit
	for _, pkg := range p.pending {
		emit(Acknowledged{Package: pkg})
	}
	p.pending = nil
	p.mu.Unlock()

	<-ctx.Done()
	return nil
}

// Acknowledge drops a finished package from the state. It never blocks and
// reports false when the presenter is not running. Acknowledgements made
// before the presenter's sources are up are queued and delivered in order.
func (p *InstallPresenter) Acknowledge(pkg string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ack == nil {
		if p.Phase() != state.PhaseActive {
			return false
		}
		p.pending = append(p.pending, pkg)
		return true
	}
	return p.ack(Acknowledged{Package: pkg})
}
