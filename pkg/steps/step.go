package steps

import "fmt"

// InstallStep represents the progress of a single install operation.
type InstallStep string

const (
	// StepPending indicates the operation is queued but not yet started.
	StepPending InstallStep = "pending"

	// StepDownloading indicates the package is being fetched.
	StepDownloading InstallStep = "downloading"

	// StepInstalling indicates the fetched package is being applied.
	StepInstalling InstallStep = "installing"

	// StepInstalled indicates the operation finished successfully.
	StepInstalled InstallStep = "installed"

	// StepError indicates the operation failed.
	StepError InstallStep = "error"
)

// IsCompleted returns true if the step is terminal.
func (s InstallStep) IsCompleted() bool {
	return s == StepInstalled || s == StepError
}

// IsActive returns true if the operation is still in flight.
func (s InstallStep) IsActive() bool {
	return s == StepPending || s == StepDownloading || s == StepInstalling
}

// Validate checks if the step is valid.
func (s InstallStep) Validate() error {
	switch s {
	case StepPending, StepDownloading, StepInstalling, StepInstalled, StepError:
		return nil
	default:
		return fmt.Errorf("invalid install step: %s", s)
	}
}

// String implements fmt.Stringer.
func (s InstallStep) String() string {
	return string(s)
}

// rank orders the non-error steps.
func (s InstallStep) rank() int {
	switch s {
	case StepPending:
		return 0
	case StepDownloading:
		return 1
	case StepInstalling:
		return 2
	case StepInstalled:
		return 3
	default:
		return -1
	}
}

// CanTransition reports whether moving from s to next is a legal forward step.
func (s InstallStep) CanTransition(next InstallStep) bool {
	if s.IsCompleted() || next.Validate() != nil {
		return false
	}
	if next == StepError {
		return true
	}
	return next.rank() == s.rank()+1
}
