// Package steps tracks the progress of long-running, externally driven
// operations such as extension installs.
//
// Each operation gets its own Tracker. The component driving the operation
// advances the tracker strictly forward:
//
//	Pending -> Downloading -> Installing -> Installed
//
// and may move any non-terminal step to Error. Installed and Error are
// terminal. Consumers observe a tracker through Updates, which replays the
// current step and then streams every later one until the terminal step.
package steps
