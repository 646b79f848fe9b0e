package bridge

import "fmt"

// A State is a phase of the bridge life cycle.
type State int

// The states. A bridge moves forward only: Created, Loaded, Running, Stopped.
const (
	StateCreated State = iota
	StateLoaded
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateLoaded:
		return "loaded"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}

	return fmt.Sprintf("state(%d)", int(s))
}

// FatalExitCode is the exit code of a run that ended in a fatal bridge error.
// Targets cannot post it because posted codes are never negative.
const FatalExitCode = -1

// StopExitCode is the exit code of a run that was stopped from the host
// before the target posted one.
const StopExitCode = -2
