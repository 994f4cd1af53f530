package supervisor

import "fmt"

// State is the lifecycle state of the supervised server.
type State int32

const (
	// StateIdle means nothing has been launched yet.
	StateIdle State = iota
	// StateStarting means a launch is updating or spawning.
	StateStarting
	// StateRunning means the child is alive and its output is streaming.
	StateRunning
	// StateStopping means shutdown is in progress or output is draining
	// after the child exited.
	StateStopping
	// StateStopped means the last run ended and its handle was released.
	StateStopped
	// StateFailed means the last launch could not spawn the child.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// hasHandle reports whether a process handle exists in state s.
func (s State) hasHandle() bool {
	return s == StateRunning || s == StateStopping
}

// canLaunch reports whether Launch is accepted from state s.
func (s State) canLaunch() bool {
	return s == StateIdle || s == StateStopped || s == StateFailed
}
