package supervisor

import "errors"

// Error types for the supervisor.
var (
	// ErrDirectoryNotFound indicates the target directory does not exist.
	ErrDirectoryNotFound = errors.New("target directory not found")

	// ErrEntryPointNotFound indicates the entry script is missing from the
	// target directory.
	ErrEntryPointNotFound = errors.New("entry point not found")

	// ErrSpawn indicates the operating system refused to start the process.
	ErrSpawn = errors.New("failed to start process")

	// ErrAlreadyRunning is returned by Launch while a lifecycle is active.
	ErrAlreadyRunning = errors.New("server already running")

	// ErrNotRunning is returned by Stop when there is nothing to stop.
	ErrNotRunning = errors.New("server not running")

	// ErrShutdownStep wraps a failed escalation step. It is logged and
	// reported in StepResult, never returned from Stop.
	ErrShutdownStep = errors.New("shutdown step failed")
)
