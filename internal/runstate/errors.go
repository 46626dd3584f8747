package runstate

import "errors"

var (
	// ErrStateNotFound is returned when no state file exists
	ErrStateNotFound = errors.New("state file not found")
	// ErrAlreadyRunning is returned when a supervisor already owns the state dir
	ErrAlreadyRunning = errors.New("forkvisor is already running")
	// ErrNotRunning is returned when no supervisor is running
	ErrNotRunning = errors.New("forkvisor is not running")
)
