package domain

import "errors"

// Domain errors
var (
	// ErrConfiguration is returned when a work descriptor does not name a
	// known, instantiable work unit
	ErrConfiguration = errors.New("configuration error")
	// ErrCapability is returned when an instantiated work unit does not
	// implement the work unit interface
	ErrCapability = errors.New("capability error")
	// ErrFork is returned when the OS refuses to create a new process
	ErrFork = errors.New("fork failed")
	// ErrChildContext is returned for operations only valid in the parent
	ErrChildContext = errors.New("operation not permitted in child context")
	// ErrNotStarted is returned when a handle has not been forked yet
	ErrNotStarted = errors.New("worker not started")
	// ErrConfigNotFound is returned when the config file does not exist
	ErrConfigNotFound = errors.New("config file not found")
	// ErrInvalidConfig is returned when the config file fails validation
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Error codes for CLI output
const (
	ErrCodeConfiguration  = "CONFIGURATION_ERROR"
	ErrCodeCapability     = "CAPABILITY_ERROR"
	ErrCodeOSResource     = "OS_RESOURCE_ERROR"
	ErrCodeChildContext   = "CHILD_CONTEXT"
	ErrCodeNotStarted     = "NOT_STARTED"
	ErrCodeInvalidConfig  = "INVALID_CONFIG"
	ErrCodeConfigNotFound = "CONFIG_NOT_FOUND"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// ErrorCode returns the error code for a domain error
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrConfiguration):
		return ErrCodeConfiguration
	case errors.Is(err, ErrCapability):
		return ErrCodeCapability
	case errors.Is(err, ErrFork):
		return ErrCodeOSResource
	case errors.Is(err, ErrChildContext):
		return ErrCodeChildContext
	case errors.Is(err, ErrNotStarted):
		return ErrCodeNotStarted
	case errors.Is(err, ErrInvalidConfig):
		return ErrCodeInvalidConfig
	case errors.Is(err, ErrConfigNotFound):
		return ErrCodeConfigNotFound
	default:
		return ErrCodeInternal
	}
}
