// Package constants provides shared configuration values used across forkvisor.
package constants

import "time"

// Configuration file defaults
const (
	// DefaultConfigFile is the default configuration filename
	DefaultConfigFile = "forkvisor.yaml"

	// DefaultPIDFile is the supervisor's PID file, relative to the config dir
	DefaultPIDFile = ".forkvisor/forkvisor.pid"

	// StateFileName is the name of the run state file next to the PID file
	StateFileName = "state.json"

	// DaemonLogFileName is the log file of a detached supervisor
	DaemonLogFileName = "forkvisor.log"

	// DefaultWorkerName is used for workers added without a name
	DefaultWorkerName = "anonymous"

	// SystemProcess is the journal source name for supervisor messages
	SystemProcess = "system"

	// SupervisorUnit is the unit name of a supervisor's own handle
	SupervisorUnit = "supervisor"
)

// Timeout and duration defaults
const (
	// DefaultGracePeriod is how long workers may take to exit on their own
	// after shutdown is requested before they are killed
	DefaultGracePeriod = 5 * time.Second

	// DefaultPollInterval is the pause between two supervisor loop iterations
	DefaultPollInterval = 10 * time.Millisecond

	// KillReapTimeout bounds how long killed workers are reaped after a
	// forced shutdown
	KillReapTimeout = time.Second

	// OutputDrainTimeout is how long to wait for captured output after the
	// supervisor stops
	OutputDrainTimeout = 2 * time.Second
)

// Environment markers understood by a re-executed child
const (
	// EnvUnit carries the work unit identifier the child must run
	EnvUnit = "_FORKVISOR_UNIT"

	// EnvOptions carries the JSON encoded unit options
	EnvOptions = "_FORKVISOR_OPTIONS"

	// EnvPIDFile carries the path the child writes its PID to
	EnvPIDFile = "_FORKVISOR_PIDFILE"

	// EnvTitle carries the requested process title
	EnvTitle = "_FORKVISOR_TITLE"

	// EnvDaemon marks a detached supervisor process
	EnvDaemon = "_FORKVISOR_DAEMON"
)

// Exit codes used by the child bootstrap
const (
	// ExitCodeError is used when the work routine returns a plain error
	ExitCodeError = 1

	// ExitCodeBootstrap is used when the child cannot start its work unit
	ExitCodeBootstrap = 2
)

// Buffer sizes
const (
	// DefaultJournalSize is the default number of journal entries kept in memory
	DefaultJournalSize = 1000

	// DefaultSubscriptionBuffer is the default size for subscription buffers
	DefaultSubscriptionBuffer = 100

	// ScannerBufferSize is the initial buffer size for output line scanning
	ScannerBufferSize = 64 * 1024 // 64KB

	// ScannerMaxBufferSize is the maximum buffer size for output line scanning
	ScannerMaxBufferSize = 1024 * 1024 // 1MB
)

// ANSI color codes for terminal output
var (
	// ProcessColors are the colors used for worker names in terminal output
	ProcessColors = []string{
		"\033[36m", // cyan
		"\033[33m", // yellow
		"\033[32m", // green
		"\033[35m", // magenta
		"\033[34m", // blue
		"\033[31m", // red
	}

	// ColorReset resets the terminal color
	ColorReset = "\033[0m"

	// ColorBrightRed is used for stderr output
	ColorBrightRed = "\033[91m"
)
