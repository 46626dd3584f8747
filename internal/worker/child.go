package worker

import (
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/charliek/forkvisor/internal/constants"
	"github.com/charliek/forkvisor/internal/pidfile"
	"github.com/charliek/forkvisor/internal/signals"
)

// IsChildProcess returns true if this process was started by Fork
func IsChildProcess() bool {
	_, ok := os.LookupEnv(constants.EnvUnit)
	return ok
}

// Main is the child continuation of Fork.
//
// It returns immediately in a process that was not started by Fork, so it
// must be the first statement of main (and of TestMain in packages whose
// tests fork). In a forked child it never returns: it restores default
// signal dispositions, writes the PID file, applies the process title,
// runs the work unit synchronously and exits with the routine's status.
func Main(reg *Registry) {
	unit, ok := os.LookupEnv(constants.EnvUnit)
	if !ok {
		return
	}
	os.Exit(runChild(reg, unit))
}

func runChild(reg *Registry, unit string) int {
	h := &Handle{
		router: signals.NewRouter(),
		unit:   unit,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	h.RestoreSignalDefault()
	signal.Reset()

	h.isChild = true
	h.pid = os.Getpid()

	opts, err := decodeOptions(os.Getenv(constants.EnvOptions))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", unit, err)
		return constants.ExitCodeBootstrap
	}
	h.options = opts
	h.pidFile = os.Getenv(constants.EnvPIDFile)
	title := os.Getenv(constants.EnvTitle)

	// Nested forks must not see this process's markers
	for _, m := range childMarkers {
		os.Unsetenv(m)
	}

	if h.pidFile != "" {
		if err := pidfile.Write(h.pidFile, h.pid); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", unit, err)
			return constants.ExitCodeBootstrap
		}
	}
	if title != "" {
		h.SetTitle(title)
	}

	u, err := reg.Instantiate(unit, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", unit, err)
		return constants.ExitCodeBootstrap
	}

	err = u.Run(h)
	var ee *ExitError
	if err != nil && !errors.As(err, &ee) {
		fmt.Fprintf(os.Stderr, "%s: %v\n", unit, err)
	}
	return exitCode(err)
}
