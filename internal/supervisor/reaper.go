package supervisor

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/charliek/forkvisor/internal/domain"
	"golang.org/x/sys/unix"
)

// Reaper collects one terminated child per call without blocking
type Reaper interface {
	// Reap returns ok=false when no child is ready
	Reap() (pid int, status domain.ExitStatus, ok bool, err error)
}

// WaitAnyReaper reaps any terminated child of the process with
// wait4(-1, WNOHANG). It also collects children the supervisor did not
// start, so nothing else in the process should wait on its own children
// while a supervisor runs.
type WaitAnyReaper struct{}

// Reap implements Reaper
func (WaitAnyReaper) Reap() (int, domain.ExitStatus, bool, error) {
	var ws unix.WaitStatus
	for {
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.ECHILD):
			return 0, domain.ExitStatus{}, false, nil
		case err != nil:
			return 0, domain.ExitStatus{}, false, fmt.Errorf("reaping children: %w", err)
		case pid <= 0:
			return 0, domain.ExitStatus{}, false, nil
		}
		return pid, domain.ExitStatusFromWait(syscall.WaitStatus(ws)), true, nil
	}
}
