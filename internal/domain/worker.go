package domain

import (
	"fmt"
	"syscall"
	"time"
)

// ExitStatus describes how a worker process terminated.
type ExitStatus struct {
	// Raw is the wait status as reported by the OS
	Raw int
	// Code is the exit code when Exited is true
	Code int
	// Signal is the terminating signal when Signaled is true
	Signal syscall.Signal
	// Exited is true if the process called exit
	Exited bool
	// Signaled is true if the process was terminated by a signal
	Signaled bool
}

// ExitStatusFromWait converts a wait status into an ExitStatus
func ExitStatusFromWait(ws syscall.WaitStatus) ExitStatus {
	st := ExitStatus{Raw: int(ws)}
	switch {
	case ws.Exited():
		st.Exited = true
		st.Code = ws.ExitStatus()
	case ws.Signaled():
		st.Signaled = true
		st.Signal = ws.Signal()
	}
	return st
}

// Success returns true if the process exited on its own with status 0
func (s ExitStatus) Success() bool {
	return s.Exited && s.Code == 0
}

// Numeric returns the exit code, or the negated signal number when the
// process was killed by a signal (e.g. -9 for SIGKILL).
func (s ExitStatus) Numeric() int {
	if s.Signaled {
		return -int(s.Signal)
	}
	return s.Code
}

// String returns a short human readable form like "rc=1" or "signal=killed"
func (s ExitStatus) String() string {
	if s.Signaled {
		return fmt.Sprintf("signal=%s", s.Signal)
	}
	return fmt.Sprintf("rc=%d", s.Code)
}

// State is the lifecycle state of a supervisor.
type State string

const (
	// StateRunning means workers are supervised and restarted per policy
	StateRunning State = "running"
	// StateDraining means shutdown was requested but no deadline is set yet
	StateDraining State = "draining"
	// StateDrainingWithDeadline means workers are being waited on until the grace period ends
	StateDrainingWithDeadline State = "draining_with_deadline"
	// StateForceKilling means the grace period elapsed and stragglers are being killed
	StateForceKilling State = "force_killing"
	// StateStopped is terminal
	StateStopped State = "stopped"
)

// String returns the string representation of State
func (s State) String() string {
	return string(s)
}

// IsDraining returns true once shutdown has been requested
func (s State) IsDraining() bool {
	return s != StateRunning
}

// WorkerInfo is a snapshot of one supervised worker slot
type WorkerInfo struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Unit       string            `json:"unit"`
	PID        int               `json:"pid"`
	Policy     string            `json:"policy"`
	Spawns     int               `json:"spawns"`
	StartedAt  time.Time         `json:"started_at,omitempty"`
	LastStatus string            `json:"last_status,omitempty"`
	Options    map[string]string `json:"options,omitempty"`
}

// Restarts returns the number of times the slot was respawned
func (w WorkerInfo) Restarts() int {
	if w.Spawns == 0 {
		return 0
	}
	return w.Spawns - 1
}

// UptimeSeconds returns the number of seconds the current process has been running
func (w WorkerInfo) UptimeSeconds() int64 {
	if w.StartedAt.IsZero() {
		return 0
	}
	return int64(time.Since(w.StartedAt).Seconds())
}
