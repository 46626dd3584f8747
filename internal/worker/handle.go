// Package worker implements forkable units of work.
//
// Go cannot fork a running runtime, so a fork re-executes the current binary
// with marker variables in its environment. The re-executed process enters
// Main, which plays the child continuation: it runs the requested work unit
// and exits without ever returning to the caller. The parent continuation is
// the ordinary return from Fork.
package worker

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"

	"github.com/charliek/forkvisor/internal/constants"
	"github.com/charliek/forkvisor/internal/domain"
	"github.com/charliek/forkvisor/internal/pidfile"
	"github.com/charliek/forkvisor/internal/signals"
	"golang.org/x/sys/unix"
)

// WaitMode selects between blocking and polling waits
type WaitMode int

const (
	// Blocking waits until the process terminates
	Blocking WaitMode = iota
	// NonBlocking returns immediately if the process is still running
	NonBlocking
)

// Handle represents one forkable unit of work.
//
// Before Fork, Pid is the creating process's own PID. After Fork, in the
// parent, Pid is the child's PID. Inside the child continuation Pid is the
// child's own PID and IsChild is true.
type Handle struct {
	router  *signals.Router
	unit    string
	options Options

	pid     int
	isChild bool
	process *os.Process

	pidFile string
	title   string
	env     map[string]string

	stdout *os.File
	stderr *os.File

	// executable overrides the binary that is re-executed; tests only
	executable string
}

// New creates a handle for unit. The router is shared by every handle in
// the process; a nil router gets a private one.
func New(router *signals.Router, unit string, opts Options) *Handle {
	if router == nil {
		router = signals.NewRouter()
	}
	return &Handle{
		router:  router,
		unit:    unit,
		options: opts,
		pid:     os.Getpid(),
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}
}

// Pid returns the PID this handle represents
func (h *Handle) Pid() int {
	return h.pid
}

// ParentPid returns the PID of the current process's parent.
// Always queried live: the parent changes when a process is reparented.
func (h *Handle) ParentPid() int {
	return unix.Getppid()
}

// IsChild reports whether this handle lives in a child continuation
func (h *Handle) IsChild() bool {
	return h.isChild
}

// Unit returns the work unit identifier
func (h *Handle) Unit() string {
	return h.unit
}

// Options returns the unit's options
func (h *Handle) Options() Options {
	return h.options
}

// Router returns the shared signal router
func (h *Handle) Router() *signals.Router {
	return h.router
}

// Started reports whether the handle has been forked in this process
func (h *Handle) Started() bool {
	return h.process != nil
}

// SetPIDFile sets the path the child writes its PID to right after it starts
func (h *Handle) SetPIDFile(path string) *Handle {
	h.pidFile = path
	return h
}

// PIDFile returns the configured PID file path
func (h *Handle) PIDFile() string {
	return h.pidFile
}

// SetTitle relabels the process. In the parent nothing changes at the OS
// level; the title is remembered and applied by the child when it starts.
func (h *Handle) SetTitle(title string) *Handle {
	h.title = title
	if h.isChild {
		if err := setProcessTitle(title); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to set process title: %v\n", err)
		}
	}
	return h
}

// Title returns the requested process title
func (h *Handle) Title() string {
	return h.title
}

// SetEnv sets extra environment variables for the child
func (h *Handle) SetEnv(env map[string]string) *Handle {
	h.env = env
	return h
}

// SetOutput sets the files the child writes stdout and stderr to.
// Nil keeps the current destination.
func (h *Handle) SetOutput(stdout, stderr *os.File) *Handle {
	if stdout != nil {
		h.stdout = stdout
	}
	if stderr != nil {
		h.stderr = stderr
	}
	return h
}

// Fork starts a new OS process running the handle's work unit and returns
// the handle with Pid set to the child's PID. The child side never returns
// here; it runs in Main. A failure to create the process wraps
// domain.ErrFork.
func (h *Handle) Fork() (*Handle, error) {
	exe := h.executable
	if exe == "" {
		var err error
		exe, err = os.Executable()
		if err != nil {
			return nil, fmt.Errorf("%w: resolving executable: %w", domain.ErrFork, err)
		}
	}

	encoded, err := h.options.encode()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}

	cmd := exec.Command(exe)
	cmd.Args = []string{os.Args[0]}
	cmd.Env = h.childEnv(encoded)
	if h.stdout != nil {
		cmd.Stdout = h.stdout
	}
	if h.stderr != nil {
		cmd.Stderr = h.stderr
	}

	// cmd.Wait is never called: the process is reaped through wait4,
	// either by Wait below or by a supervisor's wait-any loop.
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: starting %s: %w", domain.ErrFork, h.unit, err)
	}

	h.process = cmd.Process
	h.pid = cmd.Process.Pid
	return h, nil
}

// Wait collects the exit status of the forked process. In NonBlocking mode
// done is false while the process is still running. Only valid in the
// process that called Fork.
func (h *Handle) Wait(mode WaitMode) (status domain.ExitStatus, done bool, err error) {
	if h.isChild {
		return domain.ExitStatus{}, false, domain.ErrChildContext
	}
	if h.process == nil {
		return domain.ExitStatus{}, false, domain.ErrNotStarted
	}

	flags := 0
	if mode == NonBlocking {
		flags = unix.WNOHANG
	}

	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(h.pid, &ws, flags, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return domain.ExitStatus{}, false, fmt.Errorf("waiting for pid %d: %w", h.pid, err)
		}
		if wpid == 0 {
			return domain.ExitStatus{}, false, nil
		}
		h.Release()
		return domain.ExitStatusFromWait(syscall.WaitStatus(ws)), true, nil
	}
}

// Release frees OS resources held for the child. Call it once the child
// has been reaped by someone other than Wait.
func (h *Handle) Release() {
	if h.process != nil {
		_ = h.process.Release()
	}
}

// Signal delivers sig to the represented process
func (h *Handle) Signal(sig syscall.Signal) error {
	if h.isChild {
		return domain.ErrChildContext
	}
	if h.process == nil {
		return domain.ErrNotStarted
	}
	if err := unix.Kill(h.pid, sig); err != nil {
		return fmt.Errorf("signal %s to pid %d: %w", sig, h.pid, err)
	}
	return nil
}

// Kill sends the uncatchable SIGKILL to the represented process
func (h *Handle) Kill() error {
	return h.Signal(unix.SIGKILL)
}

// SetSignalHandler registers fn for sig in the shared router.
// A nil fn removes the handler and restores the default disposition.
func (h *Handle) SetSignalHandler(sig os.Signal, fn signals.Handler) {
	h.router.Register(sig, fn)
}

// RemoveSignalHandler removes the handler for sig
func (h *Handle) RemoveSignalHandler(sig os.Signal) {
	h.router.Unregister(sig)
}

// RestoreSignalDefault removes every registered handler
func (h *Handle) RestoreSignalDefault() {
	h.router.Reset()
}

// PidExists reports whether pid names a live process
func (h *Handle) PidExists(pid int) bool {
	return pidfile.ProcessExists(pid)
}

// childEnv builds the child's environment: the current environment without
// stale markers, the handle's extra variables, then the markers.
func (h *Handle) childEnv(encodedOptions string) []string {
	env := make([]string, 0, len(os.Environ())+len(h.env)+4)
	for _, kv := range os.Environ() {
		if isMarker(kv) {
			continue
		}
		env = append(env, kv)
	}

	keys := make([]string, 0, len(h.env))
	for k := range h.env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+h.env[k])
	}

	env = append(env, constants.EnvUnit+"="+h.unit)
	if encodedOptions != "" {
		env = append(env, constants.EnvOptions+"="+encodedOptions)
	}
	if h.pidFile != "" {
		env = append(env, constants.EnvPIDFile+"="+h.pidFile)
	}
	if h.title != "" {
		env = append(env, constants.EnvTitle+"="+h.title)
	}
	return env
}

var childMarkers = []string{
	constants.EnvUnit,
	constants.EnvOptions,
	constants.EnvPIDFile,
	constants.EnvTitle,
}

func isMarker(kv string) bool {
	for _, m := range childMarkers {
		if strings.HasPrefix(kv, m+"=") {
			return true
		}
	}
	return false
}
