package runstate

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/charliek/forkvisor/internal/constants"
	"github.com/charliek/forkvisor/internal/pidfile"
)

// IsDaemonChild returns true if this process is a detached supervisor
func IsDaemonChild() bool {
	return os.Getenv(constants.EnvDaemon) == "1"
}

// Daemonize re-executes the current binary with the same arguments in a
// new session and returns the PID of the detached process. The caller is
// expected to exit; the detached process sees IsDaemonChild() == true.
//
// The detached process starts with stdin, stdout and stderr on /dev/null
// and calls SetupLogging to get a log file.
func Daemonize() (int, error) {
	executable, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("getting executable path: %w", err)
	}

	cmd := exec.Command(executable, os.Args[1:]...)
	cmd.Env = append(os.Environ(), constants.EnvDaemon+"=1")

	// Detach from terminal - create new session
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting daemon process: %w", err)
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()
	return pid, nil
}

// SetupLogging redirects stdout and stderr to the log file in dir.
// Workers forked afterwards inherit the log file as their output.
func SetupLogging(dir string) (*os.File, error) {
	if err := EnsureDir(dir); err != nil {
		return nil, err
	}

	logFile, err := os.OpenFile(LogPath(dir), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	os.Stdout = logFile
	os.Stderr = logFile

	return logFile, nil
}

// IsRunning checks if a supervisor owns the PID file at pidPath.
//
// Note: This is a best-effort check. The supervisor may stop between
// checking the lock and loading state.
func IsRunning(pidPath string) bool {
	if pidfile.IsLocked(pidPath) {
		return true
	}

	state, err := Load(Dir(pidPath))
	if err != nil {
		return false
	}

	return pidfile.ProcessExists(state.PID)
}

// GetRunningState returns the state of the supervisor owning pidPath.
// Returns ErrNotRunning if there is none.
func GetRunningState(pidPath string) (*State, error) {
	if !IsRunning(pidPath) {
		return nil, ErrNotRunning
	}
	return Load(Dir(pidPath))
}

// CleanupStaleFiles removes state left behind by a supervisor that died
// without cleaning up.
func CleanupStaleFiles(pidPath string) error {
	if pidfile.IsLocked(pidPath) {
		return ErrAlreadyRunning
	}

	dir := Dir(pidPath)
	state, err := Load(dir)
	if err != nil {
		if err == ErrStateNotFound {
			return nil
		}
		return err
	}

	if pidfile.ProcessExists(state.PID) {
		return ErrAlreadyRunning
	}

	if err := Remove(dir); err != nil {
		return err
	}
	if err := os.Remove(pidPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing PID file: %w", err)
	}
	return nil
}
