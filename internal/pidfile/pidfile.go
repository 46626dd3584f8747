// Package pidfile writes, reads and locks PID files and checks whether a
// PID still names a live process.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned when the PID file is locked by another process
var ErrLocked = errors.New("PID file is locked by another process")

// Write stores pid as the sole content of the file at path.
// No locking is done; workers own their PID file exclusively.
func Write(path string, pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid PID: %d", pid)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating PID directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0600); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	return nil
}

// Read reads the PID from a PID file
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parsing PID: %w", err)
	}

	return pid, nil
}

// ProcessExists checks if a process with the given PID exists
func ProcessExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	// Signal 0 performs the permission and existence checks only.
	// EPERM means the process exists but belongs to someone else.
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// Locked is a PID file held under an exclusive flock for the lifetime of
// the owning process. It is used by the supervisor itself so that two
// supervisors never share a state directory.
//
// Locked is not safe for concurrent use.
type Locked struct {
	path string
	file *os.File
}

// NewLocked creates a Locked manager for the given path
func NewLocked(path string) *Locked {
	return &Locked{path: path}
}

// Path returns the PID file path
func (p *Locked) Path() string {
	return p.path
}

// Acquire creates and locks the PID file, writing the current process's PID.
// Returns ErrLocked if another process holds the lock.
func (p *Locked) Acquire() error {
	if dir := filepath.Dir(p.path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating PID directory: %w", err)
		}
	}

	f, err := os.OpenFile(p.path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return fmt.Errorf("opening PID file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return ErrLocked
		}
		return fmt.Errorf("locking PID file: %w", err)
	}

	if err := f.Truncate(0); err != nil {
		p.unlockAndClose(f)
		return fmt.Errorf("truncating PID file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		p.unlockAndClose(f)
		return fmt.Errorf("writing PID: %w", err)
	}
	if err := f.Sync(); err != nil {
		p.unlockAndClose(f)
		return fmt.Errorf("syncing PID file: %w", err)
	}

	p.file = f
	return nil
}

// Release unlocks and removes the PID file
func (p *Locked) Release() error {
	if p.file == nil {
		return nil
	}

	_ = unix.Flock(int(p.file.Fd()), unix.LOCK_UN)
	_ = p.file.Close()
	p.file = nil

	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing PID file: %w", err)
	}
	return nil
}

func (p *Locked) unlockAndClose(f *os.File) {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to unlock PID file: %v\n", err)
	}
	if err := f.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to close PID file: %v\n", err)
	}
}

// IsLocked checks if the PID file at path is locked by another process.
// Returns false if the file doesn't exist.
func IsLocked(path string) bool {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return false
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_SH|unix.LOCK_NB); err != nil {
		return true
	}
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return false
}
