// Package runstate persists what a running supervisor is doing so that
// other forkvisor invocations can report on it.
package runstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charliek/forkvisor/internal/constants"
	"github.com/charliek/forkvisor/internal/domain"
)

// State holds the runtime state of a running supervisor.
//
// State is rewritten by the supervisor whenever its worker set changes and
// read by status commands. Write replaces the file atomically, so readers
// never see a partial document.
type State struct {
	PID        int                 `json:"pid"`
	StartedAt  time.Time           `json:"started_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
	ConfigFile string              `json:"config_file"`
	Supervisor domain.State        `json:"supervisor"`
	Workers    []domain.WorkerInfo `json:"workers"`
}

// Write writes the state to the state file in dir
func (s *State) Write(dir string) error {
	if s.PID <= 0 {
		return fmt.Errorf("invalid PID: %d", s.PID)
	}
	if s.ConfigFile == "" {
		return fmt.Errorf("config file cannot be empty")
	}

	if err := EnsureDir(dir); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, constants.StateFileName+".*")
	if err != nil {
		return fmt.Errorf("opening state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), StatePath(dir)); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}

	return nil
}

// Load reads the state from the state file in dir
func Load(dir string) (*State, error) {
	data, err := os.ReadFile(StatePath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshaling state: %w", err)
	}

	return &state, nil
}

// Remove removes the state file from dir
func Remove(dir string) error {
	if err := os.Remove(StatePath(dir)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing state file: %w", err)
	}
	return nil
}

// Dir returns the state directory for a supervisor PID file
func Dir(pidPath string) string {
	return filepath.Dir(pidPath)
}

// StatePath returns the full path to the state file
func StatePath(dir string) string {
	return filepath.Join(dir, constants.StateFileName)
}

// LogPath returns the full path to the detached supervisor's log file
func LogPath(dir string) string {
	return filepath.Join(dir, constants.DaemonLogFileName)
}

// EnsureDir creates the state directory if it doesn't exist
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	return nil
}
