package integration

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"
)

type daemonState struct {
	PID        int    `json:"pid"`
	Supervisor string `json:"supervisor"`
	Workers    []struct {
		Name string `json:"name"`
		PID  int    `json:"pid"`
	} `json:"workers"`
}

func readState(t *testing.T, path string) daemonState {
	t.Helper()
	data, err := os.ReadFile(path)
	requireNoError(t, err, "failed to read state file")
	var state daemonState
	requireNoError(t, json.Unmarshal(data, &state), "failed to parse state file")
	return state
}

// waitForWorkers polls the state file until it lists n workers
func waitForWorkers(t *testing.T, path string, n int, timeout time.Duration) daemonState {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		state := readState(t, path)
		if len(state.Workers) == n || time.Now().After(deadline) {
			return state
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// stopDaemon sends SIGTERM to the daemon and waits for its PID file to go
func stopDaemon(t *testing.T, pid int, pidPath string) {
	t.Helper()
	if p, err := os.FindProcess(pid); err == nil {
		_ = p.Signal(syscall.SIGTERM)
	}
	waitForRemoval(t, pidPath, 10*time.Second)
}

func TestDaemonMode_StartStatusStop(t *testing.T) {
	skipShort(t)
	binary := buildBinary(t)
	dir := t.TempDir()

	cfgPath := writeConfig(t, dir, `
grace_period: 500ms
workers:
  sleepy:
    unit: sleeper
    options: {duration: 1m}
    replicas: 2
`)

	cmd := exec.Command(binary, "run", "-d", "-c", cfgPath)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	requireNoError(t, err, "run -d failed")
	if !strings.Contains(string(output), "forkvisor started (pid") {
		t.Errorf("unexpected run -d output:\n%s", output)
	}

	stateDir := filepath.Join(dir, ".forkvisor")
	statePath := filepath.Join(stateDir, "state.json")
	pidPath := filepath.Join(stateDir, "forkvisor.pid")
	waitForFile(t, statePath, 10*time.Second)

	state := waitForWorkers(t, statePath, 2, 5*time.Second)
	t.Cleanup(func() {
		if p, err := os.FindProcess(state.PID); err == nil {
			_ = p.Signal(syscall.SIGKILL)
		}
	})

	if state.Supervisor != "running" {
		t.Errorf("expected supervisor running, got %q", state.Supervisor)
	}
	if len(state.Workers) != 2 {
		t.Fatalf("expected 2 workers, got %d", len(state.Workers))
	}

	statusCmd := exec.Command(binary, "status", "-c", cfgPath)
	statusOut, err := statusCmd.CombinedOutput()
	requireNoError(t, err, "status failed")
	for _, want := range []string{"Status: running", "sleepy.1", "sleepy.2", "sleeper"} {
		if !strings.Contains(string(statusOut), want) {
			t.Errorf("status output missing %q:\n%s", want, statusOut)
		}
	}

	stopDaemon(t, state.PID, pidPath)

	logData, err := os.ReadFile(filepath.Join(stateDir, "forkvisor.log"))
	requireNoError(t, err, "failed to read daemon log")
	if !strings.Contains(string(logData), "shutdown requested") {
		t.Errorf("daemon log missing shutdown event:\n%s", logData)
	}

	statusCmd = exec.Command(binary, "status", "-c", cfgPath)
	if out, err := statusCmd.CombinedOutput(); err == nil {
		t.Errorf("expected status to fail after stop, got:\n%s", out)
	}
}

func TestDaemonMode_RejectsSecondInstance(t *testing.T) {
	skipShort(t)
	binary := buildBinary(t)
	dir := t.TempDir()

	cfgPath := writeConfig(t, dir, `
workers:
  sleepy:
    unit: sleeper
    options: {duration: 1m}
`)

	cmd := exec.Command(binary, "run", "-d", "-c", cfgPath)
	cmd.Dir = dir
	requireNoError(t, cmd.Run(), "first run -d failed")

	stateDir := filepath.Join(dir, ".forkvisor")
	statePath := filepath.Join(stateDir, "state.json")
	waitForFile(t, statePath, 10*time.Second)
	state := readState(t, statePath)
	t.Cleanup(func() {
		if p, err := os.FindProcess(state.PID); err == nil {
			_ = p.Signal(syscall.SIGKILL)
		}
	})

	second := exec.Command(binary, "run", "-c", cfgPath)
	second.Dir = dir
	output, err := second.CombinedOutput()
	if err == nil {
		t.Fatalf("expected second run to fail, output:\n%s", output)
	}
	if !strings.Contains(string(output), "already running") {
		t.Errorf("expected already running error, got:\n%s", output)
	}

	stopDaemon(t, state.PID, filepath.Join(stateDir, "forkvisor.pid"))
}
