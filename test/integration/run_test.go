package integration

import (
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestRun_SignalDrainsAndKills(t *testing.T) {
	skipShort(t)
	binary := buildBinary(t)
	dir := t.TempDir()

	cfgPath := writeConfig(t, dir, `
grace_period: 500ms
workers:
  spin:
    unit: spinner
    options: {interval: 50ms}
    restart: always
    replicas: 2
  once:
    unit: exit
    options: {code: "0"}
`)

	cmd, out := startForkvisor(t, binary, dir, "run", "-c", cfgPath)

	statePath := filepath.Join(dir, ".forkvisor", "state.json")
	waitForFile(t, statePath, 10*time.Second)

	requireNoError(t, cmd.Process.Signal(syscall.SIGTERM), "failed to send SIGTERM")
	start := time.Now()

	if err := waitForExit(t, cmd, 10*time.Second); err != nil {
		t.Fatalf("forkvisor exited with error: %v\n%s", err, out.String())
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("shutdown took %v, want about the grace period", elapsed)
	}

	output := out.String()
	for _, want := range []string{"shutdown requested", "spin.1", "spin.2", "killed after grace period"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}

	waitForRemoval(t, statePath, 2*time.Second)
	waitForRemoval(t, filepath.Join(dir, ".forkvisor", "forkvisor.pid"), 2*time.Second)
}

func TestRun_InvalidConfig(t *testing.T) {
	skipShort(t)
	binary := buildBinary(t)
	dir := t.TempDir()

	cfgPath := writeConfig(t, dir, "workers:\n  a: nope\n")

	cmd := exec.Command(binary, "run", "-c", cfgPath)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err == nil {
		t.Fatalf("expected run to fail, output:\n%s", output)
	}
	if exitErr, ok := err.(*exec.ExitError); !ok || exitErr.ExitCode() != 1 {
		t.Errorf("expected exit code 1, got %v", err)
	}
	if !strings.Contains(string(output), `unknown work unit "nope"`) {
		t.Errorf("output missing unknown unit error:\n%s", output)
	}
}

func TestFork_WaitsForWorkers(t *testing.T) {
	skipShort(t)
	binary := buildBinary(t)

	cmd := exec.Command(binary, "fork", "exit", "-n", "3", "-o", "code=4")
	output, err := cmd.CombinedOutput()
	requireNoError(t, err, "fork failed")

	if got := strings.Count(string(output), "exited: rc=4"); got != 3 {
		t.Errorf("expected 3 exits with rc=4, got %d:\n%s", got, output)
	}
}
