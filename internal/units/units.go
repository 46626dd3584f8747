// Package units provides the built-in work units of the forkvisor binary.
package units

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/charliek/forkvisor/internal/worker"
)

// Register adds the built-in units to reg
func Register(reg *worker.Registry) {
	reg.RegisterFunc("sleeper", Sleeper)
	reg.RegisterFunc("counter", Counter)
	reg.RegisterFunc("flaky", Flaky)
	reg.RegisterFunc("spinner", Spinner)
	reg.RegisterFunc("exit", Exit)
}

// Sleeper greets, sleeps for duration plus up to jitter and says goodbye.
//
// Options: duration (default 5s), jitter (default 0).
func Sleeper(h *worker.Handle) error {
	d, err := h.Options().Duration("duration", 5*time.Second)
	if err != nil {
		return err
	}
	jitter, err := h.Options().Duration("jitter", 0)
	if err != nil {
		return err
	}
	if jitter > 0 {
		d += time.Duration(rand.Int63n(int64(jitter)))
	}

	fmt.Printf("Hi, I'm %d child of %d\n", h.Pid(), h.ParentPid())
	time.Sleep(d)
	fmt.Printf("End of %d child of %d\n", h.Pid(), h.ParentPid())
	return nil
}

// Counter counts from 1 to "to", pausing interval between steps.
//
// Options: to (default 3), interval (default 1s).
func Counter(h *worker.Handle) error {
	to, err := h.Options().Int("to", 3)
	if err != nil {
		return err
	}
	interval, err := h.Options().Duration("interval", time.Second)
	if err != nil {
		return err
	}

	for i := 1; i <= to; i++ {
		fmt.Printf("%d -> counting 1 to %d\n", h.Pid(), i)
		time.Sleep(interval)
	}
	return nil
}

// Flaky exits with status 1 for its first fail_times runs and with 0
// afterwards. Runs are counted in the state file, one line per run.
//
// Options: state (required), fail_times (default 1).
func Flaky(h *worker.Handle) error {
	path := h.Options()["state"]
	if path == "" {
		return fmt.Errorf("flaky: option state is required")
	}
	failTimes, err := h.Options().Int("fail_times", 1)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading state: %w", err)
	}
	runs := strings.Count(string(data), "\n")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("opening state: %w", err)
	}
	_, err = fmt.Fprintf(f, "%d\n", h.Pid())
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}

	if runs < failTimes {
		fmt.Printf("%d: failing (run %d of %d failures)\n", h.Pid(), runs+1, failTimes)
		return worker.Exit(1)
	}
	fmt.Printf("%d: succeeding after %d failures\n", h.Pid(), runs)
	return nil
}

// Spinner ticks until it receives SIGTERM or reaches max_ticks. It is the
// unit to use for exercising shutdown: SIGINT keeps its default action.
//
// Options: interval (default 1s), max_ticks (default 0, unlimited).
func Spinner(h *worker.Handle) error {
	interval, err := h.Options().Duration("interval", time.Second)
	if err != nil {
		return err
	}
	maxTicks, err := h.Options().Int("max_ticks", 0)
	if err != nil {
		return err
	}

	stop := false
	h.SetSignalHandler(syscall.SIGTERM, func(os.Signal) {
		stop = true
	})
	defer h.RemoveSignalHandler(syscall.SIGTERM)

	for tick := 1; maxTicks == 0 || tick <= maxTicks; tick++ {
		h.Router().Poll()
		if stop {
			fmt.Printf("%d: terminated after %d ticks\n", h.Pid(), tick-1)
			return nil
		}
		fmt.Printf("%d: tick %d\n", h.Pid(), tick)
		time.Sleep(interval)
	}
	return nil
}

// Exit exits immediately with the status given by the code option
func Exit(h *worker.Handle) error {
	code, err := h.Options().Int("code", 0)
	if err != nil {
		return err
	}
	return worker.Exit(code)
}
