package supervisor

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charliek/forkvisor/internal/worker"
)

// testRegistry holds the units forked by this package's tests
var testRegistry = newTestRegistry()

// fragileCalls counts constructions of the "fragile" unit in this process
var fragileCalls atomic.Int32

func newTestRegistry() *worker.Registry {
	reg := worker.NewRegistry()

	reg.RegisterFunc("exit", func(h *worker.Handle) error {
		code, err := h.Options().Int("code", 0)
		if err != nil {
			return err
		}
		return worker.Exit(code)
	})

	reg.RegisterFunc("sleep", func(h *worker.Handle) error {
		d, err := h.Options().Duration("duration", 100*time.Millisecond)
		if err != nil {
			return err
		}
		time.Sleep(d)
		return nil
	})

	reg.RegisterFunc("hang", func(h *worker.Handle) error {
		time.Sleep(time.Hour)
		return nil
	})

	// flaky fails until it has run fail_times times, counting runs in a file
	reg.RegisterFunc("flaky", func(h *worker.Handle) error {
		path := h.Options()["state"]
		failTimes, err := h.Options().Int("fail_times", 1)
		if err != nil {
			return err
		}
		data, _ := os.ReadFile(path)
		runs := strings.Count(string(data), "\n")
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return err
		}
		fmt.Fprintf(f, "%d\n", h.Pid())
		f.Close()
		if runs < failTimes {
			return worker.Exit(1)
		}
		return nil
	})

	reg.RegisterFunc("report", func(h *worker.Handle) error {
		line := fmt.Sprintf("%d %d\n", h.Pid(), h.ParentPid())
		return os.WriteFile(h.Options()["out"], []byte(line), 0600)
	})

	reg.RegisterFunc("echo", func(h *worker.Handle) error {
		fmt.Println("hello from stdout")
		fmt.Fprintln(os.Stderr, "hello from stderr")
		return nil
	})

	reg.RegisterFunc("broken", func(h *worker.Handle) error {
		return fmt.Errorf("cannot open ledger %q", h.Options()["ledger"])
	})

	// fragile can be constructed once per process; later respawns fail
	reg.Register("fragile", func(worker.Options) (any, error) {
		if fragileCalls.Add(1) > 1 {
			return nil, fmt.Errorf("fragile unit already used")
		}
		return worker.UnitFunc(func(h *worker.Handle) error {
			return worker.Exit(1)
		}), nil
	})

	reg.Register("notunit", func(worker.Options) (any, error) {
		return "not a unit", nil
	})

	reg.Register("nested", NestedUnit(reg, Config{GracePeriod: time.Second},
		func(s *Supervisor, opts worker.Options) error {
			_, err := s.AddProcess("report", worker.Options{"out": opts["out"]}, "inner", Never())
			return err
		}))

	RegisterNested(reg, Config{GracePeriod: time.Second},
		func(s *Supervisor, opts worker.Options) error {
			_, err := s.AddProcess("exit", worker.Options{"code": "0"}, "copy", Never())
			return err
		})

	return reg
}

func TestMain(m *testing.M) {
	worker.Main(testRegistry)
	os.Exit(m.Run())
}
