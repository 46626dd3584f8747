package supervisor

import (
	"fmt"
	"strings"

	"github.com/charliek/forkvisor/internal/domain"
)

// RestartFlag selects the exit outcomes a Mask policy restarts on.
// Flags combine with bitwise OR.
type RestartFlag uint8

const (
	// RestartOnExit restarts a worker that exited cleanly with status 0
	RestartOnExit RestartFlag = 1 << iota
	// RestartOnError restarts a worker that exited non-zero or was killed
	RestartOnError
)

// String returns the set flags joined by "|", e.g. "exit|error"
func (f RestartFlag) String() string {
	var parts []string
	if f&RestartOnExit != 0 {
		parts = append(parts, "exit")
	}
	if f&RestartOnError != 0 {
		parts = append(parts, "error")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// DecideFunc decides whether to restart a worker. status is the exit code,
// or the negated signal number if the worker was killed by a signal.
type DecideFunc func(rec Record, status int) bool

type policyKind uint8

const (
	kindNever policyKind = iota
	kindMask
	kindCallback
)

// RestartPolicy decides what happens to a worker after it exits.
// It is one of Never, Mask or Callback; the zero value is Never.
type RestartPolicy struct {
	kind   policyKind
	mask   RestartFlag
	decide DecideFunc
}

// Never never restarts the worker
func Never() RestartPolicy {
	return RestartPolicy{kind: kindNever}
}

// Mask restarts the worker when the flag for the observed outcome is set
func Mask(flags ...RestartFlag) RestartPolicy {
	var m RestartFlag
	for _, f := range flags {
		m |= f
	}
	return RestartPolicy{kind: kindMask, mask: m}
}

// Always restarts the worker whatever the outcome
func Always() RestartPolicy {
	return Mask(RestartOnExit, RestartOnError)
}

// Callback leaves the decision to fn. A nil fn behaves like Never.
func Callback(fn DecideFunc) RestartPolicy {
	if fn == nil {
		return Never()
	}
	return RestartPolicy{kind: kindCallback, decide: fn}
}

// Flags returns the mask of a Mask policy and zero otherwise
func (p RestartPolicy) Flags() RestartFlag {
	if p.kind != kindMask {
		return 0
	}
	return p.mask
}

// ShouldRestart evaluates the policy for a worker that exited with status
func (p RestartPolicy) ShouldRestart(rec Record, status domain.ExitStatus) bool {
	switch p.kind {
	case kindMask:
		outcome := RestartOnError
		if status.Success() {
			outcome = RestartOnExit
		}
		return p.mask&outcome != 0
	case kindCallback:
		return p.decide(rec, status.Numeric())
	default:
		return false
	}
}

// String describes the policy, e.g. "never", "mask(error)" or "callback"
func (p RestartPolicy) String() string {
	switch p.kind {
	case kindMask:
		return fmt.Sprintf("mask(%s)", p.mask)
	case kindCallback:
		return "callback"
	default:
		return "never"
	}
}

// ParsePolicy builds a policy from config names. Accepted names are
// "never", "always", "exit"/"on-exit" and "error"/"on-error"; several
// names combine into one mask. No names means Never.
func ParsePolicy(names ...string) (RestartPolicy, error) {
	var mask RestartFlag
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "", "never", "no":
		case "always":
			mask |= RestartOnExit | RestartOnError
		case "exit", "on-exit", "on_exit":
			mask |= RestartOnExit
		case "error", "on-error", "on_error", "on-failure":
			mask |= RestartOnError
		default:
			return RestartPolicy{}, fmt.Errorf("unknown restart policy %q", name)
		}
	}
	if mask == 0 {
		return Never(), nil
	}
	return Mask(mask), nil
}
