package cli

import (
	"fmt"
	"strings"

	"github.com/charliek/forkvisor/internal/worker"
)

// parseOptions turns key=value flag values into unit options
func parseOptions(values []string) (worker.Options, error) {
	opts := make(worker.Options, len(values))
	for _, kv := range values {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid option %q: expected key=value", kv)
		}
		opts[key] = value
	}
	return opts, nil
}
