package config

import (
	"fmt"
	"strings"

	"github.com/charliek/forkvisor/internal/domain"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors
func Validate(config *Config) error {
	var errs []string

	if config.GracePeriod <= 0 {
		errs = append(errs, fmt.Sprintf("grace_period: must be positive, got %s", config.GracePeriod))
	}
	if config.PollInterval <= 0 {
		errs = append(errs, fmt.Sprintf("poll_interval: must be positive, got %s", config.PollInterval))
	}

	// Validate workers
	if len(config.Workers) == 0 {
		errs = append(errs, "workers: at least one worker must be defined")
	}

	for _, name := range config.WorkerNames() {
		w := config.Workers[name]
		if err := ValidateWorkerName(name); err != nil {
			errs = append(errs, fmt.Sprintf("workers.%s: %v", name, err))
		}
		if w.Unit == "" {
			errs = append(errs, fmt.Sprintf("workers.%s.unit: unit is required", name))
		}
		if w.Replicas < 1 {
			errs = append(errs, fmt.Sprintf("workers.%s.replicas: must be at least 1, got %d", name, w.Replicas))
		}
		if _, err := w.Policy(); err != nil {
			errs = append(errs, fmt.Sprintf("workers.%s.restart: %v", name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return nil
}

// ValidateUnits checks that every configured unit is known
func ValidateUnits(config *Config, known func(unit string) bool) error {
	var errs []string
	for _, name := range config.WorkerNames() {
		if unit := config.Workers[name].Unit; !known(unit) {
			errs = append(errs, fmt.Sprintf("workers.%s.unit: unknown work unit %q", name, unit))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

// ValidateWorkerName checks if a worker name is valid
func ValidateWorkerName(name string) error {
	if name == "" {
		return &ValidationError{Field: "name", Message: "worker name cannot be empty"}
	}
	if strings.ContainsAny(name, " \t\n/\\") {
		return &ValidationError{Field: "name", Message: "worker name cannot contain whitespace or path separators"}
	}
	return nil
}
