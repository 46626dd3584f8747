package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charliek/forkvisor/internal/constants"
	"github.com/charliek/forkvisor/internal/domain"
	"github.com/charliek/forkvisor/internal/supervisor"
	"gopkg.in/yaml.v3"
)

// Config represents the top-level forkvisor configuration
type Config struct {
	EnvFile       string
	GracePeriod   time.Duration
	PollInterval  time.Duration
	CaptureOutput bool
	PIDFile       string
	Workers       map[string]WorkerConfig

	// Dir is the directory of the config file; relative paths resolve against it
	Dir string
}

// WorkerConfig represents a worker configuration that can be either
// a simple unit id or an expanded form with additional options
type WorkerConfig struct {
	Unit     string            `yaml:"unit"`
	Options  map[string]string `yaml:"options"`
	Restart  RestartList       `yaml:"restart"`
	Replicas int               `yaml:"replicas"`
	PIDFile  string            `yaml:"pid_file"`
	Title    string            `yaml:"title"`
	Env      map[string]string `yaml:"env"`
	EnvFile  string            `yaml:"env_file"`
}

// RestartList holds restart policy names. In YAML it may be a single
// name, a comma separated string or a sequence.
type RestartList []string

// UnmarshalYAML accepts both scalar and sequence forms
func (r *RestartList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*r = nil
		for _, part := range strings.Split(node.Value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				*r = append(*r, part)
			}
		}
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return err
		}
		*r = names
		return nil
	default:
		return fmt.Errorf("restart must be a name or a list of names")
	}
}

// Policy converts the restart names into a restart policy
func (w WorkerConfig) Policy() (supervisor.RestartPolicy, error) {
	return supervisor.ParsePolicy(w.Restart...)
}

// rawConfig is used for initial parsing to handle the flexible worker format
type rawConfig struct {
	EnvFile       string                 `yaml:"env_file" toml:"env_file"`
	GracePeriod   string                 `yaml:"grace_period" toml:"grace_period"`
	PollInterval  string                 `yaml:"poll_interval" toml:"poll_interval"`
	CaptureOutput *bool                  `yaml:"capture_output" toml:"capture_output"`
	PIDFile       string                 `yaml:"pid_file" toml:"pid_file"`
	Workers       map[string]interface{} `yaml:"workers" toml:"workers"`
}

// Load reads and parses a configuration file. Files ending in .toml are
// parsed as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("checking config file: %w", err)
	}
	if err := checkPermissions(path, info); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg *Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		cfg, err = ParseTOML(data)
	} else {
		cfg, err = Parse(data)
	}
	if err != nil {
		return nil, err
	}

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}
	cfg.Dir = dir
	return cfg, nil
}

// Parse parses configuration from YAML bytes
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parsing yaml: %w", domain.ErrInvalidConfig, err)
	}
	return build(raw)
}

// ParseTOML parses configuration from TOML bytes
func ParseTOML(data []byte) (*Config, error) {
	var raw rawConfig
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, fmt.Errorf("%w: parsing toml: %w", domain.ErrInvalidConfig, err)
	}
	return build(raw)
}

func build(raw rawConfig) (*Config, error) {
	config := &Config{
		EnvFile:       raw.EnvFile,
		GracePeriod:   constants.DefaultGracePeriod,
		PollInterval:  constants.DefaultPollInterval,
		CaptureOutput: true,
		PIDFile:       raw.PIDFile,
		Workers:       make(map[string]WorkerConfig),
	}

	var errs []string
	if raw.GracePeriod != "" {
		d, err := time.ParseDuration(raw.GracePeriod)
		if err != nil {
			errs = append(errs, fmt.Sprintf("grace_period: %v", err))
		}
		config.GracePeriod = d
	}
	if raw.PollInterval != "" {
		d, err := time.ParseDuration(raw.PollInterval)
		if err != nil {
			errs = append(errs, fmt.Sprintf("poll_interval: %v", err))
		}
		config.PollInterval = d
	}
	if raw.CaptureOutput != nil {
		config.CaptureOutput = *raw.CaptureOutput
	}
	if config.PIDFile == "" {
		config.PIDFile = constants.DefaultPIDFile
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidConfig, strings.Join(errs, "; "))
	}

	// Parse workers (can be string or expanded form)
	for name, value := range raw.Workers {
		w, err := parseWorkerConfig(value)
		if err != nil {
			return nil, fmt.Errorf("%w: worker %q: %w", domain.ErrInvalidConfig, name, err)
		}
		config.Workers[name] = w
	}

	if err := Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// parseWorkerConfig handles both simple and expanded worker definitions
func parseWorkerConfig(value interface{}) (WorkerConfig, error) {
	switch v := value.(type) {
	case string:
		// Simple form: ticker: sleeper
		return WorkerConfig{Unit: v, Replicas: 1}, nil
	case map[string]interface{}:
		// Expanded form: re-marshal and unmarshal to struct
		data, err := yaml.Marshal(v)
		if err != nil {
			return WorkerConfig{}, fmt.Errorf("marshaling worker config: %w", err)
		}
		var w WorkerConfig
		if err := yaml.Unmarshal(data, &w); err != nil {
			return WorkerConfig{}, fmt.Errorf("unmarshaling worker config: %w", err)
		}
		if w.Replicas == 0 {
			w.Replicas = 1
		}
		return w, nil
	default:
		return WorkerConfig{}, fmt.Errorf("invalid worker configuration type: %T", value)
	}
}

// WorkerNames returns the configured worker names in sorted order
func (c *Config) WorkerNames() []string {
	names := make([]string, 0, len(c.Workers))
	for name := range c.Workers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InstanceNames returns the record names for a worker: the worker name
// itself, or name.1 .. name.N when it has several replicas.
func (c *Config) InstanceNames(name string) []string {
	w, ok := c.Workers[name]
	if !ok {
		return nil
	}
	if w.Replicas <= 1 {
		return []string{name}
	}
	names := make([]string, w.Replicas)
	for i := range names {
		names[i] = fmt.Sprintf("%s.%d", name, i+1)
	}
	return names
}
