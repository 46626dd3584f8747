package worker

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Options are the constructor arguments of a work unit. They travel to the
// child process JSON encoded in its environment, so only strings are kept.
type Options map[string]string

// Get returns the value for key, or def when unset
func (o Options) Get(key, def string) string {
	if v, ok := o[key]; ok {
		return v
	}
	return def
}

// Int returns the integer value for key, or def when unset
func (o Options) Int(key string, def int) (int, error) {
	v, ok := o[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("option %s: %w", key, err)
	}
	return n, nil
}

// Duration returns the duration value for key, or def when unset
func (o Options) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := o[key]
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("option %s: %w", key, err)
	}
	return d, nil
}

// Clone returns a copy that can be mutated independently
func (o Options) Clone() Options {
	if o == nil {
		return nil
	}
	c := make(Options, len(o))
	for k, v := range o {
		c[k] = v
	}
	return c
}

func (o Options) encode() (string, error) {
	if len(o) == 0 {
		return "", nil
	}
	data, err := json.Marshal(o)
	if err != nil {
		return "", fmt.Errorf("encoding options: %w", err)
	}
	return string(data), nil
}

func decodeOptions(s string) (Options, error) {
	if s == "" {
		return Options{}, nil
	}
	var o Options
	if err := json.Unmarshal([]byte(s), &o); err != nil {
		return nil, fmt.Errorf("decoding options: %w", err)
	}
	return o, nil
}
