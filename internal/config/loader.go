package config

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// configCandidates are tried in order by FindConfigFile
var configCandidates = []string{
	"forkvisor.yaml",
	"forkvisor.yml",
	"forkvisor.toml",
	".forkvisor.yaml",
	".forkvisor.yml",
}

// ReadEnvFile reads a dotenv file. An empty path yields no variables.
func ReadEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	env, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("env file not found: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading env file %s: %w", path, err)
	}
	return env, nil
}

// WorkerEnv builds the extra environment of the named worker. Later layers
// win: global env_file, then the worker's env_file, then its inline env.
func (c *Config) WorkerEnv(name string) (map[string]string, error) {
	w, ok := c.Workers[name]
	if !ok {
		return nil, fmt.Errorf("unknown worker %q", name)
	}

	env := make(map[string]string)
	for _, layer := range []struct{ kind, path string }{
		{"global", c.EnvFile},
		{"worker", w.EnvFile},
	} {
		if layer.path == "" {
			continue
		}
		vars, err := ReadEnvFile(c.Resolve(layer.path))
		if err != nil {
			return nil, fmt.Errorf("loading %s env file: %w", layer.kind, err)
		}
		maps.Copy(env, vars)
	}
	maps.Copy(env, w.Env)
	return env, nil
}

// Resolve resolves a path from the config file against its directory
func (c *Config) Resolve(path string) string {
	if filepath.IsAbs(path) || c.Dir == "" {
		return path
	}
	return filepath.Join(c.Dir, path)
}

// FindConfigFile returns the first known config file name present in dir
func FindConfigFile(dir string) (string, error) {
	for _, name := range configCandidates {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("no config file found in %s (tried: %v)", dir, configCandidates)
}

// checkPermissions rejects world-writable config files
func checkPermissions(path string, info fs.FileInfo) error {
	if info.Mode().Perm()&0o002 != 0 {
		return fmt.Errorf("config file %s is world-writable; run: chmod o-w %s", path, path)
	}
	return nil
}
