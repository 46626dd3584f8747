package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEnvFile(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		env, err := ReadEnvFile("")
		assert.NoError(t, err)
		assert.Nil(t, env)
	})

	t.Run("reads variables", func(t *testing.T) {
		envPath := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(envPath, []byte("FOO=bar\nBAZ=qux"), 0644))

		env, err := ReadEnvFile(envPath)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"FOO": "bar", "BAZ": "qux"}, env)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadEnvFile(filepath.Join(t.TempDir(), "nonexistent.env"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}

func TestWorkerEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GLOBAL=1\nSHARED=global"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.flaky"), []byte("WORKER=2\nSHARED=worker"), 0644))

	cfg := &Config{
		Dir:     dir,
		EnvFile: ".env",
		Workers: map[string]WorkerConfig{
			"flaky": {
				Unit:    "flaky",
				EnvFile: ".env.flaky",
				Env:     map[string]string{"INLINE": "3", "SHARED": "inline"},
			},
			"plain": {Unit: "sleeper"},
			"broken": {
				Unit:    "sleeper",
				EnvFile: "missing.env",
			},
		},
	}

	t.Run("layers in order", func(t *testing.T) {
		env, err := cfg.WorkerEnv("flaky")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{
			"GLOBAL": "1",
			"WORKER": "2",
			"INLINE": "3",
			"SHARED": "inline",
		}, env)
	})

	t.Run("global only", func(t *testing.T) {
		env, err := cfg.WorkerEnv("plain")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"GLOBAL": "1", "SHARED": "global"}, env)
	})

	t.Run("missing worker env file", func(t *testing.T) {
		_, err := cfg.WorkerEnv("broken")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "loading worker env file")
	})

	t.Run("unknown worker", func(t *testing.T) {
		_, err := cfg.WorkerEnv("nope")
		assert.Error(t, err)
	})
}

func TestFindConfigFile(t *testing.T) {
	dir := t.TempDir()

	_, err := FindConfigFile(dir)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "forkvisor.toml"), []byte("[workers]\nticker = \"sleeper\""), 0644))
	path, err := FindConfigFile(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "forkvisor.toml"), path)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "forkvisor.yaml"), []byte("workers:\n  ticker: sleeper"), 0644))
	path, err = FindConfigFile(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "forkvisor.yaml"), path, "yaml is preferred")
}
