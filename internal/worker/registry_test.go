package worker

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/charliek/forkvisor/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notAUnit struct{}

func TestRegistry_Instantiate(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterFunc("ok", func(*Handle) error { return nil })
	reg.Register("broken", func(Options) (any, error) {
		return nil, errors.New("missing option")
	})
	reg.Register("wrong-type", func(Options) (any, error) {
		return notAUnit{}, nil
	})
	reg.Register("nil", func(Options) (any, error) {
		return nil, nil
	})

	t.Run("known unit", func(t *testing.T) {
		u, err := reg.Instantiate("ok", nil)
		require.NoError(t, err)
		assert.NoError(t, u.Run(nil))
	})

	t.Run("unknown unit", func(t *testing.T) {
		_, err := reg.Instantiate("missing", nil)
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})

	t.Run("constructor error", func(t *testing.T) {
		_, err := reg.Instantiate("broken", nil)
		assert.ErrorIs(t, err, domain.ErrConfiguration)
		assert.Contains(t, err.Error(), "missing option")
	})

	t.Run("not a unit", func(t *testing.T) {
		_, err := reg.Instantiate("wrong-type", nil)
		assert.ErrorIs(t, err, domain.ErrCapability)
	})

	t.Run("nil unit", func(t *testing.T) {
		_, err := reg.Instantiate("nil", nil)
		assert.ErrorIs(t, err, domain.ErrCapability)
	})
}

func TestRegistry_Units(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterFunc("zeta", func(*Handle) error { return nil })
	reg.RegisterFunc("alpha", func(*Handle) error { return nil })

	assert.Equal(t, []string{"alpha", "zeta"}, reg.Units())
	assert.True(t, reg.Has("alpha"))
	assert.False(t, reg.Has("beta"))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
	assert.Equal(t, 7, exitCode(Exit(7)))
	assert.Equal(t, 4, exitCode(fmt.Errorf("wrapped: %w", Exit(4))))
	assert.Equal(t, 255, exitCode(Exit(255)))
	assert.Equal(t, 1, exitCode(Exit(256)), "would wrap to 0")
	assert.Equal(t, 1, exitCode(Exit(-1)))
}

func TestOptions(t *testing.T) {
	opts := Options{"n": "3", "d": "250ms", "bad": "x"}

	n, err := opts.Int("n", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = opts.Int("missing", 9)
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	_, err = opts.Int("bad", 0)
	assert.Error(t, err)

	d, err := opts.Duration("d", 0)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	_, err = opts.Duration("bad", 0)
	assert.Error(t, err)

	assert.Equal(t, "fallback", opts.Get("missing", "fallback"))

	clone := opts.Clone()
	clone["n"] = "4"
	assert.Equal(t, "3", opts["n"])
	assert.Nil(t, Options(nil).Clone())
}

func TestOptions_Encoding(t *testing.T) {
	encoded, err := Options(nil).encode()
	require.NoError(t, err)
	assert.Empty(t, encoded)

	encoded, err = Options{"a": "1", "b": "two words"}.encode()
	require.NoError(t, err)

	decoded, err := decodeOptions(encoded)
	require.NoError(t, err)
	assert.Equal(t, Options{"a": "1", "b": "two words"}, decoded)

	_, err = decodeOptions("{not json")
	assert.Error(t, err)
}
