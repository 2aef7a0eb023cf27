package config

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	cfg := New(VariantReactor)

	assert.Equal(t, 8083, cfg.Port)
	assert.Equal(t, runtime.NumCPU(), cfg.Threads)
	assert.Equal(t, 15*time.Second, cfg.IdleTimeout)
	assert.Equal(t, 64<<10, cfg.MaxHeaderBytes)
	assert.Equal(t, ":8083", cfg.Addr())

	assert.Equal(t, 8081, New(VariantSingle).Port)
	assert.Equal(t, 8082, New(VariantPooled).Port)
}

func TestApplyArgs(t *testing.T) {
	cfg := New(VariantPooled)
	require.NoError(t, cfg.ApplyArgs([]string{"9000", "3"}))
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 3, cfg.Threads)

	cfg = New(VariantReactor)
	require.NoError(t, cfg.ApplyArgs(nil))
	assert.Equal(t, 8083, cfg.Port)
	require.NoError(t, cfg.ApplyArgs([]string{"0"}))
	assert.Equal(t, 0, cfg.Port)
}

func TestApplyArgs_Errors(t *testing.T) {
	cases := []struct {
		variant Variant
		args    []string
		err     error
	}{
		{VariantReactor, []string{"http"}, ErrInvalidPort},
		{VariantSingle, []string{"70000"}, ErrInvalidPort},
		{VariantSingle, []string{"-1"}, ErrInvalidPort},
		{VariantReactor, []string{"8080", "4"}, ErrTooManyArgs},
		{VariantPooled, []string{"8080", "0"}, ErrInvalidThreads},
		{VariantPooled, []string{"8080", "many"}, ErrInvalidThreads},
		{VariantPooled, []string{"1", "2", "3"}, ErrTooManyArgs},
	}

	for _, c := range cases {
		err := New(c.variant).ApplyArgs(c.args)
		assert.ErrorIs(t, err, c.err, "%s %v", c.variant, c.args)
	}
}
