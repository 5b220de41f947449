package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/autopo-py/forecast-go/internal/config"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/domain"
)

func localConfig(t *testing.T) *config.Config {
	return &config.Config{
		Cache: config.CacheConfig{Backend: "memory", MaxSize: 4},
		Model: config.ModelConfig{Dir: t.TempDir(), HoldoutDays: 28},
	}
}

func TestNewWithoutOptionalBackends(t *testing.T) {
	a, err := New(context.Background(), localConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Service)
	assert.Nil(t, a.Sales)
	assert.Nil(t, a.Loader.Storage)
	assert.Nil(t, a.Loader.Drive)
	assert.NotNil(t, a.Loader.Connect)
	assert.Equal(t, 4, a.Cache.Stats(context.Background()).MaxSize)
	assert.False(t, a.Service.Status(context.Background()).Ready)
}

func TestNewRejectsUnknownCache(t *testing.T) {
	cfg := localConfig(t)
	cfg.Cache.Backend = "memcached"

	_, err := New(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestCloseJoinsErrors(t *testing.T) {
	var order []int
	a := &App{closers: []func() error{
		func() error { order = append(order, 1); return nil },
		func() error { order = append(order, 2); return assert.AnError },
	}}

	assert.ErrorIs(t, a.Close(), assert.AnError)
	assert.Equal(t, []int{2, 1}, order)
	assert.NoError(t, a.Close())
}
