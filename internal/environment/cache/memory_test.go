package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitalproof/internal/environment"
	"vitalproof/pkg/platform/sentinel"
)

func sampleContext(t *testing.T) *environment.Context {
	t.Helper()
	c, err := environment.NewContext(uuid.New(), 39.74, -104.99,
		environment.Readings{AltitudeMeters: 1609, TemperatureC: 20, HumidityPct: 30, PressureHPa: 835},
		time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return c
}

func TestInMemoryCacheExpiry(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	c := NewInMemoryCache(WithClock(func() time.Time { return now }))
	ctx := context.Background()
	value := sampleContext(t)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	require.NoError(t, c.Set(ctx, "k", value, time.Hour))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, value.ID, got.ID)

	now = now.Add(time.Hour + time.Second)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryCacheReturnsCopies(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()
	value := sampleContext(t)
	require.NoError(t, c.Set(ctx, "k", value, time.Hour))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	got.TemperatureC = 99

	again, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 20.0, again.TemperatureC)
}
