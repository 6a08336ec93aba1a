package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleRateLimiterSpacesCalls(t *testing.T) {
	r := NewSimpleRateLimiter(30*time.Millisecond, 30*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, r.Wait(ctx))
	assert.Less(t, time.Since(start), 20*time.Millisecond, "first call should not wait")

	require.NoError(t, r.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestSimpleRateLimiterHonorsContext(t *testing.T) {
	r := NewSimpleRateLimiter(time.Hour, time.Hour)
	require.NoError(t, r.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)
}

func TestAdaptiveBacksOffAfterErrors(t *testing.T) {
	a := NewAdaptiveRateLimiter(2*time.Second, 4*time.Second)

	a.RecordError()
	a.RecordError()
	min, max := a.Delays()
	assert.Equal(t, 2*time.Second, min)
	assert.Equal(t, 4*time.Second, max)

	a.RecordError()
	min, max = a.Delays()
	assert.Equal(t, 3*time.Second, min)
	assert.Equal(t, 6*time.Second, max)
}

func TestAdaptiveRecoversTowardFloor(t *testing.T) {
	a := NewAdaptiveRateLimiter(2*time.Second, 4*time.Second)
	for i := 0; i < 3; i++ {
		a.RecordError()
	}

	for i := 0; i < 6; i++ {
		a.RecordSuccess()
	}
	min, _ := a.Delays()
	assert.Equal(t, 2700*time.Millisecond, min)

	for i := 0; i < 60; i++ {
		a.RecordSuccess()
	}
	min, _ = a.Delays()
	assert.Equal(t, 2*time.Second, min)
}

func TestRegistryIsolatesSources(t *testing.T) {
	r := NewRegistry(time.Second, 2*time.Second)

	amazon := r.For("Amazon")
	assert.Same(t, amazon, r.For("Amazon"))

	for i := 0; i < 3; i++ {
		amazon.RecordError()
	}
	min, _ := r.For("Temu").Delays()
	assert.Equal(t, time.Second, min)
}
