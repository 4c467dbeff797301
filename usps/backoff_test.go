package usps

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJitteredExponentialBackOff(t *testing.T) {
	t.Run("given no jitter, then intervals double up to the cap", func(t *testing.T) {
		b := &JitteredExponentialBackOff{
			InitialInterval: 200 * time.Millisecond,
			Multiplier:      2.0,
			MaxInterval:     time.Second,
		}

		assert.Equal(t, 200*time.Millisecond, b.NextBackOff())
		assert.Equal(t, 400*time.Millisecond, b.NextBackOff())
		assert.Equal(t, 800*time.Millisecond, b.NextBackOff())
		assert.Equal(t, time.Second, b.NextBackOff())
		assert.Equal(t, time.Second, b.NextBackOff())
	})

	t.Run("given jitter, then interval stays within the additive bound", func(t *testing.T) {
		b := &JitteredExponentialBackOff{
			InitialInterval: 200 * time.Millisecond,
			Multiplier:      2.0,
			MaxInterval:     time.Second,
			MaxJitter:       250 * time.Millisecond,
		}

		for range 50 {
			b.Reset()
			got := b.NextBackOff()
			assert.GreaterOrEqual(t, got, 200*time.Millisecond)
			assert.Less(t, got, 450*time.Millisecond)
		}
	})

	t.Run("given reset, then sequence restarts", func(t *testing.T) {
		b := &JitteredExponentialBackOff{
			InitialInterval: 100 * time.Millisecond,
			Multiplier:      2.0,
		}

		_ = b.NextBackOff()
		_ = b.NextBackOff()
		b.Reset()
		assert.Equal(t, 100*time.Millisecond, b.NextBackOff())
	})
}

func TestLinearBackOff(t *testing.T) {
	b := &LinearBackOff{
		InitialInterval: 100 * time.Millisecond,
		Increment:       50 * time.Millisecond,
		MaxInterval:     200 * time.Millisecond,
	}

	assert.Equal(t, 100*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 150*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 200*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 200*time.Millisecond, b.NextBackOff())

	b.Reset()
	assert.Equal(t, 100*time.Millisecond, b.NextBackOff())
}

func TestBackOffFromConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	b := backOffFromConfig(cfg)

	jittered, ok := b.(*JitteredExponentialBackOff)
	assert.True(t, ok)
	assert.Equal(t, cfg.InitialInterval, jittered.InitialInterval)
	assert.Equal(t, cfg.MaxJitter, jittered.MaxJitter)
}
