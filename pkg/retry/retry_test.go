package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoneNeverRetries(t *testing.T) {
	c := New(Config{Strategy: StrategyNone})
	c.MarkConnectionStart()
	_, ok := c.NextDelay()
	assert.False(t, ok)
}

func TestImmediateIsZeroDelay(t *testing.T) {
	c := New(Config{Strategy: StrategyImmediate})
	c.MarkConnectionStart()
	d, ok := c.NextDelay()
	require.True(t, ok)
	assert.Equal(t, time.Duration(0), d)
}

func TestLinearGrowsByStep(t *testing.T) {
	cfg := Config{Strategy: StrategyLinear, InitialDelay: time.Second, LinearStep: 2 * time.Second, MaxDelay: time.Minute}
	d1, _ := Delay(StrategyLinear, 1, cfg)
	d2, _ := Delay(StrategyLinear, 2, cfg)
	d3, _ := Delay(StrategyLinear, 3, cfg)
	assert.Equal(t, time.Second, d1)
	assert.Equal(t, 3*time.Second, d2)
	assert.Equal(t, 5*time.Second, d3)
}

func TestExponentialDoublesAndCaps(t *testing.T) {
	cfg := Config{Strategy: StrategyExponential, InitialDelay: time.Second, MaxDelay: 5 * time.Second}
	d1, _ := Delay(StrategyExponential, 1, cfg)
	d2, _ := Delay(StrategyExponential, 2, cfg)
	d3, _ := Delay(StrategyExponential, 3, cfg)
	d4, _ := Delay(StrategyExponential, 4, cfg)
	assert.Equal(t, time.Second, d1)
	assert.Equal(t, 2*time.Second, d2)
	assert.Equal(t, 4*time.Second, d3)
	assert.Equal(t, 5*time.Second, d4, "must cap at MaxDelay")
}

func TestExponentialJitterStaysWithinBand(t *testing.T) {
	cfg := Config{Strategy: StrategyExponentialJitter, InitialDelay: time.Second, MaxDelay: time.Minute}
	for i := 0; i < 50; i++ {
		d, ok := Delay(StrategyExponentialJitter, 3, cfg)
		require.True(t, ok)
		// base = 4s, jitter band is +/-20% => [3.2s, 4.8s]
		assert.GreaterOrEqual(t, d, 3200*time.Millisecond)
		assert.LessOrEqual(t, d, 4800*time.Millisecond)
	}
}

func TestAutoDelegatesToResolver(t *testing.T) {
	c := New(Config{Strategy: StrategyAuto})
	c.SetAutoResolver(func(attempt int) (Strategy, Config) {
		return StrategyImmediate, Config{}
	})
	c.MarkConnectionStart()
	d, ok := c.NextDelay()
	require.True(t, ok)
	assert.Equal(t, time.Duration(0), d)
}

func TestShouldRetryRespectsMaxAttempts(t *testing.T) {
	c := New(Config{Strategy: StrategyImmediate, MaxAttempts: 2})
	c.MarkConnectionStart()
	assert.True(t, c.ShouldRetry())
	c.MarkConnectionStart()
	assert.False(t, c.ShouldRetry())
}

func TestResetClearsAttempts(t *testing.T) {
	c := New(Config{Strategy: StrategyImmediate, MaxAttempts: 1})
	c.MarkConnectionStart()
	assert.False(t, c.ShouldRetry())
	c.Reset()
	assert.True(t, c.ShouldRetry())
	assert.Equal(t, 0, c.Attempts())
}
