package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/distbuilder/internal/config"
	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
)

// TestNewPolicyOverrides checks override precedence and clamping when initial > max.
func TestNewPolicyOverrides(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, 5*time.Second, 2*time.Second, 5)
	assert.Equal(t, 2*time.Second, p.Initial)
	assert.Equal(t, 2*time.Second, p.Max)
	assert.Equal(t, config.RetryBackoffFixed, p.Mode)
	assert.Equal(t, 5, p.MaxRetries)
	require.NoError(t, p.Validate())
}

// TestFromConfig keeps the default retry count unless one is configured.
func TestFromConfig(t *testing.T) {
	assert.Equal(t, 2, FromConfig(config.RetryConfig{}).MaxRetries)

	zero := 0
	assert.Equal(t, 0, FromConfig(config.RetryConfig{MaxRetries: &zero}).MaxRetries)

	cfg, err := config.Parse([]byte("build:\n  command: node\ncompile:\n  command: node\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, FromConfig(cfg.Remote.Retry).MaxRetries)
}

// TestDelayModes ensures fixed, linear, exponential behave and respect cap.
func TestDelayModes(t *testing.T) {
	fixed := NewPolicy(config.RetryBackoffFixed, 100*time.Millisecond, 500*time.Millisecond, 3)
	for i := 1; i <= 3; i++ {
		assert.Equal(t, 100*time.Millisecond, fixed.Delay(i))
	}

	linear := NewPolicy(config.RetryBackoffLinear, 100*time.Millisecond, 250*time.Millisecond, 5)
	assert.Equal(t, 100*time.Millisecond, linear.Delay(1))
	assert.Equal(t, 200*time.Millisecond, linear.Delay(2))
	assert.Equal(t, 250*time.Millisecond, linear.Delay(3))

	exp := NewPolicy(config.RetryBackoffExponential, 100*time.Millisecond, 300*time.Millisecond, 5)
	assert.Equal(t, 100*time.Millisecond, exp.Delay(1))
	assert.Equal(t, 200*time.Millisecond, exp.Delay(2))
	assert.Equal(t, 300*time.Millisecond, exp.Delay(3))
	assert.Equal(t, time.Duration(0), exp.Delay(0))
}

func TestDo_RetriesOnlyTransientErrors(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 3)

	calls := 0
	err := p.Do(context.Background(), "fetch", func(context.Context) error {
		calls++
		if calls < 3 {
			return derrors.FetchFailed("502").Build()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = p.Do(context.Background(), "fetch", func(context.Context) error {
		calls++
		return derrors.NotFound("gone").Build()
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "terminal errors must not be retried")
}

func TestDo_ExhaustsRetries(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 2)
	calls := 0
	err := p.Do(context.Background(), "probe", func(context.Context) error {
		calls++
		return derrors.UpstreamUnavailable("timeout").Build()
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryUpstreamUnavailable))
}

func TestDo_StopsOnCancel(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, time.Hour, time.Hour, 5)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := p.Do(ctx, "fetch", func(context.Context) error {
		calls++
		cancel()
		return errors.Join(derrors.FetchFailed("reset").Build())
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
