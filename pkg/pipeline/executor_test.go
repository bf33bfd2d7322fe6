package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalview/vitalcore/internal/governance"
	"github.com/vitalview/vitalcore/pkg/domain"
	"github.com/vitalview/vitalcore/pkg/guard"
	"github.com/vitalview/vitalcore/pkg/membrane"
)

func passingChain() *guard.Chain {
	return guard.NewChain(guard.ChainOptions{
		Tokens:   guard.TokenSourceFunc(func() bool { return true }),
		Disabled: []string{guard.NameStaleness},
	})
}

func TestExecuteSealsFetchResult(t *testing.T) {
	mem := membrane.New(nil)
	payload := map[string]any{"points": []any{map[string]any{"bpm": 66}}}
	calls := 0

	exec := NewExecutor(FetcherFunc(func(_ context.Context, key domain.Key, params map[string]any) (any, error) {
		calls++
		assert.Equal(t, domain.KeyHeartRate, key)
		assert.Equal(t, "7d", params["range"])
		return payload, nil
	}), mem, governance.BreakerConfig{}, zerolog.Nop())

	sealed, err := exec.Execute(context.Background(), domain.KeyHeartRate, map[string]any{"range": "7d"}, passingChain())
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	raw, err := mem.Unseal(sealed)
	require.NoError(t, err)
	assert.Equal(t, payload, raw)
}

func TestExecuteRevalidatesChain(t *testing.T) {
	mem := membrane.New(nil)
	calls := 0
	exec := NewExecutor(FetcherFunc(func(context.Context, domain.Key, map[string]any) (any, error) {
		calls++
		return nil, nil
	}), mem, governance.BreakerConfig{}, zerolog.Nop())

	// Unauthenticated chain: the fetch must be deferred before any
	// transport side effect.
	chain := guard.NewChain(guard.ChainOptions{
		Tokens:   guard.TokenSourceFunc(func() bool { return false }),
		Disabled: []string{guard.NameStaleness},
	})

	_, err := exec.Execute(context.Background(), domain.KeyGlucose, nil, chain)

	var deferral *DeferralError
	require.ErrorAs(t, err, &deferral)
	assert.Equal(t, domain.ReasonAuthTokenAbsent, deferral.Verdict.Reason)
	assert.True(t, errors.Is(err, domain.ErrFetchDeferred))
	assert.Zero(t, calls, "a deferred fetch must not touch the transport")
}

func TestExecuteStageTagging(t *testing.T) {
	mem := membrane.New(nil)

	t.Run("transport failure is tagged fetch", func(t *testing.T) {
		exec := NewExecutor(FetcherFunc(func(context.Context, domain.Key, map[string]any) (any, error) {
			return nil, errors.New("502 bad gateway")
		}), mem, governance.BreakerConfig{}, zerolog.Nop())

		_, err := exec.Execute(context.Background(), domain.KeySleep, nil, passingChain())
		var execErr *ExecError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, StageFetch, execErr.Stage)
		assert.Contains(t, execErr.Reason, "502")
	})

	t.Run("unsealable payload is tagged seal", func(t *testing.T) {
		exec := NewExecutor(FetcherFunc(func(context.Context, domain.Key, map[string]any) (any, error) {
			return map[string]any{"bad": func() {}}, nil // not serializable
		}), mem, governance.BreakerConfig{}, zerolog.Nop())

		_, err := exec.Execute(context.Background(), domain.KeySleep, nil, passingChain())
		var execErr *ExecError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, StageSeal, execErr.Stage)
	})
}

func TestExecuteBreakerOpens(t *testing.T) {
	mem := membrane.New(nil)
	calls := 0
	exec := NewExecutor(FetcherFunc(func(context.Context, domain.Key, map[string]any) (any, error) {
		calls++
		return nil, errors.New("connection refused")
	}), mem, governance.BreakerConfig{MaxFailures: 2, Cooldown: time.Minute}, zerolog.Nop())

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := exec.Execute(ctx, domain.KeySpO2, nil, passingChain())
		require.Error(t, err)
	}
	require.Equal(t, governance.BreakerOpen, exec.BreakerState())

	_, err := exec.Execute(ctx, domain.KeySpO2, nil, passingChain())
	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, StageBreaker, execErr.Stage)
	assert.Equal(t, 2, calls, "open breaker must short-circuit the transport")
}

func TestExecuteNilChainSkipsGuards(t *testing.T) {
	mem := membrane.New(nil)
	exec := NewExecutor(FetcherFunc(func(context.Context, domain.Key, map[string]any) (any, error) {
		return map[string]any{"mood": "calm"}, nil
	}), mem, governance.BreakerConfig{}, zerolog.Nop())

	sealed, err := exec.Execute(context.Background(), domain.KeyEmotion, nil, nil)
	require.NoError(t, err)
	assert.True(t, mem.VerifySeal(sealed))
}
