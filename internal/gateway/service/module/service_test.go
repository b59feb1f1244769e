package module

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdui/internal/condition"
	"sdui/internal/screen"
)

func newSportsbook(t *testing.T) *Service {
	t.Helper()
	s := New()
	require.NoError(t, s.Register(Module{
		ID:      "sportsbook",
		Enabled: true,
		Config:  map[string]any{"maxStake": 100},
		Flags: map[string]Flag{
			"live_betting": {Enabled: true},
			"cash_out":     {Enabled: true, Conditions: &screen.Conditions{UserSegment: []string{"vip"}}},
			"parlay":       {Enabled: false},
		},
	}))
	require.NoError(t, s.Handle("sportsbook", "place_bet", func(_ context.Context, cfg, payload map[string]any) (map[string]any, error) {
		return map[string]any{"accepted": true, "stake": payload["stake"], "max": cfg["maxStake"]}, nil
	}))
	require.NoError(t, s.Handle("sportsbook", "fail", func(context.Context, map[string]any, map[string]any) (map[string]any, error) {
		return nil, errors.New("boom")
	}))
	return s
}

func TestExecuteModuleAction(t *testing.T) {
	s := newSportsbook(t)
	ctx := context.Background()

	out, err := s.ExecuteModuleAction(ctx, "sportsbook", "place_bet", map[string]any{"stake": 5})
	require.NoError(t, err)
	assert.Equal(t, true, out["accepted"])
	assert.Equal(t, 100, out["max"])

	_, err = s.ExecuteModuleAction(ctx, "casino", "spin", nil)
	assert.ErrorIs(t, err, screen.ErrNotFound)
	_, err = s.ExecuteModuleAction(ctx, "sportsbook", "withdraw", nil)
	assert.ErrorIs(t, err, screen.ErrNotFound)
	_, err = s.ExecuteModuleAction(ctx, "sportsbook", "fail", nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, screen.ErrNotFound)

	_, err = s.SetEnabled(ctx, "sportsbook", false)
	require.NoError(t, err)
	_, err = s.ExecuteModuleAction(ctx, "sportsbook", "place_bet", nil)
	assert.ErrorIs(t, err, screen.ErrNotFound)
}

func TestResolveFlag(t *testing.T) {
	s := newSportsbook(t)
	ctx := context.Background()

	res, err := s.ResolveFlag(ctx, "sportsbook", "live_betting", condition.Context{})
	require.NoError(t, err)
	assert.Equal(t, condition.FlagResult{Enabled: true, ConditionsMet: true}, res)

	res, err = s.ResolveFlag(ctx, "", "cash_out", condition.Context{UserSegment: "casual"})
	require.NoError(t, err)
	assert.True(t, res.Enabled)
	assert.False(t, res.ConditionsMet)

	res, err = s.ResolveFlag(ctx, "sportsbook", "parlay", condition.Context{})
	require.NoError(t, err)
	assert.False(t, res.Enabled)

	_, err = s.ResolveFlag(ctx, "sportsbook", "nope", condition.Context{})
	assert.ErrorIs(t, err, screen.ErrNotFound)
	_, err = s.ResolveFlag(ctx, "ghost", "x", condition.Context{})
	assert.ErrorIs(t, err, screen.ErrNotFound)

	_, err = s.SetEnabled(ctx, "sportsbook", false)
	require.NoError(t, err)
	res, err = s.ResolveFlag(ctx, "sportsbook", "live_betting", condition.Context{})
	require.NoError(t, err)
	assert.False(t, res.Enabled)
}

func TestEvaluatorUsesModuleFlags(t *testing.T) {
	s := newSportsbook(t)
	e := condition.New(s)
	assert.True(t, e.Allowed(context.Background(), &screen.Conditions{FeatureFlag: "sportsbook:live_betting"}, condition.Context{}))
	assert.False(t, e.Allowed(context.Background(), &screen.Conditions{FeatureFlag: "sportsbook:parlay"}, condition.Context{}))
}

func TestUpdateConfigMerges(t *testing.T) {
	s := newSportsbook(t)
	m, err := s.UpdateConfig(context.Background(), "sportsbook", map[string]any{"currency": "EUR", "maxStake": nil})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"currency": "EUR"}, m.Config)
	assert.Equal(t, []string{"fail", "place_bet"}, m.Actions)

	_, err = s.UpdateConfig(context.Background(), "ghost", nil)
	assert.ErrorIs(t, err, screen.ErrNotFound)
}
