package risk

import (
	"testing"
	"time"

	"github.com/alexherrero/sherwood/backend/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memGovernorStore struct {
	saved map[string]*models.GovernorState
}

func newMemGovernorStore() *memGovernorStore {
	return &memGovernorStore{saved: make(map[string]*models.GovernorState)}
}

func (s *memGovernorStore) LoadGovernorState(dayKey string) (*models.GovernorState, error) {
	return s.saved[dayKey], nil
}

func (s *memGovernorStore) SaveGovernorState(state *models.GovernorState) error {
	cp := *state
	s.saved[state.DayKey] = &cp
	return nil
}

func TestGovernor_CloseTrade_DedupsByTradeID(t *testing.T) {
	now := time.Date(2026, 7, 30, 9, 30, 0, 0, time.UTC)
	g, err := NewGovernor(DefaultGovernorConfig(), newMemGovernorStore(), now, zerolog.Nop())
	require.NoError(t, err)

	g.CloseTrade(now, "t1", -100, -1.0)
	g.CloseTrade(now, "t1", -100, -1.0)

	snap := g.Snapshot()
	assert.Equal(t, 1, snap.TradesCount)
	assert.Equal(t, -100.0, snap.RealizedPnlInr)
	assert.Equal(t, 1, snap.LossStreak)
}

func TestGovernor_OpenRisk_InvariantMatchesSum(t *testing.T) {
	now := time.Date(2026, 7, 30, 9, 30, 0, 0, time.UTC)
	g, err := NewGovernor(DefaultGovernorConfig(), newMemGovernorStore(), now, zerolog.Nop())
	require.NoError(t, err)

	g.OpenRisk(now, "t1", 100)
	g.OpenRisk(now, "t2", 50)

	snap := g.Snapshot()
	assert.Equal(t, 150.0, snap.OpenRiskInr)
	assert.Equal(t, snap.OpenRiskSum(), snap.OpenRiskInr)

	g.CloseTrade(now, "t1", 50, 0.5)
	snap = g.Snapshot()
	assert.Equal(t, 50.0, snap.OpenRiskInr)
}

func TestGovernor_CanOpenNewTrade_DailyMaxLossR(t *testing.T) {
	now := time.Date(2026, 7, 30, 9, 30, 0, 0, time.UTC)
	cfg := DefaultGovernorConfig()
	cfg.MaxLossR = 2.0
	g, err := NewGovernor(cfg, newMemGovernorStore(), now, zerolog.Nop())
	require.NoError(t, err)

	g.CloseTrade(now, "t1", -1000, -2.0)

	ok, reason := g.CanOpenNewTrade(now, 100, 50)
	assert.False(t, ok)
	assert.Equal(t, DenialReason("DAILY_MAX_LOSS_R"), reason)
}

func TestGovernor_CanOpenNewTrade_ProfitGoalReached(t *testing.T) {
	now := time.Date(2026, 7, 30, 9, 30, 0, 0, time.UTC)
	cfg := DefaultGovernorConfig()
	cfg.ProfitGoalR = 3.0
	g, err := NewGovernor(cfg, newMemGovernorStore(), now, zerolog.Nop())
	require.NoError(t, err)

	g.CloseTrade(now, "t1", 1000, 3.0)

	ok, reason := g.CanOpenNewTrade(now, 100, 50)
	assert.False(t, ok)
	assert.Equal(t, DenialReason("DAILY_PROFIT_GOAL_REACHED"), reason)
}

func TestGovernor_CanOpenNewTrade_MaxLossStreak(t *testing.T) {
	now := time.Date(2026, 7, 30, 9, 30, 0, 0, time.UTC)
	cfg := DefaultGovernorConfig()
	cfg.MaxLossStreak = 2
	g, err := NewGovernor(cfg, newMemGovernorStore(), now, zerolog.Nop())
	require.NoError(t, err)

	g.CloseTrade(now, "t1", -10, -0.1)
	g.CloseTrade(now, "t2", -10, -0.1)

	ok, reason := g.CanOpenNewTrade(now, 100, 50)
	assert.False(t, ok)
	assert.Equal(t, DenialReason("MAX_LOSS_STREAK"), reason)
}

func TestGovernor_RecordOrderError_ArmsBreakerAtThreshold(t *testing.T) {
	now := time.Date(2026, 7, 30, 9, 30, 0, 0, time.UTC)
	cfg := DefaultGovernorConfig()
	cfg.OrderErrMax = 2
	cfg.OrderErrCooldown = time.Minute
	g, err := NewGovernor(cfg, newMemGovernorStore(), now, zerolog.Nop())
	require.NoError(t, err)

	g.RecordOrderError(now)
	ok, _ := g.CanOpenNewTrade(now, 100, 50)
	assert.True(t, ok)

	g.RecordOrderError(now.Add(time.Second))
	ok, reason := g.CanOpenNewTrade(now.Add(time.Second), 100, 50)
	assert.False(t, ok)
	assert.Equal(t, DenialReason("ORDER_ERROR_BREAKER"), reason)

	ok, _ = g.CanOpenNewTrade(now.Add(2*time.Minute), 100, 50)
	assert.True(t, ok)
}

func TestGovernor_RollsToFreshStateOnNewDay(t *testing.T) {
	store := newMemGovernorStore()
	day1 := time.Date(2026, 7, 30, 9, 30, 0, 0, time.UTC)
	g, err := NewGovernor(DefaultGovernorConfig(), store, day1, zerolog.Nop())
	require.NoError(t, err)

	g.CloseTrade(day1, "t1", -500, -1.0)

	day2 := day1.AddDate(0, 0, 1)
	g.OpenRisk(day2, "t2", 10)

	snap := g.Snapshot()
	assert.Equal(t, 0, snap.TradesCount)
	assert.Equal(t, 0.0, snap.RealizedPnlInr)
	assert.Equal(t, 10.0, snap.OpenRiskInr)
}
