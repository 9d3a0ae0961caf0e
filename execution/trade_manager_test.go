package execution

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alexherrero/sherwood/backend/broker"
	"github.com/alexherrero/sherwood/backend/exit"
	"github.com/alexherrero/sherwood/backend/halt"
	"github.com/alexherrero/sherwood/backend/models"
	"github.com/alexherrero/sherwood/backend/risk"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- in-memory fakes grounded on the teacher's PaperBroker/store idiom ---

type fakeTradeStore struct {
	trades   map[string]models.Trade
	saveCount int
}

func newFakeTradeStore() *fakeTradeStore {
	return &fakeTradeStore{trades: make(map[string]models.Trade)}
}

func (s *fakeTradeStore) Save(t models.Trade) error {
	s.trades[t.TradeID] = t
	s.saveCount++
	return nil
}

func (s *fakeTradeStore) Get(tradeID string) (*models.Trade, error) {
	t, ok := s.trades[tradeID]
	if !ok {
		return nil, fmt.Errorf("trade %s not found", tradeID)
	}
	return &t, nil
}

func (s *fakeTradeStore) Open() ([]models.Trade, error) {
	var out []models.Trade
	for _, t := range s.trades {
		if !t.Status.IsTerminal() {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeTradeStore) All() ([]models.Trade, error) {
	var out []models.Trade
	for _, t := range s.trades {
		out = append(out, t)
	}
	return out, nil
}

type fakeGovernorStore struct{ state *models.GovernorState }

func (s *fakeGovernorStore) LoadGovernorState(dayKey string) (*models.GovernorState, error) {
	return s.state, nil
}
func (s *fakeGovernorStore) SaveGovernorState(state *models.GovernorState) error {
	s.state = state
	return nil
}

type fakeOptimizerStore struct{}

func (s *fakeOptimizerStore) LoadWindows() (map[string]*models.OptimizerWindow, error) { return nil, nil }
func (s *fakeOptimizerStore) SaveWindow(w *models.OptimizerWindow) error                { return nil }
func (s *fakeOptimizerStore) LoadBlocks() (map[string]*models.OptimizerBlock, error)   { return nil, nil }
func (s *fakeOptimizerStore) SaveBlock(b *models.OptimizerBlock) error                 { return nil }
func (s *fakeOptimizerStore) DeleteBlock(key string) error                            { return nil }

type fakeInstrumentLookup struct {
	byToken  map[int64]*models.Instrument
	bySymbol map[string]*models.Instrument
}

func (f *fakeInstrumentLookup) Get(token int64) (*models.Instrument, error) {
	i, ok := f.byToken[token]
	if !ok {
		return nil, fmt.Errorf("unknown token %d", token)
	}
	return i, nil
}

func (f *fakeInstrumentLookup) GetBySymbol(symbol string) (*models.Instrument, error) {
	i, ok := f.bySymbol[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown symbol %s", symbol)
	}
	return i, nil
}

// fakeBroker implements broker.Broker with just enough behavior for the
// trade manager tests to drive; most methods are no-ops.
type fakeBroker struct {
	placeOrderErr error
	nextOrderID   string
	orders        []models.Order
	positions     []models.Position
	cancelled     []string
	subscribed    []int64
}

func (b *fakeBroker) Name() string     { return "fake" }
func (b *fakeBroker) Connect() error    { return nil }
func (b *fakeBroker) Disconnect() error { return nil }
func (b *fakeBroker) IsConnected() bool { return true }

func (b *fakeBroker) Subscribe(tokens []int64) error {
	b.subscribed = append(b.subscribed, tokens...)
	return nil
}
func (b *fakeBroker) Unsubscribe(tokens []int64) error          { return nil }
func (b *fakeBroker) SetMode(tokens []int64, mode broker.Mode) error { return nil }

func (b *fakeBroker) OnTicks(handler broker.TickHandler)             {}
func (b *fakeBroker) OnOrderUpdate(handler broker.OrderUpdateHandler) {}
func (b *fakeBroker) OnConnect(handler func())                       {}
func (b *fakeBroker) OnDisconnect(handler func())                    {}
func (b *fakeBroker) OnReconnect(handler func())                     {}
func (b *fakeBroker) OnError(handler func(error))                    {}

func (b *fakeBroker) PlaceOrder(params broker.OrderParams) (string, error) {
	if b.placeOrderErr != nil {
		return "", b.placeOrderErr
	}
	if b.nextOrderID != "" {
		return b.nextOrderID, nil
	}
	return "order-1", nil
}
func (b *fakeBroker) ModifyOrder(orderID string, params broker.OrderParams) error { return nil }
func (b *fakeBroker) CancelOrder(orderID string) error {
	b.cancelled = append(b.cancelled, orderID)
	return nil
}
func (b *fakeBroker) GetOrders() ([]models.Order, error)     { return b.orders, nil }
func (b *fakeBroker) GetOrderHistory(orderID string) ([]broker.OrderUpdate, error) {
	return nil, nil
}
func (b *fakeBroker) GetPositions() ([]models.Position, error) { return b.positions, nil }
func (b *fakeBroker) GetMargins() (*models.Balance, error)     { return &models.Balance{}, nil }
func (b *fakeBroker) GetInstruments(exchange string) ([]models.Instrument, error) {
	return nil, nil
}
func (b *fakeBroker) GetHistoricalData(token int64, intervalMinutes int, from, to time.Time) ([]models.Candle, error) {
	return nil, nil
}
func (b *fakeBroker) GetQuote(tokens []int64) (map[int64]broker.Tick, error) { return nil, nil }
func (b *fakeBroker) GetLTP(tokens []int64) (map[int64]float64, error)      { return nil, nil }

func newTestTradeManager(t *testing.T, b *fakeBroker) (*TradeManager, *fakeTradeStore, *fakeInstrumentLookup, *risk.BreakerManager) {
	t.Helper()
	log := zerolog.Nop()

	engine := risk.NewEngine(risk.DefaultEngineConfig(), nil)
	governor, err := risk.NewGovernor(risk.DefaultGovernorConfig(), &fakeGovernorStore{}, time.Now(), log)
	require.NoError(t, err)
	optimizer, err := risk.NewOptimizer(risk.DefaultOptimizerConfig(), &fakeOptimizerStore{}, log)
	require.NoError(t, err)
	limiter := risk.NewOrderRateLimiter(risk.RateLimiterConfig{PerSecond: 100, PerMinute: 1000})
	breakers := risk.NewBreakerManager(risk.BreakerConfig{MaxConsecutiveFailures: 100, MaxFailuresPerHour: 100, CooldownMinutes: 1}, log)
	haltBus := halt.NewBus(16, log)
	store := newFakeTradeStore()
	instruments := &fakeInstrumentLookup{
		byToken: map[int64]*models.Instrument{
			1: {Token: 1, TradingSymbol: "NIFTY", TickSize: 0.05, LotSize: 50},
		},
		bySymbol: map[string]*models.Instrument{
			"NIFTY": {Token: 1, TradingSymbol: "NIFTY", TickSize: 0.05, LotSize: 50},
		},
	}

	tm := NewTradeManager(DefaultTradeManagerConfig(), exit.Config{}, b, engine, governor, optimizer, limiter, breakers, haltBus, store, instruments, nil, log)
	return tm, store, instruments, breakers
}

func upCandles(base time.Time, closes []float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			InstrumentToken: 1,
			IntervalMinutes: 1,
			Timestamp:       base.Add(time.Duration(i) * time.Minute),
			Open:            c,
			High:            c + 0.5,
			Low:             c - 0.5,
			Close:           c,
			Volume:          1000,
		}
	}
	return out
}

func TestTradeManager_OnSignal_PlacesEntryAndPersists(t *testing.T) {
	b := &fakeBroker{nextOrderID: "order-1"}
	tm, store, _, _ := newTestTradeManager(t, b)

	candles := upCandles(time.Date(2026, 7, 30, 9, 15, 0, 0, time.UTC), []float64{
		100, 100.5, 101, 101.5, 102, 102.5, 103, 103.5, 104, 104.5,
		105, 105.5, 106, 106.5, 107, 107.5,
	})
	sig := models.Signal{
		StrategyID:      "STRAT-A",
		Side:            models.OrderSideBuy,
		Confidence:      80,
		InstrumentToken: 1,
		Candle:          candles[len(candles)-1],
	}

	trade, err := tm.OnSignal(context.Background(), sig, candles, candles[len(candles)-1].Timestamp)
	require.NoError(t, err)
	require.NotNil(t, trade)
	assert.Equal(t, models.TradeEntryPlaced, trade.Status)
	assert.Equal(t, "order-1", trade.EntryOrderID)
	assert.Greater(t, trade.RequestedQty, 0.0)
	assert.Less(t, trade.InitialStopLoss, trade.EntryPrice)
	assert.Greater(t, trade.TargetPrice, trade.EntryPrice)

	saved, err := store.Get(trade.TradeID)
	require.NoError(t, err)
	assert.Equal(t, models.TradeEntryPlaced, saved.Status)
}

func TestTradeManager_OnSignal_BlockedDuringHalt(t *testing.T) {
	b := &fakeBroker{}
	tm, _, _, _ := newTestTradeManager(t, b)
	tm.haltBus.Halt("broker auth expired", "broker", time.Now())

	candles := upCandles(time.Now(), []float64{100, 101, 102})
	sig := models.Signal{StrategyID: "STRAT-A", Side: models.OrderSideBuy, InstrumentToken: 1, Candle: candles[len(candles)-1]}

	trade, err := tm.OnSignal(context.Background(), sig, candles, time.Now())
	require.NoError(t, err)
	assert.Nil(t, trade)
}

func TestTradeManager_OnSignal_BlockedByFactRecoveryGate(t *testing.T) {
	b := &fakeBroker{}
	tm, _, _, _ := newTestTradeManager(t, b)
	tm.factRecoveryBlocked = true

	candles := upCandles(time.Now(), []float64{100, 101, 102})
	sig := models.Signal{StrategyID: "STRAT-A", Side: models.OrderSideBuy, InstrumentToken: 1, Candle: candles[len(candles)-1]}

	trade, err := tm.OnSignal(context.Background(), sig, candles, time.Now())
	require.NoError(t, err)
	assert.Nil(t, trade)
}

func TestTradeManager_OnOrderUpdate_FillTransitionsToLive(t *testing.T) {
	b := &fakeBroker{nextOrderID: "order-1"}
	tm, store, _, _ := newTestTradeManager(t, b)

	now := time.Date(2026, 7, 30, 9, 30, 0, 0, time.UTC)
	candles := upCandles(now.Add(-20*time.Minute), []float64{
		100, 100.5, 101, 101.5, 102, 102.5, 103, 103.5, 104, 104.5,
		105, 105.5, 106, 106.5, 107, 107.5,
	})
	sig := models.Signal{StrategyID: "STRAT-A", Side: models.OrderSideBuy, InstrumentToken: 1, Candle: candles[len(candles)-1]}
	trade, err := tm.OnSignal(context.Background(), sig, candles, now)
	require.NoError(t, err)
	require.NotNil(t, trade)

	tm.OnOrderUpdate(broker.OrderUpdate{
		OrderID:           "order-1",
		Status:            models.OrderStatusFilled,
		FilledQuantity:    trade.RequestedQty,
		AveragePrice:      trade.EntryPrice,
		ExchangeTimestamp: now.Add(time.Second),
	}, now.Add(time.Second))

	saved, err := store.Get(trade.TradeID)
	require.NoError(t, err)
	assert.Equal(t, models.TradeLive, saved.Status)
	assert.Equal(t, trade.RequestedQty, saved.FilledQty)

	ok, reason := tm.engine.CanTrade(1, now.Add(time.Second))
	assert.False(t, ok)
	assert.Equal(t, risk.DenyExistingPosition, reason)
}

func TestTradeManager_OnOrderUpdate_CircuitBreakerRejectionSetsCooldown(t *testing.T) {
	b := &fakeBroker{}
	tm, store, _, breakers := newTestTradeManager(t, b)

	now := time.Date(2026, 7, 30, 9, 30, 0, 0, time.UTC)
	trade := models.Trade{
		TradeID:         "t-circuit",
		Side:            models.OrderSideBuy,
		StrategyID:      "STRAT-A",
		InstrumentToken: 260226,
		TradingSymbol:   "NIFTY",
		Status:          models.TradeEntryPlaced,
		EntryOrderID:    "order-circuit",
		CreatedAt:       now,
	}
	require.NoError(t, store.Save(trade))
	tm.tradesByOrder["order-circuit"] = trade.TradeID

	tm.OnOrderUpdate(broker.OrderUpdate{
		OrderID:           "order-circuit",
		Status:            models.OrderStatusRejected,
		RejectionReason:   "price band exceeded / circuit",
		ExchangeTimestamp: now,
	}, now)

	assert.True(t, breakers.InCooldown("STRAT-A:NIFTY:260226"))

	saved, err := store.Get("t-circuit")
	require.NoError(t, err)
	assert.Equal(t, models.TradeEntryFailed, saved.Status)
}

func TestTradeManager_OnOrderUpdate_DedupIgnoresRepeatedUpdate(t *testing.T) {
	b := &fakeBroker{}
	tm, store, _, _ := newTestTradeManager(t, b)

	now := time.Date(2026, 7, 30, 9, 30, 0, 0, time.UTC)
	trade := models.Trade{
		TradeID: "t-dedup", Side: models.OrderSideBuy, StrategyID: "S1",
		InstrumentToken: 1, TradingSymbol: "NIFTY", Status: models.TradeEntryPlaced,
		EntryOrderID: "order-dedup", CreatedAt: now,
	}
	require.NoError(t, store.Save(trade))
	tm.tradesByOrder["order-dedup"] = trade.TradeID

	update := broker.OrderUpdate{OrderID: "order-dedup", Status: models.OrderStatusFilled, FilledQuantity: 50, AveragePrice: 100, ExchangeTimestamp: now}
	before := store.saveCount
	tm.OnOrderUpdate(update, now)
	afterFirst := store.saveCount
	tm.OnOrderUpdate(update, now.Add(time.Millisecond))
	afterSecond := store.saveCount

	assert.Greater(t, afterFirst, before)
	assert.Equal(t, afterFirst, afterSecond)
}

func TestTradeManager_ApplyExitPlan_ClosesTradeAndPersists(t *testing.T) {
	b := &fakeBroker{}
	tm, store, _, _ := newTestTradeManager(t, b)

	trade := &models.Trade{
		TradeID: "t-exit", Side: models.OrderSideBuy, StrategyID: "S1",
		InstrumentToken: 1, TradingSymbol: "NIFTY", Status: models.TradeLive,
		FilledQty: 50, EntryPrice: 100, InitialStopLoss: 95, StopLoss: 95, TargetPrice: 110, RiskInr: 250,
	}
	require.NoError(t, store.Save(*trade))
	tm.tradesByToken[1] = trade

	plan := models.ExitPlan{Action: models.ExitAction{Kind: models.ExitActionExitNow, Reason: models.ExitReasonManual}}
	tm.applyExitPlan(trade, plan, 105, time.Now())

	assert.Equal(t, models.TradeExitedManual, trade.Status)
	assert.NotNil(t, trade.ClosedAt)

	tm.mu.RLock()
	_, stillTracked := tm.tradesByToken[1]
	tm.mu.RUnlock()
	assert.False(t, stillTracked)

	saved, err := store.Get("t-exit")
	require.NoError(t, err)
	assert.Equal(t, models.TradeExitedManual, saved.Status)
}

func TestTradeManager_CheckPartialFillTimeouts_CancelsExpiredEntry(t *testing.T) {
	b := &fakeBroker{}
	tm, store, _, _ := newTestTradeManager(t, b)

	now := time.Now()
	trade := models.Trade{
		TradeID: "t-timeout", Side: models.OrderSideBuy, StrategyID: "S1",
		InstrumentToken: 1, TradingSymbol: "NIFTY", Status: models.TradeEntryPlaced,
		EntryOrderID: "order-timeout", CreatedAt: now,
	}
	require.NoError(t, store.Save(trade))
	tm.pendingEntryDeadline["t-timeout"] = now.Add(-time.Second)

	tm.CheckPartialFillTimeouts(now)

	assert.Contains(t, b.cancelled, "order-timeout")
}

func TestTradeManager_Reconcile_RecoversUntrackedPosition(t *testing.T) {
	b := &fakeBroker{positions: []models.Position{{Symbol: "NIFTY", Quantity: 50, AverageCost: 100}}}
	tm, store, _, _ := newTestTradeManager(t, b)

	require.NoError(t, tm.Reconcile(context.Background(), time.Now()))

	recovered, err := store.All()
	require.NoError(t, err)
	require.Len(t, recovered, 1)
	assert.Equal(t, "RECOVERED", recovered[0].StrategyID)
	assert.Equal(t, models.TradeLive, recovered[0].Status)
	assert.Contains(t, b.subscribed, int64(1))
}

func TestTradeManager_Reconcile_FactRecoveryGateBlocksOnMissingBrokerFact(t *testing.T) {
	b := &fakeBroker{}
	tm, _, _, _ := newTestTradeManager(t, b)

	trade := &models.Trade{
		TradeID: "t-gate", Side: models.OrderSideBuy, StrategyID: "S1",
		InstrumentToken: 1, TradingSymbol: "NIFTY", Status: models.TradeLive,
		EntryOrderID: "order-missing",
	}
	tm.tradesByToken[1] = trade

	require.NoError(t, tm.Reconcile(context.Background(), time.Now()))

	tm.mu.RLock()
	blocked := tm.factRecoveryBlocked
	tm.mu.RUnlock()
	assert.True(t, blocked)

	candles := upCandles(time.Now(), []float64{100, 101, 102})
	sig := models.Signal{StrategyID: "S2", Side: models.OrderSideBuy, InstrumentToken: 2, Candle: candles[len(candles)-1]}
	result, err := tm.OnSignal(context.Background(), sig, candles, time.Now())
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestTradeManager_SizeQuantity_RespectsLotSizeAndBudget(t *testing.T) {
	b := &fakeBroker{}
	tm, _, instruments, _ := newTestTradeManager(t, b)
	tm.cfg.SessionRiskInr = 1000
	tm.cfg.FeePerLot = 20

	instr, err := instruments.Get(1)
	require.NoError(t, err)

	// riskPerUnit=2 with lotSize 50 => (2*50 + 20) = 120/lot; budget 1000
	// affords floor(1000/120) = 8 lots => 8*50 = 400 units.
	qty := tm.sizeQuantity(2.0, instr, 1.0)
	assert.Equal(t, 400.0, qty)
}
