package execution

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/alexherrero/sherwood/backend/broker"
	"github.com/alexherrero/sherwood/backend/data"
	"github.com/alexherrero/sherwood/backend/exit"
	"github.com/alexherrero/sherwood/backend/halt"
	"github.com/alexherrero/sherwood/backend/models"
	"github.com/alexherrero/sherwood/backend/realtime"
	"github.com/alexherrero/sherwood/backend/risk"
	"github.com/alexherrero/sherwood/backend/utils/indicators"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TradeManagerConfig holds the sizing, exit-placement, and housekeeping
// tunables from spec.md §4.4 and §6 "Order flow".
type TradeManagerConfig struct {
	RRMultiplier               float64
	SessionRiskInr             float64
	FeePerLot                  float64
	ATRPeriod                  int
	ATRBufferMult              float64
	RoundNumberGuardTicks      float64
	PartialFillTimeout         time.Duration
	OrderUpdateDedupTTL        time.Duration
	ReconcileInterval          time.Duration
	CircuitBreakerCooldownSecs int
}

// DefaultTradeManagerConfig returns conservative defaults for an intraday
// cash/options engine.
func DefaultTradeManagerConfig() TradeManagerConfig {
	return TradeManagerConfig{
		RRMultiplier:               1.5,
		SessionRiskInr:             1000,
		FeePerLot:                  20,
		ATRPeriod:                  14,
		ATRBufferMult:              0.25,
		RoundNumberGuardTicks:      2,
		PartialFillTimeout:         60 * time.Second,
		OrderUpdateDedupTTL:        5 * time.Minute,
		ReconcileInterval:          10 * time.Second,
		CircuitBreakerCooldownSecs: 60,
	}
}

// InstrumentLookup is the subset of data.InstrumentRepo the trade manager
// needs: resolving a token to its tradable identity and, during recovery,
// the reverse lookup by tradingsymbol.
type InstrumentLookup interface {
	Get(token int64) (*models.Instrument, error)
	GetBySymbol(tradingSymbol string) (*models.Instrument, error)
}

// TradeManager is the engine's entry-admission chain and order state
// machine (spec.md §4.4). It owns the live Trade set in memory, keyed by
// instrument token, and persists every transition through store.
type TradeManager struct {
	mu sync.RWMutex

	cfg     TradeManagerConfig
	exitCfg exit.Config

	broker      broker.Broker
	engine      *risk.Engine
	governor    *risk.Governor
	optimizer   *risk.Optimizer
	limiter     *risk.OrderRateLimiter
	breakers    *risk.BreakerManager
	haltBus     *halt.Bus
	store       data.TradeStore
	instruments InstrumentLookup
	ws          *realtime.WebSocketManager
	log         zerolog.Logger

	tradesByToken        map[int64]*models.Trade
	tradesByOrder        map[string]string
	dedup                map[string]time.Time
	pendingEntryDeadline map[string]time.Time

	reconciling         bool
	factRecoveryBlocked bool
}

// NewTradeManager wires a TradeManager against its broker, risk-layer, and
// persistence dependencies.
func NewTradeManager(
	cfg TradeManagerConfig,
	exitCfg exit.Config,
	b broker.Broker,
	engine *risk.Engine,
	governor *risk.Governor,
	optimizer *risk.Optimizer,
	limiter *risk.OrderRateLimiter,
	breakers *risk.BreakerManager,
	haltBus *halt.Bus,
	store data.TradeStore,
	instruments InstrumentLookup,
	ws *realtime.WebSocketManager,
	log zerolog.Logger,
) *TradeManager {
	return &TradeManager{
		cfg:                  cfg,
		exitCfg:              exitCfg,
		broker:               b,
		engine:               engine,
		governor:             governor,
		optimizer:            optimizer,
		limiter:              limiter,
		breakers:             breakers,
		haltBus:              haltBus,
		store:                store,
		instruments:          instruments,
		ws:                   ws,
		log:                  log,
		tradesByToken:        make(map[int64]*models.Trade),
		tradesByOrder:        make(map[string]string),
		dedup:                make(map[string]time.Time),
		pendingEntryDeadline: make(map[string]time.Time),
	}
}

// LoadOpenTrades restores every non-terminal trade from the store into the
// in-memory index on startup, re-arming risk-engine open-position tracking
// and partial-fill timeouts.
func (tm *TradeManager) LoadOpenTrades() error {
	trades, err := tm.store.Open()
	if err != nil {
		return fmt.Errorf("trade manager: load open trades: %w", err)
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	for i := range trades {
		t := trades[i]
		tm.tradesByToken[t.InstrumentToken] = &t
		if t.EntryOrderID != "" {
			tm.tradesByOrder[t.EntryOrderID] = t.TradeID
		}
		switch t.Status {
		case models.TradeEntryPlaced, models.TradeEntryOpen, models.TradeEntryReplaced:
			tm.pendingEntryDeadline[t.TradeID] = time.Now().Add(tm.cfg.PartialFillTimeout)
		case models.TradeLive, models.TradeEntryFilled:
			tm.engine.MarkOpen(t.InstrumentToken)
		}
	}
	return nil
}

// OnSignal runs the five-stage admission chain from spec.md §4.4 against
// sig and, if every stage admits it, sizes and places the entry order. It
// returns (nil, nil) on a denial — denials are telemetry, not errors.
func (tm *TradeManager) OnSignal(ctx context.Context, sig models.Signal, candles []models.Candle, now time.Time) (*models.Trade, error) {
	if haltedNow, state := tm.haltBus.IsHalted(); haltedNow {
		tm.logBlocked(sig, "HALT", state.Reason)
		return nil, nil
	}
	tm.mu.RLock()
	gateBlocked := tm.factRecoveryBlocked
	tm.mu.RUnlock()
	if gateBlocked {
		tm.logBlocked(sig, "FACT_RECOVERY_GATE", "")
		return nil, nil
	}
	if ok, reason := tm.engine.CanEnterNow(now); !ok {
		tm.logBlocked(sig, "CALENDAR", string(reason))
		return nil, nil
	}
	if ok, reason := tm.engine.CanTrade(sig.InstrumentToken, now); !ok {
		tm.logBlocked(sig, "RISK_ENGINE", string(reason))
		return nil, nil
	}

	instr, err := tm.instruments.Get(sig.InstrumentToken)
	if err != nil {
		return nil, fmt.Errorf("trade manager: instrument lookup: %w", err)
	}

	entry, stop, target := tm.computeEntryStopTarget(sig, candles, instr)
	riskPerUnit := math.Abs(entry - stop)
	if riskPerUnit <= 0 {
		tm.logBlocked(sig, "DEGENERATE_RISK", "")
		return nil, nil
	}

	if ok, reason := tm.governor.CanOpenNewTrade(now, riskPerUnit, riskPerUnit); !ok {
		tm.logBlocked(sig, "GOVERNOR", string(reason))
		return nil, nil
	}

	bucket := tm.optimizer.Bucket(now)
	eval := tm.optimizer.EvaluateSignal(instr.TradingSymbol, sig.StrategyID, bucket, now, 0, 0, false)
	if eval.Blocked {
		tm.logBlocked(sig, "OPTIMIZER", eval.BlockReason)
		return nil, nil
	}

	if !tm.limiter.Allow(now) {
		tm.logBlocked(sig, "RATE_LIMIT", "")
		return nil, nil
	}

	qty := tm.sizeQuantity(riskPerUnit, instr, eval.QtyMult)
	if qty <= 0 {
		tm.logBlocked(sig, "ZERO_QUANTITY", "")
		return nil, nil
	}

	trade := &models.Trade{
		TradeID:         uuid.NewString(),
		Side:            sig.Side,
		StrategyID:      sig.StrategyID,
		InstrumentToken: sig.InstrumentToken,
		TradingSymbol:   instr.TradingSymbol,
		Status:          models.TradeNew,
		RequestedQty:    qty,
		EntryPrice:      entry,
		InitialStopLoss: stop,
		StopLoss:        stop,
		TargetPrice:     target,
		RR:              tm.cfg.RRMultiplier,
		RiskInr:         riskPerUnit * qty,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if instr.IsOption() {
		trade.Option = &models.OptionMeta{OptionType: instr.InstrumentType, UnderlyingToken: instr.UnderlyingToken}
		if instr.Strike != nil {
			trade.Option.Strike = *instr.Strike
		}
		if instr.Expiry != nil {
			trade.Option.Expiry = *instr.Expiry
		}
	}

	if err := tm.store.Save(*trade); err != nil {
		return nil, fmt.Errorf("trade manager: persist NEW trade: %w", err)
	}

	orderID, err := tm.broker.PlaceOrder(broker.OrderParams{
		InstrumentToken: sig.InstrumentToken,
		TradingSymbol:   instr.TradingSymbol,
		Side:            sig.Side,
		Type:            models.OrderTypeMarket,
		Quantity:        qty,
	})
	if err != nil {
		trade.Status = models.TradeEntryFailed
		trade.UpdatedAt = now
		_ = tm.store.Save(*trade)
		tm.engine.RecordFailure()
		tm.governor.RecordOrderError(now)
		return trade, fmt.Errorf("trade manager: broker rejected entry: %w", err)
	}

	placedAt := now
	trade.EntryOrderID = orderID
	trade.Status = models.TradeEntryPlaced
	trade.EntryPlacedAt = &placedAt
	trade.UpdatedAt = now
	if err := tm.store.Save(*trade); err != nil {
		return trade, fmt.Errorf("trade manager: persist ENTRY_PLACED: %w", err)
	}

	tm.engine.RecordSuccess()
	tm.engine.RecordTradeOpened(now)

	tm.mu.Lock()
	tm.tradesByToken[trade.InstrumentToken] = trade
	tm.tradesByOrder[orderID] = trade.TradeID
	tm.pendingEntryDeadline[trade.TradeID] = now.Add(tm.cfg.PartialFillTimeout)
	tm.mu.Unlock()

	tm.broadcast("trade_update", trade)
	tm.log.Info().Str("trade_id", trade.TradeID).Str("symbol", trade.TradingSymbol).
		Str("side", string(trade.Side)).Float64("qty", qty).Float64("entry", entry).
		Float64("stop", stop).Float64("target", target).Msg("trade manager: entry placed")

	return trade, nil
}

// computeEntryStopTarget derives the entry anchor (last candle close), the
// stop-loss (nearest N-bar swing point, buffered by ATR, nudged off round
// numbers) and the RR-multiple target.
func (tm *TradeManager) computeEntryStopTarget(sig models.Signal, candles []models.Candle, instr *models.Instrument) (entry, stop, target float64) {
	entry = sig.Candle.Close
	if len(candles) == 0 {
		return entry, entry, entry
	}

	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
	}
	atr := lastFinite(indicators.ATR(highs, lows, closes, tm.cfg.ATRPeriod))
	if atr <= 0 {
		atr = entry * 0.002
	}

	lookback := tm.cfg.ATRPeriod
	if lookback > len(candles) {
		lookback = len(candles)
	}
	window := candles[len(candles)-lookback:]

	if sig.Side == models.OrderSideBuy {
		anchor := window[0].Low
		for _, c := range window {
			if c.Low < anchor {
				anchor = c.Low
			}
		}
		stop = tm.guardRoundNumber(anchor-atr*tm.cfg.ATRBufferMult, instr, true)
		target = entry + (entry-stop)*tm.cfg.RRMultiplier
	} else {
		anchor := window[0].High
		for _, c := range window {
			if c.High > anchor {
				anchor = c.High
			}
		}
		stop = tm.guardRoundNumber(anchor+atr*tm.cfg.ATRBufferMult, instr, false)
		target = entry - (stop-entry)*tm.cfg.RRMultiplier
	}
	return entry, stop, target
}

// guardRoundNumber pushes price further from the nearest whole-number level
// when it falls inside the configured tick guard, since round numbers
// cluster stale resting liquidity that can spike through a tight stop.
func (tm *TradeManager) guardRoundNumber(price float64, instr *models.Instrument, wideningDown bool) float64 {
	tick := 0.05
	if instr != nil && instr.TickSize > 0 {
		tick = instr.TickSize
	}
	guard := tm.cfg.RoundNumberGuardTicks * tick
	nearestRound := math.Round(price)
	if math.Abs(price-nearestRound) < guard {
		if wideningDown {
			price = nearestRound - guard
		} else {
			price = nearestRound + guard
		}
	}
	if instr != nil {
		price = instr.RoundToTick(price)
	}
	return price
}

// sizeQuantity solves (riskPerUnit · lots·lotSize) + feePerLot·lots ≤
// sessionRiskInr·qtyMult for the largest integer number of lots.
func (tm *TradeManager) sizeQuantity(riskPerUnit float64, instr *models.Instrument, qtyMult float64) float64 {
	lotSize := 1
	if instr != nil && instr.LotSize > 0 {
		lotSize = instr.LotSize
	}
	budget := tm.cfg.SessionRiskInr * qtyMult
	denom := riskPerUnit*float64(lotSize) + tm.cfg.FeePerLot
	if denom <= 0 {
		return 0
	}
	lots := math.Floor(budget / denom)
	if lots < 1 {
		return 0
	}
	return lots * float64(lotSize)
}

// OnOrderUpdate routes one broker order-status push to the owning trade,
// deduping by (orderId, status, exchangeTimestamp) within the configured
// TTL so a redelivered push never double-applies a fill or rejection.
func (tm *TradeManager) OnOrderUpdate(update broker.OrderUpdate, now time.Time) {
	key := fmt.Sprintf("%s|%s|%s", update.OrderID, update.Status, update.ExchangeTimestamp.Format(time.RFC3339Nano))
	tm.mu.Lock()
	if seenAt, ok := tm.dedup[key]; ok && now.Sub(seenAt) < tm.cfg.OrderUpdateDedupTTL {
		tm.mu.Unlock()
		return
	}
	tm.dedup[key] = now
	tm.pruneDedupLocked(now)
	tradeID, ok := tm.tradesByOrder[update.OrderID]
	tm.mu.Unlock()
	if !ok {
		tm.log.Warn().Str("order_id", update.OrderID).Msg("trade manager: order update for unknown order")
		return
	}

	trade, err := tm.store.Get(tradeID)
	if err != nil {
		tm.log.Error().Err(err).Str("trade_id", tradeID).Msg("trade manager: load trade for order update failed")
		return
	}

	switch update.Status {
	case models.OrderStatusFilled:
		tm.applyFill(trade, update, now)
	case models.OrderStatusPartiallyFilled:
		tm.applyPartialFill(trade, update, now)
	case models.OrderStatusRejected:
		tm.applyRejection(trade, update, now)
	case models.OrderStatusCancelled:
		tm.applyCancellation(trade, now)
	}
}

func (tm *TradeManager) applyFill(trade *models.Trade, update broker.OrderUpdate, now time.Time) {
	trade.FilledQty = update.FilledQuantity
	trade.EntryPrice = update.AveragePrice
	trade.Status = models.TradeEntryFilled
	filledAt := now
	trade.EntryFilledAt = &filledAt
	trade.UpdatedAt = now
	if err := tm.store.Save(*trade); err != nil {
		tm.log.Error().Err(err).Str("trade_id", trade.TradeID).Msg("trade manager: persist ENTRY_FILLED failed")
		return
	}

	trade.Status = models.TradeLive
	trade.UpdatedAt = now
	if err := tm.store.Save(*trade); err != nil {
		tm.log.Error().Err(err).Str("trade_id", trade.TradeID).Msg("trade manager: persist LIVE failed")
		return
	}

	tm.engine.MarkOpen(trade.InstrumentToken)
	tm.governor.OpenRisk(now, trade.TradeID, trade.RiskInr)

	tm.mu.Lock()
	tm.tradesByToken[trade.InstrumentToken] = trade
	delete(tm.pendingEntryDeadline, trade.TradeID)
	tm.mu.Unlock()

	tm.broadcast("trade_update", trade)
	tm.log.Info().Str("trade_id", trade.TradeID).Msg("trade manager: entry filled, trade live")
}

func (tm *TradeManager) applyPartialFill(trade *models.Trade, update broker.OrderUpdate, now time.Time) {
	trade.FilledQty = update.FilledQuantity
	trade.Status = models.TradeEntryOpen
	trade.UpdatedAt = now
	if err := tm.store.Save(*trade); err != nil {
		tm.log.Error().Err(err).Str("trade_id", trade.TradeID).Msg("trade manager: persist partial fill failed")
	}
	tm.broadcast("trade_update", trade)
}

// applyRejection classifies the rejection reason and, for a circuit-breaker
// rejection, arms the per-(strategy, underlying, token) cooldown the
// breaker manager tracks — this is the only place a trade-level rejection
// reaches the circuit breaker.
func (tm *TradeManager) applyRejection(trade *models.Trade, update broker.OrderUpdate, now time.Time) {
	trade.Status = models.TradeEntryFailed
	trade.UpdatedAt = now
	if err := tm.store.Save(*trade); err != nil {
		tm.log.Error().Err(err).Str("trade_id", trade.TradeID).Msg("trade manager: persist ENTRY_FAILED failed")
	}

	tm.engine.RecordFailure()
	tm.governor.RecordOrderError(now)

	class := classifyRejection(update.RejectionReason)
	if class == "CIRCUIT_BREAKER" {
		key := tm.breakerKey(trade)
		tm.breakers.SetCooldown(key, time.Duration(tm.cfg.CircuitBreakerCooldownSecs)*time.Second)
		tm.log.Warn().Str("key", key).Str("reason", class).Msg("trade manager: circuit breaker cooldown set")
	}

	tm.mu.Lock()
	delete(tm.tradesByToken, trade.InstrumentToken)
	delete(tm.pendingEntryDeadline, trade.TradeID)
	tm.mu.Unlock()

	tm.broadcast("trade_update", trade)
	tm.log.Warn().Str("trade_id", trade.TradeID).Str("reason", update.RejectionReason).Str("class", class).Msg("trade manager: entry rejected")
}

func (tm *TradeManager) applyCancellation(trade *models.Trade, now time.Time) {
	if trade.FilledQty > 0 {
		trade.Status = models.TradeEntryFilled
	} else {
		trade.Status = models.TradeEntryCancelled
	}
	trade.UpdatedAt = now
	if err := tm.store.Save(*trade); err != nil {
		tm.log.Error().Err(err).Str("trade_id", trade.TradeID).Msg("trade manager: persist cancellation failed")
	}
	tm.mu.Lock()
	if trade.FilledQty == 0 {
		delete(tm.tradesByToken, trade.InstrumentToken)
	}
	delete(tm.pendingEntryDeadline, trade.TradeID)
	tm.mu.Unlock()
	tm.broadcast("trade_update", trade)
}

// classifyRejection maps a raw broker rejection message to the coarse
// reason category the spec's rejection handling branches on.
func classifyRejection(reason string) string {
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "circuit") || strings.Contains(lower, "price band"):
		return "CIRCUIT_BREAKER"
	case strings.Contains(lower, "margin"):
		return "MARGIN"
	case strings.Contains(lower, "session") || strings.Contains(lower, "market closed") || strings.Contains(lower, "market is closed"):
		return "SESSION"
	default:
		return "OTHER"
	}
}

// breakerKey renders the (strategy, underlying, token) key the circuit
// breaker cooldown is keyed on. For an option trade the underlying symbol
// is resolved through the instrument repo; for cash/futures the
// tradingsymbol is its own underlying.
func (tm *TradeManager) breakerKey(trade *models.Trade) string {
	underlying := trade.TradingSymbol
	if trade.Option != nil && trade.Option.UnderlyingToken != 0 {
		if u, err := tm.instruments.Get(trade.Option.UnderlyingToken); err == nil && u != nil {
			underlying = u.TradingSymbol
		}
	}
	return fmt.Sprintf("%s:%s:%d", trade.StrategyID, underlying, trade.InstrumentToken)
}

// CheckPartialFillTimeouts cancels the unfilled remainder of any entry
// order whose partial-fill deadline has passed.
func (tm *TradeManager) CheckPartialFillTimeouts(now time.Time) {
	tm.mu.Lock()
	var expired []string
	for tradeID, deadline := range tm.pendingEntryDeadline {
		if now.After(deadline) {
			expired = append(expired, tradeID)
		}
	}
	tm.mu.Unlock()

	for _, tradeID := range expired {
		trade, err := tm.store.Get(tradeID)
		if err != nil || trade == nil {
			continue
		}
		if trade.Status.IsTerminal() || trade.Status == models.TradeLive || trade.EntryOrderID == "" {
			tm.mu.Lock()
			delete(tm.pendingEntryDeadline, tradeID)
			tm.mu.Unlock()
			continue
		}
		if err := tm.broker.CancelOrder(trade.EntryOrderID); err != nil {
			tm.log.Warn().Err(err).Str("trade_id", tradeID).Msg("trade manager: cancel partial fill remainder failed")
			continue
		}
		tm.log.Info().Str("trade_id", tradeID).Msg("trade manager: partial fill timeout, cancelling remainder")
	}
}

// OnTick applies the dynamic exit manager's plan for the live trade on
// tick's instrument, if any. Callers throttle how often this runs per
// token per spec.md §4.5.
func (tm *TradeManager) OnTick(tick broker.Tick, candles []models.Candle, now time.Time, underlyingLtp *float64) {
	tm.mu.RLock()
	trade, ok := tm.tradesByToken[tick.InstrumentToken]
	tm.mu.RUnlock()
	if !ok || trade.Status != models.TradeLive {
		return
	}

	plan := exit.ComputeExitPlan(*trade, tick.LastPrice, candles, now, tm.exitCfg, underlyingLtp)
	tm.applyExitPlan(trade, plan, tick.LastPrice, now)
}

func (tm *TradeManager) applyExitPlan(trade *models.Trade, plan models.ExitPlan, ltp float64, now time.Time) {
	applyTradePatch(trade, plan.TradePatch)
	if plan.SL != nil {
		trade.StopLoss = *plan.SL
	}
	if plan.Target != nil {
		trade.TargetPrice = *plan.Target
	}
	trade.UpdatedAt = now

	if plan.Action.Kind == models.ExitActionExitNow {
		tm.closeTrade(trade, ltp, now, plan.Action.Reason)
		return
	}

	if err := tm.store.Save(*trade); err != nil {
		tm.log.Error().Err(err).Str("trade_id", trade.TradeID).Msg("trade manager: persist exit plan patch failed")
		return
	}
	tm.mu.Lock()
	tm.tradesByToken[trade.InstrumentToken] = trade
	tm.mu.Unlock()
}

func (tm *TradeManager) closeTrade(trade *models.Trade, ltp float64, now time.Time, reason models.ExitReason) {
	exitSide := models.OrderSideSell
	if trade.Side == models.OrderSideSell {
		exitSide = models.OrderSideBuy
	}
	if _, err := tm.broker.PlaceOrder(broker.OrderParams{
		InstrumentToken: trade.InstrumentToken,
		TradingSymbol:   trade.TradingSymbol,
		Side:            exitSide,
		Type:            models.OrderTypeMarket,
		Quantity:        trade.FilledQty,
		Tag:             string(reason),
	}); err != nil {
		tm.log.Error().Err(err).Str("trade_id", trade.TradeID).Msg("trade manager: exit order placement failed")
		return
	}

	trade.Status = statusForExitReason(reason, trade, ltp)
	closedAt := now
	trade.ClosedAt = &closedAt
	trade.UpdatedAt = now

	grossPnl := trade.PnLInr(ltp)
	trade.RealizedGrossPnl = decimal.NewFromFloat(grossPnl)
	trade.RealizedNetPnl = trade.RealizedGrossPnl.Sub(trade.RealizedCostPnl)

	if err := tm.store.Save(*trade); err != nil {
		tm.log.Error().Err(err).Str("trade_id", trade.TradeID).Msg("trade manager: persist closed trade failed")
	}

	tm.engine.MarkClosed(trade.InstrumentToken)
	tm.governor.CloseTrade(now, trade.TradeID, grossPnl, trade.PnLR(ltp))

	tm.mu.Lock()
	delete(tm.tradesByToken, trade.InstrumentToken)
	tm.mu.Unlock()

	tm.broadcast("trade_update", trade)
	tm.log.Info().Str("trade_id", trade.TradeID).Str("status", string(trade.Status)).
		Float64("pnl_inr", grossPnl).Msg("trade manager: trade closed")
}

// Reconcile runs one single-flighted pass of the broker reconcile loop:
// recover any broker-side position this process doesn't know about, then
// re-evaluate the global fact-recovery gate.
func (tm *TradeManager) Reconcile(ctx context.Context, now time.Time) error {
	tm.mu.Lock()
	if tm.reconciling {
		tm.mu.Unlock()
		return nil
	}
	tm.reconciling = true
	tm.mu.Unlock()
	defer func() {
		tm.mu.Lock()
		tm.reconciling = false
		tm.mu.Unlock()
	}()

	positions, err := tm.broker.GetPositions()
	if err != nil {
		return fmt.Errorf("trade manager: reconcile positions: %w", err)
	}
	orders, err := tm.broker.GetOrders()
	if err != nil {
		return fmt.Errorf("trade manager: reconcile orders: %w", err)
	}

	tm.mu.RLock()
	localTrades := make([]*models.Trade, 0, len(tm.tradesByToken))
	knownSymbols := make(map[string]bool, len(tm.tradesByToken))
	for _, t := range tm.tradesByToken {
		localTrades = append(localTrades, t)
		knownSymbols[t.TradingSymbol] = true
	}
	tm.mu.RUnlock()

	for _, pos := range positions {
		if pos.Quantity == 0 || knownSymbols[pos.Symbol] {
			continue
		}
		tm.recoverUntrackedPosition(pos, now)
	}

	allConsistent := true
	for _, t := range localTrades {
		if t.Status != models.TradeLive {
			continue
		}
		if !hasBrokerEntryFact(t, orders) {
			allConsistent = false
			break
		}
	}

	tm.mu.Lock()
	tm.factRecoveryBlocked = !allConsistent
	tm.mu.Unlock()

	if !allConsistent {
		tm.log.Warn().Msg("trade manager: fact-recovery gate engaged, blocking new entries")
	}
	return nil
}

func hasBrokerEntryFact(trade *models.Trade, orders []models.Order) bool {
	if trade.EntryOrderID == "" {
		return false
	}
	for _, o := range orders {
		if o.ID == trade.EntryOrderID {
			return o.Status == models.OrderStatusFilled || o.Status == models.OrderStatusPartiallyFilled
		}
	}
	return false
}

// recoverUntrackedPosition repairs a Trade record for a broker-side
// position this process has no local record of, conservatively treating
// the position's average cost as both entry and stop until the exit
// manager's next tick re-derives real levels.
func (tm *TradeManager) recoverUntrackedPosition(pos models.Position, now time.Time) {
	instr, err := tm.instruments.GetBySymbol(pos.Symbol)
	if err != nil || instr == nil {
		tm.log.Warn().Str("symbol", pos.Symbol).Msg("trade manager: recovered position has no known instrument, skipping")
		return
	}
	side := models.OrderSideBuy
	qty := pos.Quantity
	if qty < 0 {
		side = models.OrderSideSell
		qty = -qty
	}
	trade := &models.Trade{
		TradeID:         uuid.NewString(),
		Side:            side,
		StrategyID:      "RECOVERED",
		InstrumentToken: instr.Token,
		TradingSymbol:   instr.TradingSymbol,
		Status:          models.TradeLive,
		RequestedQty:    qty,
		FilledQty:       qty,
		EntryPrice:      pos.AverageCost,
		InitialStopLoss: pos.AverageCost,
		StopLoss:        pos.AverageCost,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tm.store.Save(*trade); err != nil {
		tm.log.Error().Err(err).Str("symbol", pos.Symbol).Msg("trade manager: persist recovered trade failed")
		return
	}
	if err := tm.broker.Subscribe([]int64{instr.Token}); err != nil {
		tm.log.Warn().Err(err).Int64("token", instr.Token).Msg("trade manager: subscribe to recovered token failed")
	}

	tm.engine.MarkOpen(instr.Token)

	tm.mu.Lock()
	tm.tradesByToken[instr.Token] = trade
	tm.mu.Unlock()

	tm.log.Warn().Str("trade_id", trade.TradeID).Str("symbol", pos.Symbol).Msg("trade manager: recovered untracked broker position")
}

func (tm *TradeManager) pruneDedupLocked(now time.Time) {
	for k, seenAt := range tm.dedup {
		if now.Sub(seenAt) > tm.cfg.OrderUpdateDedupTTL {
			delete(tm.dedup, k)
		}
	}
}

func (tm *TradeManager) broadcast(msgType string, payload interface{}) {
	if tm.ws == nil {
		return
	}
	tm.ws.Broadcast(msgType, payload)
}

func (tm *TradeManager) logBlocked(sig models.Signal, stage, reason string) {
	tm.log.Warn().Str("stage", stage).Str("reason", reason).Str("strategy", sig.StrategyID).
		Int64("token", sig.InstrumentToken).Msg("trade manager: BLOCKED")
}

func lastFinite(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) {
			return series[i]
		}
	}
	return 0
}
