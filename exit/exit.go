// Package exit implements the dynamic exit manager: a pure function that
// recomputes a trade's stop-loss/target/exit-now decision on every
// relevant tick. Nothing here mutates a Trade directly — callers apply the
// returned TradePatch transactionally.
package exit

import (
	"math"
	"time"

	"github.com/alexherrero/sherwood/backend/models"
)

// Config holds every parameter group from spec.md §6 "Dynamic exit". All
// fields default to zero value, which is never a sensible trading default,
// so callers must always construct this from configuration rather than
// relying on the zero Config.
type Config struct {
	// Time-stop no-progress.
	NoProgressMin            float64
	NoProgressMfeR           float64
	RequireUnderlyingConfirm bool
	UnderlyingConfirmBps     float64

	// Max-hold time-stop.
	MaxHoldMin           float64
	MaxHoldSkipIfPnlR    float64
	MaxHoldSkipIfPeakR   float64
	MaxHoldSkipIfLocked  bool

	// Breakeven arming.
	BEArmR                 float64
	BEArmCostMult          float64
	EstimatedRoundTripCost float64
	BECostMultiplier       float64
	BEBufferTicks          float64
	TickSize               float64

	// Trail arming / trailing stop.
	TrailArmR          float64
	TrailGapPctPreBE   float64
	TrailGapPctPostBE  float64
	TrailGapMinPts     float64
	TrailGapMaxPts     float64
	TrailTightenAfterR float64
	TrailGapPctTight   float64

	// Output emission policy.
	StepTicksPreBE     float64
	StepTicksPostBE    float64
	AllowTargetTighten bool

	// Profit lock.
	ProfitLockEnabled bool
	ProfitLockR       float64
	ProfitLockKeepR   float64

	// Option-specific fallback.
	OptionPremiumPctSL         float64
	OptionPremiumPctTarget     float64
	OptionIVCrushDropPct       float64
	OptionIVSpikeRisePct       float64
	OptionUnderlyingNeutralBps float64
	OptionEarlyWidenWindowMin  float64
	OptionEarlyWidenMaxRMult   float64
}

func boolPtr(b bool) *bool          { return &b }
func f64Ptr(f float64) *float64     { return &f }
func timePtr(t time.Time) *time.Time { return &t }

// ComputeExitPlan evaluates every rule in spec order and returns the
// resulting patch/action. later rules may tighten a floor set by an
// earlier rule but must never loosen stopLoss past initialStopLoss, except
// inside the option early-widen window.
func ComputeExitPlan(trade models.Trade, ltp float64, candles []models.Candle, now time.Time, cfg Config, underlyingLtp *float64) models.ExitPlan {
	plan := models.ExitPlan{}

	riskPerUnit := trade.RiskPerUnit()
	if riskPerUnit <= 0 || trade.FilledQty <= 0 || trade.RiskInr <= 0 {
		return plan
	}

	isBuy := trade.Side == models.OrderSideBuy
	sign := 1.0
	if !isBuy {
		sign = -1.0
	}

	holdStart := trade.CreatedAt
	if trade.EntryFilledAt != nil {
		holdStart = *trade.EntryFilledAt
	}
	holdMin := now.Sub(holdStart).Minutes()

	pnlInr := trade.PnLInr(ltp)
	pnlR := trade.PnLR(ltp)
	peakPnlInr := math.Max(trade.PeakPnlInr, pnlInr)
	peakR := peakPnlInr / trade.RiskInr

	if peakPnlInr > trade.PeakPnlInr {
		plan.TradePatch.PeakPnlInr = f64Ptr(peakPnlInr)
	}

	costPerShare := 0.0
	if trade.FilledQty > 0 {
		costPerShare = cfg.EstimatedRoundTripCost / trade.FilledQty
	}
	beCostMult := cfg.BECostMultiplier
	if beCostMult == 0 {
		beCostMult = 1.0
	}
	trueBE := trade.EntryPrice + sign*costPerShare*beCostMult

	meta := models.ExitPlanMeta{PnlR: pnlR, PeakR: peakR, TrueBE: trueBE}

	// currentSL tracks the tightest SL computed across rules so far, seeded
	// from the trade's current SL; candidateSL helper below only accepts a
	// tightening move.
	currentSL := trade.StopLoss
	tighten := func(candidate float64) {
		if isBuy {
			if candidate > currentSL {
				currentSL = candidate
			}
		} else {
			if candidate < currentSL || currentSL == 0 {
				currentSL = candidate
			}
		}
	}

	// --- Rule 1: time-stop no-progress (latched). ---
	if !trade.TimeStopTriggered {
		noProgress := peakR < cfg.NoProgressMfeR
		underlyingConfirmsNoMove := true
		if cfg.RequireUnderlyingConfirm && underlyingLtp != nil && trade.UnderlyingEntryPrice > 0 {
			bps := math.Abs(*underlyingLtp-trade.UnderlyingEntryPrice) / trade.UnderlyingEntryPrice * 10000
			underlyingConfirmsNoMove = bps < cfg.UnderlyingConfirmBps
		}
		if holdMin >= cfg.NoProgressMin && noProgress && underlyingConfirmsNoMove {
			plan.TradePatch.TimeStopTriggered = boolPtr(true)
			plan.TradePatch.TimeStopTriggeredAt = timePtr(now)
			plan.Action = models.ExitAction{Kind: models.ExitActionExitNow, Reason: models.ExitReasonTimeStopNoProgress}
			plan.Meta = meta
			return plan
		}
	}

	// --- Rule 2: max-hold time-stop. ---
	if holdMin >= cfg.MaxHoldMin {
		skipReason := models.MaxHoldSkipNone
		switch {
		case pnlR >= cfg.MaxHoldSkipIfPnlR:
			skipReason = models.MaxHoldSkipPnlR
		case peakR >= cfg.MaxHoldSkipIfPeakR:
			skipReason = models.MaxHoldSkipPeakR
		case cfg.MaxHoldSkipIfLocked && (trade.BELocked || trade.TrailLocked):
			skipReason = models.MaxHoldSkipLocked
		}
		meta.MaxHoldSkipReason = skipReason
		if skipReason == models.MaxHoldSkipNone {
			plan.Action = models.ExitAction{Kind: models.ExitActionExitNow, Reason: models.ExitReasonTimeStopMaxHold}
			plan.Meta = meta
			return plan
		}
	}

	beLocked := trade.BELocked
	// --- Rule 3: breakeven arming (latched). ---
	if !beLocked {
		armThresholdInr := math.Max(cfg.BEArmR*trade.RiskInr, cfg.BEArmCostMult*cfg.EstimatedRoundTripCost)
		if pnlInr >= armThresholdInr && armThresholdInr > 0 {
			beLocked = true
			plan.TradePatch.BELocked = boolPtr(true)
			plan.TradePatch.BEArmedAt = timePtr(now)
			buffer := cfg.BEBufferTicks * cfg.TickSize
			tighten(trueBE + sign*buffer)
		}
	}

	trailLocked := trade.TrailLocked
	// --- Rule 4: trail arming (latched). ---
	if !trailLocked {
		if pnlInr >= cfg.TrailArmR*trade.RiskInr && cfg.TrailArmR > 0 {
			trailLocked = true
			plan.TradePatch.TrailLocked = boolPtr(true)
			plan.TradePatch.TrailArmedAt = timePtr(now)
		}
	}

	// --- Rule 5: trailing stop. ---
	if beLocked || trailLocked {
		gapPct := cfg.TrailGapPctPreBE
		if beLocked {
			gapPct = cfg.TrailGapPctPostBE
		}
		if cfg.TrailTightenAfterR > 0 && peakR >= cfg.TrailTightenAfterR {
			gapPct = cfg.TrailGapPctTight
		}
		gap := peakPnlInrToPriceGap(peakPnlInr, trade.FilledQty) * gapPct
		if cfg.TrailGapMinPts > 0 && gap < cfg.TrailGapMinPts {
			gap = cfg.TrailGapMinPts
		}
		if cfg.TrailGapMaxPts > 0 && gap > cfg.TrailGapMaxPts {
			gap = cfg.TrailGapMaxPts
		}
		meta.TrailGap = gap

		peakLtp := trade.PeakLtp
		if isBuy {
			if ltp > peakLtp {
				peakLtp = ltp
			}
		} else {
			if peakLtp == 0 || ltp < peakLtp {
				peakLtp = ltp
			}
		}
		if peakLtp != trade.PeakLtp {
			plan.TradePatch.PeakLtp = f64Ptr(peakLtp)
		}

		trailSL := peakLtp - sign*gap
		// Never let the trail cross to within one tick of the live price on
		// the wrong side.
		if isBuy && trailSL > ltp-cfg.TickSize {
			trailSL = ltp - cfg.TickSize
		}
		if !isBuy && trailSL < ltp+cfg.TickSize {
			trailSL = ltp + cfg.TickSize
		}
		tighten(trailSL)
	}

	// --- Rule 6: profit lock. ---
	if cfg.ProfitLockEnabled && peakR >= cfg.ProfitLockR && cfg.ProfitLockR > 0 {
		lockInr := cfg.ProfitLockKeepR * trade.RiskInr
		floor := trade.EntryPrice + sign*(lockInr/trade.FilledQty)
		tighten(floor)
		if trade.ProfitLockArmedAt.IsZero() {
			plan.TradePatch.ProfitLockArmedAt = timePtr(now)
		}
		plan.TradePatch.ProfitLockInr = f64Ptr(lockInr)
		plan.TradePatch.ProfitLockR = f64Ptr(cfg.ProfitLockKeepR)
	}

	// --- Rule 7: option-specific fallback. ---
	if trade.IsOption() {
		currentSL = applyOptionFallback(trade, ltp, underlyingLtp, cfg, isBuy, sign, currentSL, holdMin)
	}

	// Never loosen past initialStopLoss, except inside the option
	// early-widen window (handled above for options).
	if !trade.IsOption() {
		if isBuy && currentSL < trade.InitialStopLoss {
			currentSL = trade.InitialStopLoss
		}
		if !isBuy && currentSL > trade.InitialStopLoss && trade.InitialStopLoss > 0 {
			currentSL = trade.InitialStopLoss
		}
	}

	stepTicks := cfg.StepTicksPreBE
	if beLocked {
		stepTicks = cfg.StepTicksPostBE
	}
	step := stepTicks * cfg.TickSize
	movedEnough := math.Abs(currentSL-trade.StopLoss) > step
	lockFloorChanged := plan.TradePatch.BELocked != nil || plan.TradePatch.ProfitLockArmedAt != nil
	if currentSL != trade.StopLoss && (movedEnough || lockFloorChanged) {
		sl := currentSL
		plan.SL = &sl
	}

	plan.Meta = meta
	return plan
}

// peakPnlInrToPriceGap converts a peak P&L figure into the corresponding
// price level so the trail gap can be expressed as a percentage of price.
func peakPnlInrToPriceGap(peakPnlInr, qty float64) float64 {
	if qty <= 0 {
		return 0
	}
	return peakPnlInr / qty
}

// applyOptionFallback layers the volatility-aware premium model and the
// IV-crush/IV-spike heuristics on top of (or instead of) the cash rules,
// honoring a bounded early-widen window. If BE is armed inside the window,
// the BE floor dominates the widen cap (spec.md §9 open-question decision).
func applyOptionFallback(trade models.Trade, ltp float64, underlyingLtp *float64, cfg Config, isBuy bool, sign float64, currentSL float64, holdMin float64) float64 {
	premiumSL := trade.EntryPrice * (1 - cfg.OptionPremiumPctSL)
	if premiumSL > currentSL {
		currentSL = premiumSL
	}

	inWidenWindow := cfg.OptionEarlyWidenWindowMin > 0 && holdMin <= cfg.OptionEarlyWidenWindowMin
	if inWidenWindow && !trade.BELocked {
		widenFloor := trade.EntryPrice - sign*cfg.OptionEarlyWidenMaxRMult*trade.RiskPerUnit()
		if isBuy && widenFloor < currentSL {
			currentSL = widenFloor
		}
		if !isBuy && widenFloor > currentSL {
			currentSL = widenFloor
		}
		return currentSL
	}

	if isBuy && currentSL < trade.InitialStopLoss {
		currentSL = trade.InitialStopLoss
	}
	if !isBuy && currentSL > trade.InitialStopLoss && trade.InitialStopLoss > 0 {
		currentSL = trade.InitialStopLoss
	}

	if underlyingLtp != nil && trade.UnderlyingEntryPrice > 0 {
		underlyingMoveBps := math.Abs(*underlyingLtp-trade.UnderlyingEntryPrice) / trade.UnderlyingEntryPrice * 10000
		underlyingNeutral := underlyingMoveBps < cfg.OptionUnderlyingNeutralBps
		premiumMove := (ltp - trade.EntryPrice) / trade.EntryPrice
		if underlyingNeutral && premiumMove <= -cfg.OptionIVCrushDropPct {
			// IV crush: force an immediate-exit-equivalent tight SL at LTP.
			currentSL = ltp
		}
		if underlyingNeutral && premiumMove >= cfg.OptionIVSpikeRisePct {
			// IV spike lock: lock in most of the premium gain.
			lockPrice := trade.EntryPrice + (ltp-trade.EntryPrice)*0.7
			if lockPrice > currentSL {
				currentSL = lockPrice
			}
		}
	}

	return currentSL
}
