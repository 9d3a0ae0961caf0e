package execution

import "github.com/alexherrero/sherwood/backend/models"

// transitions is the Trade lifecycle's adjacency list: for each status, the
// set of statuses the trade manager may move it to next. A transition not
// listed here is rejected by ValidTransition.
var transitions = map[models.TradeStatus][]models.TradeStatus{
	models.TradeNew: {
		models.TradeEntryPlaced,
		models.TradeEntryFailed,
	},
	models.TradeEntryPlaced: {
		models.TradeEntryOpen,
		models.TradeEntryFilled,
		models.TradeEntryReplaced,
		models.TradeEntryCancelled,
		models.TradeEntryFailed,
	},
	models.TradeEntryOpen: {
		models.TradeEntryFilled,
		models.TradeEntryReplaced,
		models.TradeEntryCancelled,
		models.TradeEntryFailed,
	},
	models.TradeEntryReplaced: {
		models.TradeEntryOpen,
		models.TradeEntryFilled,
		models.TradeEntryCancelled,
		models.TradeEntryFailed,
	},
	models.TradeEntryFilled: {
		models.TradeLive,
	},
	models.TradeLive: {
		models.TradeExitedTarget,
		models.TradeExitedSL,
		models.TradeExitedManual,
		models.TradeGuardFailed,
	},
	models.TradeExitedTarget: {models.TradeClosed},
	models.TradeExitedSL:     {models.TradeClosed},
	models.TradeExitedManual: {models.TradeClosed},
	models.TradeGuardFailed:  {models.TradeClosed},
}

// ValidTransition reports whether from -> to is a legal Trade lifecycle
// move. CLOSED, ENTRY_FAILED and ENTRY_CANCELLED have no outgoing edges.
// The exit states and GUARD_FAILED also report IsTerminal, but each still
// has one: the final roll to CLOSED once books are settled.
func ValidTransition(from, to models.TradeStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// applyTradePatch copies every non-nil field of patch onto trade. This is
// the only place the exit manager's pointer-typed mutation fields are
// dereferenced; everywhere else treats patch as opaque and transactional.
func applyTradePatch(trade *models.Trade, patch models.TradePatch) {
	if patch.StopLoss != nil {
		trade.StopLoss = *patch.StopLoss
	}
	if patch.TargetPrice != nil {
		trade.TargetPrice = *patch.TargetPrice
	}
	if patch.PeakLtp != nil {
		trade.PeakLtp = *patch.PeakLtp
	}
	if patch.PeakPnlInr != nil {
		trade.PeakPnlInr = *patch.PeakPnlInr
	}
	if patch.BELocked != nil {
		trade.BELocked = *patch.BELocked
	}
	if patch.BEArmedAt != nil {
		trade.BEArmedAt = *patch.BEArmedAt
	}
	if patch.TrailLocked != nil {
		trade.TrailLocked = *patch.TrailLocked
	}
	if patch.TrailArmedAt != nil {
		trade.TrailArmedAt = *patch.TrailArmedAt
	}
	if patch.TimeStopTriggered != nil {
		trade.TimeStopTriggered = *patch.TimeStopTriggered
	}
	if patch.TimeStopTriggeredAt != nil {
		trade.TimeStopTriggeredAt = *patch.TimeStopTriggeredAt
	}
	if patch.ProfitLockArmedAt != nil {
		trade.ProfitLockArmedAt = *patch.ProfitLockArmedAt
	}
	if patch.ProfitLockInr != nil {
		trade.ProfitLockInr = *patch.ProfitLockInr
	}
	if patch.ProfitLockR != nil {
		trade.ProfitLockR = *patch.ProfitLockR
	}
}

// statusForExitReason maps an ExitNow reason to the terminal status the
// trade transitions to once its exit order is placed. Reasons other than
// MANUAL are classified by which side of entry the exit price landed on,
// since the exit manager's rules (time-stop, trail, option fallback) all
// ultimately resolve to either a target-side or a stop-side close.
func statusForExitReason(reason models.ExitReason, trade *models.Trade, exitPrice float64) models.TradeStatus {
	if reason == models.ExitReasonManual {
		return models.TradeExitedManual
	}
	if trade.TargetPrice > 0 {
		if trade.Side == models.OrderSideBuy && exitPrice >= trade.TargetPrice {
			return models.TradeExitedTarget
		}
		if trade.Side == models.OrderSideSell && exitPrice <= trade.TargetPrice {
			return models.TradeExitedTarget
		}
	}
	return models.TradeExitedSL
}
