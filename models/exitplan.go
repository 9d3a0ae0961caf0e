package models

import "time"

// ExitActionKind discriminates the ExitAction tagged variant the dynamic
// exit manager emits alongside any SL/target patch.
type ExitActionKind string

const (
	// ExitActionNone means no immediate close is requested this tick.
	ExitActionNone ExitActionKind = "none"
	// ExitActionExitNow requests an immediate market exit with Reason set.
	ExitActionExitNow ExitActionKind = "exit_now"
)

// ExitReason enumerates the reasons an ExitNow action may carry.
type ExitReason string

const (
	ExitReasonTimeStopNoProgress ExitReason = "TIME_STOP_NO_PROGRESS"
	ExitReasonTimeStopMaxHold    ExitReason = "TIME_STOP_MAX_HOLD"
	ExitReasonIVCrush            ExitReason = "IV_CRUSH"
	ExitReasonIVSpikeLock        ExitReason = "IV_SPIKE_LOCK"
	ExitReasonManual             ExitReason = "MANUAL"
)

// MaxHoldSkipReason records why the max-hold time-stop was skipped, per the
// PNL_R, PEAK_R, LOCKED checking order fixed by spec decision.
type MaxHoldSkipReason string

const (
	MaxHoldSkipNone   MaxHoldSkipReason = ""
	MaxHoldSkipPnlR   MaxHoldSkipReason = "PNL_R"
	MaxHoldSkipPeakR  MaxHoldSkipReason = "PEAK_R"
	MaxHoldSkipLocked MaxHoldSkipReason = "LOCKED"
)

// ExitAction is the tagged variant: either None or ExitNow{reason}.
type ExitAction struct {
	Kind   ExitActionKind `json:"kind"`
	Reason ExitReason     `json:"reason,omitempty"`
}

// TradePatch carries the subset of Trade fields the exit manager is allowed
// to mutate; the trade manager applies it transactionally.
type TradePatch struct {
	StopLoss            *float64   `json:"stop_loss,omitempty"`
	TargetPrice         *float64   `json:"target_price,omitempty"`
	PeakLtp             *float64   `json:"peak_ltp,omitempty"`
	PeakPnlInr          *float64   `json:"peak_pnl_inr,omitempty"`
	BELocked            *bool      `json:"be_locked,omitempty"`
	BEArmedAt           *time.Time `json:"be_armed_at,omitempty"`
	TrailLocked         *bool      `json:"trail_locked,omitempty"`
	TrailArmedAt        *time.Time `json:"trail_armed_at,omitempty"`
	TimeStopTriggered   *bool      `json:"time_stop_triggered,omitempty"`
	TimeStopTriggeredAt *time.Time `json:"time_stop_triggered_at,omitempty"`
	ProfitLockArmedAt   *time.Time `json:"profit_lock_armed_at,omitempty"`
	ProfitLockInr       *float64   `json:"profit_lock_inr,omitempty"`
	ProfitLockR         *float64   `json:"profit_lock_r,omitempty"`
}

// ExitPlanMeta carries diagnostic/telemetry fields that do not mutate the
// trade but are useful to log and expose over the admin surface.
type ExitPlanMeta struct {
	MaxHoldSkipReason MaxHoldSkipReason `json:"max_hold_skip_reason,omitempty"`
	PnlR              float64           `json:"pnl_r"`
	PeakR             float64           `json:"peak_r"`
	TrueBE            float64           `json:"true_be"`
	TrailGap          float64           `json:"trail_gap,omitempty"`
}

// ExitPlan is the return value of DynamicExitManager.ComputeExitPlan: an
// optional SL/target suggestion, an optional immediate-exit action, the
// trade patch to persist, and diagnostic metadata.
type ExitPlan struct {
	SL         *float64     `json:"sl,omitempty"`
	Target     *float64     `json:"target,omitempty"`
	Action     ExitAction   `json:"action"`
	TradePatch TradePatch   `json:"trade_patch"`
	Meta       ExitPlanMeta `json:"meta"`
}
