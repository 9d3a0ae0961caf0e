package risk

import (
	"sync"
	"time"

	"github.com/alexherrero/sherwood/backend/models"
	"github.com/rs/zerolog"
)

// OptimizerConfig holds the rolling-window and block parameters from §6
// "Optimizer".
type OptimizerConfig struct {
	LookbackN       int
	MinSamples      int
	BlockTTL        time.Duration
	FeeMultipleMin  float64
	OpenEndMinute   int // minutes-after-midnight IST
	CloseStartMinute int
	SpreadPenaltyFloor float64
}

// DefaultOptimizerConfig returns sane defaults for an intraday engine.
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		LookbackN:          30,
		MinSamples:         10,
		BlockTTL:           2 * time.Hour,
		FeeMultipleMin:     1.0,
		OpenEndMinute:       9*60 + 45,
		CloseStartMinute:    15 * 60,
		SpreadPenaltyFloor: 0.5,
	}
}

// OptimizerStore is the persistence port for windows/blocks.
type OptimizerStore interface {
	LoadWindows() (map[string]*models.OptimizerWindow, error)
	SaveWindow(w *models.OptimizerWindow) error
	LoadBlocks() (map[string]*models.OptimizerBlock, error)
	SaveBlock(b *models.OptimizerBlock) error
	DeleteBlock(key string) error
}

// Evaluation is the result of Optimizer.EvaluateSignal: either a hard block
// or soft multipliers applied to confidence/quantity.
type Evaluation struct {
	Blocked       bool
	BlockReason   string
	ConfidenceMult float64
	QtyMult        float64
}

// Optimizer is the AdaptiveOptimizer: rolling fee-multiple windows per key,
// auto-block when the average falls below threshold, and soft de-weighting
// otherwise. All state mutation goes through its own mutex.
type Optimizer struct {
	mu      sync.Mutex
	cfg     OptimizerConfig
	store   OptimizerStore
	log     zerolog.Logger
	windows map[string]*models.OptimizerWindow
	blocks  map[string]*models.OptimizerBlock
}

// NewOptimizer loads persisted state (bootstrapped by the caller from
// recent closed trades if the store is empty) and returns an Optimizer.
func NewOptimizer(cfg OptimizerConfig, store OptimizerStore, log zerolog.Logger) (*Optimizer, error) {
	windows, err := store.LoadWindows()
	if err != nil {
		return nil, err
	}
	blocks, err := store.LoadBlocks()
	if err != nil {
		return nil, err
	}
	if windows == nil {
		windows = make(map[string]*models.OptimizerWindow)
	}
	if blocks == nil {
		blocks = make(map[string]*models.OptimizerBlock)
	}
	return &Optimizer{cfg: cfg, store: store, log: log, windows: windows, blocks: blocks}, nil
}

// Bucket derives OPEN/MID/CLOSE from now's wall-clock time in now's own
// location using the configured boundaries; it does not convert to IST.
func (o *Optimizer) Bucket(now time.Time) models.TimeBucket {
	cur := now.Hour()*60 + now.Minute()
	switch {
	case cur < o.cfg.OpenEndMinute:
		return models.BucketOpen
	case cur >= o.cfg.CloseStartMinute:
		return models.BucketClose
	default:
		return models.BucketMid
	}
}

// RecordClosedTrade pushes a fee-multiple sample into both the
// (symbol, strategy, bucket) and (strategy, bucket) windows, creating an
// auto-block on either key if its average drops below threshold.
func (o *Optimizer) RecordClosedTrade(symbol, strategyID string, bucket models.TimeBucket, feeMultiple float64, now time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()

	symKey := models.OptimizerKey{Symbol: symbol, StrategyID: strategyID, Bucket: bucket}
	stratKey := models.OptimizerKey{StrategyID: strategyID, Bucket: bucket}

	o.pushLocked(symKey, feeMultiple, now)
	o.pushLocked(stratKey, feeMultiple, now)
}

func (o *Optimizer) pushLocked(key models.OptimizerKey, sample float64, now time.Time) {
	k := key.String()
	w, ok := o.windows[key.String()]
	if !ok {
		w = &models.OptimizerWindow{Key: key}
		o.windows[k] = w
	}
	w.Push(sample, o.cfg.LookbackN)
	_ = o.store.SaveWindow(w)

	if len(w.Samples) >= o.cfg.MinSamples {
		avg := w.Average()
		if avg < o.cfg.FeeMultipleMin {
			block := &models.OptimizerBlock{
				Key:     key,
				UntilTs: now.Add(o.cfg.BlockTTL),
				SetAtTs: now,
				Reason:  "fee multiple below threshold",
				Snapshot: map[string]interface{}{
					"avg_fee_multiple": avg,
					"samples":          len(w.Samples),
				},
			}
			o.blocks[k] = block
			_ = o.store.SaveBlock(block)
			o.log.Warn().Str("key", k).Float64("avg", avg).Msg("optimizer: auto-block created")
		}
	}
}

// EvaluateSignal runs admission-chain step 4: hard block check on either
// key, else soft confidence/quantity de-weighting scaled by avg/threshold.
func (o *Optimizer) EvaluateSignal(symbol, strategyID string, bucket models.TimeBucket, now time.Time, spreadBps float64, spreadExtremeBps float64, spreadHardBlock bool) Evaluation {
	o.mu.Lock()
	defer o.mu.Unlock()

	symKey := models.OptimizerKey{Symbol: symbol, StrategyID: strategyID, Bucket: bucket}
	stratKey := models.OptimizerKey{StrategyID: strategyID, Bucket: bucket}

	if o.blockedLocked(symKey, now) || o.blockedLocked(stratKey, now) {
		return Evaluation{Blocked: true, BlockReason: "active optimizer block"}
	}
	if spreadHardBlock && spreadBps >= spreadExtremeBps {
		return Evaluation{Blocked: true, BlockReason: "spread regime extreme"}
	}

	mult := 1.0
	if w, ok := o.windows[symKey.String()]; ok && len(w.Samples) >= o.cfg.MinSamples {
		avg := w.Average()
		if o.cfg.FeeMultipleMin > 0 && avg < o.cfg.FeeMultipleMin*1.5 && avg >= o.cfg.FeeMultipleMin {
			ratio := avg / (o.cfg.FeeMultipleMin * 1.5)
			if ratio < mult {
				mult = ratio
			}
		}
	}
	if spreadBps > 0 && spreadExtremeBps > 0 {
		spreadRatio := spreadBps / spreadExtremeBps
		if spreadRatio > 1 {
			spreadRatio = 1
		}
		penalty := 1 - spreadRatio*(1-o.cfg.SpreadPenaltyFloor)
		if penalty < mult {
			mult = penalty
		}
	}
	if mult < 0 {
		mult = 0
	}
	return Evaluation{Blocked: false, ConfidenceMult: mult, QtyMult: mult}
}

// blockedLocked reports whether key has an active (non-expired) block,
// lazily garbage-collecting it from the in-memory map if it has expired.
func (o *Optimizer) blockedLocked(key models.OptimizerKey, now time.Time) bool {
	k := key.String()
	b, ok := o.blocks[k]
	if !ok {
		return false
	}
	if !b.Active(now) {
		delete(o.blocks, k)
		_ = o.store.DeleteBlock(k)
		return false
	}
	return true
}
