// Package ingest implements the tick ingestion and live-candle aggregation
// pipeline: a single-consumer worker that drains broker ticks, updates the
// per-token LTP cache, and rolls live candles over into closed candles.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alexherrero/sherwood/backend/broker"
	"github.com/alexherrero/sherwood/backend/data"
	"github.com/alexherrero/sherwood/backend/market"
	"github.com/alexherrero/sherwood/backend/models"
	"github.com/rs/zerolog"
)

// Config holds the ingestion tunables from spec.md §6 ("tick queue has a
// hard cap", watchdog idle threshold).
type Config struct {
	Intervals     []int
	QueueCapacity int
	IdleThreshold time.Duration
}

// CandleCloseHandler receives a finalized candle the moment its bucket
// rolls over.
type CandleCloseHandler func(models.Candle)

// Ingestor is the TickIngestor: HandleTicks is the broker callback and
// must never block; Run drains the internal queue on its own goroutine.
type Ingestor struct {
	mu  sync.Mutex
	log zerolog.Logger
	cfg Config

	store data.CandleStore
	cache *data.CandleCache

	live       map[string]*models.Candle
	latestLtp  map[int64]float64
	lastTickAt map[int64]time.Time

	closeHandlers []CandleCloseHandler
	tickHandlers  []func(broker.Tick)

	queue   chan []broker.Tick
	dropped int64
}

// NewIngestor creates an Ingestor with the given candle persistence ports.
func NewIngestor(cfg Config, store data.CandleStore, cache *data.CandleCache, log zerolog.Logger) *Ingestor {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 1024
	}
	return &Ingestor{
		log:        log,
		cfg:        cfg,
		store:      store,
		cache:      cache,
		live:       make(map[string]*models.Candle),
		latestLtp:  make(map[int64]float64),
		lastTickAt: make(map[int64]time.Time),
		queue:      make(chan []broker.Tick, cfg.QueueCapacity),
	}
}

// OnClose registers a handler invoked on every candle-close event, in
// registration order, from the Run goroutine.
func (ig *Ingestor) OnClose(h CandleCloseHandler) {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	ig.closeHandlers = append(ig.closeHandlers, h)
}

// OnTick registers a handler invoked on every individual tick, after the
// LTP cache update, from the Run goroutine.
func (ig *Ingestor) OnTick(h func(broker.Tick)) {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	ig.tickHandlers = append(ig.tickHandlers, h)
}

// HandleTicks is the broker.TickHandler. It enqueues the batch without
// blocking; when the queue is full, the oldest pending batch is dropped so
// the broker's read loop is never stalled by a slow consumer.
func (ig *Ingestor) HandleTicks(batch []broker.Tick) {
	select {
	case ig.queue <- batch:
		return
	default:
	}
	select {
	case <-ig.queue:
		atomic.AddInt64(&ig.dropped, 1)
		ig.log.Warn().Msg("ingest: tick queue full, dropped oldest batch")
	default:
	}
	select {
	case ig.queue <- batch:
	default:
		atomic.AddInt64(&ig.dropped, 1)
		ig.log.Warn().Msg("ingest: tick queue full, dropped incoming batch")
	}
}

// DroppedBatches returns the cumulative count of batches dropped due to
// queue overflow.
func (ig *Ingestor) DroppedBatches() int64 {
	return atomic.LoadInt64(&ig.dropped)
}

// Run drains the tick queue on the calling goroutine until ctx is
// cancelled. There is exactly one writer per (token, interval) live
// candle because only this loop ever mutates ig.live.
func (ig *Ingestor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-ig.queue:
			for _, tick := range batch {
				ig.process(tick)
			}
		}
	}
}

func (ig *Ingestor) process(tick broker.Tick) {
	ig.mu.Lock()
	ig.latestLtp[tick.InstrumentToken] = tick.LastPrice
	ig.lastTickAt[tick.InstrumentToken] = time.Now()
	for _, interval := range ig.cfg.Intervals {
		ig.applyTick(tick, interval)
	}
	var handlers []func(broker.Tick)
	handlers = append(handlers, ig.tickHandlers...)
	ig.mu.Unlock()

	for _, h := range handlers {
		h(tick)
	}
}

func liveKey(token int64, intervalMinutes int) string {
	return fmt.Sprintf("%d:%d", token, intervalMinutes)
}

// bucketStart truncates ts to the start of its interval bucket in the
// session timezone.
func bucketStart(ts time.Time, intervalMinutes int) time.Time {
	t := ts.In(market.IST)
	minutesSinceMidnight := t.Hour()*60 + t.Minute()
	bucketMinutes := (minutesSinceMidnight / intervalMinutes) * intervalMinutes
	return time.Date(t.Year(), t.Month(), t.Day(), bucketMinutes/60, bucketMinutes%60, 0, 0, market.IST)
}

// applyTick updates (or rolls over) the live candle for (token, interval).
// Caller holds ig.mu.
func (ig *Ingestor) applyTick(tick broker.Tick, intervalMinutes int) {
	ts := tick.ExchangeTimestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	bucket := bucketStart(ts, intervalMinutes)
	key := liveKey(tick.InstrumentToken, intervalMinutes)

	live, ok := ig.live[key]
	if !ok {
		ig.live[key] = &models.Candle{
			InstrumentToken: tick.InstrumentToken,
			IntervalMinutes: intervalMinutes,
			Timestamp:       bucket,
			Open:            tick.LastPrice,
			High:            tick.LastPrice,
			Low:             tick.LastPrice,
			Close:           tick.LastPrice,
			Volume:          tick.VolumeDelta,
			Source:          models.CandleSourceLive,
		}
		return
	}

	switch {
	case bucket.After(live.Timestamp):
		closed := *live
		ig.live[key] = &models.Candle{
			InstrumentToken: tick.InstrumentToken,
			IntervalMinutes: intervalMinutes,
			Timestamp:       bucket,
			Open:            tick.LastPrice,
			High:            tick.LastPrice,
			Low:             tick.LastPrice,
			Close:           tick.LastPrice,
			Volume:          tick.VolumeDelta,
			Source:          models.CandleSourceLive,
		}
		ig.emitClose(closed)
	case bucket.Equal(live.Timestamp):
		if tick.LastPrice > live.High {
			live.High = tick.LastPrice
		}
		if tick.LastPrice < live.Low {
			live.Low = tick.LastPrice
		}
		live.Close = tick.LastPrice
		live.Volume += tick.VolumeDelta
	default:
		// Late tick for an already-closed bucket. Best-effort: the finalized
		// candle has already been upserted and handed to strategies, so it
		// is dropped rather than retroactively reopened.
		ig.log.Debug().Int64("token", tick.InstrumentToken).Time("tick_ts", ts).Msg("ingest: late tick dropped")
	}
}

// emitClose persists a finalized candle and notifies registered handlers.
// Caller holds ig.mu.
func (ig *Ingestor) emitClose(c models.Candle) {
	if err := ig.store.Upsert(c); err != nil {
		ig.log.Error().Err(err).Int64("token", c.InstrumentToken).Msg("ingest: candle upsert failed")
	}
	ig.cache.Push(c)
	for _, h := range ig.closeHandlers {
		h(c)
	}
}

// LatestLTP returns the most recent price seen for token.
func (ig *Ingestor) LatestLTP(token int64) (float64, bool) {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	p, ok := ig.latestLtp[token]
	return p, ok
}

// Watchdog periodically checks every tracked token for tick staleness
// during market hours and invokes resubscribe with the stale subset.
func (ig *Ingestor) Watchdog(ctx context.Context, tokens []int64, period time.Duration, calendar *market.Calendar, resubscribe func([]int64) error) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !calendar.IsMarketOpen(now) {
				continue
			}
			ig.mu.Lock()
			var stale []int64
			for _, tok := range tokens {
				last, ok := ig.lastTickAt[tok]
				if !ok || now.Sub(last) > ig.cfg.IdleThreshold {
					stale = append(stale, tok)
				}
			}
			ig.mu.Unlock()
			if len(stale) == 0 {
				continue
			}
			ig.log.Warn().Int("count", len(stale)).Msg("ingest: tick watchdog re-subscribing idle tokens")
			if err := resubscribe(stale); err != nil {
				ig.log.Error().Err(err).Msg("ingest: watchdog resubscribe failed")
			}
		}
	}
}
