package tracker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adsbtools/skybridge/internal/config"
	"github.com/adsbtools/skybridge/pkg/logger"
)

// Engine produces a smoothly moving displayed position for each tracked
// aircraft between discrete network updates. A ticker-driven frame loop
// recomputes the displayed set at the configured frame interval, easing
// each aircraft from its previous anchor toward the committed target.
//
// The displayed map is the high-frequency write path: readers take
// point-in-time snapshots under a read lock and no notification fires per
// frame. Only the aggregate count is exported through an atomic, the
// low-frequency path consumers may poll.
type Engine struct {
	store    *Store
	enabled  bool
	duration time.Duration
	frame    time.Duration
	logger   *logger.Logger

	mu        sync.RWMutex
	displayed map[string]DisplayedPosition
	count     atomic.Int64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Injectable clock for deterministic tests
	now func() time.Time
}

// NewEngine creates a new interpolation engine over the given store
func NewEngine(store *Store, cfg config.InterpolationConfig, log *logger.Logger) *Engine {
	return &Engine{
		store:     store,
		enabled:   cfg.Enabled,
		duration:  cfg.InterpolationDuration(),
		frame:     cfg.FrameInterval(),
		logger:    log.Named("interp-engine"),
		displayed: make(map[string]DisplayedPosition),
		stopCh:    make(chan struct{}),
		now:       time.Now,
	}
}

// Start starts the frame loop
func (e *Engine) Start(ctx context.Context) error {
	e.logger.Info("Starting interpolation engine",
		logger.Bool("enabled", e.enabled),
		logger.Duration("duration", e.duration),
		logger.Duration("frame_interval", e.frame),
	)

	e.wg.Add(1)
	go e.frameLoop(ctx)
	return nil
}

// Stop cancels the frame loop. Safe to call more than once; no frame
// callback runs after Stop returns.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
	e.logger.Info("Interpolation engine stopped")
}

// frameLoop recomputes the displayed set once per frame interval
func (e *Engine) frameLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.frame)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.step(e.now())
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// step computes one frame: for every tracked aircraft, blend the previous
// anchor toward the target using the eased elapsed fraction, then swap in
// the freshly built displayed set. Rebuilding from the store each frame
// means removals and snapshot replacement propagate atomically.
func (e *Engine) step(now time.Time) {
	next := make(map[string]DisplayedPosition, e.store.Count())

	e.store.ForEach(func(hex string, previous, target AircraftPosition, committedAt time.Time) {
		if !e.enabled {
			next[hex] = DisplayedPosition{
				AircraftPosition: target,
				Interpolated:     false,
				LastUpdate:       committedAt,
			}
			return
		}

		elapsed := now.Sub(committedAt)
		t := float64(elapsed) / float64(e.duration)
		if t > 1 {
			t = 1
		} else if t < 0 {
			t = 0
		}
		eased := easeOutCubic(t)

		next[hex] = DisplayedPosition{
			AircraftPosition: interpolate(previous, target, eased),
			Interpolated:     true,
			LastUpdate:       committedAt,
		}
	})

	e.mu.Lock()
	e.displayed = next
	e.mu.Unlock()
	e.count.Store(int64(len(next)))
}

// Displayed returns the current displayed position for one aircraft
func (e *Engine) Displayed(hex string) (DisplayedPosition, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pos, ok := e.displayed[CanonicalHex(hex)]
	return pos, ok
}

// DisplayedAll returns a snapshot of all displayed positions
func (e *Engine) DisplayedAll() []DisplayedPosition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]DisplayedPosition, 0, len(e.displayed))
	for _, pos := range e.displayed {
		out = append(out, pos)
	}
	return out
}

// Count returns the number of displayed aircraft without taking the map lock
func (e *Engine) Count() int {
	return int(e.count.Load())
}

// ApplySnapshot ingests a full-state batch and immediately recomputes the
// displayed set so a freshly subscribed consumer never observes a stale mix
func (e *Engine) ApplySnapshot(entries []AircraftPosition) {
	e.store.ApplySnapshot(entries)
	e.step(e.now())
}

// ApplyDelta ingests an incremental batch of updates and removals
func (e *Engine) ApplyDelta(updates []AircraftPosition, removed []string) {
	e.store.ApplyDelta(updates, removed)
	e.step(e.now())
}

// Clear discards all tracked and displayed state. Called on upstream
// disconnect; this is a normal transition, not an error.
func (e *Engine) Clear() {
	e.store.Clear()

	e.mu.Lock()
	e.displayed = make(map[string]DisplayedPosition)
	e.mu.Unlock()
	e.count.Store(0)
}
