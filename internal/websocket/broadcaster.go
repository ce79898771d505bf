package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/adsbtools/skybridge/internal/tracker"
	"github.com/adsbtools/skybridge/pkg/logger"
)

// ChangeDetector tracks committed positions between broadcast cycles and
// produces the delta against the previously broadcast set
type ChangeDetector struct {
	previous map[string]tracker.AircraftPosition
}

// NewChangeDetector creates a new change detector
func NewChangeDetector() *ChangeDetector {
	return &ChangeDetector{
		previous: make(map[string]tracker.AircraftPosition),
	}
}

// Diff compares the current committed set against the previous broadcast
// and returns the updated entries and removed identifiers
func (cd *ChangeDetector) Diff(current map[string]tracker.AircraftPosition) (updates []tracker.AircraftPosition, removed []string) {
	for hex, pos := range current {
		prev, exists := cd.previous[hex]
		if !exists || positionChanged(prev, pos) {
			updates = append(updates, pos)
		}
	}

	for hex := range cd.previous {
		if _, exists := current[hex]; !exists {
			removed = append(removed, hex)
		}
	}

	cd.previous = current
	return updates, removed
}

// Reset forgets the previous broadcast state, forcing the next diff to
// re-emit everything
func (cd *ChangeDetector) Reset() {
	cd.previous = make(map[string]tracker.AircraftPosition)
}

// positionChanged reports whether any field differs between two committed
// positions. Any change counts, no thresholds.
func positionChanged(prev, current tracker.AircraftPosition) bool {
	if prev.Lat != current.Lat || prev.Lon != current.Lon {
		return true
	}
	if !floatPtrEqual(prev.AltBaro, current.AltBaro) {
		return true
	}
	if !floatPtrEqual(prev.Track, current.Track) {
		return true
	}
	if !floatPtrEqual(prev.GS, current.GS) {
		return true
	}
	if !floatPtrEqual(prev.VertRate, current.VertRate) {
		return true
	}
	return false
}

func floatPtrEqual(a, b *float64) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

// Broadcaster periodically diffs the committed position set and pushes
// delta messages to all downstream clients. The protocol carries committed
// targets, not displayed values: each consumer runs its own interpolation.
type Broadcaster struct {
	server   *Server
	store    *tracker.Store
	interval time.Duration
	detector *ChangeDetector
	logger   *logger.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewBroadcaster creates a new delta broadcaster over the given store
func NewBroadcaster(server *Server, store *tracker.Store, interval time.Duration, log *logger.Logger) *Broadcaster {
	return &Broadcaster{
		server:   server,
		store:    store,
		interval: interval,
		detector: NewChangeDetector(),
		logger:   log.Named("broadcaster"),
		stopCh:   make(chan struct{}),
	}
}

// Start starts the broadcast loop
func (b *Broadcaster) Start(ctx context.Context) error {
	b.logger.Info("Starting delta broadcaster", logger.Duration("interval", b.interval))

	b.wg.Add(1)
	go b.loop(ctx)
	return nil
}

// Stop stops the broadcast loop
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
	b.wg.Wait()
	b.logger.Info("Delta broadcaster stopped")
}

func (b *Broadcaster) loop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.broadcastDelta()
		case <-b.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// broadcastDelta diffs the committed set against the last broadcast and
// pushes an update when anything changed
func (b *Broadcaster) broadcastDelta() {
	current := make(map[string]tracker.AircraftPosition, b.store.Count())
	b.store.ForEach(func(hex string, _, target tracker.AircraftPosition, _ time.Time) {
		current[hex] = target
	})

	updates, removed := b.detector.Diff(current)
	if len(updates) == 0 && len(removed) == 0 {
		return
	}

	b.server.Broadcast(NewUpdateMessage(updates, removed))
	b.logger.Debug("Broadcast position delta",
		logger.Int("updated", len(updates)),
		logger.Int("removed", len(removed)))
}
