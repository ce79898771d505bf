package tracker

import (
	"sync"
	"time"

	"github.com/adsbtools/skybridge/pkg/logger"
)

// CommitListener is notified after each position is committed to the store.
// Used to hook track history persistence into the ingestion path.
type CommitListener func(pos AircraftPosition, committedAt time.Time)

// Store maintains the committed position state for all tracked aircraft:
// the current target, the previous target it was reached from, and the
// wall-clock time the target was committed. All three maps are keyed by
// canonical hex and are mutated together so that per-aircraft state is
// never partially present.
type Store struct {
	mu         sync.RWMutex
	target     map[string]AircraftPosition
	previous   map[string]AircraftPosition
	lastUpdate map[string]time.Time
	listener   CommitListener
	logger     *logger.Logger

	// Injectable clock for deterministic tests
	now func() time.Time
}

// NewStore creates a new position store
func NewStore(log *logger.Logger) *Store {
	return &Store{
		target:     make(map[string]AircraftPosition),
		previous:   make(map[string]AircraftPosition),
		lastUpdate: make(map[string]time.Time),
		logger:     log.Named("position-store"),
		now:        time.Now,
	}
}

// SetCommitListener registers a listener invoked for every committed
// position. Must be called before ingestion starts.
func (s *Store) SetCommitListener(fn CommitListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = fn
}

// ApplySnapshot atomically replaces all tracked state with the given
// full-state batch. Prior interpolation anchors are discarded before the
// new entries are applied, so pre- and post-snapshot aircraft never mix.
// Entries with non-finite coordinates are silently skipped.
func (s *Store) ApplySnapshot(entries []AircraftPosition) {
	now := s.now()

	s.mu.Lock()
	s.target = make(map[string]AircraftPosition, len(entries))
	s.previous = make(map[string]AircraftPosition, len(entries))
	s.lastUpdate = make(map[string]time.Time, len(entries))

	skipped := 0
	for _, entry := range entries {
		if !entry.Valid() {
			skipped++
			continue
		}
		entry.Hex = CanonicalHex(entry.Hex)
		s.target[entry.Hex] = entry
		s.previous[entry.Hex] = entry
		s.lastUpdate[entry.Hex] = now
	}
	listener := s.listener
	committed := make([]AircraftPosition, 0, len(s.target))
	for _, p := range s.target {
		committed = append(committed, p)
	}
	s.mu.Unlock()

	if skipped > 0 {
		s.logger.Debug("Skipped snapshot entries with invalid coordinates",
			logger.Int("skipped", skipped))
	}
	s.logger.Debug("Applied position snapshot",
		logger.Int("aircraft_count", len(committed)))

	if listener != nil {
		for _, p := range committed {
			listener(p, now)
		}
	}
}

// ApplyDelta applies an incremental batch of updates and removals.
// For each valid update the current target becomes the previous anchor
// (or the update itself for newly seen aircraft), so interpolation always
// blends from the last real observation. Removal deletes all per-aircraft
// state together. If the same identifier appears both updated and removed
// within one delta, removal wins: the update is neither committed nor
// reported to the commit listener.
func (s *Store) ApplyDelta(updates []AircraftPosition, removed []string) {
	now := s.now()

	removedSet := make(map[string]struct{}, len(removed))
	for _, hex := range removed {
		removedSet[CanonicalHex(hex)] = struct{}{}
	}

	s.mu.Lock()
	skipped := 0
	committed := make([]AircraftPosition, 0, len(updates))
	for _, update := range updates {
		if !update.Valid() {
			skipped++
			continue
		}
		update.Hex = CanonicalHex(update.Hex)
		if _, gone := removedSet[update.Hex]; gone {
			continue
		}
		if current, ok := s.target[update.Hex]; ok {
			s.previous[update.Hex] = current
		} else {
			s.previous[update.Hex] = update
		}
		s.target[update.Hex] = update
		s.lastUpdate[update.Hex] = now
		committed = append(committed, update)
	}

	for hex := range removedSet {
		s.deleteLocked(hex)
	}
	listener := s.listener
	s.mu.Unlock()

	if skipped > 0 {
		s.logger.Debug("Skipped delta updates with invalid coordinates",
			logger.Int("skipped", skipped))
	}

	if listener != nil {
		for _, p := range committed {
			listener(p, now)
		}
	}
}

// deleteLocked removes all state for the given hex. Caller must hold the lock.
func (s *Store) deleteLocked(hex string) {
	delete(s.target, hex)
	delete(s.previous, hex)
	delete(s.lastUpdate, hex)
}

// Clear discards all tracked state. Called on upstream disconnect: the
// live set fails safe to empty rather than going stale, and a fresh
// snapshot is expected after reconnection.
func (s *Store) Clear() {
	s.mu.Lock()
	count := len(s.target)
	s.target = make(map[string]AircraftPosition)
	s.previous = make(map[string]AircraftPosition)
	s.lastUpdate = make(map[string]time.Time)
	s.mu.Unlock()

	if count > 0 {
		s.logger.Info("Cleared position store", logger.Int("aircraft_count", count))
	}
}

// Target returns the committed target position for the given identifier
func (s *Store) Target(hex string) (AircraftPosition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.target[CanonicalHex(hex)]
	return pos, ok
}

// Previous returns the previous interpolation anchor for the given identifier
func (s *Store) Previous(hex string) (AircraftPosition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.previous[CanonicalHex(hex)]
	return pos, ok
}

// LastUpdate returns the time the current target was committed
func (s *Store) LastUpdate(hex string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.lastUpdate[CanonicalHex(hex)]
	return t, ok
}

// Count returns the number of tracked aircraft
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.target)
}

// ForEach invokes fn for every tracked aircraft with its previous anchor,
// current target and commit time. The callback must not mutate the store.
func (s *Store) ForEach(fn func(hex string, previous, target AircraftPosition, committedAt time.Time)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for hex, target := range s.target {
		fn(hex, s.previous[hex], target, s.lastUpdate[hex])
	}
}
