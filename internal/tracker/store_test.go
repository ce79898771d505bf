package tracker

import (
	"math"
	"testing"
	"time"

	"github.com/adsbtools/skybridge/pkg/logger"
)

func fp(v float64) *float64 { return &v }

func pos(hex string, lat, lon float64) AircraftPosition {
	return AircraftPosition{Hex: hex, Lat: lat, Lon: lon}
}

// TestApplySnapshotReplacesState tests that a snapshot fully replaces the
// tracked set, including aircraft absent from the new snapshot.
func TestApplySnapshotReplacesState(t *testing.T) {
	s := NewStore(logger.NewNop())

	s.ApplySnapshot([]AircraftPosition{pos("ABC123", 43.0, -79.0), pos("DEF456", 44.0, -80.0)})
	if s.Count() != 2 {
		t.Fatalf("Expected 2 aircraft after first snapshot, got %d", s.Count())
	}

	s.ApplySnapshot([]AircraftPosition{pos("ABC123", 43.1, -79.1)})
	if s.Count() != 1 {
		t.Fatalf("Expected 1 aircraft after second snapshot, got %d", s.Count())
	}
	if _, ok := s.Target("DEF456"); ok {
		t.Error("Expected DEF456 to be dropped by the replacing snapshot")
	}

	// Snapshot entries anchor previous == target, no stale blending
	prev, _ := s.Previous("ABC123")
	target, _ := s.Target("ABC123")
	if prev != target {
		t.Errorf("Expected previous == target after snapshot, got prev=%+v target=%+v", prev, target)
	}
}

// TestApplySnapshotSkipsInvalid tests that entries with missing identifiers
// or non-finite coordinates are dropped rather than stored.
func TestApplySnapshotSkipsInvalid(t *testing.T) {
	s := NewStore(logger.NewNop())

	s.ApplySnapshot([]AircraftPosition{
		pos("ABC123", 43.0, -79.0),
		pos("", 44.0, -80.0),
		pos("BAD001", math.NaN(), -80.0),
		pos("BAD002", 44.0, math.Inf(1)),
	})

	if s.Count() != 1 {
		t.Fatalf("Expected only the valid entry to survive, got %d", s.Count())
	}
	if _, ok := s.Target("ABC123"); !ok {
		t.Error("Expected valid entry to be stored")
	}
}

// TestApplyDeltaPreviousAnchor tests that each update shifts the prior
// target into the previous slot, and that a newly seen aircraft anchors
// previous to its own first position.
func TestApplyDeltaPreviousAnchor(t *testing.T) {
	s := NewStore(logger.NewNop())

	s.ApplyDelta([]AircraftPosition{pos("ABC123", 43.0, -79.0)}, nil)

	prev, _ := s.Previous("ABC123")
	if prev.Lat != 43.0 {
		t.Errorf("Expected new aircraft to anchor at its own position, got lat %f", prev.Lat)
	}

	s.ApplyDelta([]AircraftPosition{pos("ABC123", 43.5, -79.5)}, nil)

	prev, _ = s.Previous("ABC123")
	target, _ := s.Target("ABC123")
	if prev.Lat != 43.0 || target.Lat != 43.5 {
		t.Errorf("Expected previous=43.0 target=43.5, got previous=%f target=%f", prev.Lat, target.Lat)
	}
}

// TestApplyDeltaRemoval tests removal semantics.
func TestApplyDeltaRemoval(t *testing.T) {
	t.Run("Removes all per-aircraft state", func(t *testing.T) {
		s := NewStore(logger.NewNop())
		s.ApplyDelta([]AircraftPosition{pos("ABC123", 43.0, -79.0)}, nil)

		s.ApplyDelta(nil, []string{"abc123"})

		if _, ok := s.Target("ABC123"); ok {
			t.Error("Expected target to be removed")
		}
		if _, ok := s.Previous("ABC123"); ok {
			t.Error("Expected previous anchor to be removed")
		}
		if _, ok := s.LastUpdate("ABC123"); ok {
			t.Error("Expected last update time to be removed")
		}
	})

	t.Run("Removal wins over update in same delta", func(t *testing.T) {
		s := NewStore(logger.NewNop())
		s.ApplyDelta([]AircraftPosition{pos("ABC123", 43.0, -79.0)}, nil)

		var seen []string
		s.SetCommitListener(func(p AircraftPosition, _ time.Time) {
			seen = append(seen, p.Hex)
		})

		s.ApplyDelta([]AircraftPosition{
			pos("ABC123", 43.5, -79.5),
			pos("DEF456", 44.0, -80.0),
		}, []string{"abc123"})

		if _, ok := s.Target("ABC123"); ok {
			t.Error("Expected removal to win when update and removal share an identifier")
		}
		// The retired aircraft must not reach the listener either, or a
		// recorder would persist a point for an aircraft that no longer exists
		if len(seen) != 1 || seen[0] != "DEF456" {
			t.Errorf("Expected listener to see only the surviving commit, got %v", seen)
		}
	})

	t.Run("Removing unknown identifier is a no-op", func(t *testing.T) {
		s := NewStore(logger.NewNop())
		s.ApplyDelta([]AircraftPosition{pos("ABC123", 43.0, -79.0)}, nil)

		s.ApplyDelta(nil, []string{"UNKNOWN"})

		if s.Count() != 1 {
			t.Errorf("Expected unrelated aircraft to survive, got count %d", s.Count())
		}
	})
}

// TestHexNormalization tests that lookups and updates are case-insensitive
// through the canonical key.
func TestHexNormalization(t *testing.T) {
	s := NewStore(logger.NewNop())

	s.ApplyDelta([]AircraftPosition{pos("abc123", 43.0, -79.0)}, nil)
	s.ApplyDelta([]AircraftPosition{pos("ABC123", 43.5, -79.5)}, nil)

	if s.Count() != 1 {
		t.Fatalf("Expected one aircraft regardless of casing, got %d", s.Count())
	}

	target, ok := s.Target("aBc123")
	if !ok {
		t.Fatal("Expected case-insensitive lookup to succeed")
	}
	if target.Hex != "ABC123" {
		t.Errorf("Expected stored hex to be canonical, got %q", target.Hex)
	}
}

// TestClear tests that Clear discards everything at once.
func TestClear(t *testing.T) {
	s := NewStore(logger.NewNop())
	s.ApplySnapshot([]AircraftPosition{pos("ABC123", 43.0, -79.0), pos("DEF456", 44.0, -80.0)})

	s.Clear()

	if s.Count() != 0 {
		t.Errorf("Expected empty store after Clear, got %d", s.Count())
	}
	if _, ok := s.Previous("ABC123"); ok {
		t.Error("Expected previous anchors to be cleared")
	}
}

// TestCommitListener tests that the listener observes every committed
// position but never invalid ones.
func TestCommitListener(t *testing.T) {
	s := NewStore(logger.NewNop())

	var seen []string
	s.SetCommitListener(func(p AircraftPosition, committedAt time.Time) {
		seen = append(seen, p.Hex)
		if committedAt.IsZero() {
			t.Error("Expected non-zero commit time")
		}
	})

	s.ApplyDelta([]AircraftPosition{
		pos("ABC123", 43.0, -79.0),
		pos("BAD001", math.NaN(), 0),
	}, nil)

	if len(seen) != 1 || seen[0] != "ABC123" {
		t.Errorf("Expected listener to see only the valid commit, got %v", seen)
	}
}

// TestForEach tests the iteration contract used by the frame loop.
func TestForEach(t *testing.T) {
	s := NewStore(logger.NewNop())
	fixed := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	s.ApplyDelta([]AircraftPosition{pos("ABC123", 43.0, -79.0)}, nil)
	s.ApplyDelta([]AircraftPosition{pos("ABC123", 43.5, -79.5)}, nil)

	calls := 0
	s.ForEach(func(hex string, previous, target AircraftPosition, committedAt time.Time) {
		calls++
		if hex != "ABC123" {
			t.Errorf("Unexpected hex %q", hex)
		}
		if previous.Lat != 43.0 || target.Lat != 43.5 {
			t.Errorf("Expected previous=43.0 target=43.5, got %f and %f", previous.Lat, target.Lat)
		}
		if !committedAt.Equal(fixed) {
			t.Errorf("Expected commit time %v, got %v", fixed, committedAt)
		}
	})

	if calls != 1 {
		t.Errorf("Expected 1 iteration, got %d", calls)
	}
}
