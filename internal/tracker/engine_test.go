package tracker

import (
	"math"
	"testing"
	"time"

	"github.com/adsbtools/skybridge/internal/config"
	"github.com/adsbtools/skybridge/pkg/logger"
)

func newTestEngine(t *testing.T, enabled bool) (*Engine, *Store, *time.Time) {
	t.Helper()

	store := NewStore(logger.NewNop())
	engine := NewEngine(store, config.InterpolationConfig{
		Enabled:         enabled,
		DurationMs:      1000,
		FrameIntervalMs: 16,
	}, logger.NewNop())

	// Shared manual clock for commits and frames
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	engine.now = func() time.Time { return now }

	return engine, store, &now
}

// TestEngineFreshUpdateShowsPrevious tests that immediately after a commit
// the displayed position still sits at the previous anchor.
func TestEngineFreshUpdateShowsPrevious(t *testing.T) {
	engine, _, _ := newTestEngine(t, true)

	engine.ApplyDelta([]AircraftPosition{pos("ABC123", 43.0, -79.0)}, nil)
	engine.ApplyDelta([]AircraftPosition{pos("ABC123", 44.0, -78.0)}, nil)

	got, ok := engine.Displayed("ABC123")
	if !ok {
		t.Fatal("Expected displayed position")
	}
	if got.Lat != 43.0 || got.Lon != -79.0 {
		t.Errorf("Expected displayed position at previous anchor, got (%f, %f)", got.Lat, got.Lon)
	}
	if !got.Interpolated {
		t.Error("Expected position to be marked interpolated")
	}
}

// TestEngineEasedMidpoint tests the displayed value halfway through the
// interpolation window: eased fraction 1-(1-0.5)^3 = 0.875.
func TestEngineEasedMidpoint(t *testing.T) {
	engine, _, now := newTestEngine(t, true)

	engine.ApplyDelta([]AircraftPosition{pos("ABC123", 43.0, -79.0)}, nil)
	engine.ApplyDelta([]AircraftPosition{pos("ABC123", 44.0, -78.0)}, nil)

	*now = now.Add(500 * time.Millisecond)
	engine.step(*now)

	got, ok := engine.Displayed("ABC123")
	if !ok {
		t.Fatal("Expected displayed position")
	}
	if math.Abs(got.Lat-43.875) > 1e-9 {
		t.Errorf("Expected latitude 43.875 at eased midpoint, got %f", got.Lat)
	}
	if math.Abs(got.Lon+78.125) > 1e-9 {
		t.Errorf("Expected longitude -78.125 at eased midpoint, got %f", got.Lon)
	}
}

// TestEngineWindowElapsed tests that past the window the displayed value
// rests exactly on the target.
func TestEngineWindowElapsed(t *testing.T) {
	engine, _, now := newTestEngine(t, true)

	engine.ApplyDelta([]AircraftPosition{pos("ABC123", 43.0, -79.0)}, nil)
	engine.ApplyDelta([]AircraftPosition{pos("ABC123", 44.0, -78.0)}, nil)

	*now = now.Add(2 * time.Second)
	engine.step(*now)

	got, _ := engine.Displayed("ABC123")
	if got.Lat != 44.0 || got.Lon != -78.0 {
		t.Errorf("Expected displayed position at target after window, got (%f, %f)", got.Lat, got.Lon)
	}
}

// TestEngineRemoval tests that a removed aircraft disappears from the
// displayed set on the same ingestion step.
func TestEngineRemoval(t *testing.T) {
	engine, _, _ := newTestEngine(t, true)

	engine.ApplySnapshot([]AircraftPosition{pos("ABC123", 43.0, -79.0), pos("DEF456", 44.0, -80.0)})
	engine.ApplyDelta(nil, []string{"ABC123"})

	if _, ok := engine.Displayed("ABC123"); ok {
		t.Error("Expected removed aircraft to leave the displayed set")
	}
	if _, ok := engine.Displayed("DEF456"); !ok {
		t.Error("Expected unrelated aircraft to remain displayed")
	}
	if engine.Count() != 1 {
		t.Errorf("Expected count 1, got %d", engine.Count())
	}
}

// TestEngineClear tests the disconnect path: the displayed set empties
// immediately and repopulates from the next snapshot.
func TestEngineClear(t *testing.T) {
	engine, _, _ := newTestEngine(t, true)

	engine.ApplySnapshot([]AircraftPosition{pos("ABC123", 43.0, -79.0)})
	engine.Clear()

	if engine.Count() != 0 {
		t.Fatalf("Expected empty displayed set after Clear, got %d", engine.Count())
	}
	if _, ok := engine.Displayed("ABC123"); ok {
		t.Error("Expected no displayed positions after Clear")
	}

	engine.ApplySnapshot([]AircraftPosition{pos("DEF456", 44.0, -80.0)})
	if engine.Count() != 1 {
		t.Errorf("Expected displayed set to repopulate from snapshot, got %d", engine.Count())
	}
}

// TestEngineDisabled tests passthrough mode: targets are displayed as-is
// with no easing and no interpolated flag.
func TestEngineDisabled(t *testing.T) {
	engine, _, now := newTestEngine(t, false)

	engine.ApplyDelta([]AircraftPosition{pos("ABC123", 43.0, -79.0)}, nil)
	engine.ApplyDelta([]AircraftPosition{pos("ABC123", 44.0, -78.0)}, nil)

	*now = now.Add(100 * time.Millisecond)
	engine.step(*now)

	got, ok := engine.Displayed("ABC123")
	if !ok {
		t.Fatal("Expected displayed position")
	}
	if got.Lat != 44.0 || got.Lon != -78.0 {
		t.Errorf("Expected raw target in passthrough mode, got (%f, %f)", got.Lat, got.Lon)
	}
	if got.Interpolated {
		t.Error("Expected interpolated flag to be false in passthrough mode")
	}
}

// TestEngineSnapshotResetsAnchors tests that aircraft present before and
// after a snapshot do not blend across it.
func TestEngineSnapshotResetsAnchors(t *testing.T) {
	engine, store, _ := newTestEngine(t, true)

	engine.ApplyDelta([]AircraftPosition{pos("ABC123", 43.0, -79.0)}, nil)
	engine.ApplySnapshot([]AircraftPosition{pos("ABC123", 50.0, -70.0)})

	prev, _ := store.Previous("ABC123")
	if prev.Lat != 50.0 {
		t.Errorf("Expected snapshot to reset the previous anchor, got lat %f", prev.Lat)
	}

	got, _ := engine.Displayed("ABC123")
	if got.Lat != 50.0 {
		t.Errorf("Expected displayed position at the snapshot value, got %f", got.Lat)
	}
}
