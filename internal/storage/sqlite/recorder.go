package sqlite

import (
	"context"
	"sync"
	"time"

	"github.com/adsbtools/skybridge/internal/tracker"
	"github.com/adsbtools/skybridge/pkg/logger"
)

// flushInterval controls how often buffered positions are written out
const flushInterval = 1 * time.Second

// recorderBufferSize bounds the in-flight commit queue; commits beyond it
// are dropped rather than blocking the ingestion path
const recorderBufferSize = 4096

// Recorder buffers committed positions from the ingestion path and writes
// them to storage in periodic batches, keeping SQLite writes off the
// high-frequency delta path
type Recorder struct {
	storage  *PositionStorage
	logger   *logger.Logger
	ch       chan PositionRecord
	dropped  int
	mu       sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRecorder creates a new batching recorder over the given storage
func NewRecorder(storage *PositionStorage, log *logger.Logger) *Recorder {
	return &Recorder{
		storage: storage,
		logger:  log.Named("recorder"),
		ch:      make(chan PositionRecord, recorderBufferSize),
		stopCh:  make(chan struct{}),
	}
}

// Start starts the flush loop
func (r *Recorder) Start(ctx context.Context) error {
	r.wg.Add(1)
	go r.flushLoop(ctx)
	return nil
}

// Stop flushes remaining records and stops the loop
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

// Record is the tracker commit listener: it enqueues one committed
// position for persistence. Never blocks; when the buffer is full the
// record is dropped and counted.
func (r *Recorder) Record(pos tracker.AircraftPosition, committedAt time.Time) {
	rec := PositionRecord{
		Hex:       pos.Hex,
		Lat:       pos.Lat,
		Lon:       pos.Lon,
		AltBaro:   pos.AltBaro,
		Track:     pos.Track,
		GS:        pos.GS,
		VertRate:  pos.VertRate,
		Timestamp: committedAt,
	}

	select {
	case r.ch <- rec:
	default:
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
	}
}

func (r *Recorder) flushLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.flush()
		case <-r.stopCh:
			r.flush()
			return
		case <-ctx.Done():
			r.flush()
			return
		}
	}
}

// flush drains the queue and writes one batch
func (r *Recorder) flush() {
	var batch []PositionRecord
	for {
		select {
		case rec := <-r.ch:
			batch = append(batch, rec)
		default:
			goto drained
		}
	}
drained:
	if len(batch) == 0 {
		return
	}

	if err := r.storage.InsertBatch(batch); err != nil {
		r.logger.Error("Failed to persist position batch",
			logger.Error(err),
			logger.Int("batch_size", len(batch)))
		return
	}

	r.mu.Lock()
	dropped := r.dropped
	r.dropped = 0
	r.mu.Unlock()

	if dropped > 0 {
		r.logger.Warn("Dropped committed positions under backlog",
			logger.Int("dropped", dropped))
	}
}
