package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/adsbtools/skybridge/internal/tracker"
	"github.com/adsbtools/skybridge/pkg/logger"
)

// PositionRecord is one persisted track point
type PositionRecord struct {
	ID        int64     `json:"id"`
	Hex       string    `json:"hex"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	AltBaro   *float64  `json:"alt,omitempty"`
	Track     *float64  `json:"track,omitempty"`
	GS        *float64  `json:"gs,omitempty"`
	VertRate  *float64  `json:"vr,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PositionStorage is a SQLite-based store for aircraft track history
type PositionStorage struct {
	db           *sql.DB
	logger       *logger.Logger
	maxPositions int
}

// NewPositionStorage creates a new SQLite-based position storage
func NewPositionStorage(dbPath string, maxPositions int, log *logger.Logger) (*PositionStorage, error) {
	storageLogger := log.Named("sqlite")

	storageLogger.Info("Initializing SQLite storage", logger.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Set pragmas for better performance and concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := initDatabase(db); err != nil {
		db.Close()
		return nil, err
	}

	return &PositionStorage{
		db:           db,
		logger:       storageLogger,
		maxPositions: maxPositions,
	}, nil
}

// initDatabase initializes the database schema
func initDatabase(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS positions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			hex TEXT NOT NULL,
			lat REAL NOT NULL,
			lon REAL NOT NULL,
			alt REAL,
			track REAL,
			gs REAL,
			vr REAL,
			timestamp TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create positions table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_positions_hex_timestamp
		ON positions (hex, timestamp DESC)
	`)
	if err != nil {
		return fmt.Errorf("failed to create positions index: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *PositionStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetDB returns the database connection
func (s *PositionStorage) GetDB() *sql.DB {
	return s.db
}

// InsertBatch persists a batch of committed positions in one transaction
func (s *PositionStorage) InsertBatch(records []PositionRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO positions (hex, lat, lon, alt, track, gs, vr, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.Exec(rec.Hex, rec.Lat, rec.Lon,
			rec.AltBaro, rec.Track, rec.GS, rec.VertRate, rec.Timestamp.UTC()); err != nil {
			return fmt.Errorf("failed to insert position for %s: %w", rec.Hex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// History returns the most recent persisted positions for one aircraft in
// descending timestamp order. The limit is clamped to the configured
// API maximum; limit <= 0 means the maximum.
func (s *PositionStorage) History(hex string, limit int) ([]PositionRecord, error) {
	if limit <= 0 || limit > s.maxPositions {
		limit = s.maxPositions
	}

	rows, err := s.db.Query(`
		SELECT id, hex, lat, lon, alt, track, gs, vr, timestamp
		FROM positions
		WHERE hex = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, tracker.CanonicalHex(hex), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query position history: %w", err)
	}
	defer rows.Close()

	var records []PositionRecord
	for rows.Next() {
		var rec PositionRecord
		if err := rows.Scan(&rec.ID, &rec.Hex, &rec.Lat, &rec.Lon,
			&rec.AltBaro, &rec.Track, &rec.GS, &rec.VertRate, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan position row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate position rows: %w", err)
	}

	return records, nil
}

// PruneBefore deletes persisted positions older than the cutoff and
// returns the number of rows removed
func (s *PositionStorage) PruneBefore(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM positions WHERE timestamp < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune positions: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if rows > 0 {
		s.logger.Debug("Pruned position history",
			logger.Int64("rows", rows),
			logger.Time("cutoff", cutoff))
	}
	return rows, nil
}
