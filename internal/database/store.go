package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"aquamon/internal/config"
	"aquamon/internal/models"
)

// DefaultLatestLimit is the number of rows returned by LatestReadings when no
// positive limit is given
const DefaultLatestLimit = 60

// Store is the durable reading table plus the setpoints singleton
type Store interface {
	// InsertReading appends one reading and returns its row id
	InsertReading(ctx context.Context, r models.Reading) (int64, error)
	// InsertReadings appends a batch in one transaction, skipping readings
	// whose timestamp is already stored, and returns how many were written
	InsertReadings(ctx context.Context, readings []models.Reading) (int, error)
	// LatestReadings returns up to limit of the newest readings, oldest first
	LatestReadings(ctx context.Context, limit int) ([]models.Reading, error)
	// ReadingsInRange returns readings with start <= timestamp <= end in
	// ascending order. Unparseable boundaries yield an empty result.
	ReadingsInRange(ctx context.Context, start, end string) ([]models.Reading, error)
	// GetSetpoints returns the singleton setpoints row
	GetSetpoints(ctx context.Context) (models.Setpoints, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the configured backend and initializes its schema
func Open(ctx context.Context, cfg config.DatabaseConfig, seed models.Setpoints) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite3":
		return NewDB(cfg.Path, seed)
	case "postgres":
		return NewPostgresDB(ctx, cfg.PostgresURL, seed)
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}
}

// boundaryFormats are the accepted encodings of a range boundary
var boundaryFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05Z",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseBoundary parses a caller-supplied range boundary. Values without a
// zone are taken as UTC; a bare date means midnight of that day.
func ParseBoundary(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, format := range boundaryFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// rangeMillis converts string boundaries to Unix milliseconds. ok is false
// when either boundary is unparseable or start is after end.
func rangeMillis(start, end string) (from, to int64, ok bool) {
	s, okStart := ParseBoundary(start)
	e, okEnd := ParseBoundary(end)
	if !okStart || !okEnd || s.After(e) {
		return 0, 0, false
	}
	return s.UnixMilli(), e.UnixMilli(), true
}

// reverse flips a newest-first slice into charting order
func reverse(readings []models.Reading) {
	for i, j := 0, len(readings)-1; i < j; i, j = i+1, j-1 {
		readings[i], readings[j] = readings[j], readings[i]
	}
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
