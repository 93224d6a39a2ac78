package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"aquamon/internal/models"
)

// DB wraps the SQLite connection
type DB struct {
	conn *sql.DB
	seed models.Setpoints
	now  func() time.Time
}

// NewDB opens the SQLite database at dbPath and initializes the schema.
// seed is written to the setpoints table only when the singleton is missing.
func NewDB(dbPath string, seed models.Setpoints) (*DB, error) {
	dsn := dbPath
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_journal_mode=WAL"
	}

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn, seed: seed, now: time.Now}

	if err := db.Migrate(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// GetConn returns the underlying database connection
func (db *DB) GetConn() *sql.DB {
	return db.conn
}

// Ping verifies the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Migrate creates tables and index if they don't exist and seeds the
// setpoints singleton. Safe to run any number of times.
func (db *DB) Migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		temperature REAL,
		level REAL,
		pump_status INTEGER NOT NULL DEFAULT 0,
		heater_status INTEGER NOT NULL DEFAULT 0,
		timestamp INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_readings_timestamp ON readings(timestamp);

	CREATE TABLE IF NOT EXISTS setpoints (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		temp_min REAL NOT NULL DEFAULT 20.0,
		temp_max REAL NOT NULL DEFAULT 30.0,
		level_min INTEGER NOT NULL DEFAULT 60,
		level_max INTEGER NOT NULL DEFAULT 90,
		updated_at INTEGER NOT NULL
	);
	`

	if _, err := db.conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT OR IGNORE INTO setpoints (id, temp_min, temp_max, level_min, level_max, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
	`, db.seed.Temp.Min, db.seed.Temp.Max, db.seed.Level.Min, db.seed.Level.Max, db.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to seed setpoints: %w", err)
	}

	return nil
}

// InsertReading appends a reading to the readings table
func (db *DB) InsertReading(ctx context.Context, r models.Reading) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO readings (temperature, level, pump_status, heater_status, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.Temperature, r.Level, boolToInt(r.PumpStatus), boolToInt(r.HeaterStatus),
		r.Timestamp.UnixMilli(), db.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to insert reading: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted id: %w", err)
	}
	return id, nil
}

// InsertReadings appends a batch in one transaction, skipping timestamps
// that are already stored
func (db *DB) InsertReadings(ctx context.Context, readings []models.Reading) (int, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insertStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO readings (temperature, level, pump_status, heater_status, timestamp, created_at)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM readings WHERE timestamp = ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer insertStmt.Close()

	createdAt := db.now().UnixMilli()
	count := 0
	for _, r := range readings {
		ts := r.Timestamp.UnixMilli()
		res, err := insertStmt.ExecContext(ctx, r.Temperature, r.Level,
			boolToInt(r.PumpStatus), boolToInt(r.HeaterStatus), ts, createdAt, ts)
		if err != nil {
			return 0, fmt.Errorf("failed to insert reading at %s: %w", r.Timestamp.Format(time.RFC3339), err)
		}
		if n, err := res.RowsAffected(); err == nil {
			count += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return count, nil
}

// LatestReadings returns up to limit of the newest readings, oldest first
func (db *DB) LatestReadings(ctx context.Context, limit int) ([]models.Reading, error) {
	if limit <= 0 {
		limit = DefaultLatestLimit
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, temperature, level, pump_status, heater_status, timestamp, created_at
		FROM readings
		WHERE temperature IS NOT NULL OR level IS NOT NULL
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest readings: %w", err)
	}
	defer rows.Close()

	readings, err := scanReadings(rows)
	if err != nil {
		return nil, err
	}
	reverse(readings)
	return readings, nil
}

// ReadingsInRange returns readings within [start, end] in ascending order
func (db *DB) ReadingsInRange(ctx context.Context, start, end string) ([]models.Reading, error) {
	from, to, ok := rangeMillis(start, end)
	if !ok {
		return []models.Reading{}, nil
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, temperature, level, pump_status, heater_status, timestamp, created_at
		FROM readings
		WHERE timestamp >= ? AND timestamp <= ?
		AND (temperature IS NOT NULL OR level IS NOT NULL)
		ORDER BY timestamp ASC, id ASC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings in range: %w", err)
	}
	defer rows.Close()

	return scanReadings(rows)
}

// GetSetpoints returns the singleton setpoints row
func (db *DB) GetSetpoints(ctx context.Context) (models.Setpoints, error) {
	var s models.Setpoints
	err := db.conn.QueryRowContext(ctx, `
		SELECT temp_min, temp_max, level_min, level_max FROM setpoints WHERE id = 1
	`).Scan(&s.Temp.Min, &s.Temp.Max, &s.Level.Min, &s.Level.Max)
	if err != nil {
		return models.Setpoints{}, fmt.Errorf("failed to read setpoints: %w", err)
	}
	return s, nil
}

func scanReadings(rows *sql.Rows) ([]models.Reading, error) {
	readings := []models.Reading{}
	for rows.Next() {
		var (
			r                  models.Reading
			temperature, level sql.NullFloat64
			pump, heater       int
			ts, createdAt      int64
		)
		if err := rows.Scan(&r.ID, &temperature, &level, &pump, &heater, &ts, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		r.Temperature = temperature.Float64
		r.Level = level.Float64
		r.PumpStatus = pump != 0
		r.HeaterStatus = heater != 0
		r.Timestamp = fromMillis(ts)
		r.CreatedAt = fromMillis(createdAt)
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return readings, nil
}
