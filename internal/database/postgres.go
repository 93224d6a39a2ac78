package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"aquamon/internal/models"
)

// PostgresDB is the Store backed by PostgreSQL/TimescaleDB through a pgx pool
type PostgresDB struct {
	pool *pgxpool.Pool
	seed models.Setpoints
	now  func() time.Time
}

// NewPostgresDB connects, verifies the connection and initializes the schema
func NewPostgresDB(ctx context.Context, url string, seed models.Setpoints) (*PostgresDB, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres configuration: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres is not reachable: %w", err)
	}

	db := &PostgresDB{pool: pool, seed: seed, now: time.Now}
	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

// Close releases the pool
func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// Ping verifies the database is reachable
func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Migrate creates tables and index if they don't exist and seeds the
// setpoints singleton
func (db *PostgresDB) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS readings (
			id BIGSERIAL PRIMARY KEY,
			temperature DOUBLE PRECISION,
			level DOUBLE PRECISION,
			pump_status SMALLINT NOT NULL DEFAULT 0,
			heater_status SMALLINT NOT NULL DEFAULT 0,
			timestamp BIGINT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_readings_timestamp ON readings(timestamp)`,
		`CREATE TABLE IF NOT EXISTS setpoints (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			temp_min DOUBLE PRECISION NOT NULL DEFAULT 20.0,
			temp_max DOUBLE PRECISION NOT NULL DEFAULT 30.0,
			level_min INTEGER NOT NULL DEFAULT 60,
			level_max INTEGER NOT NULL DEFAULT 90,
			updated_at BIGINT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	_, err := db.pool.Exec(ctx, `
		INSERT INTO setpoints (id, temp_min, temp_max, level_min, level_max, updated_at)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, db.seed.Temp.Min, db.seed.Temp.Max, db.seed.Level.Min, db.seed.Level.Max, db.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to seed setpoints: %w", err)
	}
	return nil
}

// InsertReading appends a reading to the readings table
func (db *PostgresDB) InsertReading(ctx context.Context, r models.Reading) (int64, error) {
	var id int64
	err := db.pool.QueryRow(ctx, `
		INSERT INTO readings (temperature, level, pump_status, heater_status, timestamp, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, r.Temperature, r.Level, boolToInt(r.PumpStatus), boolToInt(r.HeaterStatus),
		r.Timestamp.UnixMilli(), db.now().UnixMilli()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert reading: %w", err)
	}
	return id, nil
}

// InsertReadings appends a batch in one transaction, skipping timestamps
// that are already stored
func (db *PostgresDB) InsertReadings(ctx context.Context, readings []models.Reading) (int, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	createdAt := db.now().UnixMilli()
	batch := &pgx.Batch{}
	for _, r := range readings {
		ts := r.Timestamp.UnixMilli()
		batch.Queue(`
			INSERT INTO readings (temperature, level, pump_status, heater_status, timestamp, created_at)
			SELECT $1, $2, $3, $4, $5, $6
			WHERE NOT EXISTS (SELECT 1 FROM readings WHERE timestamp = $5)
		`, r.Temperature, r.Level, boolToInt(r.PumpStatus), boolToInt(r.HeaterStatus), ts, createdAt)
	}

	results := tx.SendBatch(ctx, batch)
	count := 0
	for range readings {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, fmt.Errorf("failed to insert reading: %w", err)
		}
		count += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return count, nil
}

// LatestReadings returns up to limit of the newest readings, oldest first
func (db *PostgresDB) LatestReadings(ctx context.Context, limit int) ([]models.Reading, error) {
	if limit <= 0 {
		limit = DefaultLatestLimit
	}

	rows, err := db.pool.Query(ctx, `
		SELECT id, temperature, level, pump_status, heater_status, timestamp, created_at
		FROM readings
		WHERE temperature IS NOT NULL OR level IS NOT NULL
		ORDER BY timestamp DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest readings: %w", err)
	}

	readings, err := collectReadings(rows)
	if err != nil {
		return nil, err
	}
	reverse(readings)
	return readings, nil
}

// ReadingsInRange returns readings within [start, end] in ascending order
func (db *PostgresDB) ReadingsInRange(ctx context.Context, start, end string) ([]models.Reading, error) {
	from, to, ok := rangeMillis(start, end)
	if !ok {
		return []models.Reading{}, nil
	}

	rows, err := db.pool.Query(ctx, `
		SELECT id, temperature, level, pump_status, heater_status, timestamp, created_at
		FROM readings
		WHERE timestamp BETWEEN $1 AND $2
		AND (temperature IS NOT NULL OR level IS NOT NULL)
		ORDER BY timestamp ASC, id ASC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings in range: %w", err)
	}

	return collectReadings(rows)
}

// GetSetpoints returns the singleton setpoints row
func (db *PostgresDB) GetSetpoints(ctx context.Context) (models.Setpoints, error) {
	var s models.Setpoints
	err := db.pool.QueryRow(ctx, `
		SELECT temp_min, temp_max, level_min, level_max FROM setpoints WHERE id = 1
	`).Scan(&s.Temp.Min, &s.Temp.Max, &s.Level.Min, &s.Level.Max)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Setpoints{}, fmt.Errorf("setpoints row is missing: %w", err)
	}
	if err != nil {
		return models.Setpoints{}, fmt.Errorf("failed to read setpoints: %w", err)
	}
	return s, nil
}

func collectReadings(rows pgx.Rows) ([]models.Reading, error) {
	defer rows.Close()

	readings := []models.Reading{}
	for rows.Next() {
		var (
			r                  models.Reading
			temperature, level *float64
			pump, heater       int16
			ts, createdAt      int64
		)
		if err := rows.Scan(&r.ID, &temperature, &level, &pump, &heater, &ts, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		if temperature != nil {
			r.Temperature = *temperature
		}
		if level != nil {
			r.Level = *level
		}
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
