package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"aquamon/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), models.DefaultSetpoints())
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func at(sec int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, sec, 0, time.UTC)
}

func insert(t *testing.T, db *DB, ts time.Time, temp float64) {
	t.Helper()
	if _, err := db.InsertReading(context.Background(), models.Reading{
		Temperature: temp,
		Level:       70,
		Timestamp:   ts,
	}); err != nil {
		t.Fatalf("InsertReading: %v", err)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := db.Migrate(ctx); err != nil {
			t.Fatalf("Migrate #%d: %v", i+1, err)
		}
	}

	var count int
	if err := db.GetConn().QueryRow("SELECT COUNT(*) FROM setpoints").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("setpoints rows = %d, want 1", count)
	}

	var id int
	if err := db.GetConn().QueryRow("SELECT id FROM setpoints").Scan(&id); err != nil {
		t.Fatal(err)
	}
	if id != 1 {
		t.Fatalf("setpoints id = %d, want 1", id)
	}

	var tables int
	if err := db.GetConn().QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('readings', 'setpoints')",
	).Scan(&tables); err != nil {
		t.Fatal(err)
	}
	if tables != 2 {
		t.Fatalf("tables = %d, want 2", tables)
	}

	var indexes int
	if err := db.GetConn().QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_readings_timestamp'",
	).Scan(&indexes); err != nil {
		t.Fatal(err)
	}
	if indexes != 1 {
		t.Fatalf("timestamp index count = %d, want 1", indexes)
	}
}

func TestReopenKeepsExistingSetpoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	db, err := NewDB(path, models.DefaultSetpoints())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetConn().Exec("UPDATE setpoints SET temp_min = 18 WHERE id = 1"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = NewDB(path, models.DefaultSetpoints())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s, err := db.GetSetpoints(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.Temp.Min != 18 {
		t.Fatalf("temp min = %v, want 18 (seed must not overwrite)", s.Temp.Min)
	}
}

func TestGetSetpointsDefaults(t *testing.T) {
	db := newTestDB(t)
	s, err := db.GetSetpoints(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s != models.DefaultSetpoints() {
		t.Fatalf("setpoints = %+v, want %+v", s, models.DefaultSetpoints())
	}
}

func TestLatestReadingsOrderAndLimit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	insert(t, db, at(1), 20)
	insert(t, db, at(2), 21)
	insert(t, db, at(3), 22)

	got, err := db.LatestReadings(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if !got[0].Timestamp.Equal(at(2)) || !got[1].Timestamp.Equal(at(3)) {
		t.Fatalf("timestamps = [%v %v], want [t2 t3]", got[0].Timestamp, got[1].Timestamp)
	}
	if got[0].Temperature != 21 || got[1].Temperature != 22 {
		t.Fatalf("temperatures = [%v %v], want [21 22]", got[0].Temperature, got[1].Temperature)
	}
}

func TestLatestReadingsNeverExceedsLimit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Inserted out of order to check ordering is by sample time, not insertion
	for _, sec := range []int{5, 1, 9, 3, 7, 2, 8} {
		insert(t, db, at(sec), float64(sec))
	}

	for _, limit := range []int{1, 3, 7, 10} {
		got, err := db.LatestReadings(ctx, limit)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) > limit {
			t.Fatalf("limit %d: got %d rows", limit, len(got))
		}
		for i := 1; i < len(got); i++ {
			if got[i].Timestamp.Before(got[i-1].Timestamp) {
				t.Fatalf("limit %d: rows not ascending at %d", limit, i)
			}
		}
		if len(got) > 0 && !got[len(got)-1].Timestamp.Equal(at(9)) {
			t.Fatalf("limit %d: newest row = %v, want t9", limit, got[len(got)-1].Timestamp)
		}
	}
}

func TestLatestReadingsDefaultLimit(t *testing.T) {
	db := newTestDB(t)
	for i := 0; i < DefaultLatestLimit+5; i++ {
		insert(t, db, at(i), 20)
	}
	got, err := db.LatestReadings(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != DefaultLatestLimit {
		t.Fatalf("len = %d, want %d", len(got), DefaultLatestLimit)
	}
}

func TestLatestReadingsSkipsRowsWithoutValues(t *testing.T) {
	db := newTestDB(t)
	insert(t, db, at(1), 20)
	if _, err := db.GetConn().Exec(
		"INSERT INTO readings (temperature, level, timestamp, created_at) VALUES (NULL, NULL, ?, ?)",
		at(2).UnixMilli(), at(2).UnixMilli(),
	); err != nil {
		t.Fatal(err)
	}

	got, err := db.LatestReadings(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
}

func TestReadingsInRange(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	insert(t, db, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), 20)
	insert(t, db, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), 21)
	insert(t, db, time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC), 22)
	insert(t, db, time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC), 19)

	tests := []struct {
		name       string
		start, end string
		want       []float64
	}{
		{"dates inclusive", "2024-01-01", "2024-01-02", []float64{20, 21}},
		{"iso datetimes", "2024-01-01T00:00:00Z", "2024-01-02T23:59:59Z", []float64{20, 21, 22}},
		{"offset", "2024-01-02T09:00:00-03:00", "2024-01-02T09:00:00-03:00", []float64{22}},
		{"empty window", "2025-01-01", "2025-01-02", nil},
		{"malformed start", "yesterday", "2024-01-02", nil},
		{"malformed end", "2024-01-01", "", nil},
		{"inverted", "2024-01-02", "2024-01-01", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.ReadingsInRange(ctx, tt.start, tt.end)
			if err != nil {
				t.Fatalf("ReadingsInRange: %v", err)
			}
			if got == nil {
				t.Fatal("expected empty slice, got nil")
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i, r := range got {
				if r.Temperature != tt.want[i] {
					t.Errorf("row %d temperature = %v, want %v", i, r.Temperature, tt.want[i])
				}
			}
		})
	}
}

func TestInsertReadingPersistsFlags(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id, err := db.InsertReading(ctx, models.Reading{
		Temperature:  24.5,
		Level:        81,
		PumpStatus:   true,
		HeaterStatus: true,
		Timestamp:    at(1),
	})
	if err != nil {
		t.Fatal(err)
	}
	if id <= 0 {
		t.Fatalf("id = %d, want positive", id)
	}

	got, err := db.LatestReadings(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	r := got[0]
	if r.ID != id || !r.PumpStatus || !r.HeaterStatus || r.Level != 81 {
		t.Fatalf("unexpected row: %+v", r)
	}
	if r.CreatedAt.IsZero() {
		t.Fatal("created_at not assigned")
	}
}

func TestParseBoundary(t *testing.T) {
	tests := []struct {
		in   string
		ok   bool
		want time.Time
	}{
		{"2024-01-01", true, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"2024-01-01T10:30", true, time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)},
		{"2024-01-01T10:30:00.000Z", true, time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)},
		{"2024-01-01 10:30:00", true, time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)},
		{"", false, time.Time{}},
		{"01/02/2024", false, time.Time{}},
	}
	for _, tt := range tests {
		got, ok := ParseBoundary(tt.in)
		if ok != tt.ok || !got.Equal(tt.want) {
			t.Errorf("ParseBoundary(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestInsertReadingsSkipsKnownTimestamps(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	insert(t, db, at(1), 20)

	batch := []models.Reading{
		{Temperature: 99, Level: 70, Timestamp: at(1)},
		{Temperature: 21, Level: 70, Timestamp: at(2)},
		{Temperature: 22, Level: 70, Timestamp: at(3)},
		{Temperature: 98, Level: 70, Timestamp: at(3)},
	}
	n, err := db.InsertReadings(ctx, batch)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("inserted = %d, want 2", n)
	}

	got, err := db.LatestReadings(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{20, 21, 22}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, r := range got {
		if r.Temperature != want[i] {
			t.Errorf("row %d temperature = %v, want %v", i, r.Temperature, want[i])
		}
	}
}
