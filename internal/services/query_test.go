package services

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"aquamon/internal/database"
	"aquamon/internal/models"
	"aquamon/internal/upstream"
)

type fakeCache struct {
	reading models.Reading
	ok      bool
	err     error
}

func (c *fakeCache) Get(ctx context.Context) (models.Reading, bool, error) {
	return c.reading, c.ok, c.err
}

func TestLatestReturnsStoredReadings(t *testing.T) {
	store := newFakeStore()
	store.readings = []models.Reading{{ID: 1, Temperature: 21}, {ID: 2, Temperature: 22}}
	fetcher := &fakeFetcher{result: realResult(30)}
	q := NewQueryService(store, fetcher, nil)

	resp, err := q.Latest(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Readings) != 2 || resp.Readings[1].Temperature != 22 {
		t.Fatalf("unexpected readings: %+v", resp.Readings)
	}
	if resp.Setpoints != models.DefaultSetpoints() {
		t.Fatalf("setpoints = %+v", resp.Setpoints)
	}
	if fetcher.calls.Load() != 0 {
		t.Fatal("fetcher must not be called when the store has data")
	}
}

func TestLatestFallsBackToLiveFetch(t *testing.T) {
	store := newFakeStore()
	q := NewQueryService(store, &fakeFetcher{result: realResult(26.5)}, nil)

	resp, err := q.Latest(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Readings) != 1 || resp.Readings[0].Temperature != 26.5 {
		t.Fatalf("unexpected readings: %+v", resp.Readings)
	}
	if store.count() != 0 {
		t.Fatal("fallback reading must not be stored")
	}
}

func TestRangeEmptyWindowUsesPlaceholder(t *testing.T) {
	store := newFakeStore()
	fetcher := &fakeFetcher{result: upstream.Placeholder(upstream.DefaultReading(time.Now()))}
	q := NewQueryService(store, fetcher, nil)

	resp, err := q.Range(context.Background(), "2025-01-01", "2025-01-02")
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Readings) != 1 {
		t.Fatalf("len = %d, want 1", len(resp.Readings))
	}
	r := resp.Readings[0]
	if r.Temperature != 25 || r.Level != 75 || !r.Placeholder {
		t.Fatalf("unexpected fallback reading: %+v", r)
	}
	if resp.Setpoints != models.DefaultSetpoints() {
		t.Fatalf("setpoints = %+v", resp.Setpoints)
	}
}

func TestRangeValidation(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		want       error
	}{
		{"missing start", "", "2024-01-02", ErrMissingRange},
		{"missing end", "2024-01-01", "", ErrMissingRange},
		{"inverted", "2024-01-02", "2024-01-01", ErrInvertedRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			q := NewQueryService(store, &fakeFetcher{result: realResult(20)}, nil)

			_, err := q.Range(context.Background(), tt.start, tt.end)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if store.rangeCalls.Load() != 0 {
				t.Fatal("store must not be queried for a rejected range")
			}
		})
	}
}

func TestRangeUnparseableBoundaryReachesStore(t *testing.T) {
	store := newFakeStore()
	q := NewQueryService(store, &fakeFetcher{result: realResult(20)}, nil)

	resp, err := q.Range(context.Background(), "yesterday", "2024-01-01")
	if err != nil {
		t.Fatal(err)
	}
	if store.rangeCalls.Load() != 1 || len(resp.Readings) != 1 {
		t.Fatalf("range calls = %d, readings = %d", store.rangeCalls.Load(), len(resp.Readings))
	}
}

func TestCurrentPrefersCache(t *testing.T) {
	store := newFakeStore()
	store.readings = []models.Reading{{Temperature: 21}}
	q := NewQueryService(store, &fakeFetcher{}, nil)
	q.SetCache(&fakeCache{reading: models.Reading{Temperature: 29}, ok: true})

	r, err := q.Current(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r.Temperature != 29 {
		t.Fatalf("temperature = %v, want cached 29", r.Temperature)
	}
	if store.latestCalls.Load() != 0 {
		t.Fatal("store queried despite cache hit")
	}
}

func TestCurrentFallsThroughCache(t *testing.T) {
	store := newFakeStore()
	store.readings = []models.Reading{{Temperature: 21}, {Temperature: 23}}
	q := NewQueryService(store, &fakeFetcher{}, nil)
	q.SetCache(&fakeCache{err: errors.New("connection refused")})

	r, err := q.Current(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r.Temperature != 23 {
		t.Fatalf("temperature = %v, want newest stored 23", r.Temperature)
	}
}

func TestCurrentEmptyStoreUsesLiveFetch(t *testing.T) {
	fetcher := &fakeFetcher{result: realResult(27)}
	q := NewQueryService(newFakeStore(), fetcher, nil)

	r, err := q.Current(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r.Temperature != 27 || fetcher.calls.Load() != 1 {
		t.Fatalf("unexpected reading %+v after %d fetches", r, fetcher.calls.Load())
	}
}

func TestRangeOverSQLiteReportsSeededSetpoints(t *testing.T) {
	ctx := context.Background()
	seed := models.Setpoints{
		Temp:  models.TempBand{Min: 20, Max: 30},
		Level: models.LevelBand{Min: 60, Max: 90},
	}
	db, err := database.NewDB(filepath.Join(t.TempDir(), "aquamon.db"), seed)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	fetcher := &fakeFetcher{result: upstream.Placeholder(upstream.DefaultReading(time.Now()))}
	q := NewQueryService(db, fetcher, nil)

	resp, err := q.Range(ctx, "2024-01-01", "2024-01-02")
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Readings) != 1 || !resp.Readings[0].Placeholder {
		t.Fatalf("empty window readings = %+v, want one placeholder", resp.Readings)
	}
	sp, err := json.Marshal(resp.Setpoints)
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"temp":{"min":20,"max":30},"level":{"min":60,"max":90}}`; string(sp) != want {
		t.Fatalf("setpoints = %s, want %s", sp, want)
	}

	if _, err := db.InsertReading(ctx, models.Reading{
		Temperature: 24.5,
		Level:       80,
		Timestamp:   time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("InsertReading: %v", err)
	}
	if _, err := db.InsertReading(ctx, models.Reading{
		Temperature: 26,
		Level:       70,
		Timestamp:   time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("InsertReading: %v", err)
	}

	resp, err = q.Range(ctx, "2024-01-01", "2024-01-02")
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Readings) != 1 || resp.Readings[0].Temperature != 24.5 || resp.Readings[0].Placeholder {
		t.Fatalf("readings = %+v, want the stored 24.5 sample only", resp.Readings)
	}
	if resp.Setpoints != seed {
		t.Fatalf("setpoints = %+v, want %+v", resp.Setpoints, seed)
	}
	if fetcher.calls.Load() != 1 {
		t.Fatalf("live fetches = %d, want only the empty-window one", fetcher.calls.Load())
	}
}
