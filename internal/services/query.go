package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"aquamon/internal/database"
	"aquamon/internal/logger"
	"aquamon/internal/models"
)

var (
	// ErrMissingRange is returned when a range query lacks a boundary
	ErrMissingRange = errors.New("startDate and endDate are required")
	// ErrInvertedRange is returned when the start boundary is after the end
	ErrInvertedRange = errors.New("startDate must be before or equal to endDate")
)

// ReadingReader is the part of the store the query service reads from
type ReadingReader interface {
	LatestReadings(ctx context.Context, limit int) ([]models.Reading, error)
	ReadingsInRange(ctx context.Context, start, end string) ([]models.Reading, error)
	GetSetpoints(ctx context.Context) (models.Setpoints, error)
}

// LatestSource returns the most recently collected reading, if known
type LatestSource interface {
	Get(ctx context.Context) (models.Reading, bool, error)
}

// QueryService assembles readings views for the API. Views are never empty:
// when the store has nothing to offer, a live fetch fills in.
type QueryService struct {
	store   ReadingReader
	fetcher Fetcher
	cache   LatestSource
	limit   int
	logger  *logger.Logger
}

// NewQueryService creates a new QueryService instance
func NewQueryService(store ReadingReader, fetcher Fetcher, log *logger.Logger) *QueryService {
	if log == nil {
		log = logger.Nop()
	}
	return &QueryService{
		store:   store,
		fetcher: fetcher,
		limit:   database.DefaultLatestLimit,
		logger:  log.WithComponent("query"),
	}
}

// SetCache lets Current answer from the latest-reading cache before the store
func (q *QueryService) SetCache(c LatestSource) {
	q.cache = c
}

// Latest returns the newest readings oldest first, plus the setpoints
func (q *QueryService) Latest(ctx context.Context) (*models.ReadingsResponse, error) {
	start := time.Now()

	resp, err := q.collect(ctx, func(ctx context.Context) ([]models.Reading, error) {
		return q.store.LatestReadings(ctx, q.limit)
	})
	if err != nil {
		return nil, err
	}

	q.logger.Debug().Int("readings", len(resp.Readings)).Dur("took", time.Since(start)).Msg("latest query completed")
	return resp, nil
}

// Range returns readings with start <= timestamp <= end, plus the setpoints.
// Boundaries the store cannot parse match nothing and fall back like an empty window.
func (q *QueryService) Range(ctx context.Context, startDate, endDate string) (*models.ReadingsResponse, error) {
	if startDate == "" || endDate == "" {
		return nil, ErrMissingRange
	}
	if from, ok := database.ParseBoundary(startDate); ok {
		if to, ok := database.ParseBoundary(endDate); ok && from.After(to) {
			return nil, ErrInvertedRange
		}
	}

	start := time.Now()
	q.logger.Info().Str("start", startDate).Str("end", endDate).Msg("querying readings")

	resp, err := q.collect(ctx, func(ctx context.Context) ([]models.Reading, error) {
		return q.store.ReadingsInRange(ctx, startDate, endDate)
	})
	if err != nil {
		return nil, err
	}

	q.logger.Info().Int("readings", len(resp.Readings)).Dur("took", time.Since(start)).Msg("range query completed")
	return resp, nil
}

// Current returns the single newest reading, from the cache when one is
// configured, else the store, else a live fetch
func (q *QueryService) Current(ctx context.Context) (models.Reading, error) {
	if q.cache != nil {
		r, ok, err := q.cache.Get(ctx)
		if err != nil {
			q.logger.Warn().Err(err).Msg("latest cache unavailable, reading store")
		} else if ok {
			return r, nil
		}
	}

	readings, err := q.store.LatestReadings(ctx, 1)
	if err != nil {
		return models.Reading{}, fmt.Errorf("failed to load current reading: %w", err)
	}
	if len(readings) > 0 {
		return readings[len(readings)-1], nil
	}
	return q.fallback(ctx), nil
}

// collect loads readings and setpoints concurrently and applies the
// empty-result fallback
func (q *QueryService) collect(ctx context.Context, load func(context.Context) ([]models.Reading, error)) (*models.ReadingsResponse, error) {
	var (
		readings  []models.Reading
		setpoints models.Setpoints
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		readings, err = load(gctx)
		if err != nil {
			return fmt.Errorf("failed to load readings: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		setpoints, err = q.store.GetSetpoints(gctx)
		if err != nil {
			return fmt.Errorf("failed to load setpoints: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(readings) == 0 {
		readings = []models.Reading{q.fallback(ctx)}
	}

	return &models.ReadingsResponse{Readings: readings, Setpoints: setpoints}, nil
}

// fallback fetches a live reading for the response only; it is not stored
func (q *QueryService) fallback(ctx context.Context) models.Reading {
	res := q.fetcher.FetchLatest(ctx)
	q.logger.Info().Str("kind", res.Kind.String()).Int("attempts", res.Attempts).Msg("no stored readings, using live fetch")
	return res.Reading
}
