package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"aquamon/internal/logger"
	"aquamon/internal/models"
	"aquamon/internal/upstream"
)

// generateBatchSize bounds how many readings go into one store transaction
const generateBatchSize = 10000

// MaxGeneratePoints caps the readings a single GenerateHistory call may write
const MaxGeneratePoints = 1_000_000

// ErrTooManyPoints is returned when a window and step would exceed MaxGeneratePoints
var ErrTooManyPoints = errors.New("window and step exceed the generation limit")

// GeneratePoints returns how many readings a window of [start, end] at step produces
func GeneratePoints(start, end time.Time, step time.Duration) int64 {
	if step <= 0 || end.Before(start) {
		return 0
	}
	n := int64(end.Sub(start) / step)
	if n == math.MaxInt64 {
		return n
	}
	return n + 1
}

// Generator simulates the tank controller. It stands in for the channel when
// none is configured and can backfill a synthetic history.
type Generator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	sp     models.Setpoints
	seed   int64
	now    func() time.Time
	logger *logger.Logger

	temp, level  float64
	pump, heater bool
}

// NewGenerator creates a Generator that starts mid-band. A zero seed picks one from the clock.
func NewGenerator(sp models.Setpoints, seed int64, log *logger.Logger) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Generator{
		rng:    rand.New(rand.NewSource(seed)),
		sp:     sp,
		seed:   seed,
		now:    time.Now,
		logger: log.WithComponent("generator"),
		temp:   (sp.Temp.Min + sp.Temp.Max) / 2,
		level:  float64(sp.Level.Min+sp.Level.Max) / 2,
	}
}

// fork returns a Generator with the same setpoints and seed but its own state
func (g *Generator) fork() *Generator {
	f := NewGenerator(g.sp, g.seed, nil)
	f.logger = g.logger
	return f
}

// FetchLatest returns the next simulated sample stamped with the current time
func (g *Generator) FetchLatest(ctx context.Context) upstream.FetchResult {
	res := upstream.Real(g.next(g.now()))
	res.Attempts = 1
	return res
}

// next advances the simulation by one step. The heater switches on below the
// lower temperature setpoint and off above the midpoint; the pump refills the
// tank the same way.
func (g *Generator) next(ts time.Time) models.Reading {
	g.mu.Lock()
	defer g.mu.Unlock()

	tempMid := (g.sp.Temp.Min + g.sp.Temp.Max) / 2
	switch {
	case g.temp < g.sp.Temp.Min:
		g.heater = true
	case g.temp > tempMid:
		g.heater = false
	}
	levelMid := float64(g.sp.Level.Min+g.sp.Level.Max) / 2
	switch {
	case g.level < float64(g.sp.Level.Min):
		g.pump = true
	case g.level > levelMid:
		g.pump = false
	}

	drift := g.rng.Float64()*0.2 - 0.12
	if g.heater {
		drift += 0.15
	}
	g.temp = clamp(g.temp+drift, g.sp.Temp.Min-5, g.sp.Temp.Max+5)

	fill := -g.rng.Float64() * 0.4
	if g.pump {
		fill += 0.8
	}
	g.level = clamp(g.level+fill, 0, 100)

	return models.Reading{
		Temperature:  round2(g.temp),
		Level:        round2(g.level),
		PumpStatus:   g.pump,
		HeaterStatus: g.heater,
		Timestamp:    ts.UTC(),
	}
}

// GenerateHistory writes one simulated reading per step over [start, end]
// and returns how many were stored. The backfill walks its own series and
// leaves the live simulation untouched.
func (g *Generator) GenerateHistory(ctx context.Context, store BatchWriter, start, end time.Time, step time.Duration) (int, error) {
	if step <= 0 {
		return 0, fmt.Errorf("invalid step: %s", step)
	}
	if !start.Before(end) {
		return 0, fmt.Errorf("invalid time range: start (%s) must be before end (%s)",
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	if GeneratePoints(start, end, step) > MaxGeneratePoints {
		return 0, ErrTooManyPoints
	}
	walk := g.fork()

	generateStart := time.Now()
	g.logger.Info().Time("start", start).Time("end", end).Dur("step", step).Msg("starting generation")

	total := 0
	batch := make([]models.Reading, 0, generateBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := store.InsertReadings(ctx, batch)
		if err != nil {
			return fmt.Errorf("failed to store generated batch: %w", err)
		}
		total += n
		batch = batch[:0]
		return nil
	}

	for ts := start; !ts.After(end); ts = ts.Add(step) {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		batch = append(batch, walk.next(ts))
		if len(batch) == generateBatchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}

	g.logger.Info().Int("records", total).Dur("took", time.Since(generateStart)).Msg("generation completed")
	return total, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
