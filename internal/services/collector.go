package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"aquamon/internal/logger"
	"aquamon/internal/models"
	"aquamon/internal/upstream"
)

// DefaultInterval is the collection period
const DefaultInterval = 5 * time.Second

// Fetcher returns the newest upstream reading, real or placeholder
type Fetcher interface {
	FetchLatest(ctx context.Context) upstream.FetchResult
}

// ReadingWriter is the part of the store the collector writes to
type ReadingWriter interface {
	InsertReading(ctx context.Context, r models.Reading) (int64, error)
	GetSetpoints(ctx context.Context) (models.Setpoints, error)
}

// Sink receives every collected reading after it has been stored
type Sink interface {
	Name() string
	Publish(ctx context.Context, r models.Reading) error
}

// CollectorStats is a snapshot of the collector's counters
type CollectorStats struct {
	Cycles       int64     `json:"cycles"`
	Failures     int64     `json:"failures"`
	Placeholders int64     `json:"placeholders"`
	LastSuccess  time.Time `json:"last_success,omitempty"`
}

// Collector periodically fetches the upstream channel and appends the result
// to the store
type Collector struct {
	fetcher  Fetcher
	store    ReadingWriter
	sinks    []Sink
	interval time.Duration
	logger   *logger.Logger

	cycles       atomic.Int64
	failures     atomic.Int64
	placeholders atomic.Int64
	lastSuccess  atomic.Int64 // unix nanos
}

// NewCollector creates a new Collector. A non-positive interval means DefaultInterval.
func NewCollector(fetcher Fetcher, store ReadingWriter, interval time.Duration, log *logger.Logger, sinks ...Sink) *Collector {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Collector{
		fetcher:  fetcher,
		store:    store,
		sinks:    sinks,
		interval: interval,
		logger:   log.WithComponent("collector"),
	}
}

// Task is the handle of a running collector
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop cancels the schedule and waits for in-flight cycles to finish.
// It is safe to call more than once.
func (t *Task) Stop() {
	t.once.Do(t.cancel)
	<-t.done
}

// Done is closed once the collector has fully stopped
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Start fires a first cycle immediately and then one every interval until
// the returned task is stopped or ctx is cancelled. Cycles run in their own
// goroutines, so a slow cycle never delays the next firing.
func (c *Collector) Start(ctx context.Context) *Task {
	ctx, cancel := context.WithCancel(ctx)
	task := &Task{cancel: cancel, done: make(chan struct{})}

	go c.loop(ctx, task.done)

	c.logger.Info().Dur("interval", c.interval).Int("sinks", len(c.sinks)).Msg("collector started")
	return task
}

func (c *Collector) loop(ctx context.Context, done chan<- struct{}) {
	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		c.logger.Info().Msg("collector stopped")
		close(done)
	}()

	fire := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.runSafely(ctx)
		}()
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	fire()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fire()
		}
	}
}

// runSafely is the cycle boundary: nothing escapes it
func (c *Collector) runSafely(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.failures.Add(1)
			c.logger.Error().Interface("panic", r).Msg("collection cycle panicked")
		}
	}()

	if err := c.RunCycle(ctx); err != nil {
		c.logger.Error().Err(err).Msg("collection cycle failed")
	}
}

// RunCycle performs one fetch, store and fan-out pass
func (c *Collector) RunCycle(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}

	start := time.Now()
	c.cycles.Add(1)

	res := c.fetcher.FetchLatest(ctx)
	// A fetch cut short by Stop says nothing about the channel
	if res.IsPlaceholder() && ctx.Err() != nil {
		c.logger.Debug().Err(res.Err).Msg("collection cycle interrupted by shutdown, nothing stored")
		return nil
	}
	reading := res.Reading
	if res.IsPlaceholder() {
		c.placeholders.Add(1)
	}

	// Finish the write even if the schedule is being stopped
	writeCtx := context.WithoutCancel(ctx)

	id, err := c.store.InsertReading(writeCtx, reading)
	if err != nil {
		c.failures.Add(1)
		return fmt.Errorf("failed to store reading: %w", err)
	}

	c.checkBands(writeCtx, reading)

	for _, sink := range c.sinks {
		if err := sink.Publish(writeCtx, reading); err != nil {
			c.logger.Warn().Err(err).Str("sink", sink.Name()).Msg("failed to publish reading")
		}
	}

	c.lastSuccess.Store(time.Now().UnixNano())
	c.logger.Info().
		Int64("id", id).
		Str("kind", res.Kind.String()).
		Float64("temperature", reading.Temperature).
		Float64("level", reading.Level).
		Dur("took", time.Since(start)).
		Msg("collection cycle completed")
	return nil
}

// checkBands logs real readings that fall outside the configured setpoints
func (c *Collector) checkBands(ctx context.Context, r models.Reading) {
	if r.Placeholder {
		return
	}
	sp, err := c.store.GetSetpoints(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to read setpoints")
		return
	}
	if !sp.TempInBand(r.Temperature) {
		c.logger.Warn().Float64("temperature", r.Temperature).
			Float64("min", sp.Temp.Min).Float64("max", sp.Temp.Max).
			Msg("temperature outside setpoints")
	}
	if !sp.LevelInBand(r.Level) {
		c.logger.Warn().Float64("level", r.Level).
			Int("min", sp.Level.Min).Int("max", sp.Level.Max).
			Msg("water level outside setpoints")
	}
}

// Stats returns the collector's counters
func (c *Collector) Stats() CollectorStats {
	s := CollectorStats{
		Cycles:       c.cycles.Load(),
		Failures:     c.failures.Load(),
		Placeholders: c.placeholders.Load(),
	}
	if ns := c.lastSuccess.Load(); ns > 0 {
		s.LastSuccess = time.Unix(0, ns).UTC()
	}
	return s
}
