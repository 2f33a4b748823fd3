package dataset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicgen/clinicgen/internal/domain/dictionary"
	"github.com/clinicgen/clinicgen/internal/domain/identifier"
	"github.com/clinicgen/clinicgen/internal/domain/population"
	"github.com/clinicgen/clinicgen/internal/domain/temporal"
	"github.com/clinicgen/clinicgen/internal/domain/visit"
	"github.com/clinicgen/clinicgen/internal/platform/rng"
)

// BatchInfo describes one completed batch.
type BatchInfo struct {
	Index    int
	First    int // sequence number of the first record
	Last     int // sequence number of the last record
	Warnings int
	Duration time.Duration
}

// Observer receives progress notifications from a run, typically to feed
// metrics. Calls happen on the generating goroutine.
type Observer interface {
	RecordGenerated(r *visit.Record, warnings []visit.Warning)
	BatchCompleted(b BatchInfo)
	RunCompleted(s *Stats)
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithLogger sets the run logger.
func WithLogger(l zerolog.Logger) Option {
	return func(a *Assembler) { a.logger = l }
}

// WithObserver attaches an observer.
func WithObserver(o Observer) Option {
	return func(a *Assembler) { a.observer = o }
}

// WithClock replaces time.Now for elapsed-time measurements.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// Assembler runs generation for one validated configuration. Each call to
// Generate is an independent run starting from the configured seed.
type Assembler struct {
	cfg      Config
	tables   *dictionary.Tables
	calendar *temporal.Model
	logger   zerolog.Logger
	observer Observer
	now      func() time.Time
}

// New validates cfg and tables. Any failure wraps ErrInvalidConfiguration.
func New(cfg Config, tables *dictionary.Tables, opts ...Option) (*Assembler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tables == nil {
		return nil, fmt.Errorf("%w: %w: no reference tables", ErrInvalidConfiguration, dictionary.ErrInvalidDictionary)
	}
	if err := tables.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	calendar, err := temporal.New(cfg.Calendar())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	a := &Assembler{
		cfg:      cfg,
		tables:   tables,
		calendar: calendar,
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Config returns the run configuration.
func (a *Assembler) Config() Config { return a.cfg }

// Calendar returns the temporal model used by the run.
func (a *Assembler) Calendar() *temporal.Model { return a.calendar }

// Generate produces cfg.Size records in batches of cfg.BatchSize. The context
// is checked between batches; on cancellation the records produced so far
// are returned together with the context error.
func (a *Assembler) Generate(ctx context.Context) ([]*visit.Record, *Stats, error) {
	cfg := a.cfg
	src := rng.New(cfg.Seed)
	sampler := dictionary.NewSampler(a.tables, cfg.AffinityBias)
	ids := identifier.NewSynthesizer(a.tables,
		identifier.WithMaxRetries(cfg.MaxIdentifierRetries),
		identifier.WithLogger(a.logger),
	)
	pop := population.New(cfg.Population(a.calendar.ReferenceDate()), sampler, ids)
	synth := visit.NewSynthesizer(cfg.Visit(), visit.Deps{
		Sampler:     sampler,
		Population:  pop,
		Calendar:    a.calendar,
		Identifiers: ids,
	})

	stats := newStats(cfg)
	stats.StartedAt = a.now()
	records := make([]*visit.Record, 0, cfg.Size)

	log := a.logger.With().Str("run_id", stats.RunID.String()).Logger()
	log.Info().
		Int("size", cfg.Size).
		Int64("seed", cfg.Seed).
		Float64("repeat_probability", cfg.RepeatProbability).
		Int("batch_size", cfg.BatchSize).
		Msg("generation started")

	finish := func() {
		stats.Elapsed = a.now().Sub(stats.StartedAt)
		stats.UniqueClients = pop.Size()
		stats.UniqueNationalIDs = ids.Registry().Count(identifier.KindNationalID)
		stats.UniquePassports = ids.Registry().Count(identifier.KindPassport)
		stats.UniqueCards, stats.CardUses = synth.Cards()
		stats.IdentifierRetries = ids.Registry().TotalRetries()
	}

	for first := 0; first < cfg.Size; first += cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			finish()
			log.Warn().Err(err).Int("produced", stats.Produced).Msg("generation cancelled")
			return records, stats, err
		}
		last := min(first+cfg.BatchSize, cfg.Size)
		batchStart := a.now()
		batchWarnings := 0

		for i := first; i < last; i++ {
			r, warnings, err := synth.Next(src)
			if err != nil {
				finish()
				log.Error().Err(err).Int("record", i+1).Msg("record synthesis failed")
				return records, stats, fmt.Errorf("record %d: %w", i+1, err)
			}
			records = append(records, r)
			stats.observe(r, warnings)
			batchWarnings += len(warnings)
			for _, w := range warnings {
				log.Debug().Int("record", w.Seq).Str("category", string(w.Category)).Msg(w.Detail)
			}
			if a.observer != nil {
				a.observer.RecordGenerated(r, warnings)
			}
		}

		stats.Batches++
		info := BatchInfo{
			Index:    stats.Batches,
			First:    first + 1,
			Last:     last,
			Warnings: batchWarnings,
			Duration: a.now().Sub(batchStart),
		}
		ev := log.Info()
		if batchWarnings > 0 {
			ev = log.Warn()
		}
		ev.Int("batch", info.Index).
			Int("first", info.First).
			Int("last", info.Last).
			Int("warnings", batchWarnings).
			Float64("progress_pct", float64(last)/float64(cfg.Size)*100).
			Dur("duration", info.Duration).
			Msg("batch completed")
		if a.observer != nil {
			a.observer.BatchCompleted(info)
		}
	}

	finish()
	log.Info().
		Int("produced", stats.Produced).
		Int("unique_clients", stats.UniqueClients).
		Int("repeat_visits", stats.RepeatVisits).
		Int("warnings", stats.Warnings).
		Float64("valid_ratio", stats.ValidRatio()).
		Dur("elapsed", stats.Elapsed).
		Msg("generation completed")
	if a.observer != nil {
		a.observer.RunCompleted(stats)
	}
	return records, stats, nil
}

// Generate validates cfg and runs it once.
func Generate(ctx context.Context, cfg Config, tables *dictionary.Tables, opts ...Option) ([]*visit.Record, *Stats, error) {
	a, err := New(cfg, tables, opts...)
	if err != nil {
		return nil, nil, err
	}
	return a.Generate(ctx)
}

// IsConfigurationError reports whether err is a pre-run configuration
// failure.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration)
}
