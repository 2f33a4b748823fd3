package dataset

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/clinicgen/clinicgen/internal/domain/dictionary"
	"github.com/clinicgen/clinicgen/internal/domain/temporal"
	"github.com/clinicgen/clinicgen/internal/domain/visit"
	"github.com/clinicgen/clinicgen/pkg/checksum"
)

type recordingObserver struct {
	records int
	batches []BatchInfo
	final   *Stats
}

func (o *recordingObserver) RecordGenerated(*visit.Record, []visit.Warning) { o.records++ }
func (o *recordingObserver) BatchCompleted(b BatchInfo)                    { o.batches = append(o.batches, b) }
func (o *recordingObserver) RunCompleted(s *Stats)                         { o.final = s }

type AssemblerSuite struct {
	suite.Suite
	tables *dictionary.Tables
	ctx    context.Context
}

func TestAssemblerSuite(t *testing.T) {
	suite.Run(t, new(AssemblerSuite))
}

func (s *AssemblerSuite) SetupSuite() {
	tables, err := dictionary.Default()
	s.Require().NoError(err)
	s.tables = tables
	s.ctx = context.Background()
}

func (s *AssemblerSuite) config(size int, seed int64, repeat float64) Config {
	cfg := DefaultConfig()
	cfg.Size = size
	cfg.Seed = seed
	cfg.RepeatProbability = repeat
	return cfg
}

func (s *AssemblerSuite) TestFiveRecordsFiveDistinctNationalIDs() {
	records, stats, err := Generate(s.ctx, s.config(5, 42, 0), s.tables)
	s.Require().NoError(err)
	s.Require().Len(records, 5)

	ids := map[string]bool{}
	for _, r := range records {
		ids[r.Client.NationalID.Value] = true
	}
	s.Len(ids, 5)
	s.Equal(5, stats.Produced)
	s.Equal(5, stats.NewClients)
	s.Equal(5, stats.UniqueNationalIDs)
	s.Zero(stats.RepeatVisits)
}

func (s *AssemblerSuite) TestSizeZero() {
	records, stats, err := Generate(s.ctx, s.config(0, 42, 0.25), s.tables)
	s.Require().NoError(err)
	s.NotNil(records)
	s.Empty(records)
	s.Zero(stats.Produced)
	s.Zero(stats.Batches)
	s.Zero(stats.NewClients)
	s.Zero(stats.RepeatVisits)
	s.Zero(stats.UniqueClients)
	s.Zero(stats.Warnings)
	s.Zero(stats.UniqueCards)
	s.Equal(1.0, stats.ValidRatio())
}

func (s *AssemblerSuite) TestRepeatProbabilityOutOfRange() {
	obs := &recordingObserver{}
	records, stats, err := Generate(s.ctx, s.config(10, 42, 1.5), s.tables, WithObserver(obs))
	s.Require().Error(err)
	s.ErrorIs(err, ErrInvalidConfiguration)
	s.True(IsConfigurationError(err))
	s.Contains(err.Error(), "RepeatProbability")
	s.Nil(records)
	s.Nil(stats)
	s.Zero(obs.records)
}

func (s *AssemblerSuite) TestInvalidConfigurations() {
	cases := map[string]func(*Config){
		"negative size":      func(c *Config) { c.Size = -1 },
		"zero batch":         func(c *Config) { c.BatchSize = 0 },
		"no business days":   func(c *Config) { c.BusinessDays = nil },
		"hours inverted":     func(c *Config) { c.OpenHour, c.CloseHour = 18, 9 },
		"symptom range":      func(c *Config) { c.MinSymptoms, c.MaxSymptoms = 3, 2 },
		"too many lab tests": func(c *Config) { c.MaxLabTests = 6 },
		"cost bounds":        func(c *Config) { c.CostMin, c.CostMax = 500, 100 },
		"offset bounds":      func(c *Config) { c.MaxResultOffset = time.Hour },
		"end before start":   func(c *Config) { c.StartDate, c.EndDate = c.EndDate, c.StartDate },
		"valid ratio":        func(c *Config) { c.MinValidRatio = 2 },
		"weekend only range": func(c *Config) {
			c.StartDate = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
			c.EndDate = time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
		},
	}
	for name, edit := range cases {
		s.Run(name, func() {
			cfg := s.config(10, 1, 0.25)
			edit(&cfg)
			_, err := New(cfg, s.tables)
			s.ErrorIs(err, ErrInvalidConfiguration)
		})
	}
}

func (s *AssemblerSuite) TestWeekendRangeWrapsTemporalError() {
	cfg := s.config(10, 1, 0.25)
	cfg.StartDate = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	cfg.EndDate = time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	_, err := New(cfg, s.tables)
	s.ErrorIs(err, ErrInvalidConfiguration)
	s.ErrorIs(err, temporal.ErrNoBusinessDays)
}

func (s *AssemblerSuite) TestNilTables() {
	_, err := New(s.config(10, 1, 0.25), nil)
	s.ErrorIs(err, ErrInvalidConfiguration)
	s.ErrorIs(err, dictionary.ErrInvalidDictionary)
}

func (s *AssemblerSuite) TestEmptyTables() {
	_, err := New(s.config(3, 1, 0.25), &dictionary.Tables{})
	s.ErrorIs(err, ErrInvalidConfiguration)
	s.ErrorIs(err, dictionary.ErrInvalidDictionary)

	records, _, err := Generate(s.ctx, s.config(3, 1, 0.25), &dictionary.Tables{})
	s.ErrorIs(err, ErrInvalidConfiguration)
	s.Nil(records)
}

func (s *AssemblerSuite) TestDeterministic() {
	cfg := s.config(300, 7, 0.25)
	a, _, err := Generate(s.ctx, cfg, s.tables)
	s.Require().NoError(err)
	b, _, err := Generate(s.ctx, cfg, s.tables)
	s.Require().NoError(err)
	s.Require().Len(b, len(a))
	for i := range a {
		s.Require().Equal(*a[i].Client, *b[i].Client)
		s.Require().Equal(a[i].Symptoms, b[i].Symptoms)
		s.Require().Equal(a[i].LabTests, b[i].LabTests)
		s.Require().True(a[i].VisitAt.Equal(b[i].VisitAt))
		s.Require().True(a[i].ResultAt.Equal(b[i].ResultAt))
		s.Require().True(a[i].Cost.Equal(b[i].Cost))
		s.Require().Equal(a[i].Card, b[i].Card)
	}
}

func (s *AssemblerSuite) TestAssemblerRunsAreIndependent() {
	asm, err := New(s.config(50, 3, 0.25), s.tables)
	s.Require().NoError(err)
	a, _, err := asm.Generate(s.ctx)
	s.Require().NoError(err)
	b, _, err := asm.Generate(s.ctx)
	s.Require().NoError(err)
	s.Equal(a[49].Card, b[49].Card)
}

func (s *AssemblerSuite) TestDifferentSeedsDiffer() {
	a, _, err := Generate(s.ctx, s.config(20, 1, 0.25), s.tables)
	s.Require().NoError(err)
	b, _, err := Generate(s.ctx, s.config(20, 2, 0.25), s.tables)
	s.Require().NoError(err)
	s.NotEqual(a[0].Client.NationalID, b[0].Client.NationalID)
}

func (s *AssemblerSuite) TestRepeatProbabilityOne() {
	records, stats, err := Generate(s.ctx, s.config(50, 9, 1), s.tables)
	s.Require().NoError(err)
	s.False(records[0].Repeat)
	for _, r := range records[1:] {
		s.True(r.Repeat)
		s.Same(records[0].Client, r.Client)
	}
	s.Equal(1, stats.UniqueClients)
	s.Equal(49, stats.RepeatVisits)
}

func (s *AssemblerSuite) TestRecordProperties() {
	records, stats, err := Generate(s.ctx, s.config(1000, 42, 0.25), s.tables)
	s.Require().NoError(err)
	s.Require().Len(records, 1000)

	bins := map[string]bool{}
	for _, b := range s.tables.AllBINs() {
		bins[b] = true
	}
	asm, err := New(s.config(1000, 42, 0.25), s.tables)
	s.Require().NoError(err)
	cal := asm.Calendar()

	for _, r := range records {
		s.True(checksum.SNILSValid(r.Client.NationalID.Value))
		s.True(checksum.LuhnValid(r.Card.Number))
		s.True(bins[r.Card.BIN()])
		d := r.ResultAt.Sub(r.VisitAt)
		s.GreaterOrEqual(d, 24*time.Hour)
		s.LessOrEqual(d, 72*time.Hour)
		s.True(cal.IsBusinessDay(r.VisitAt))
		s.True(cal.InBusinessHours(r.VisitAt))
	}

	s.Equal(1000, stats.NewClients+stats.RepeatVisits)
	s.Equal(stats.NewClients, stats.UniqueClients)
	s.Equal(1000, stats.CardUses)
	s.Equal(10, stats.Batches)
	s.InDelta(0.25, float64(stats.RepeatVisits)/1000, 0.05)
	s.GreaterOrEqual(stats.ValidRatio(), 0.75)
	s.True(stats.MeetsThreshold(DefaultConfig().MinValidRatio))
	s.False(stats.MeetsThreshold(1.01))

	sum := 0
	for _, n := range stats.WarningsByCategory {
		sum += n
	}
	s.Equal(stats.Warnings, sum)
}

func (s *AssemblerSuite) TestBatchesAndObserver() {
	obs := &recordingObserver{}
	cfg := s.config(250, 5, 0.25)
	cfg.BatchSize = 100
	_, stats, err := Generate(s.ctx, cfg, s.tables, WithObserver(obs))
	s.Require().NoError(err)

	s.Equal(250, obs.records)
	s.Require().Len(obs.batches, 3)
	last := obs.batches[2]
	s.Equal(3, last.Index)
	s.Equal(201, last.First)
	s.Equal(250, last.Last)
	total := 0
	for _, b := range obs.batches {
		total += b.Warnings
	}
	s.Equal(stats.Warnings, total)
	s.Same(stats, obs.final)
	s.Equal(3, stats.Batches)
}

func (s *AssemblerSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	records, stats, err := Generate(ctx, s.config(100, 1, 0.25), s.tables)
	s.ErrorIs(err, context.Canceled)
	s.Empty(records)
	s.Zero(stats.Produced)
}

func (s *AssemblerSuite) TestClockDrivesElapsed() {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return start.Add(time.Duration(tick) * time.Second)
	}
	_, stats, err := Generate(s.ctx, s.config(10, 1, 0.25), s.tables, WithClock(clock))
	s.Require().NoError(err)
	s.Positive(stats.Elapsed)
	s.Positive(stats.Throughput())
}

func (s *AssemblerSuite) TestRunIDDeterministic() {
	s.Equal(RunID(42, 1000), RunID(42, 1000))
	s.NotEqual(RunID(42, 1000), RunID(43, 1000))
	_, stats, err := Generate(s.ctx, s.config(3, 42, 0), s.tables)
	s.Require().NoError(err)
	s.Equal(RunID(42, 3), stats.RunID)
}

func TestStats_Derived(t *testing.T) {
	st := &Stats{Produced: 10, RecordsWithWarnings: 2, Elapsed: 2 * time.Second, UniqueCards: 4, CardUses: 10}
	if got := st.ValidRatio(); got != 0.8 {
		t.Fatalf("ValidRatio = %v, want 0.8", got)
	}
	if st.ValidRecords() != 8 {
		t.Errorf("ValidRecords = %d, want 8", st.ValidRecords())
	}
	if st.Throughput() != 5 {
		t.Errorf("Throughput = %v, want 5", st.Throughput())
	}
	if st.AverageCardUses() != 2.5 {
		t.Errorf("AverageCardUses = %v, want 2.5", st.AverageCardUses())
	}
	if !st.MeetsThreshold(0.8) || st.MeetsThreshold(0.81) {
		t.Error("MeetsThreshold boundary is inclusive")
	}
	empty := &Stats{}
	if empty.Throughput() != 0 || empty.AverageCardUses() != 0 {
		t.Error("empty stats should report zero rates")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}
