package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicgen/clinicgen/internal/platform/rng"
)

func TestNew_DefaultConfig(t *testing.T) {
	m, err := New(DefaultConfig())
	require.NoError(t, err)
	// 2025 has 261 weekdays.
	assert.Equal(t, 261, m.BusinessDays())
	assert.Equal(t, "UTC+03:00", m.Location().String())
	assert.Equal(t, time.Date(2025, 12, 31, 0, 0, 0, 0, m.Location()), m.ReferenceDate())
}

func TestNew_NoBusinessDays(t *testing.T) {
	cfg := DefaultConfig()
	// A single weekend.
	cfg.Start = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	cfg.End = time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	_, err := New(cfg)
	assert.ErrorIs(t, err, ErrNoBusinessDays)

	cfg = DefaultConfig()
	cfg.BusinessDays = nil
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrNoBusinessDays)

	cfg = DefaultConfig()
	cfg.Start, cfg.End = cfg.End, cfg.Start
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrNoBusinessDays)
}

func TestNew_InvalidWindow(t *testing.T) {
	cases := map[string]func(*Config){
		"open after close":  func(c *Config) { c.OpenHour, c.CloseHour = 18, 9 },
		"close past 24":     func(c *Config) { c.CloseHour = 25 },
		"zero slot":         func(c *Config) { c.SlotMinutes = 0 },
		"zero min offset":   func(c *Config) { c.MinResultOffset = 0 },
		"max below min":     func(c *Config) { c.MaxResultOffset = time.Hour },
		"offset out of tz":  func(c *Config) { c.UTCOffsetMinutes = 15 * 60 },
		"weekday too large": func(c *Config) { c.BusinessDays = []time.Weekday{9} },
	}
	for name, edit := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			edit(&cfg)
			_, err := New(cfg)
			assert.ErrorIs(t, err, ErrInvalidWindow)
		})
	}
}

func TestVisitTimestamp_BusinessDayAndHours(t *testing.T) {
	m, err := New(DefaultConfig())
	require.NoError(t, err)
	src := rng.New(42)

	for i := 0; i < 5000; i++ {
		v := m.VisitTimestamp(src)
		require.True(t, m.IsBusinessDay(v), v)
		require.True(t, m.InBusinessHours(v), v)
		assert.NotEqual(t, time.Saturday, v.Weekday())
		assert.NotEqual(t, time.Sunday, v.Weekday())
		assert.Zero(t, v.Minute()%15)
		assert.Equal(t, 2025, v.Year())
		_, offset := v.Zone()
		assert.Equal(t, 3*3600, offset)
	}
}

func TestResultTimestamp_Bounds(t *testing.T) {
	m, err := New(DefaultConfig())
	require.NoError(t, err)
	src := rng.New(7)

	distinct := map[time.Duration]bool{}
	for i := 0; i < 5000; i++ {
		v := m.VisitTimestamp(src)
		r := m.ResultTimestamp(src, v)
		d := r.Sub(v)
		require.GreaterOrEqual(t, d, 24*time.Hour)
		require.LessOrEqual(t, d, 72*time.Hour)
		require.True(t, r.After(v))
		require.True(t, m.ValidResultOffset(v, r))
		distinct[d] = true
	}
	assert.Greater(t, len(distinct), 100, "offset must be drawn per record")
}

func TestPredicates(t *testing.T) {
	m, err := New(DefaultConfig())
	require.NoError(t, err)
	loc := m.Location()

	assert.True(t, m.InBusinessHours(time.Date(2025, 3, 3, 9, 0, 0, 0, loc)))
	assert.True(t, m.InBusinessHours(time.Date(2025, 3, 3, 17, 59, 0, 0, loc)))
	assert.False(t, m.InBusinessHours(time.Date(2025, 3, 3, 18, 0, 0, 0, loc)))
	assert.False(t, m.InBusinessHours(time.Date(2025, 3, 3, 8, 59, 0, 0, loc)))
	// 06:30 UTC is 09:30 in the clinic's zone.
	assert.True(t, m.InBusinessHours(time.Date(2025, 3, 3, 6, 30, 0, 0, time.UTC)))

	assert.True(t, m.IsBusinessDay(time.Date(2025, 3, 3, 12, 0, 0, 0, loc)))
	assert.False(t, m.IsBusinessDay(time.Date(2025, 3, 1, 12, 0, 0, 0, loc)))
	assert.False(t, m.IsBusinessDay(time.Date(2026, 1, 5, 12, 0, 0, 0, loc)))

	v := time.Date(2025, 3, 3, 10, 0, 0, 0, loc)
	assert.False(t, m.ValidResultOffset(v, v))
	assert.False(t, m.ValidResultOffset(v, v.Add(72*time.Hour+time.Minute)))
	assert.True(t, m.ValidResultOffset(v, v.Add(72*time.Hour)))
}

func TestFormatParse(t *testing.T) {
	loc := Zone(180)
	ts := time.Date(2025, 4, 7, 14, 45, 0, 0, loc)
	s := Format(ts)
	assert.Equal(t, "2025-04-07T14:45+03:00", s)

	back, err := Parse(s)
	require.NoError(t, err)
	assert.True(t, back.Equal(ts))

	_, err = Parse("2025-04-07 14:45")
	assert.Error(t, err)

	assert.Equal(t, "UTC-05:30", Zone(-330).String())
}

func TestModel_Deterministic(t *testing.T) {
	m, err := New(DefaultConfig())
	require.NoError(t, err)
	a, b := rng.New(5), rng.New(5)
	for i := 0; i < 100; i++ {
		va, vb := m.VisitTimestamp(a), m.VisitTimestamp(b)
		require.Equal(t, va, vb)
		require.Equal(t, m.ResultTimestamp(a, va), m.ResultTimestamp(b, vb))
	}
}
