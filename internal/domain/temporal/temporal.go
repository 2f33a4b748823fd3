// Package temporal draws visit timestamps on business days within business
// hours and derives lab result timestamps a bounded offset later.
package temporal

import (
	"errors"
	"fmt"
	"time"

	"github.com/clinicgen/clinicgen/internal/platform/rng"
)

// Layout is the ISO-8601 form used for every exported timestamp: minutes
// precision with a numeric UTC offset.
const Layout = "2006-01-02T15:04-07:00"

var (
	// ErrNoBusinessDays is returned when the date range contains no day in
	// the business-day set.
	ErrNoBusinessDays = errors.New("date range contains no business days")

	// ErrInvalidWindow is returned for malformed hours, slots or offsets.
	ErrInvalidWindow = errors.New("invalid temporal window")
)

// Config describes the calendar. Start and End are calendar dates (time of
// day is ignored) interpreted in the fixed zone.
type Config struct {
	Start            time.Time
	End              time.Time
	BusinessDays     []time.Weekday
	OpenHour         int
	CloseHour        int
	SlotMinutes      int
	UTCOffsetMinutes int
	MinResultOffset  time.Duration
	MaxResultOffset  time.Duration
}

// DefaultConfig covers calendar year 2025, Monday to Friday, 09:00-18:00 in
// UTC+03:00 with results 24-72 hours after the visit.
func DefaultConfig() Config {
	return Config{
		Start:            time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:              time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC),
		BusinessDays:     []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		OpenHour:         9,
		CloseHour:        18,
		SlotMinutes:      15,
		UTCOffsetMinutes: 180,
		MinResultOffset:  24 * time.Hour,
		MaxResultOffset:  72 * time.Hour,
	}
}

// Model samples timestamps. It is immutable after New.
type Model struct {
	cfg      Config
	loc      *time.Location
	days     []time.Time
	weekdays [7]bool
	slots    int
}

// New validates cfg and enumerates the business days of the range.
func New(cfg Config) (*Model, error) {
	if cfg.OpenHour < 0 || cfg.CloseHour > 24 || cfg.OpenHour >= cfg.CloseHour {
		return nil, fmt.Errorf("%w: business hours %d-%d", ErrInvalidWindow, cfg.OpenHour, cfg.CloseHour)
	}
	if cfg.SlotMinutes <= 0 || cfg.SlotMinutes > (cfg.CloseHour-cfg.OpenHour)*60 {
		return nil, fmt.Errorf("%w: slot of %d minutes", ErrInvalidWindow, cfg.SlotMinutes)
	}
	if cfg.UTCOffsetMinutes < -12*60 || cfg.UTCOffsetMinutes > 14*60 {
		return nil, fmt.Errorf("%w: utc offset %d minutes", ErrInvalidWindow, cfg.UTCOffsetMinutes)
	}
	if cfg.MinResultOffset <= 0 || cfg.MaxResultOffset < cfg.MinResultOffset {
		return nil, fmt.Errorf("%w: result offset %s-%s", ErrInvalidWindow, cfg.MinResultOffset, cfg.MaxResultOffset)
	}

	m := &Model{
		cfg:   cfg,
		loc:   Zone(cfg.UTCOffsetMinutes),
		slots: (cfg.CloseHour - cfg.OpenHour) * 60 / cfg.SlotMinutes,
	}
	for _, d := range cfg.BusinessDays {
		if d < time.Sunday || d > time.Saturday {
			return nil, fmt.Errorf("%w: weekday %d", ErrInvalidWindow, d)
		}
		m.weekdays[d] = true
	}

	day := m.date(cfg.Start)
	end := m.date(cfg.End)
	for !day.After(end) {
		if m.weekdays[day.Weekday()] {
			m.days = append(m.days, day)
		}
		day = day.AddDate(0, 0, 1)
	}
	if len(m.days) == 0 {
		return nil, fmt.Errorf("%w: %s..%s", ErrNoBusinessDays, cfg.Start.Format(time.DateOnly), cfg.End.Format(time.DateOnly))
	}
	return m, nil
}

// Zone returns the fixed zone for an offset in minutes east of UTC.
func Zone(offsetMinutes int) *time.Location {
	sign := '+'
	abs := offsetMinutes
	if abs < 0 {
		sign = '-'
		abs = -abs
	}
	return time.FixedZone(fmt.Sprintf("UTC%c%02d:%02d", sign, abs/60, abs%60), offsetMinutes*60)
}

func (m *Model) date(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, m.loc)
}

// Config returns the configuration the model was built from.
func (m *Model) Config() Config { return m.cfg }

// Location returns the fixed zone timestamps are tagged with.
func (m *Model) Location() *time.Location { return m.loc }

// BusinessDays returns the number of business days in the range.
func (m *Model) BusinessDays() int { return len(m.days) }

// ReferenceDate is the last day of the range; ages and document dates are
// computed relative to it.
func (m *Model) ReferenceDate() time.Time { return m.date(m.cfg.End) }

// VisitTimestamp draws a uniform business day and a uniform slot within
// business hours.
func (m *Model) VisitTimestamp(src *rng.Source) time.Time {
	day := rng.Pick(src, m.days)
	slot := src.Intn(m.slots)
	minutes := m.cfg.OpenHour*60 + slot*m.cfg.SlotMinutes
	return day.Add(time.Duration(minutes) * time.Minute)
}

// ResultTimestamp adds a fresh uniform offset, in whole minutes, within the
// configured bounds.
func (m *Model) ResultTimestamp(src *rng.Source, visit time.Time) time.Time {
	lo := int(m.cfg.MinResultOffset / time.Minute)
	hi := int(m.cfg.MaxResultOffset / time.Minute)
	return visit.Add(time.Duration(src.IntRange(lo, hi)) * time.Minute)
}

// IsBusinessDay reports whether t, viewed in the model's zone, falls on a
// business weekday inside the date range.
func (m *Model) IsBusinessDay(t time.Time) bool {
	local := t.In(m.loc)
	day := m.date(local)
	if day.Before(m.days[0]) || day.After(m.days[len(m.days)-1]) {
		return false
	}
	return m.weekdays[local.Weekday()]
}

// InBusinessHours reports whether t's local time of day is in [open, close).
func (m *Model) InBusinessHours(t time.Time) bool {
	local := t.In(m.loc)
	minutes := local.Hour()*60 + local.Minute()
	return minutes >= m.cfg.OpenHour*60 && minutes < m.cfg.CloseHour*60
}

// ValidResultOffset reports whether result - visit lies within the bounds.
func (m *Model) ValidResultOffset(visit, result time.Time) bool {
	d := result.Sub(visit)
	return d >= m.cfg.MinResultOffset && d <= m.cfg.MaxResultOffset
}

// Format renders t in Layout.
func Format(t time.Time) string { return t.Format(Layout) }

// Parse reads a timestamp written by Format.
func Parse(s string) (time.Time, error) { return time.Parse(Layout, s) }
