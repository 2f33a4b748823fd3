package export

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/clinicgen/clinicgen/internal/domain/dataset"
	"github.com/clinicgen/clinicgen/internal/domain/identifier"
	"github.com/clinicgen/clinicgen/internal/domain/temporal"
	"github.com/clinicgen/clinicgen/pkg/checksum"
)

var ErrMissingColumn = errors.New("missing column")

var costPattern = regexp.MustCompile(`^(\d+) руб\.$`)

// Limits are the numeric bounds exported rows are checked against.
type Limits struct {
	MinResultOffset time.Duration
	MaxResultOffset time.Duration
	MaxSymptoms     int
	MaxLabTests     int
}

// DefaultLimits matches the default generation settings.
func DefaultLimits() Limits {
	cal := temporal.DefaultConfig()
	return Limits{
		MinResultOffset: cal.MinResultOffset,
		MaxResultOffset: cal.MaxResultOffset,
		MaxSymptoms:     dataset.SymptomLimit,
		MaxLabTests:     dataset.LabTestLimit,
	}
}

// Issue is one failed check on an exported cell. Row is 1-based over data
// rows.
type Issue struct {
	Row    int    `json:"row"`
	Column string `json:"column"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

// Summary aggregates the result of verifying a file.
type Summary struct {
	Rows      int            `json:"rows"`
	ValidRows int            `json:"validRows"`
	Issues    []Issue        `json:"issues"`
	ByColumn  map[string]int `json:"byColumn"`
}

// ValidRatio is the share of rows without issues, 1 for an empty file.
func (s *Summary) ValidRatio() float64 {
	if s.Rows == 0 {
		return 1
	}
	return float64(s.ValidRows) / float64(s.Rows)
}

// Verify re-checks exported rows at the string level. Every base column must
// be present in header; the extended columns are used when present.
func Verify(header []string, rows [][]string, lim Limits) (*Summary, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, col := range baseColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	s := &Summary{Rows: len(rows), ByColumn: make(map[string]int)}
	for i, row := range rows {
		get := func(col string) string {
			j, ok := idx[col]
			if !ok || j >= len(row) {
				return ""
			}
			return row[j]
		}
		issues := verifyRow(i+1, get, lim)
		if len(issues) == 0 {
			s.ValidRows++
		}
		for _, is := range issues {
			s.ByColumn[is.Column]++
		}
		s.Issues = append(s.Issues, issues...)
	}
	return s, nil
}

func verifyRow(n int, get func(string) string, lim Limits) []Issue {
	var issues []Issue
	fail := func(col, reason string) {
		issues = append(issues, Issue{Row: n, Column: col, Value: get(col), Reason: reason})
	}

	if len(strings.Fields(get(ColFullName))) != 3 {
		fail(ColFullName, "must contain surname, given name and patronymic")
	}

	passport := get(ColPassport)
	country := get(ColCountry)
	if country == "" {
		country = identifier.DetectPassportCountry(passport)
	}
	if !identifier.ValidPassport(country, passport) {
		fail(ColPassport, fmt.Sprintf("invalid passport format for country %q", country))
	}

	if id := get(ColNationalID); !validNationalID(id) {
		fail(ColNationalID, "invalid format or checksum")
	}

	if count := listLen(get(ColSymptoms)); count < 1 || count > lim.MaxSymptoms {
		fail(ColSymptoms, fmt.Sprintf("expected 1 to %d entries, got %d", lim.MaxSymptoms, count))
	}
	if get(ColSpecialization) == "" {
		fail(ColSpecialization, "empty")
	}
	if count := listLen(get(ColLabTests)); count < 1 || count > lim.MaxLabTests {
		fail(ColLabTests, fmt.Sprintf("expected 1 to %d entries, got %d", lim.MaxLabTests, count))
	}

	visitAt, verr := temporal.Parse(get(ColVisitAt))
	if verr != nil {
		fail(ColVisitAt, "not an ISO-8601 timestamp with offset")
	}
	resultAt, rerr := temporal.Parse(get(ColResultAt))
	if rerr != nil {
		fail(ColResultAt, "not an ISO-8601 timestamp with offset")
	}
	if verr == nil && rerr == nil {
		d := resultAt.Sub(visitAt)
		if d < lim.MinResultOffset || d > lim.MaxResultOffset {
			fail(ColResultAt, fmt.Sprintf("result %.1fh after visit, want %s to %s",
				d.Hours(), lim.MinResultOffset, lim.MaxResultOffset))
		}
	}

	if m := costPattern.FindStringSubmatch(get(ColCost)); m == nil {
		fail(ColCost, `must be formatted as "N руб."`)
	} else if v, err := strconv.ParseInt(m[1], 10, 64); err != nil || v <= 0 {
		fail(ColCost, "must be positive")
	}

	if !identifier.ValidCard(get(ColCard)) {
		fail(ColCard, "invalid card number or Luhn checksum")
	}
	return issues
}

func validNationalID(s string) bool {
	if digits := checksum.StripSeparators(s); len(digits) == checksum.IINPayloadLen+1 && digits == s {
		return checksum.IINValid(s)
	}
	return identifier.ValidSNILS(s)
}

func listLen(s string) int {
	if strings.TrimSpace(s) == "" {
		return 0
	}
	return len(strings.Split(s, ListSeparator))
}
