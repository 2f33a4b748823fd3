package visit

import (
	"fmt"
	"strings"

	"github.com/clinicgen/clinicgen/internal/domain/dictionary"
	"github.com/clinicgen/clinicgen/internal/domain/identifier"
	"github.com/clinicgen/clinicgen/internal/domain/temporal"
)

// Validator checks a record against every invariant and reports each
// violation as a Warning. It never rejects a record.
type Validator struct {
	cfg      Config
	tables   *dictionary.Tables
	calendar *temporal.Model
	bins     map[string]struct{}
}

// NewValidator returns a validator for records built from tables and calendar.
func NewValidator(cfg Config, tables *dictionary.Tables, calendar *temporal.Model) *Validator {
	v := &Validator{
		cfg:      cfg,
		tables:   tables,
		calendar: calendar,
		bins:     make(map[string]struct{}),
	}
	for _, bin := range tables.AllBINs() {
		v.bins[bin] = struct{}{}
	}
	return v
}

// Validate returns the warnings for r in Categories order.
func (v *Validator) Validate(r *Record) []Warning {
	var out []Warning
	warn := func(c Category, format string, args ...any) {
		out = append(out, Warning{Seq: r.Seq, Category: c, Detail: fmt.Sprintf(format, args...)})
	}

	c := r.Client
	if parts := strings.Fields(c.FullName()); len(parts) != 3 {
		warn(CategoryFullNameFormat, "full name has %d parts", len(parts))
	}
	if !identifier.ValidPassport(c.Country, c.Passport) {
		warn(CategoryPassportFormat, "passport %q does not match %s format", c.Passport, c.Country)
	}
	if !identifier.ValidNationalID(c.NationalID) {
		warn(CategoryNationalIDChecksum, "%s %q fails its checksum", c.NationalID.Scheme, c.NationalID.Value)
	}

	if !identifier.ValidCard(r.Card.Number) {
		warn(CategoryCardChecksum, "card %s fails Luhn", r.Card.Formatted())
	}
	if _, ok := v.bins[r.Card.BIN()]; !ok {
		warn(CategoryCardBIN, "card BIN %s is not configured", r.Card.BIN())
	}
	if r.CardUse > v.cfg.CardReuseLimit {
		warn(CategoryCardReuseLimit, "card used %d times, limit %d", r.CardUse, v.cfg.CardReuseLimit)
	}

	sp, known := v.tables.Specialization(r.Specialization)

	v.checkList(r.Symptoms, v.cfg.MaxSymptoms, CategorySymptomCount, CategorySymptomDuplicate, warn, "symptoms")
	if known && !anyIn(r.Symptoms, sp.Symptoms) {
		warn(CategorySymptomAffinity, "no symptom is associated with %s", r.Specialization)
	}

	v.checkList(r.LabTests, v.cfg.MaxLabTests, CategoryLabTestCount, CategoryLabTestDuplicate, warn, "lab tests")
	if known && !anyIn(r.LabTests, v.tables.LabTestAffinity(sp)) {
		warn(CategoryLabTestAffinity, "no lab test is associated with %s", r.Specialization)
	}

	if !v.calendar.IsBusinessDay(r.VisitAt) {
		warn(CategoryVisitBusinessDay, "visit on %s", r.VisitAt.Weekday())
	}
	if !v.calendar.InBusinessHours(r.VisitAt) {
		warn(CategoryVisitBusinessHours, "visit at %s", r.VisitAt.In(v.calendar.Location()).Format("15:04"))
	}
	if !v.calendar.ValidResultOffset(r.VisitAt, r.ResultAt) {
		warn(CategoryResultOffset, "result %s after visit", r.ResultAt.Sub(r.VisitAt))
	}

	if !r.Cost.IsPositive() {
		warn(CategoryCostNonPositive, "cost %s", r.Cost)
	} else if r.Cost.LessThan(v.cfg.CostMin) || r.Cost.GreaterThan(v.cfg.CostMax) {
		warn(CategoryCostOutOfRange, "cost %s outside %s-%s", r.Cost, v.cfg.CostMin, v.cfg.CostMax)
	}
	return out
}

func (v *Validator) checkList(list []string, max int, count, dup Category, warn func(Category, string, ...any), name string) {
	if len(list) < 1 || len(list) > max {
		warn(count, "%d %s, want 1-%d", len(list), name, max)
	}
	seen := make(map[string]bool, len(list))
	for _, s := range list {
		if seen[s] {
			warn(dup, "%q listed twice", s)
			return
		}
		seen[s] = true
	}
}

func anyIn(values, set []string) bool {
	for _, v := range values {
		for _, s := range set {
			if v == s {
				return true
			}
		}
	}
	return false
}
