// Package visit composes individual clinic visit records and checks each one
// against the record invariants, reporting violations as warnings.
package visit

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/clinicgen/clinicgen/internal/domain/identifier"
	"github.com/clinicgen/clinicgen/internal/domain/population"
)

// Record is one output row. Records are immutable after synthesis.
type Record struct {
	Seq            int                `json:"seq"`
	Client         *population.Client `json:"client"`
	Repeat         bool               `json:"repeat"`
	Specialization string             `json:"specialization"`
	Symptoms       []string           `json:"symptoms"`
	VisitAt        time.Time          `json:"visitAt"`
	LabTests       []string           `json:"labTests"`
	ResultAt       time.Time          `json:"resultAt"`
	Cost           decimal.Decimal    `json:"cost"`
	Card           identifier.Card    `json:"card"`
	// CardUse is the ordinal of this payment on the card, starting at 1.
	CardUse int `json:"cardUse"`
}

// Category classifies a validation warning. Each record invariant has one.
type Category string

const (
	CategoryFullNameFormat     Category = "full_name_format"
	CategoryPassportFormat     Category = "passport_format"
	CategoryNationalIDChecksum Category = "national_id_checksum"
	CategoryCardChecksum       Category = "card_checksum"
	CategoryCardBIN            Category = "card_bin"
	CategoryCardReuseLimit     Category = "card_reuse_limit"
	CategorySymptomCount       Category = "symptom_count"
	CategorySymptomDuplicate   Category = "symptom_duplicate"
	CategorySymptomAffinity    Category = "symptom_affinity"
	CategoryLabTestCount       Category = "lab_test_count"
	CategoryLabTestDuplicate   Category = "lab_test_duplicate"
	CategoryLabTestAffinity    Category = "lab_test_affinity"
	CategoryVisitBusinessDay   Category = "visit_business_day"
	CategoryVisitBusinessHours Category = "visit_business_hours"
	CategoryResultOffset       Category = "result_offset"
	CategoryCostNonPositive    Category = "cost_non_positive"
	CategoryCostOutOfRange     Category = "cost_out_of_range"
)

// Categories returns every category in a stable order.
func Categories() []Category {
	return []Category{
		CategoryFullNameFormat,
		CategoryPassportFormat,
		CategoryNationalIDChecksum,
		CategoryCardChecksum,
		CategoryCardBIN,
		CategoryCardReuseLimit,
		CategorySymptomCount,
		CategorySymptomDuplicate,
		CategorySymptomAffinity,
		CategoryLabTestCount,
		CategoryLabTestDuplicate,
		CategoryLabTestAffinity,
		CategoryVisitBusinessDay,
		CategoryVisitBusinessHours,
		CategoryResultOffset,
		CategoryCostNonPositive,
		CategoryCostOutOfRange,
	}
}

// Warning is a non-fatal invariant violation found on a record.
type Warning struct {
	Seq      int      `json:"seq"`
	Category Category `json:"category"`
	Detail   string   `json:"detail"`
}

// CountRange is an inclusive range of list lengths.
type CountRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Config shapes record synthesis and validation.
type Config struct {
	// SymptomCount and LabTestCount are the drawn list lengths; MaxSymptoms
	// and MaxLabTests are the hard bounds checked by validation.
	SymptomCount CountRange
	LabTestCount CountRange
	MaxSymptoms  int
	MaxLabTests  int

	// PriceVariation v scales each test's base price by uniform [1-v, 1+v].
	PriceVariation float64
	CostMin        decimal.Decimal
	CostMax        decimal.Decimal

	CardReuseProbability float64
	CardReuseLimit       int
}

// DefaultConfig returns 1-3 symptoms, 1-2 lab tests, +-20% prices within
// 100-100000 and cards reused with probability 0.4 up to 5 times.
func DefaultConfig() Config {
	return Config{
		SymptomCount:         CountRange{Min: 1, Max: 3},
		LabTestCount:         CountRange{Min: 1, Max: 2},
		MaxSymptoms:          10,
		MaxLabTests:          5,
		PriceVariation:       0.2,
		CostMin:              decimal.NewFromInt(100),
		CostMax:              decimal.NewFromInt(100000),
		CardReuseProbability: 0.4,
		CardReuseLimit:       5,
	}
}
