// Package dataset drives a complete generation run: it validates the run
// configuration, wires the samplers around one seeded source, produces the
// requested number of visit records in batches and collects run statistics.
package dataset

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/clinicgen/clinicgen/internal/domain/identifier"
	"github.com/clinicgen/clinicgen/internal/domain/population"
	"github.com/clinicgen/clinicgen/internal/domain/temporal"
	"github.com/clinicgen/clinicgen/internal/domain/visit"
)

// ErrInvalidConfiguration is returned before any synthesis when the run
// parameters or reference tables are out of domain.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Config holds every parameter of one run. It is read-only once a run starts.
type Config struct {
	Size              int     `validate:"gte=0"`
	Seed              int64
	RepeatProbability float64 `validate:"gte=0,lte=1"`
	MinPoolForRepeat  int     `validate:"gte=1"`
	BatchSize         int     `validate:"gte=1"`

	StartDate        time.Time      `validate:"required"`
	EndDate          time.Time      `validate:"required"`
	BusinessDays     []time.Weekday `validate:"required,min=1,max=7,dive,gte=0,lte=6"`
	OpenHour         int            `validate:"gte=0,lte=23"`
	CloseHour        int            `validate:"gtfield=OpenHour,lte=24"`
	SlotMinutes      int            `validate:"gte=1,lte=60"`
	UTCOffsetMinutes int            `validate:"gte=-720,lte=840"`
	MinResultOffset  time.Duration  `validate:"gt=0"`
	MaxResultOffset  time.Duration  `validate:"gtefield=MinResultOffset"`

	MinSymptoms  int     `validate:"gte=1,lte=10"`
	MaxSymptoms  int     `validate:"gtefield=MinSymptoms,lte=10"`
	MinLabTests  int     `validate:"gte=1,lte=5"`
	MaxLabTests  int     `validate:"gtefield=MinLabTests,lte=5"`
	AffinityBias float64 `validate:"gte=0,lte=1"`

	CardReuseProbability float64 `validate:"gte=0,lte=1"`
	CardReuseLimit       int     `validate:"gte=1"`
	CostMin              int64   `validate:"gte=1"`
	CostMax              int64   `validate:"gtefield=CostMin"`
	PriceVariation       float64 `validate:"gte=0,lt=1"`

	MaxIdentifierRetries int     `validate:"gte=1"`
	MinValidRatio        float64 `validate:"gte=0,lte=1"`
}

// Hard bounds on list lengths checked by record validation.
const (
	SymptomLimit = 10
	LabTestLimit = 5
)

// DefaultConfig returns 1000 records with seed 42, a 25% repeat rate and
// batches of 100 over the default calendar.
func DefaultConfig() Config {
	cal := temporal.DefaultConfig()
	vc := visit.DefaultConfig()
	return Config{
		Size:              1000,
		Seed:              42,
		RepeatProbability: 0.25,
		MinPoolForRepeat:  1,
		BatchSize:         100,

		StartDate:        cal.Start,
		EndDate:          cal.End,
		BusinessDays:     cal.BusinessDays,
		OpenHour:         cal.OpenHour,
		CloseHour:        cal.CloseHour,
		SlotMinutes:      cal.SlotMinutes,
		UTCOffsetMinutes: cal.UTCOffsetMinutes,
		MinResultOffset:  cal.MinResultOffset,
		MaxResultOffset:  cal.MaxResultOffset,

		MinSymptoms:  vc.SymptomCount.Min,
		MaxSymptoms:  vc.SymptomCount.Max,
		MinLabTests:  vc.LabTestCount.Min,
		MaxLabTests:  vc.LabTestCount.Max,
		AffinityBias: 0.9,

		CardReuseProbability: vc.CardReuseProbability,
		CardReuseLimit:       vc.CardReuseLimit,
		CostMin:              vc.CostMin.IntPart(),
		CostMax:              vc.CostMax.IntPart(),
		PriceVariation:       vc.PriceVariation,

		MaxIdentifierRetries: identifier.DefaultMaxRetries,
		MinValidRatio:        0.75,
	}
}

var validate = validator.New()

// Validate checks every field and the cross-field rules. The returned error
// wraps ErrInvalidConfiguration.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfiguration, formatValidationErrors(err))
	}
	if c.EndDate.Before(c.StartDate) {
		return fmt.Errorf("%w: end date %s is before start date %s", ErrInvalidConfiguration,
			c.EndDate.Format(time.DateOnly), c.StartDate.Format(time.DateOnly))
	}
	return nil
}

func formatValidationErrors(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := e.Field()
		switch e.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "min":
			msgs = append(msgs, field+" must have at least "+e.Param()+" entries")
		case "max":
			msgs = append(msgs, field+" must have at most "+e.Param()+" entries")
		case "gt":
			msgs = append(msgs, field+" must be greater than "+e.Param())
		case "gte":
			msgs = append(msgs, field+" must be greater than or equal to "+e.Param())
		case "lt":
			msgs = append(msgs, field+" must be less than "+e.Param())
		case "lte":
			msgs = append(msgs, field+" must be less than or equal to "+e.Param())
		case "gtfield", "gtefield":
			msgs = append(msgs, field+" must not be below "+e.Param())
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	sort.Strings(msgs)
	return strings.Join(msgs, "; ")
}

// Calendar returns the temporal model configuration.
func (c Config) Calendar() temporal.Config {
	return temporal.Config{
		Start:            c.StartDate,
		End:              c.EndDate,
		BusinessDays:     c.BusinessDays,
		OpenHour:         c.OpenHour,
		CloseHour:        c.CloseHour,
		SlotMinutes:      c.SlotMinutes,
		UTCOffsetMinutes: c.UTCOffsetMinutes,
		MinResultOffset:  c.MinResultOffset,
		MaxResultOffset:  c.MaxResultOffset,
	}
}

// Visit returns the record synthesis configuration.
func (c Config) Visit() visit.Config {
	return visit.Config{
		SymptomCount:         visit.CountRange{Min: c.MinSymptoms, Max: c.MaxSymptoms},
		LabTestCount:         visit.CountRange{Min: c.MinLabTests, Max: c.MaxLabTests},
		MaxSymptoms:          SymptomLimit,
		MaxLabTests:          LabTestLimit,
		PriceVariation:       c.PriceVariation,
		CostMin:              decimal.NewFromInt(c.CostMin),
		CostMax:              decimal.NewFromInt(c.CostMax),
		CardReuseProbability: c.CardReuseProbability,
		CardReuseLimit:       c.CardReuseLimit,
	}
}

// Population returns the client pool configuration relative to reference.
func (c Config) Population(reference time.Time) population.Config {
	pc := population.DefaultConfig(reference)
	pc.RepeatProbability = c.RepeatProbability
	pc.MinPoolForRepeat = c.MinPoolForRepeat
	return pc
}
