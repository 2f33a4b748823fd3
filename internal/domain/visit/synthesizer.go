package visit

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/clinicgen/clinicgen/internal/domain/dictionary"
	"github.com/clinicgen/clinicgen/internal/domain/identifier"
	"github.com/clinicgen/clinicgen/internal/domain/population"
	"github.com/clinicgen/clinicgen/internal/domain/temporal"
	"github.com/clinicgen/clinicgen/internal/platform/rng"
)

// Deps are the collaborators a Synthesizer draws from. All of them must be
// owned by the same generation run.
type Deps struct {
	Sampler     *dictionary.Sampler
	Population  *population.Model
	Calendar    *temporal.Model
	Identifiers *identifier.Synthesizer
}

// Synthesizer composes one visit record per call to Next.
type Synthesizer struct {
	cfg       Config
	deps      Deps
	tables    *dictionary.Tables
	validator *Validator
	wallet    wallet
	seq       int
}

// NewSynthesizer wires a synthesizer over deps.
func NewSynthesizer(cfg Config, deps Deps) *Synthesizer {
	tables := deps.Sampler.Tables()
	return &Synthesizer{
		cfg:       cfg,
		deps:      deps,
		tables:    tables,
		validator: NewValidator(cfg, tables, deps.Calendar),
	}
}

// Validator returns the validator applied to every record.
func (s *Synthesizer) Validator() *Validator { return s.validator }

// Next synthesizes and validates the next record. Warnings never cause an
// error; only identifier exhaustion does.
func (s *Synthesizer) Next(src *rng.Source) (*Record, []Warning, error) {
	client, repeat, err := s.deps.Population.Next(src)
	if err != nil {
		return nil, nil, fmt.Errorf("select client: %w", err)
	}

	sp := s.deps.Sampler.Specialization(src, client.Gender)
	symptoms := s.deps.Sampler.Symptoms(src, sp, src.IntRange(s.cfg.SymptomCount.Min, s.cfg.SymptomCount.Max))
	visitAt := s.deps.Calendar.VisitTimestamp(src)
	labTests := s.deps.Sampler.LabTests(src, sp, src.IntRange(s.cfg.LabTestCount.Min, s.cfg.LabTestCount.Max))
	resultAt := s.deps.Calendar.ResultTimestamp(src, visitAt)
	cost := s.cost(src, sp, labTests)

	card, uses, err := s.payWith(src)
	if err != nil {
		return nil, nil, fmt.Errorf("issue card: %w", err)
	}

	s.seq++
	r := &Record{
		Seq:            s.seq,
		Client:         client,
		Repeat:         repeat,
		Specialization: sp.Name,
		Symptoms:       symptoms,
		VisitAt:        visitAt,
		LabTests:       labTests,
		ResultAt:       resultAt,
		Cost:           cost,
		Card:           card,
		CardUse:        uses,
	}
	return r, s.validator.Validate(r), nil
}

// cost sums each test's base price scaled by a uniform variation, applies the
// specialization multiplier and rounds to whole currency units.
func (s *Synthesizer) cost(src *rng.Source, sp *dictionary.Specialization, tests []string) decimal.Decimal {
	total := decimal.Zero
	v := s.cfg.PriceVariation
	for _, name := range tests {
		total = total.Add(s.basePrice(src, name).Mul(decimal.NewFromFloat(src.FloatRange(1-v, 1+v))))
	}
	return total.Mul(decimal.NewFromFloat(sp.CostMultiplier)).Round(0)
}

func (s *Synthesizer) basePrice(src *rng.Source, name string) decimal.Decimal {
	category := dictionary.OtherCategory
	if lt, ok := s.tables.LabTest(name); ok {
		if lt.Price > 0 {
			return decimal.NewFromInt(int64(lt.Price))
		}
		category = lt.Category
	}
	r, ok := s.tables.PriceRanges[category]
	if !ok {
		r = s.tables.PriceRanges[dictionary.OtherCategory]
	}
	return decimal.NewFromInt(int64(src.IntRange(r.Min, r.Max)))
}

// payWith reuses an issued card under its use limit with the configured
// probability, otherwise issues a new card from a weighted bank and system.
func (s *Synthesizer) payWith(src *rng.Source) (identifier.Card, int, error) {
	if e := s.wallet.reuse(src, s.cfg.CardReuseProbability, s.cfg.CardReuseLimit); e != nil {
		return e.card, e.uses, nil
	}
	bank := s.deps.Sampler.Bank(src)
	system := s.deps.Sampler.PaymentSystem(src, bank)
	card, err := s.deps.Identifiers.Card(src, bank, system)
	if err != nil {
		return identifier.Card{}, 0, err
	}
	s.wallet.add(card, s.cfg.CardReuseLimit)
	return card, 1, nil
}

// Cards returns the number of distinct cards issued and the total payments
// made with them.
func (s *Synthesizer) Cards() (unique, uses int) {
	return len(s.wallet.cards), s.wallet.payments
}

type walletEntry struct {
	card identifier.Card
	uses int
}

// wallet holds every issued card; open lists those still under the limit.
type wallet struct {
	cards    []*walletEntry
	open     []*walletEntry
	payments int
}

// reuse returns an open card with its use count already incremented, or nil
// when a new card should be issued.
func (w *wallet) reuse(src *rng.Source, probability float64, limit int) *walletEntry {
	if len(w.cards) == 0 || !src.Chance(probability) || len(w.open) == 0 {
		return nil
	}
	i := src.Intn(len(w.open))
	e := w.open[i]
	e.uses++
	w.payments++
	if e.uses >= limit {
		w.open = append(w.open[:i], w.open[i+1:]...)
	}
	return e
}

func (w *wallet) add(card identifier.Card, limit int) {
	e := &walletEntry{card: card, uses: 1}
	w.cards = append(w.cards, e)
	w.payments++
	if e.uses < limit {
		w.open = append(w.open, e)
	}
}
