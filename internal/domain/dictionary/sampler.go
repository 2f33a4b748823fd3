package dictionary

import (
	"strings"

	"github.com/clinicgen/clinicgen/internal/platform/rng"
)

// DefaultAffinityBias is the probability that a symptom or lab test pick is
// taken from the specialization's affinity set rather than the general pool.
const DefaultAffinityBias = 0.9

// Person is a sampled full name with gender.
type Person struct {
	Surname    string
	Given      string
	Patronymic string
	Gender     Gender
}

// FullName returns "Surname Given Patronymic".
func (p Person) FullName() string {
	return p.Surname + " " + p.Given + " " + p.Patronymic
}

// Sampler draws attribute values from Tables. It holds no mutable state; all
// randomness comes from the source passed to each call.
type Sampler struct {
	tables *Tables
	bias   float64

	countryWeights []float64
	bankWeights    []float64
}

// NewSampler returns a sampler over t. A bias outside [0, 1] is clamped.
func NewSampler(t *Tables, bias float64) *Sampler {
	if bias < 0 {
		bias = 0
	}
	if bias > 1 {
		bias = 1
	}
	s := &Sampler{tables: t, bias: bias}
	for _, c := range t.Countries {
		s.countryWeights = append(s.countryWeights, c.Weight)
	}
	for _, b := range t.Banks {
		s.bankWeights = append(s.bankWeights, b.Weight)
	}
	return s
}

// Tables returns the tables the sampler draws from.
func (s *Sampler) Tables() *Tables { return s.tables }

// Bias returns the affinity bias.
func (s *Sampler) Bias() float64 { return s.bias }

// Person draws a gender and a matching full name.
func (s *Sampler) Person(src *rng.Source) Person {
	n := s.tables.Names
	p := Person{Gender: Male}
	if src.Chance(0.5) {
		p.Gender = Female
	}
	surname := rng.Pick(src, n.Surnames)
	if p.Gender == Female {
		p.Surname = Feminize(surname)
		p.Given = rng.Pick(src, n.Female)
		p.Patronymic = rng.Pick(src, n.PatronymicsFemale)
	} else {
		p.Surname = surname
		p.Given = rng.Pick(src, n.Male)
		p.Patronymic = rng.Pick(src, n.PatronymicsMale)
	}
	return p
}

// Feminize returns the feminine form of a masculine Slavic surname. Surnames
// without a gendered suffix (Шевченко, Ткачук) are returned unchanged.
func Feminize(surname string) string {
	switch {
	case strings.HasSuffix(surname, "ский"), strings.HasSuffix(surname, "цкий"):
		return strings.TrimSuffix(surname, "ий") + "ая"
	case strings.HasSuffix(surname, "ов"),
		strings.HasSuffix(surname, "ев"),
		strings.HasSuffix(surname, "ёв"),
		strings.HasSuffix(surname, "ин"):
		return surname + "а"
	}
	return surname
}

// Country draws a country of issue by weight.
func (s *Sampler) Country(src *rng.Source) *Country {
	return &s.tables.Countries[src.WeightedIndex(s.countryWeights)]
}

// Specialization draws a specialization by weight among those allowed for
// gender g.
func (s *Sampler) Specialization(src *rng.Source, g Gender) *Specialization {
	specs := s.tables.Specializations
	weights := make([]float64, len(specs))
	for i := range specs {
		if specs[i].AllowsGender(g) {
			weights[i] = specs[i].Weight
		}
	}
	idx := src.WeightedIndex(weights)
	if idx < 0 {
		// Tables guarantee a specialization for every gender; an unknown
		// gender falls back to the unrestricted weights.
		for i := range specs {
			weights[i] = specs[i].Weight
		}
		idx = src.WeightedIndex(weights)
	}
	return &specs[idx]
}

// Symptoms draws up to count distinct symptoms biased toward spec's affinity
// set. Fewer are returned only when the general pool itself is too small.
func (s *Sampler) Symptoms(src *rng.Source, spec *Specialization, count int) []string {
	return s.biased(src, spec.Symptoms, s.tables.Symptoms, count)
}

// LabTests draws up to count distinct lab tests biased toward spec's tests and
// the common tests.
func (s *Sampler) LabTests(src *rng.Source, spec *Specialization, count int) []string {
	return s.biased(src, s.tables.LabTestAffinity(spec), s.tables.LabTestNames(), count)
}

// biased picks count distinct values. Each pick comes from the remaining
// affinity values with probability bias, otherwise from the remaining general
// values; when one side is exhausted the other is used.
func (s *Sampler) biased(src *rng.Source, affinity, general []string, count int) []string {
	if count <= 0 {
		return nil
	}
	aff := append([]string(nil), affinity...)
	gen := append([]string(nil), general...)
	chosen := make([]string, 0, count)
	used := make(map[string]bool, count)

	for len(chosen) < count && (len(aff) > 0 || len(gen) > 0) {
		fromAffinity := len(aff) > 0 && (len(gen) == 0 || src.Chance(s.bias))
		var v string
		if fromAffinity {
			v, aff = take(src, aff)
		} else {
			v, gen = take(src, gen)
		}
		if used[v] {
			continue
		}
		used[v] = true
		chosen = append(chosen, v)
	}
	return chosen
}

// take removes and returns a uniformly chosen element, preserving the order of
// the rest so later draws stay reproducible.
func take(src *rng.Source, pool []string) (string, []string) {
	i := src.Intn(len(pool))
	v := pool[i]
	return v, append(pool[:i], pool[i+1:]...)
}

// Bank draws an issuing bank by weight.
func (s *Sampler) Bank(src *rng.Source) *Bank {
	return &s.tables.Banks[src.WeightedIndex(s.bankWeights)]
}

// PaymentSystem draws a payment system by weight among those bank issues.
func (s *Sampler) PaymentSystem(src *rng.Source, bank *Bank) string {
	systems := s.tables.PaymentSystems
	weights := make([]float64, len(systems))
	for i, ps := range systems {
		if len(bank.BINs[ps.Name]) > 0 {
			weights[i] = ps.Weight
		}
	}
	idx := src.WeightedIndex(weights)
	if idx < 0 {
		return ""
	}
	return systems[idx].Name
}
