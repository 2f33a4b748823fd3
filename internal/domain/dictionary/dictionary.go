// Package dictionary holds the static reference tables the generator samples
// from (names, countries, specializations, symptoms, lab tests, banks) and the
// Sampler that draws from them. Tables are loaded once from YAML, validated,
// and treated as read-only for the rest of the run.
package dictionary

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// ErrInvalidDictionary is returned when reference tables are empty, malformed
// or reference entries that do not exist.
var ErrInvalidDictionary = errors.New("invalid dictionary")

// Gender of a synthetic person.
type Gender string

const (
	Male   Gender = "M"
	Female Gender = "F"
)

// Country codes with a known passport format.
const (
	CountryRU = "ru"
	CountryBY = "by"
	CountryKZ = "kz"
)

// National identifier schemes.
const (
	SchemeSNILS = "snils"
	SchemeIIN   = "iin"
)

// OtherCategory is the price category used when a lab test matches no other.
const OtherCategory = "прочее"

// Names are the name lists persons are drawn from.
type Names struct {
	Surnames          []string `yaml:"surnames"`
	Male              []string `yaml:"male"`
	Female            []string `yaml:"female"`
	PatronymicsMale   []string `yaml:"patronymics_male"`
	PatronymicsFemale []string `yaml:"patronymics_female"`
}

// Country describes a country of passport issue.
type Country struct {
	Code             string   `yaml:"code"`
	Weight           float64  `yaml:"weight"`
	NationalID       string   `yaml:"national_id"`
	PassportPrefixes []string `yaml:"passport_prefixes"`
}

// Specialization is a doctor specialization with its affinity sets.
type Specialization struct {
	Name           string   `yaml:"name"`
	Weight         float64  `yaml:"weight"`
	Gender         Gender   `yaml:"gender"`
	CostMultiplier float64  `yaml:"cost_multiplier"`
	Symptoms       []string `yaml:"symptoms"`
	LabTests       []string `yaml:"lab_tests"`
}

// AllowsGender reports whether a patient of gender g can be referred to the
// specialization.
func (s *Specialization) AllowsGender(g Gender) bool {
	return s.Gender == "" || s.Gender == g
}

// LabTest is a prescribable test. A zero Price means the price is drawn from
// the Category range.
type LabTest struct {
	Name     string `yaml:"name"`
	Price    int    `yaml:"price"`
	Category string `yaml:"category"`
}

// PriceRange is an inclusive price interval in whole currency units.
type PriceRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// Bank issues payment cards. BINs are keyed by payment system.
type Bank struct {
	Name   string              `yaml:"name"`
	Weight float64             `yaml:"weight"`
	BINs   map[string][]string `yaml:"bins"`
}

// PaymentSystem is a weighted card scheme such as mir or visa.
type PaymentSystem struct {
	Name   string  `yaml:"name"`
	Weight float64 `yaml:"weight"`
}

// Tables is the complete, validated set of reference data.
type Tables struct {
	Names           Names                 `yaml:"names"`
	Countries       []Country             `yaml:"countries"`
	Specializations []Specialization      `yaml:"specializations"`
	Symptoms        []string              `yaml:"symptoms"`
	LabTests        []LabTest             `yaml:"lab_tests"`
	CommonLabTests  []string              `yaml:"common_lab_tests"`
	PriceRanges     map[string]PriceRange `yaml:"price_ranges"`
	Banks           []Bank                `yaml:"banks"`
	PaymentSystems  []PaymentSystem       `yaml:"payment_systems"`

	specIndex    map[string]int
	labIndex     map[string]int
	countryIndex map[string]int
	bankIndex    map[string]int
	symptomSet   map[string]struct{}
}

// DefaultYAML returns the embedded default dictionary source.
func DefaultYAML() []byte {
	out := make([]byte, len(defaultYAML))
	copy(out, defaultYAML)
	return out
}

// Default parses the embedded default dictionary.
func Default() (*Tables, error) {
	return Parse(defaultYAML)
}

// Load reads a dictionary file. An empty path loads the embedded default.
func Load(path string) (*Tables, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dictionary %s: %w", path, err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load dictionary %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes and validates YAML reference tables. Unknown keys are
// rejected so that typos do not silently fall back to zero values.
func Parse(data []byte) (*Tables, error) {
	var t Tables
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDictionary, err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDictionary, fmt.Sprintf(format, args...))
}

// Validate checks that every table is populated and internally consistent,
// then builds the lookup indexes. Tables assembled in code must pass Validate
// before they are sampled from.
func (t *Tables) Validate() error {
	if err := t.check(); err != nil {
		return err
	}
	t.index()
	return nil
}

func (t *Tables) check() error {
	lists := []struct {
		name string
		list []string
	}{
		{"names.surnames", t.Names.Surnames},
		{"names.male", t.Names.Male},
		{"names.female", t.Names.Female},
		{"names.patronymics_male", t.Names.PatronymicsMale},
		{"names.patronymics_female", t.Names.PatronymicsFemale},
		{"symptoms", t.Symptoms},
	}
	for _, l := range lists {
		if len(l.list) == 0 {
			return invalid("%s is empty", l.name)
		}
		for _, v := range l.list {
			if strings.TrimSpace(v) == "" || (strings.HasPrefix(l.name, "names.") && strings.ContainsRune(v, ' ')) {
				return invalid("%s contains malformed entry %q", l.name, v)
			}
		}
	}

	symptoms := make(map[string]struct{}, len(t.Symptoms))
	for _, s := range t.Symptoms {
		if strings.Contains(s, ",") {
			return invalid("symptom %q contains a list separator", s)
		}
		if _, dup := symptoms[s]; dup {
			return invalid("duplicate symptom %q", s)
		}
		symptoms[s] = struct{}{}
	}

	if len(t.Countries) == 0 {
		return invalid("countries is empty")
	}
	seenCountry := map[string]bool{}
	for _, c := range t.Countries {
		switch c.Code {
		case CountryRU, CountryBY, CountryKZ:
		default:
			return invalid("country %q has no known passport format", c.Code)
		}
		if seenCountry[c.Code] {
			return invalid("duplicate country %q", c.Code)
		}
		seenCountry[c.Code] = true
		if c.Weight <= 0 {
			return invalid("country %q has non-positive weight", c.Code)
		}
		switch c.NationalID {
		case SchemeSNILS, SchemeIIN:
		default:
			return invalid("country %q has unknown national_id scheme %q", c.Code, c.NationalID)
		}
		if c.Code == CountryBY && len(c.PassportPrefixes) == 0 {
			return invalid("country by needs passport_prefixes")
		}
		for _, p := range c.PassportPrefixes {
			if !isUpperPair(p) {
				return invalid("country %q has malformed passport prefix %q", c.Code, p)
			}
		}
	}

	if len(t.PriceRanges) == 0 {
		return invalid("price_ranges is empty")
	}
	if _, ok := t.PriceRanges[OtherCategory]; !ok {
		return invalid("price_ranges must define %q", OtherCategory)
	}
	for name, r := range t.PriceRanges {
		if r.Min <= 0 || r.Max < r.Min {
			return invalid("price range %q is malformed", name)
		}
	}

	if len(t.LabTests) == 0 {
		return invalid("lab_tests is empty")
	}
	labs := make(map[string]struct{}, len(t.LabTests))
	for i := range t.LabTests {
		lt := &t.LabTests[i]
		if strings.TrimSpace(lt.Name) == "" {
			return invalid("lab test %d has no name", i)
		}
		if strings.Contains(lt.Name, ",") {
			return invalid("lab test %q contains a list separator", lt.Name)
		}
		if _, dup := labs[lt.Name]; dup {
			return invalid("duplicate lab test %q", lt.Name)
		}
		labs[lt.Name] = struct{}{}
		if lt.Price < 0 {
			return invalid("lab test %q has negative price", lt.Name)
		}
		if lt.Category == "" {
			lt.Category = InferCategory(lt.Name)
		}
		if _, ok := t.PriceRanges[lt.Category]; !ok && lt.Price == 0 {
			return invalid("lab test %q references unknown price category %q", lt.Name, lt.Category)
		}
	}
	for _, name := range t.CommonLabTests {
		if _, ok := labs[name]; !ok {
			return invalid("common lab test %q is not listed in lab_tests", name)
		}
	}

	if len(t.Specializations) == 0 {
		return invalid("specializations is empty")
	}
	seenSpec := map[string]bool{}
	genders := map[Gender]bool{}
	for _, s := range t.Specializations {
		if s.Name == "" {
			return invalid("specialization without name")
		}
		if seenSpec[s.Name] {
			return invalid("duplicate specialization %q", s.Name)
		}
		seenSpec[s.Name] = true
		if s.Weight <= 0 {
			return invalid("specialization %q has non-positive weight", s.Name)
		}
		if s.CostMultiplier <= 0 {
			return invalid("specialization %q has non-positive cost_multiplier", s.Name)
		}
		switch s.Gender {
		case "":
			genders[Male], genders[Female] = true, true
		case Male, Female:
			genders[s.Gender] = true
		default:
			return invalid("specialization %q has unknown gender %q", s.Name, s.Gender)
		}
		if len(s.Symptoms) == 0 {
			return invalid("specialization %q has no symptoms", s.Name)
		}
		for _, sym := range s.Symptoms {
			if _, ok := symptoms[sym]; !ok {
				return invalid("specialization %q references unknown symptom %q", s.Name, sym)
			}
		}
		for _, lt := range s.LabTests {
			if _, ok := labs[lt]; !ok {
				return invalid("specialization %q references unknown lab test %q", s.Name, lt)
			}
		}
	}
	if !genders[Male] || !genders[Female] {
		return invalid("every gender needs at least one specialization")
	}

	if len(t.PaymentSystems) == 0 {
		return invalid("payment_systems is empty")
	}
	systems := map[string]bool{}
	for _, ps := range t.PaymentSystems {
		if ps.Name == "" || ps.Weight <= 0 {
			return invalid("payment system %q is malformed", ps.Name)
		}
		systems[ps.Name] = true
	}

	if len(t.Banks) == 0 {
		return invalid("banks is empty")
	}
	seenBank := map[string]bool{}
	for _, b := range t.Banks {
		if b.Name == "" || seenBank[b.Name] {
			return invalid("bank %q is missing a name or duplicated", b.Name)
		}
		seenBank[b.Name] = true
		if b.Weight <= 0 {
			return invalid("bank %q has non-positive weight", b.Name)
		}
		if len(b.BINs) == 0 {
			return invalid("bank %q has no BINs", b.Name)
		}
		for system, bins := range b.BINs {
			if !systems[system] {
				return invalid("bank %q references unknown payment system %q", b.Name, system)
			}
			if len(bins) == 0 {
				return invalid("bank %q has an empty BIN list for %s", b.Name, system)
			}
			for _, bin := range bins {
				if !isBIN(bin) {
					return invalid("bank %q has malformed BIN %q", b.Name, bin)
				}
			}
		}
	}
	return nil
}

func (t *Tables) index() {
	t.specIndex = make(map[string]int, len(t.Specializations))
	for i, s := range t.Specializations {
		t.specIndex[s.Name] = i
	}
	t.labIndex = make(map[string]int, len(t.LabTests))
	for i, lt := range t.LabTests {
		t.labIndex[lt.Name] = i
	}
	t.countryIndex = make(map[string]int, len(t.Countries))
	for i, c := range t.Countries {
		t.countryIndex[c.Code] = i
	}
	t.bankIndex = make(map[string]int, len(t.Banks))
	for i, b := range t.Banks {
		t.bankIndex[b.Name] = i
	}
	t.symptomSet = make(map[string]struct{}, len(t.Symptoms))
	for _, s := range t.Symptoms {
		t.symptomSet[s] = struct{}{}
	}
}

func isBIN(s string) bool {
	if len(s) != 6 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isUpperPair(s string) bool {
	return len(s) == 2 && s[0] >= 'A' && s[0] <= 'Z' && s[1] >= 'A' && s[1] <= 'Z'
}

// ---------------------------------------------------------------------------
// Lookups
// ---------------------------------------------------------------------------

// Specialization looks up a specialization by name.
func (t *Tables) Specialization(name string) (*Specialization, bool) {
	i, ok := t.specIndex[name]
	if !ok {
		return nil, false
	}
	return &t.Specializations[i], true
}

// LabTest looks up a lab test by name.
func (t *Tables) LabTest(name string) (*LabTest, bool) {
	i, ok := t.labIndex[name]
	if !ok {
		return nil, false
	}
	return &t.LabTests[i], true
}

// Country looks up a country by code.
func (t *Tables) Country(code string) (*Country, bool) {
	i, ok := t.countryIndex[code]
	if !ok {
		return nil, false
	}
	return &t.Countries[i], true
}

// Bank looks up a bank by name.
func (t *Tables) Bank(name string) (*Bank, bool) {
	i, ok := t.bankIndex[name]
	if !ok {
		return nil, false
	}
	return &t.Banks[i], true
}

// KnownSymptom reports whether s is in the general symptom pool.
func (t *Tables) KnownSymptom(s string) bool {
	_, ok := t.symptomSet[s]
	return ok
}

// LabTestAffinity returns the tests associated with a specialization: its own
// list followed by the common tests, without duplicates.
func (t *Tables) LabTestAffinity(s *Specialization) []string {
	out := make([]string, 0, len(s.LabTests)+len(t.CommonLabTests))
	seen := make(map[string]bool, cap(out))
	for _, list := range [][]string{s.LabTests, t.CommonLabTests} {
		for _, name := range list {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}

// LabTestNames returns every lab test name in table order.
func (t *Tables) LabTestNames() []string {
	out := make([]string, len(t.LabTests))
	for i, lt := range t.LabTests {
		out[i] = lt.Name
	}
	return out
}

// BINsFor returns every BIN configured for a payment system across all banks
// in table order.
func (t *Tables) BINsFor(system string) []string {
	var out []string
	for _, b := range t.Banks {
		out = append(out, b.BINs[system]...)
	}
	return out
}

// AllBINs returns the sorted set of every configured BIN.
func (t *Tables) AllBINs() []string {
	set := map[string]struct{}{}
	for _, b := range t.Banks {
		for _, bins := range b.BINs {
			for _, bin := range bins {
				set[bin] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for bin := range set {
		out = append(out, bin)
	}
	sort.Strings(out)
	return out
}

// InferCategory derives a price category from a lab test name.
func InferCategory(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "кровь") || strings.Contains(lower, "крови"):
		return "кровь"
	case strings.Contains(lower, "моча") || strings.Contains(lower, "мочи"):
		return "моча"
	case strings.Contains(lower, "мазок"):
		return "мазок"
	case strings.Contains(lower, "рентген"):
		return "рентген"
	}
	for _, word := range strings.Fields(lower) {
		switch word {
		case "узи":
			return "узи"
		case "мрт":
			return "мрт"
		case "кт":
			return "кт"
		}
	}
	if strings.Contains(lower, "томография") {
		return "мрт"
	}
	return OtherCategory
}
