// Package identifier synthesizes checksum-valid national identifiers,
// passport numbers and payment card numbers, unique within a run.
package identifier

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicgen/clinicgen/internal/domain/dictionary"
	"github.com/clinicgen/clinicgen/internal/platform/rng"
	"github.com/clinicgen/clinicgen/pkg/checksum"
)

// DefaultMaxRetries bounds the resamples per sampling range.
const DefaultMaxRetries = 100

var (
	// ErrIdentifierSpaceExhausted is returned when no unused value could be
	// found in either the narrow or the widened sampling range.
	ErrIdentifierSpaceExhausted = errors.New("identifier space exhausted")

	// ErrUnsupported is returned for a country, scheme or payment system the
	// synthesizer has no format for.
	ErrUnsupported = errors.New("unsupported identifier parameters")
)

// NationalID is a formatted national identifier with its scheme.
type NationalID struct {
	Scheme string `json:"scheme"`
	Value  string `json:"value"`
}

// Digits returns the identifier without separators.
func (n NationalID) Digits() string { return checksum.StripSeparators(n.Value) }

func (n NationalID) String() string { return n.Value }

// Card is a synthesized payment card.
type Card struct {
	Number string `json:"number"`
	Bank   string `json:"bank"`
	System string `json:"system"`
}

// BIN returns the six digit issuer prefix.
func (c Card) BIN() string {
	if len(c.Number) < 6 {
		return c.Number
	}
	return c.Number[:6]
}

// Formatted returns the number in four groups of four digits.
func (c Card) Formatted() string { return FormatCard(c.Number) }

// FormatCard groups a 16 digit card number as "XXXX XXXX XXXX XXXX". Other
// lengths are returned unchanged.
func FormatCard(number string) string {
	if len(number) != 16 {
		return number
	}
	return number[:4] + " " + number[4:8] + " " + number[8:12] + " " + number[12:]
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithMaxRetries overrides DefaultMaxRetries. Values below 1 are ignored.
func WithMaxRetries(n int) Option {
	return func(s *Synthesizer) {
		if n >= 1 {
			s.maxRetries = n
		}
	}
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Synthesizer) { s.logger = l }
}

// WithRegistry shares an existing registry.
func WithRegistry(r *Registry) Option {
	return func(s *Synthesizer) { s.registry = r }
}

// Synthesizer issues identifiers. It is not safe for concurrent use.
type Synthesizer struct {
	tables     *dictionary.Tables
	registry   *Registry
	maxRetries int
	logger     zerolog.Logger
}

// NewSynthesizer returns a synthesizer drawing BINs from tables.
func NewSynthesizer(tables *dictionary.Tables, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		tables:     tables,
		maxRetries: DefaultMaxRetries,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}
	return s
}

// Registry returns the registry tracking issued values.
func (s *Synthesizer) Registry() *Registry { return s.registry }

// MaxRetries returns the per-range resample bound.
func (s *Synthesizer) MaxRetries() int { return s.maxRetries }

// candidate draws one value; ok is false for a draw that must be discarded
// regardless of uniqueness.
type candidate func() (v string, ok bool)

// issue draws from narrow until an unused value appears, allowing maxRetries
// resamples, then tries maxRetries more draws from wide.
func (s *Synthesizer) issue(kind Kind, narrow, wide candidate) (string, error) {
	attempts := 0
	phases := []struct {
		draw  candidate
		limit int
	}{
		{narrow, s.maxRetries + 1},
		{wide, s.maxRetries},
	}
	for _, phase := range phases {
		for i := 0; i < phase.limit; i++ {
			attempts++
			v, ok := phase.draw()
			if !ok || !s.registry.claim(kind, v) {
				continue
			}
			retries := attempts - 1
			s.registry.addRetries(kind, retries)
			if retries > s.maxRetries/2 {
				s.logger.Warn().
					Str("kind", string(kind)).
					Int("retries", retries).
					Int("max_retries", s.maxRetries).
					Msg("identifier needed many resamples")
			}
			return v, nil
		}
	}
	s.registry.addRetries(kind, attempts)
	return "", fmt.Errorf("%w: %s after %d attempts", ErrIdentifierSpaceExhausted, kind, attempts)
}

// ---------------------------------------------------------------------------
// National identifiers
// ---------------------------------------------------------------------------

// Narrow SNILS payloads: numbers up to 001-001-998 are reserved.
const (
	snilsNarrowMin = 1001999
	snilsMax       = 999999999
)

// NationalID issues an identifier under the country's scheme. birth and
// gender are encoded by schemes that carry them (IIN).
func (s *Synthesizer) NationalID(src *rng.Source, country *dictionary.Country, birth time.Time, gender dictionary.Gender) (NationalID, error) {
	switch country.NationalID {
	case dictionary.SchemeSNILS:
		v, err := s.issue(KindNationalID,
			func() (string, bool) { return snils(src.IntRange(snilsNarrowMin, snilsMax)) },
			func() (string, bool) { return snils(src.IntRange(0, snilsMax)) },
		)
		return NationalID{Scheme: dictionary.SchemeSNILS, Value: v}, err
	case dictionary.SchemeIIN:
		prefix, err := iinPrefix(birth, gender)
		if err != nil {
			return NationalID{}, err
		}
		v, err := s.issue(KindNationalID,
			func() (string, bool) { return iin(prefix, src.IntRange(1, 9999)) },
			func() (string, bool) { return iin(prefix, src.IntRange(0, 9999)) },
		)
		return NationalID{Scheme: dictionary.SchemeIIN, Value: v}, err
	}
	return NationalID{}, fmt.Errorf("%w: national id scheme %q", ErrUnsupported, country.NationalID)
}

func snils(n int) (string, bool) {
	payload := fmt.Sprintf("%09d", n)
	control, err := checksum.SNILSControl(payload)
	if err != nil {
		return "", false
	}
	return FormatSNILS(payload, control), true
}

// FormatSNILS renders a payload and control number as "XXX-XXX-XXX YY".
func FormatSNILS(payload string, control int) string {
	return fmt.Sprintf("%s-%s-%s %02d", payload[:3], payload[3:6], payload[6:9], control)
}

// iinPrefix returns YYMMDD followed by the century/gender digit: 1-2 for
// the 1800s, 3-4 for the 1900s, 5-6 for the 2000s, odd for men.
func iinPrefix(birth time.Time, gender dictionary.Gender) (string, error) {
	var c int
	switch y := birth.Year(); {
	case y >= 1800 && y < 1900:
		c = 1
	case y >= 1900 && y < 2000:
		c = 3
	case y >= 2000 && y < 2100:
		c = 5
	default:
		return "", fmt.Errorf("%w: IIN birth year %d", ErrUnsupported, y)
	}
	if gender == dictionary.Female {
		c++
	}
	return birth.Format("060102") + strconv.Itoa(c), nil
}

func iin(prefix string, serial int) (string, bool) {
	payload := fmt.Sprintf("%s%04d", prefix, serial)
	k, ok, err := checksum.IINCheckDigit(payload)
	if err != nil || !ok {
		return "", false
	}
	return payload + strconv.Itoa(k), true
}

// ---------------------------------------------------------------------------
// Passports
// ---------------------------------------------------------------------------

// Passport issues a passport number in the country's format.
func (s *Synthesizer) Passport(src *rng.Source, country *dictionary.Country) (string, error) {
	switch country.Code {
	case dictionary.CountryRU:
		return s.issue(KindPassport,
			func() (string, bool) {
				return fmt.Sprintf("%04d %06d", src.IntRange(1000, 9999), src.IntRange(100000, 999999)), true
			},
			func() (string, bool) { return src.Digits(4) + " " + src.Digits(6), true },
		)
	case dictionary.CountryBY:
		prefixes := country.PassportPrefixes
		if len(prefixes) == 0 {
			return "", fmt.Errorf("%w: by passport without prefixes", ErrUnsupported)
		}
		return s.issue(KindPassport,
			func() (string, bool) {
				return rng.Pick(src, prefixes) + strconv.Itoa(src.IntRange(1000000, 9999999)), true
			},
			func() (string, bool) { return src.UpperLetters(2) + src.Digits(7), true },
		)
	case dictionary.CountryKZ:
		return s.issue(KindPassport,
			func() (string, bool) { return "N" + strconv.Itoa(src.IntRange(10000000, 99999999)), true },
			func() (string, bool) { return "N" + src.Digits(8), true },
		)
	}
	return "", fmt.Errorf("%w: passport country %q", ErrUnsupported, country.Code)
}

// DepartmentCode draws a Russian passport issuing department code "DDD-DDD".
// Codes are shared between many passports and are not tracked for uniqueness.
func DepartmentCode(src *rng.Source) string {
	return fmt.Sprintf("%03d-%03d", src.IntRange(1, 999), src.IntRange(1, 999))
}

// ---------------------------------------------------------------------------
// Payment cards
// ---------------------------------------------------------------------------

type binOwner struct {
	bank string
	bin  string
}

// Card issues a 16 digit Luhn-valid card number with a BIN of bank for the
// payment system. The widened range accepts any bank's BIN for the system, in
// which case the card carries that bank.
func (s *Synthesizer) Card(src *rng.Source, bank *dictionary.Bank, system string) (Card, error) {
	bins := bank.BINs[system]
	if len(bins) == 0 {
		return Card{}, fmt.Errorf("%w: bank %q does not issue %q", ErrUnsupported, bank.Name, system)
	}
	var wide []binOwner
	for _, b := range s.tables.Banks {
		for _, bin := range b.BINs[system] {
			wide = append(wide, binOwner{bank: b.Name, bin: bin})
		}
	}
	if len(wide) == 0 {
		for _, bin := range bins {
			wide = append(wide, binOwner{bank: bank.Name, bin: bin})
		}
	}

	var owner string
	draw := func(o binOwner) (string, bool) {
		owner = o.bank
		return luhnCard(o.bin, src.Digits(9))
	}
	number, err := s.issue(KindCard,
		func() (string, bool) { return draw(binOwner{bank: bank.Name, bin: rng.Pick(src, bins)}) },
		func() (string, bool) { return draw(rng.Pick(src, wide)) },
	)
	if err != nil {
		return Card{}, err
	}
	return Card{Number: number, Bank: owner, System: system}, nil
}

func luhnCard(bin, body string) (string, bool) {
	payload := bin + body
	d, err := checksum.LuhnCheckDigit(payload)
	if err != nil {
		return "", false
	}
	return payload + strconv.Itoa(d), true
}
