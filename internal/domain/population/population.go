// Package population maintains the pool of synthetic clients and decides for
// every visit whether an existing client returns or a new one is minted.
package population

import (
	"fmt"
	"time"

	"github.com/clinicgen/clinicgen/internal/domain/dictionary"
	"github.com/clinicgen/clinicgen/internal/domain/identifier"
	"github.com/clinicgen/clinicgen/internal/platform/rng"
)

// Client is one synthetic individual. Clients are immutable once minted and
// shared by pointer between all their visit records.
type Client struct {
	ID         int                   `json:"id"`
	Surname    string                `json:"surname"`
	GivenName  string                `json:"givenName"`
	Patronymic string                `json:"patronymic"`
	Gender     dictionary.Gender     `json:"gender"`
	BirthDate  time.Time             `json:"birthDate"`
	Country    string                `json:"country"`
	Passport   string                `json:"passport"`
	NationalID identifier.NationalID `json:"nationalId"`

	// Russian passports only.
	PassportIssueDate time.Time `json:"passportIssueDate,omitempty"`
	DepartmentCode    string    `json:"departmentCode,omitempty"`
}

// FullName returns "Surname Given Patronymic".
func (c *Client) FullName() string {
	return c.Surname + " " + c.GivenName + " " + c.Patronymic
}

// Config controls repeat visits and client ages.
type Config struct {
	RepeatProbability float64
	// MinPoolForRepeat is the pool size below which every client is new.
	MinPoolForRepeat int
	MinAge           int
	MaxAge           int
	ReferenceDate    time.Time
}

// DefaultConfig returns a 25% repeat rate over adults aged 18 to 80.
func DefaultConfig(reference time.Time) Config {
	return Config{
		RepeatProbability: 0.25,
		MinPoolForRepeat:  1,
		MinAge:            18,
		MaxAge:            80,
		ReferenceDate:     reference,
	}
}

// passportMilestones are the ages at which a Russian passport is issued or
// replaced.
var passportMilestones = []int{45, 20, 14}

// Model owns the client pool. It is not safe for concurrent use.
type Model struct {
	cfg     Config
	sampler *dictionary.Sampler
	ids     *identifier.Synthesizer
	pool    []*Client
	repeats int
}

// New returns an empty population.
func New(cfg Config, sampler *dictionary.Sampler, ids *identifier.Synthesizer) *Model {
	if cfg.MinPoolForRepeat < 1 {
		cfg.MinPoolForRepeat = 1
	}
	return &Model{cfg: cfg, sampler: sampler, ids: ids}
}

// Next returns the client for the next visit and whether it is a repeat
// visit. An empty pool always mints.
func (m *Model) Next(src *rng.Source) (*Client, bool, error) {
	if len(m.pool) >= m.cfg.MinPoolForRepeat && src.Chance(m.cfg.RepeatProbability) {
		m.repeats++
		return rng.Pick(src, m.pool), true, nil
	}
	c, err := m.mint(src)
	if err != nil {
		return nil, false, err
	}
	m.pool = append(m.pool, c)
	return c, false, nil
}

func (m *Model) mint(src *rng.Source) (*Client, error) {
	person := m.sampler.Person(src)
	country := m.sampler.Country(src)
	birth := m.birthDate(src)

	passport, err := m.ids.Passport(src, country)
	if err != nil {
		return nil, fmt.Errorf("mint client passport: %w", err)
	}
	nid, err := m.ids.NationalID(src, country, birth, person.Gender)
	if err != nil {
		return nil, fmt.Errorf("mint client national id: %w", err)
	}

	c := &Client{
		ID:         len(m.pool) + 1,
		Surname:    person.Surname,
		GivenName:  person.Given,
		Patronymic: person.Patronymic,
		Gender:     person.Gender,
		BirthDate:  birth,
		Country:    country.Code,
		Passport:   passport,
		NationalID: nid,
	}
	if country.Code == dictionary.CountryRU {
		c.PassportIssueDate = m.issueDate(src, birth)
		c.DepartmentCode = identifier.DepartmentCode(src)
	}
	return c, nil
}

// birthDate draws a uniform day so the client is between MinAge and MaxAge
// years old on the reference date.
func (m *Model) birthDate(src *rng.Source) time.Time {
	ref := m.cfg.ReferenceDate
	earliest := ref.AddDate(-m.cfg.MaxAge, 0, 0)
	latest := ref.AddDate(-m.cfg.MinAge, 0, 0)
	span := int(latest.Sub(earliest).Hours() / 24)
	return earliest.AddDate(0, 0, src.IntRange(0, span))
}

// issueDate returns the date of the latest passport milestone reached before
// the reference date, plus up to a month of processing.
func (m *Model) issueDate(src *rng.Source, birth time.Time) time.Time {
	ref := m.cfg.ReferenceDate
	for _, age := range passportMilestones {
		milestone := birth.AddDate(age, 0, 0)
		if milestone.After(ref) {
			continue
		}
		issued := milestone.AddDate(0, 0, src.IntRange(0, 30))
		if issued.After(ref) {
			issued = ref
		}
		return issued
	}
	return ref
}

// Size returns the number of distinct clients minted so far.
func (m *Model) Size() int { return len(m.pool) }

// Repeats returns the number of repeat visits handed out so far.
func (m *Model) Repeats() int { return m.repeats }

// Pool returns the minted clients in mint order. The slice must not be
// modified.
func (m *Model) Pool() []*Client { return m.pool }
