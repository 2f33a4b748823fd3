package dataset

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicgen/clinicgen/internal/domain/visit"
)

// runNamespace scopes run IDs so the same seed and size always map to the
// same ID.
var runNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://clinicgen.dev/runs"))

// RunID derives the deterministic identifier of a run.
func RunID(seed int64, size int) uuid.UUID {
	return uuid.NewSHA1(runNamespace, []byte(fmt.Sprintf("seed=%d;size=%d", seed, size)))
}

// Stats are the counters of one run, finalized when Generate returns.
type Stats struct {
	RunID     uuid.UUID `json:"runId"`
	Seed      int64     `json:"seed"`
	Requested int       `json:"requested"`
	Produced  int       `json:"produced"`
	Batches   int       `json:"batches"`

	NewClients        int `json:"newClients"`
	RepeatVisits      int `json:"repeatVisits"`
	UniqueClients     int `json:"uniqueClients"`
	UniqueNationalIDs int `json:"uniqueNationalIds"`
	UniquePassports   int `json:"uniquePassports"`
	UniqueCards       int `json:"uniqueCards"`
	CardUses          int `json:"cardUses"`
	IdentifierRetries int `json:"identifierRetries"`

	Warnings            int                    `json:"warnings"`
	WarningsByCategory  map[visit.Category]int `json:"warningsByCategory"`
	RecordsWithWarnings int                    `json:"recordsWithWarnings"`

	StartedAt time.Time     `json:"startedAt"`
	Elapsed   time.Duration `json:"elapsed"`
}

func newStats(cfg Config) *Stats {
	return &Stats{
		RunID:              RunID(cfg.Seed, cfg.Size),
		Seed:               cfg.Seed,
		Requested:          cfg.Size,
		WarningsByCategory: make(map[visit.Category]int),
	}
}

func (s *Stats) observe(r *visit.Record, warnings []visit.Warning) {
	s.Produced++
	if r.Repeat {
		s.RepeatVisits++
	} else {
		s.NewClients++
	}
	if len(warnings) > 0 {
		s.RecordsWithWarnings++
	}
	for _, w := range warnings {
		s.Warnings++
		s.WarningsByCategory[w.Category]++
	}
}

// ValidRecords returns the number of records without any warning.
func (s *Stats) ValidRecords() int { return s.Produced - s.RecordsWithWarnings }

// ValidRatio is the share of records without warnings. An empty run has
// nothing invalid and reports 1.
func (s *Stats) ValidRatio() float64 {
	if s.Produced == 0 {
		return 1
	}
	return float64(s.ValidRecords()) / float64(s.Produced)
}

// MeetsThreshold reports whether the valid ratio reaches minValidRatio.
func (s *Stats) MeetsThreshold(minValidRatio float64) bool {
	return s.ValidRatio() >= minValidRatio
}

// Throughput returns records per second, or 0 for an instant run.
func (s *Stats) Throughput() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Produced) / s.Elapsed.Seconds()
}

// AverageCardUses returns payments per distinct card.
func (s *Stats) AverageCardUses() float64 {
	if s.UniqueCards == 0 {
		return 0
	}
	return float64(s.CardUses) / float64(s.UniqueCards)
}
