package identifier

// Kind names a family of identifiers that must be unique within a run.
type Kind string

const (
	KindNationalID Kind = "national_id"
	KindPassport   Kind = "passport"
	KindCard       Kind = "card"
)

// Registry tracks every identifier issued during a run and the number of
// resamples needed to keep them unique.
type Registry struct {
	issued  map[Kind]map[string]struct{}
	retries map[Kind]int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		issued:  make(map[Kind]map[string]struct{}),
		retries: make(map[Kind]int),
	}
}

// Seen reports whether v has already been issued for kind.
func (r *Registry) Seen(kind Kind, v string) bool {
	_, ok := r.issued[kind][v]
	return ok
}

// claim records v for kind. It returns false if v was already issued.
func (r *Registry) claim(kind Kind, v string) bool {
	set, ok := r.issued[kind]
	if !ok {
		set = make(map[string]struct{})
		r.issued[kind] = set
	}
	if _, dup := set[v]; dup {
		return false
	}
	set[v] = struct{}{}
	return true
}

func (r *Registry) addRetries(kind Kind, n int) {
	if n > 0 {
		r.retries[kind] += n
	}
}

// Count returns the number of distinct values issued for kind.
func (r *Registry) Count(kind Kind) int {
	return len(r.issued[kind])
}

// Retries returns the number of resamples performed for kind.
func (r *Registry) Retries(kind Kind) int {
	return r.retries[kind]
}

// TotalRetries returns the number of resamples across all kinds.
func (r *Registry) TotalRetries() int {
	total := 0
	for _, n := range r.retries {
		total += n
	}
	return total
}
