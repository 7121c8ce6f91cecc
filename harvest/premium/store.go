package premium

import (
	"log/slog"
	"sort"
)

// ConflictPolicy decides which observation wins when two reads of the same
// (region, filter) key disagree.
type ConflictPolicy string

const (
	// KeepLatest retains the most recently observed value, on the
	// assumption that later reads reflect a more current tooltip state.
	// This is a policy choice, not a guarantee; the conflict is counted
	// and logged either way.
	KeepLatest ConflictPolicy = "latest"
	// KeepFirst retains the first observation and discards later
	// disagreeing ones.
	KeepFirst ConflictPolicy = "first"
)

// PutResult classifies what happened to an inserted observation.
type PutResult int

const (
	PutNew       PutResult = iota // first observation for its key
	PutDuplicate                  // agreed with the stored record, dropped
	PutConflict                   // disagreed; resolution per policy
)

type storeKey struct {
	Key    RegionKey
	Filter FilterSelection
}

// Store accumulates parsed observations keyed by (RegionKey,
// FilterSelection), deduplicating repeat reads. Raster oversampling makes
// duplicates the common case. Not safe for concurrent use: one session
// owns one Store; cross-session merging is an explicit post-step.
type Store struct {
	policy    ConflictPolicy
	logger    *slog.Logger
	records   map[storeKey]Premium
	noData    int
	conflicts int
}

// NewStore creates a Store with the given conflict policy.
// An empty policy defaults to KeepLatest.
func NewStore(policy ConflictPolicy, logger *slog.Logger) *Store {
	if policy == "" {
		policy = KeepLatest
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		policy:  policy,
		logger:  logger,
		records: make(map[storeKey]Premium),
	}
}

// Put inserts or reconciles one observation.
func (s *Store) Put(p Premium) PutResult {
	k := storeKey{Key: p.Key, Filter: p.Filter}
	old, ok := s.records[k]
	if !ok {
		s.records[k] = p
		return PutNew
	}
	if old.Equal(p) {
		return PutDuplicate
	}

	s.conflicts++
	s.logger.Warn("premium: conflicting observations",
		"region", p.Key.String(),
		"filter", p.Filter.String(),
		"policy", string(s.policy))
	if s.policy == KeepLatest {
		s.records[k] = p
	}
	return PutConflict
}

// MarkNoData records that a target yielded no parseable tooltip.
func (s *Store) MarkNoData() {
	s.noData++
}

// Get returns the retained record for a key under a filter selection.
func (s *Store) Get(key RegionKey, f FilterSelection) (Premium, bool) {
	p, ok := s.records[storeKey{Key: key, Filter: f}]
	return p, ok
}

// Records returns all retained records, sorted by parent then region then
// filter, for stable output.
func (s *Store) Records() []Premium {
	out := make([]Premium, 0, len(s.records))
	for _, p := range s.records {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Key.Parent != b.Key.Parent {
			return a.Key.Parent < b.Key.Parent
		}
		if a.Key.Region != b.Key.Region {
			return a.Key.Region < b.Key.Region
		}
		if a.Filter.Year != b.Filter.Year {
			return a.Filter.Year < b.Filter.Year
		}
		if a.Filter.Age != b.Filter.Age {
			return a.Filter.Age < b.Filter.Age
		}
		return a.Filter.Metal < b.Filter.Metal
	})
	return out
}

// RecordsFor returns retained records scoped to one filter selection.
func (s *Store) RecordsFor(f FilterSelection) []Premium {
	var out []Premium
	for _, p := range s.Records() {
		if p.Filter == f {
			out = append(out, p)
		}
	}
	return out
}

// Len is the number of distinct (region, filter) keys captured.
func (s *Store) Len() int { return len(s.records) }

// NoData is the number of targets recorded as having no data.
func (s *Store) NoData() int { return s.noData }

// Conflicts is the number of disagreeing duplicate observations seen.
func (s *Store) Conflicts() int { return s.conflicts }

// Merge folds a completed session's store into this one. Each record goes
// through the normal Put path so cross-session disagreements surface as
// conflicts here. Counters are summed.
func (s *Store) Merge(other *Store) {
	for _, p := range other.Records() {
		s.Put(p)
	}
	s.noData += other.noData
	s.conflicts += other.conflicts
}
