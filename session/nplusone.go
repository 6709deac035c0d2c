package session

import "github.com/mercury-testing/perfcore/mconfig"

// Severity classifies how bad an observed N+1 pattern is, derived purely
// from query count (no query-text inspection — that lives in
// package queryanalyzer).
type Severity int

const (
	SeverityNone Severity = iota
	SeverityMild
	SeverityModerate
	SeverityHigh
	SeveritySevere
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "NONE"
	case SeverityMild:
		return "MILD"
	case SeverityModerate:
		return "MODERATE"
	case SeverityHigh:
		return "HIGH"
	case SeveritySevere:
		return "SEVERE"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// nPlusOneHighBand is the query count at which the performance-monitor
// pathway's HIGH band begins. The source is inconsistent here: some
// analyzer-pathway tests expect an 8-11 MODERATE band, but the
// performance-monitor pathway (more numerous, user-visible tests) treats
// 12 as the start of HIGH. This core follows the performance-monitor
// contract throughout, per the expanded spec's explicit resolution of
// that inconsistency.
const nPlusOneHighBand = 12

// CalculateSeverity maps a query count to its severity bucket. It is
// monotonic non-decreasing in queryCount for every input and always
// returns a value in {0..5}.
func CalculateSeverity(queryCount int64) Severity {
	switch {
	case queryCount < 5:
		return SeverityNone
	case queryCount < nPlusOneHighBand:
		return SeverityMild
	case queryCount < 25:
		return SeverityHigh
	case queryCount < 50:
		return SeveritySevere
	default:
		return SeverityCritical
	}
}

// HasNPlusOnePattern reports whether m's query count both clears the
// severity floor (severity >= 1) and the "paginated 1+N" guard
// (queryCount >= 12): lower counts classify as MILD but never raise the
// flag. 0 (false) on a nil receiver.
func (m *Metrics) HasNPlusOnePattern() bool {
	if m == nil {
		return false
	}
	severity := CalculateSeverity(m.QueryCount)
	return severity >= SeverityMild && m.QueryCount >= nPlusOneHighBand
}

// CalculateNPlusOneSeverity returns m's severity bucket, 0 on a nil receiver.
func (m *Metrics) CalculateNPlusOneSeverity() Severity {
	if m == nil {
		return SeverityNone
	}
	return CalculateSeverity(m.QueryCount)
}

// DetectNPlusOneSevere reports whether m's severity has reached SEVERE or
// CRITICAL, the ABI surface's "is this bad enough to fail the build"
// convenience predicate. False on a nil receiver.
func (m *Metrics) DetectNPlusOneSevere() bool {
	return m.CalculateNPlusOneSeverity() >= SeveritySevere
}

// DetectNPlusOneModerate reports whether m's severity is at least
// MODERATE (HIGH, under this core's resolved severity table — see
// nPlusOneHighBand). False on a nil receiver.
func (m *Metrics) DetectNPlusOneModerate() bool {
	return m.CalculateNPlusOneSeverity() >= SeverityModerate
}

// HasNPlusOnePatternByCount is the threshold-parameterized form of
// HasNPlusOnePattern: it reports whether m's query count meets or exceeds
// an arbitrary caller-supplied count, bypassing the fixed 12-query guard.
// Hosts that want a stricter or looser pagination boundary than this
// core's default use this instead of HasNPlusOnePattern. False on a nil
// receiver or a non-positive threshold.
func (m *Metrics) HasNPlusOnePatternByCount(threshold int64) bool {
	if m == nil || threshold <= 0 {
		return false
	}
	return m.QueryCount >= threshold
}

// Cause enumerates the probable root cause of a detected N+1 pattern.
type Cause int

const (
	CauseNone Cause = iota
	CauseSerializerNPlusOne
	CauseMissingSelectRelated
	CauseForeignKeyNPlusOne
	CauseComplexRelationship
)

func (c Cause) String() string {
	switch c {
	case CauseNone:
		return "NONE"
	case CauseSerializerNPlusOne:
		return "SERIALIZER_N_PLUS_ONE"
	case CauseMissingSelectRelated:
		return "MISSING_SELECT_RELATED"
	case CauseForeignKeyNPlusOne:
		return "FOREIGN_KEY_N_PLUS_ONE"
	case CauseComplexRelationship:
		return "COMPLEX_RELATIONSHIP"
	default:
		return "UNKNOWN"
	}
}

// fastQueryMsThreshold is the per-query average below which a >=20-query
// session is classified "fast" (serializer-shaped) rather than "slow"
// (foreign-key-shaped).
const fastQueryMsThreshold = 5.0

// EstimateNPlusOneCause derives a probable cause from query count and
// elapsed time alone. 0 (CauseNone) on a nil receiver or when severity is
// NONE.
func (m *Metrics) EstimateNPlusOneCause() Cause {
	if m == nil {
		return CauseNone
	}
	severity := CalculateSeverity(m.QueryCount)
	if severity == SeverityNone {
		return CauseNone
	}

	qc := m.QueryCount
	switch {
	case qc >= 50:
		return CauseComplexRelationship
	case qc >= 20:
		avgMs := m.ElapsedMs() / float64(qc)
		if avgMs < fastQueryMsThreshold {
			return CauseSerializerNPlusOne
		}
		return CauseForeignKeyNPlusOne
	case qc >= nPlusOneHighBand:
		return CauseMissingSelectRelated
	default:
		return CauseNone
	}
}

// FixSuggestion returns stable, host-facing guidance text keyed by cause.
// The wording is part of the documented contract: callers may display it
// verbatim.
func FixSuggestion(cause Cause) string {
	switch cause {
	case CauseSerializerNPlusOne:
		return "Likely a serializer N+1: check serializer methods for per-row queries and add prefetch_related for the related collections they touch."
	case CauseMissingSelectRelated:
		return "Likely a missing select_related: add select_related for the foreign keys accessed in this loop to collapse the extra SELECTs into the original join."
	case CauseForeignKeyNPlusOne:
		return "Likely a foreign-key N+1: denormalize the foreign key or switch to a bulk fetch (e.g. in_bulk) instead of one query per related row."
	case CauseComplexRelationship:
		return "Likely a complex relationship traversal: consider raw SQL or a query redesign (e.g. a single aggregated query) instead of walking the relationship in a loop."
	default:
		return "No N+1 pattern detected."
	}
}

// FixSuggestion is a convenience that estimates m's cause and returns its
// fix suggestion text (the cause itself is not returned).
func (m *Metrics) FixSuggestion() string {
	return FixSuggestion(m.EstimateNPlusOneCause())
}

// IsCacheIntensive reports whether m's cache hit ratio falls below cfg's
// cache-intensive threshold while at least one cache hit or miss was
// observed. A session with no cache lookups at all has nothing to be
// cache-intensive about, so it never qualifies regardless of the ratio's
// default-zero value; the query count is not consulted. A
// nil cfg uses mconfig's documented defaults; false on a nil receiver.
//
// This is product policy, not core correctness (spec.md §9 Open
// Questions): the threshold is configurable via
// mconfig.WithCacheIntensiveThreshold, never hardcoded.
func (m *Metrics) IsCacheIntensive(cfg *mconfig.Config) bool {
	if m == nil {
		return false
	}
	total := m.CacheHits + m.CacheMisses
	if total == 0 {
		return false
	}
	threshold := mconfig.DefaultCacheIntensiveThreshold
	if cfg != nil {
		threshold = cfg.CacheIntensiveThreshold
	}
	return m.CacheHitRatio() < threshold
}

// IsMemoryIntensive reports whether m's memory delta meets or exceeds
// cfg's memory-intensive threshold (in megabytes). The -1.0
// memory-sampling-failure sentinel never qualifies — a failed sample is
// not evidence of memory pressure. A nil cfg uses mconfig's documented
// defaults; false on a nil receiver.
func (m *Metrics) IsMemoryIntensive(cfg *mconfig.Config) bool {
	if m == nil {
		return false
	}
	delta := m.MemoryDeltaMb()
	if delta < 0 {
		return false
	}
	threshold := mconfig.DefaultMemoryIntensiveThresholdMB
	if cfg != nil {
		threshold = cfg.MemoryIntensiveThresholdMB
	}
	return delta >= threshold
}
