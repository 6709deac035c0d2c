package queryanalyzer

import (
	"fmt"

	"github.com/mercury-testing/perfcore/primitives"
)

// Severity classifies how duplicated a cluster's occurrence count is.
// This mirrors package session's Severity scale but is keyed by
// per-cluster occurrence count rather than whole-session query count, so
// the two are deliberately distinct types.
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

// CalculateClusterSeverity maps a single cluster's occurrence count to a
// severity bucket, using the same performance-monitor-derived boundary
// (12 = HIGH) as package session's CalculateSeverity, for consistency
// across the two independent N+1 detection pathways.
func CalculateClusterSeverity(count int64) Severity {
	switch {
	case count < 5:
		return SeverityNone
	case count < 12:
		return SeverityMild
	case count < 25:
		return SeverityHigh
	case count < 50:
		return SeveritySevere
	default:
		return SeverityCritical
	}
}

// Cause enumerates the probable root cause of a qualifying cluster,
// estimated from its statement kind and average per-occurrence latency.
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

// clusterFastAvgMsThreshold is the per-occurrence average below which a
// qualifying SELECT cluster is treated as serializer-shaped.
const clusterFastAvgMsThreshold = 5.0

// EstimateClusterCause derives a probable cause from a cluster's
// statement kind and average elapsed time per occurrence.
func EstimateClusterCause(kind Kind, avgElapsedMs float64) Cause {
	switch kind {
	case KindSelect:
		if avgElapsedMs < clusterFastAvgMsThreshold {
			return CauseSerializerNPlusOne
		}
		return CauseMissingSelectRelated
	case KindUpdate, KindDelete:
		return CauseForeignKeyNPlusOne
	default:
		return CauseComplexRelationship
	}
}

// FixSuggestion returns stable, host-facing guidance text keyed by cause.
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

// GetDuplicateQueries writes a human-readable report of every cluster at
// or above the analyzer's duplicate threshold into buffer, returning the
// number of bytes written. A nil or zero-length buffer is
// INVALID_ARGUMENT (-1, err), distinguishing "no buffer to write into"
// from the legitimate zero-duplicates case. A non-empty buffer too small
// to hold even one line returns (0, nil): callers are expected to grow
// and retry rather than receive a truncated, misleading report.
func (a *Analyzer) GetDuplicateQueries(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		err := primitives.WrapError(primitives.KindInvalidArgument, "buffer is nil or zero-length")
		primitives.SetError(primitives.KindInvalidArgument, err.Error())
		return -1, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var lines []string
	for i := range a.clusters {
		c := &a.clusters[i]
		if c.count < int64(a.dupThreshold) {
			continue
		}
		lines = append(lines, fmt.Sprintf("%dx [%s] %s (avg %.2fms)", c.count, c.kind, c.representative, c.avgElapsedMs()))
	}

	written := 0
	for _, line := range lines {
		if written+len(line)+1 > len(buffer) {
			break
		}
		written += copy(buffer[written:], line)
		buffer[written] = '\n'
		written++
	}
	return written, nil
}

// ReconstructLikelyLoopSource builds a best-effort synthetic snippet of
// what the calling code's loop probably looks like, based on a
// qualifying cluster's occurrence count and representative text (the
// statement kind is not used). It is a
// diagnostic aid, not a promise of exact source recovery.
func (a *Analyzer) ReconstructLikelyLoopSource(fingerprint uint64) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	idx, ok := a.byPrint[fingerprint]
	if !ok {
		return "", false
	}
	c := &a.clusters[idx]
	if c.count < int64(a.dupThreshold) {
		return "", false
	}

	return fmt.Sprintf(
		"for obj in queryset:  # %d iterations observed\n    obj.related  # -> %s",
		c.count, c.representative,
	), true
}
