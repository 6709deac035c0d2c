package queryanalyzer

import (
	"sync"

	"github.com/mercury-testing/perfcore/mlog"
	"github.com/mercury-testing/perfcore/primitives"
)

// MaxClusters is the fixed capacity of the cluster table. Once full, a
// query whose fingerprint has never been seen is rejected rather than
// evicting an existing cluster (reject-on-full backpressure): this core
// never silently discards a long-running cluster's accumulated history
// to make room for a newcomer.
const MaxClusters = 1024

// maxRepresentativeBytes bounds how much of a normalized query a cluster
// keeps on hand as its representative text.
const maxRepresentativeBytes = 512

// DefaultDuplicateThreshold is the minimum per-fingerprint occurrence
// count at which a cluster is considered a qualifying duplicate pattern.
const DefaultDuplicateThreshold = 5

// cluster tracks every observation of one normalized-query fingerprint.
type cluster struct {
	fingerprint    uint64
	kind           Kind
	representative string
	count          int64
	totalElapsedMs float64
	maxElapsedMs   float64
}

func (c *cluster) avgElapsedMs() float64 {
	if c.count == 0 {
		return 0
	}
	return c.totalElapsedMs / float64(c.count)
}

// Statistics is a point-in-time snapshot of the analyzer's aggregate
// counters, returned by GetQueryStatistics.
type Statistics struct {
	TotalQueries      int64
	UniqueClusters    int
	DuplicateClusters int
	RejectedQueries   int64
	MaxSeverity       Severity
}

// Option configures an Analyzer at construction time.
type Option func(*Analyzer)

// WithDuplicateThreshold overrides DefaultDuplicateThreshold.
func WithDuplicateThreshold(threshold int) Option {
	return func(a *Analyzer) {
		if threshold > 0 {
			a.dupThreshold = threshold
		}
	}
}

// WithLogger attaches a structured logger; defaults to a no-op.
func WithLogger(logger mlog.Logger) Option {
	return func(a *Analyzer) { a.logger = logger }
}

// Analyzer is the query clustering and N+1 detection engine (C3). A host
// constructs one Analyzer per measurement session it wants independently
// tracked; all methods are safe for concurrent use but hold a single
// mutex, so this is not a high-throughput hot-path component — it is
// meant to run alongside, not inside, the query execution path.
type Analyzer struct {
	mu sync.Mutex

	clusters     []cluster
	byPrint      map[uint64]int // fingerprint -> index into clusters
	dupThreshold int

	totalQueries    int64
	rejectedQueries int64
	maxSeverity     Severity
	maxCause        Cause

	logger mlog.Logger
}

// NewAnalyzer constructs a ready-to-use Analyzer.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{
		clusters:     make([]cluster, 0, 256),
		byPrint:      make(map[uint64]int, 256),
		dupThreshold: DefaultDuplicateThreshold,
		logger:       mlog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// AnalyzeQuery normalizes and fingerprints text, folding the observation
// into its cluster (creating one if this is the first time the
// fingerprint has been seen). An empty text is INVALID_ARGUMENT. When the
// fingerprint is new and the cluster table is already at MaxClusters, the
// observation is rejected (RESOURCE_EXHAUSTED) but still counted in
// Statistics.RejectedQueries so callers can see how much analysis was
// lost rather than have it silently vanish.
func (a *Analyzer) AnalyzeQuery(text string, executionTimeMs float64) error {
	if text == "" {
		err := primitives.WrapError(primitives.KindInvalidArgument, "query text is required")
		primitives.SetError(primitives.KindInvalidArgument, err.Error())
		return err
	}

	normalized := Normalize(text)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalQueries++

	if normalized == "" {
		// Whitespace/comment-only text normalizes to empty: there is
		// nothing to fingerprint or cluster, but the observation still
		// counts toward totalQueries.
		return nil
	}

	fingerprint := primitives.FNV1a64String(normalized)

	if idx, ok := a.byPrint[fingerprint]; ok {
		c := &a.clusters[idx]
		c.count++
		c.totalElapsedMs += executionTimeMs
		if executionTimeMs > c.maxElapsedMs {
			c.maxElapsedMs = executionTimeMs
		}
		return nil
	}

	if len(a.clusters) >= MaxClusters {
		a.rejectedQueries++
		a.logger.Log(mlog.LevelWarn, "queryanalyzer", "cluster table full, query dropped", mlog.Fields{
			"fingerprint": fingerprint,
		})
		err := primitives.WrapError(primitives.KindResourceExhausted, "cluster table is full")
		primitives.SetError(primitives.KindResourceExhausted, err.Error())
		return err
	}

	a.clusters = append(a.clusters, cluster{
		fingerprint:    fingerprint,
		kind:           FirstTokenKind(normalized),
		representative: primitives.TruncateCopy(normalized, maxRepresentativeBytes),
		count:          1,
		totalElapsedMs: executionTimeMs,
		maxElapsedMs:   executionTimeMs,
	})
	a.byPrint[fingerprint] = len(a.clusters) - 1
	return nil
}

// DetectNPlusOnePatterns scans every cluster, marks those whose count
// reaches the duplicate threshold, and returns how many qualify. It also
// refreshes the analyzer's internal max-severity/cause state, so a
// subsequent call to GetNPlusOneSeverity reflects this scan.
func (a *Analyzer) DetectNPlusOnePatterns() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	qualifying := 0
	a.maxSeverity = SeverityNone
	a.maxCause = CauseNone

	for i := range a.clusters {
		c := &a.clusters[i]
		if c.count < int64(a.dupThreshold) {
			continue
		}
		qualifying++

		severity := CalculateClusterSeverity(c.count)
		if severity > a.maxSeverity {
			a.maxSeverity = severity
			a.maxCause = EstimateClusterCause(c.kind, c.avgElapsedMs())
		}
	}
	return qualifying
}

// GetNPlusOneSeverity returns the severity computed by the most recent
// DetectNPlusOnePatterns call (NONE if it has never run).
func (a *Analyzer) GetNPlusOneSeverity() Severity {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.maxSeverity
}

// GetNPlusOneCause returns the cause computed by the most recent
// DetectNPlusOnePatterns call.
func (a *Analyzer) GetNPlusOneCause() Cause {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.maxCause
}

// GetNPlusOneSuggestion is a convenience wrapping FixSuggestion around the
// analyzer's current cause.
func (a *Analyzer) GetNPlusOneSuggestion() string {
	return FixSuggestion(a.GetNPlusOneCause())
}

// GetQueryStatistics returns a snapshot of the analyzer's aggregate
// counters.
func (a *Analyzer) GetQueryStatistics() Statistics {
	a.mu.Lock()
	defer a.mu.Unlock()

	dup := 0
	for i := range a.clusters {
		if a.clusters[i].count >= int64(a.dupThreshold) {
			dup++
		}
	}

	return Statistics{
		TotalQueries:      a.totalQueries,
		UniqueClusters:    len(a.clusters),
		DuplicateClusters: dup,
		RejectedQueries:   a.rejectedQueries,
		MaxSeverity:       a.maxSeverity,
	}
}

// ResetQueryAnalyzer clears every cluster and counter, returning the
// analyzer to its just-constructed state.
func (a *Analyzer) ResetQueryAnalyzer() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.clusters = a.clusters[:0]
	for k := range a.byPrint {
		delete(a.byPrint, k)
	}
	a.totalQueries = 0
	a.rejectedQueries = 0
	a.maxSeverity = SeverityNone
	a.maxCause = CauseNone
}
