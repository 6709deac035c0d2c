// Package orchestrator implements the test orchestrator (C4): a
// fixed-capacity pool of test contexts claimed with lock-free
// compare-and-swap, and an append-only, memory-mapped history journal
// that survives process restarts.
package orchestrator

import (
	"sync/atomic"

	"github.com/mercury-testing/perfcore/mconfig"
	"github.com/mercury-testing/perfcore/mlog"
	"github.com/mercury-testing/perfcore/primitives"
	"github.com/mercury-testing/perfcore/queryanalyzer"
	"github.com/mercury-testing/perfcore/session"
)

// MaxTestContexts is the fixed capacity of the orchestrator's context
// pool, deliberately smaller than session.NumSlots: a host runs far
// fewer concurrent named test cases than raw measurement sessions.
const MaxTestContexts = 256

const (
	maxClassNameBytes  = 127
	maxMethodNameBytes = 127
)

// Status is the lifecycle state of a test context.
type Status int32

const (
	StatusIdle Status = iota
	StatusRunning
	StatusFinalized
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "RUNNING"
	case StatusFinalized:
		return "FINALIZED"
	default:
		return "IDLE"
	}
}

// testContext is one pool entry. claimed is the CAS-guarded active flag:
// 0 means free, 1 means claimed. Everything else is only touched by the
// goroutine that holds the claim (enforced by the CAS protocol, not a
// mutex). This differs from the session engine's slot table, which
// guards its own active flag with a per-slot mutex.
type testContext struct {
	claimed    atomic.Int32
	generation atomic.Int64

	className  string
	methodName string
	status     atomic.Int32 // Status

	startTimestamp primitives.Timestamp
	endTimestamp   primitives.Timestamp

	score float64
	grade string

	nPlusOneSeverity int32 // session.Severity
	nPlusOneCause    int32 // session.Cause

	metrics *session.Metrics
}

// ContextHandle addresses one claimed test context, generation-tagged
// exactly like session.Handle so a finalized-and-reclaimed slot can never
// be addressed by an old caller.
type ContextHandle int64

const ctxIndexBits = 9 // 2^9 == 512 > MaxTestContexts, gives headroom

func (h ContextHandle) index() int        { return int(h) & (1<<ctxIndexBits - 1) }
func (h ContextHandle) generation() int64 { return int64(h)>>ctxIndexBits - 1 }

// makeContextHandle packs generation and index into a ContextHandle. The
// encoded generation is biased by +1 so that slot 0's first occupant
// (the internal generation counter's zero value) never encodes to
// ContextHandle(0), which would be indistinguishable from the <=0 error
// sentinel that Valid checks for.
func makeContextHandle(generation int64, index int) ContextHandle {
	return ContextHandle(((generation + 1) << ctxIndexBits) | int64(index))
}

// Valid reports whether h addresses a slot within range.
func (h ContextHandle) Valid() bool {
	return h > 0 && h.index() < MaxTestContexts
}

// Snapshot is an owned, point-in-time copy of a test context, returned by
// FinalizeTestContext.
type Snapshot struct {
	ClassName        string
	MethodName       string
	Status           Status
	Score            float64
	Grade            string
	StartTimestamp   primitives.Timestamp
	EndTimestamp     primitives.Timestamp
	NPlusOneSeverity session.Severity
	NPlusOneCause    session.Cause
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithLogger attaches a structured logger; defaults to a no-op.
func WithLogger(logger mlog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithJournal attaches a persistent history journal opened via OpenJournal.
// Without this option, FinalizeTestContext still works but history does
// not survive process restarts.
func WithJournal(j *Journal) Option {
	return func(o *Orchestrator) { o.journal = j }
}

// WithConfig attaches a shared mconfig.Config, whose grade bands drive
// FinalizeTestContext's default grading when the caller passes an empty
// grade override.
func WithConfig(cfg *mconfig.Config) Option {
	return func(o *Orchestrator) { o.config = cfg }
}

// Orchestrator owns the fixed test-context pool and, optionally, a
// persistent history journal.
type Orchestrator struct {
	contexts [MaxTestContexts]testContext

	logger  mlog.Logger
	journal *Journal
	config  *mconfig.Config

	totalCreated   atomic.Int64
	totalFinalized atomic.Int64
	totalRejected  atomic.Int64
}

// NewOrchestrator constructs a ready-to-use Orchestrator.
func NewOrchestrator(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger: mlog.Nop(),
		config: mconfig.NewConfig(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// CreateTestContext claims a free slot and returns its handle. An empty
// className or methodName is INVALID_ARGUMENT. Returns a negative handle
// when the pool is exhausted (RESOURCE_EXHAUSTED).
func (o *Orchestrator) CreateTestContext(className, methodName string) (ContextHandle, error) {
	if className == "" || methodName == "" {
		err := primitives.WrapError(primitives.KindInvalidArgument, "class and method name are required")
		primitives.SetError(primitives.KindInvalidArgument, err.Error())
		return -1, err
	}
	className = primitives.TruncateCopy(className, maxClassNameBytes)
	methodName = primitives.TruncateCopy(methodName, maxMethodNameBytes)

	for i := range o.contexts {
		c := &o.contexts[i]
		if !c.claimed.CompareAndSwap(0, 1) {
			continue
		}

		c.className = className
		c.methodName = methodName
		c.status.Store(int32(StatusRunning))
		c.startTimestamp = primitives.Now()
		c.endTimestamp = 0
		c.score = 0
		c.grade = ""
		c.nPlusOneSeverity = 0
		c.nPlusOneCause = 0
		c.metrics = nil

		gen := c.generation.Load()
		handle := makeContextHandle(gen, i)

		o.totalCreated.Add(1)
		o.logger.Log(mlog.LevelDebug, "orchestrator", "test context created", mlog.Fields{
			"handle": int64(handle),
			"class":  className,
			"method": methodName,
		})
		return handle, nil
	}

	o.totalRejected.Add(1)
	err := primitives.WrapError(primitives.KindResourceExhausted, "test context pool is full")
	primitives.SetError(primitives.KindResourceExhausted, err.Error())
	o.logger.Log(mlog.LevelWarn, "orchestrator", "test context pool exhausted", nil)
	return -1, err
}

func (o *Orchestrator) live(handle ContextHandle) (*testContext, bool) {
	if !handle.Valid() {
		return nil, false
	}
	c := &o.contexts[handle.index()]
	if c.claimed.Load() != 1 || c.generation.Load() != handle.generation() {
		return nil, false
	}
	return c, true
}

// UpdateTestContext records metrics captured from a finished measurement
// session against handle. Returns an error on a stale or invalid handle.
func (o *Orchestrator) UpdateTestContext(handle ContextHandle, metrics *session.Metrics) error {
	c, ok := o.live(handle)
	if !ok {
		primitives.SetError(primitives.KindStale, "stale or invalid test context handle")
		return primitives.WrapError(primitives.KindStale, "stale or invalid test context handle")
	}
	c.metrics = metrics
	return nil
}

// UpdateNPlusOneAnalysis attaches query-analyzer-derived severity/cause
// to handle, independent of (and potentially disagreeing with) the
// session engine's own count-based classification — both are recorded so
// a host can compare the two detection pathways.
func (o *Orchestrator) UpdateNPlusOneAnalysis(handle ContextHandle, severity session.Severity, cause session.Cause) error {
	c, ok := o.live(handle)
	if !ok {
		primitives.SetError(primitives.KindStale, "stale or invalid test context handle")
		return primitives.WrapError(primitives.KindStale, "stale or invalid test context handle")
	}
	c.nPlusOneSeverity = int32(severity)
	c.nPlusOneCause = int32(cause)
	return nil
}

// FinalizeTestContext marks handle finalized, frees the slot (bumping its
// generation), appends a history entry to the journal if one is attached,
// and returns an owned snapshot. An empty grade is replaced with the
// orchestrator's configured default grading (mconfig's bands); a non-empty
// grade is stored verbatim, with no interpretation of the host's string.
// Returns (nil, error) on a stale or invalid handle.
func (o *Orchestrator) FinalizeTestContext(handle ContextHandle, score float64, grade string) (*Snapshot, error) {
	c, ok := o.live(handle)
	if !ok {
		primitives.SetError(primitives.KindStale, "stale or invalid test context handle")
		return nil, primitives.WrapError(primitives.KindStale, "stale or invalid test context handle")
	}

	if grade == "" {
		grade = o.config.Grade(score)
	}

	c.score = score
	c.grade = grade
	c.endTimestamp = primitives.Now()
	c.status.Store(int32(StatusFinalized))

	snap := &Snapshot{
		ClassName:        c.className,
		MethodName:       c.methodName,
		Status:           StatusFinalized,
		Score:            c.score,
		Grade:            c.grade,
		StartTimestamp:   c.startTimestamp,
		EndTimestamp:     c.endTimestamp,
		NPlusOneSeverity: session.Severity(c.nPlusOneSeverity),
		NPlusOneCause:    session.Cause(c.nPlusOneCause),
	}

	if o.journal != nil {
		entry := HistoryEntry{
			Timestamp:  int64(snap.EndTimestamp),
			ClassName:  snap.ClassName,
			MethodName: snap.MethodName,
			Score:      snap.Score,
			Grade:      snap.Grade,
			NPlusOne:   snap.NPlusOneSeverity > session.SeverityNone,
			Severity:   uint8(snap.NPlusOneSeverity),
		}
		if c.metrics != nil {
			entry.ElapsedMs = c.metrics.ElapsedMs()
			entry.MemoryMb = c.metrics.MemoryDeltaMb()
			entry.QueryCount = uint32(c.metrics.QueryCountOf())
			entry.CacheRatio = c.metrics.CacheHitRatio()
		}
		if err := o.journal.Append(entry); err != nil {
			o.logger.Log(mlog.LevelError, "orchestrator", "history append failed", mlog.Fields{
				"error": err,
			})
		}
	}

	c.generation.Add(1)
	c.claimed.Store(0)

	o.totalFinalized.Add(1)
	return snap, nil
}

// OrchestratorStatistics is a snapshot of the orchestrator's aggregate
// pool counters.
type OrchestratorStatistics struct {
	TotalCreated   int64
	TotalFinalized int64
	TotalRejected  int64
	ActiveContexts int
}

// GetOrchestratorStatistics returns a snapshot of the pool's aggregate
// counters, including a live scan for currently-claimed contexts.
func (o *Orchestrator) GetOrchestratorStatistics() OrchestratorStatistics {
	active := 0
	for i := range o.contexts {
		if o.contexts[i].claimed.Load() == 1 {
			active++
		}
	}
	return OrchestratorStatistics{
		TotalCreated:   o.totalCreated.Load(),
		TotalFinalized: o.totalFinalized.Load(),
		TotalRejected:  o.totalRejected.Load(),
		ActiveContexts: active,
	}
}

// QueryHistoryEntries is a convenience that forwards to the attached
// journal, if any; it returns nil when no journal is configured.
func (o *Orchestrator) QueryHistoryEntries(filter func(HistoryEntry) bool) []HistoryEntry {
	if o.journal == nil {
		return nil
	}
	return o.journal.QueryHistoryEntries(filter)
}

// QueryAnalyzerSeverityToSession bridges package queryanalyzer's Severity
// scale to package session's, for hosts that run cluster-based detection
// and want to feed its result into UpdateNPlusOneAnalysis.
func QueryAnalyzerSeverityToSession(s queryanalyzer.Severity) session.Severity {
	return session.Severity(s)
}

// QueryAnalyzerCauseToSession bridges package queryanalyzer's Cause scale
// to package session's; the two enumerations are defined in the same
// order so the conversion is a direct cast, but the helper exists so that
// invariant is documented in one place instead of at every call site.
func QueryAnalyzerCauseToSession(c queryanalyzer.Cause) session.Cause {
	return session.Cause(c)
}
