// Package session implements the session engine (C2): a fixed-capacity
// slot table of in-flight measurement sessions, goroutine-local
// "current session" binding, and derived N+1 diagnostics on a finished
// session's metrics.
package session

import (
	"sync"
	"sync/atomic"

	"github.com/mercury-testing/perfcore/mconfig"
	"github.com/mercury-testing/perfcore/mlog"
	"github.com/mercury-testing/perfcore/primitives"
)

// NumSlots is the fixed capacity of the session slot table.
const NumSlots = 2048

const (
	defaultOperationKind  = "general"
	maxOperationNameBytes = 255
	maxOperationKindBytes = 63
)

// slotIndexBits is the width of the slot index packed into a Handle; the
// remaining high bits carry the slot's generation counter.
const slotIndexBits = 11 // 2^11 == 2048 == NumSlots

// Handle is an opaque, ABI-shaped session identifier. Valid handles are
// >= 1; values <= 0 indicate an error. It encodes (generation << 11) |
// slotIndex so a stale handle from a freed, reused slot can never
// address the new occupant.
type Handle int64

// Valid reports whether h looks like a handle that could ever have been
// issued (positive and carrying a slot index within range). It does not
// check generation freshness — Stop does that against live slot state.
func (h Handle) Valid() bool {
	if h <= 0 {
		return false
	}
	return h.slotIndex() < NumSlots
}

func (h Handle) slotIndex() int {
	return int(h) & (NumSlots - 1)
}

func (h Handle) generation() int64 {
	return int64(h)>>slotIndexBits - 1
}

// makeHandle packs generation and slotIndex into a Handle. The encoded
// generation is biased by +1 so that slot 0's first occupant (the
// internal generation counter's zero value) never encodes to Handle(0),
// which would be indistinguishable from the <=0 error sentinel that
// Valid checks for.
func makeHandle(generation int64, slotIndex int) Handle {
	return Handle(((generation + 1) << slotIndexBits) | int64(slotIndex))
}

// slot is one entry in the fixed session table.
type slot struct {
	mu         sync.Mutex
	active     bool
	generation int64

	operationName string
	operationKind string

	startTimestamp primitives.Timestamp
	endTimestamp   primitives.Timestamp
	startMemory    int64
	peakMemory     int64
	endMemory      int64

	queryCount  atomic.Int64
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
}

// Engine owns the slot table and the goroutine-local current-session
// bindings for one process. A host constructs exactly one Engine.
type Engine struct {
	slots [NumSlots]slot

	currentMu sync.RWMutex
	current   map[uint64]Handle // goroutine id -> bound handle

	sampleMemory func() int64
	logger       mlog.Logger
}

// Option configures an Engine at construction time, following the same
// closure-over-options shape used across this core (mconfig.Option).
type Option func(*Engine)

// WithMemorySampler overrides how resident memory is sampled at start/stop.
// The default reads runtime.MemStats.Alloc.
func WithMemorySampler(fn func() int64) Option {
	return func(e *Engine) { e.sampleMemory = fn }
}

// WithLogger attaches a structured logger; defaults to a no-op.
func WithLogger(logger mlog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine constructs a ready-to-use session engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		current:      make(map[uint64]Handle),
		sampleMemory: defaultMemorySampler,
		logger:       mlog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Start allocates a slot for a new measurement session, binds it as the
// calling goroutine's current session, and returns its handle.
//
// An empty operationName is a hard error (INVALID_ARGUMENT). An empty
// operationKind is substituted with "general". Both are truncated to
// their bounded lengths. Returns a negative handle and no binding change
// when every slot is occupied (RESOURCE_EXHAUSTED).
func (e *Engine) Start(operationName, operationKind string) (Handle, error) {
	if operationName == "" {
		err := primitives.WrapError(primitives.KindInvalidArgument, "operation name is required")
		primitives.SetError(primitives.KindInvalidArgument, err.Error())
		return -1, err
	}
	if operationKind == "" {
		operationKind = defaultOperationKind
	}
	operationName = primitives.TruncateCopy(operationName, maxOperationNameBytes)
	operationKind = primitives.TruncateCopy(operationKind, maxOperationKindBytes)

	for i := range e.slots {
		s := &e.slots[i]
		s.mu.Lock()
		if s.active {
			s.mu.Unlock()
			continue
		}

		s.active = true
		s.operationName = operationName
		s.operationKind = operationKind
		s.startTimestamp = primitives.Now()
		s.endTimestamp = 0
		mem := e.sampleMemory()
		s.startMemory = mem
		s.peakMemory = mem
		s.endMemory = 0
		s.queryCount.Store(0)
		s.cacheHits.Store(0)
		s.cacheMisses.Store(0)
		gen := s.generation
		s.mu.Unlock()

		handle := makeHandle(gen, i)
		e.bindCurrent(handle)

		e.logger.Log(mlog.LevelDebug, "session", "started", mlog.Fields{
			"handle":    int64(handle),
			"operation": operationName,
		})
		return handle, nil
	}

	err := primitives.WrapError(primitives.KindResourceExhausted, "session slot table is full")
	primitives.SetError(primitives.KindResourceExhausted, err.Error())
	e.logger.Log(mlog.LevelWarn, "session", "slot table exhausted", nil)
	return -1, err
}

// Metrics is an owned snapshot of a finished session's counters, returned
// by Stop. Numeric accessors on a nil *Metrics all return their
// documented zero sentinel rather than dereferencing.
type Metrics struct {
	OperationName string
	OperationKind string

	StartTimestamp primitives.Timestamp
	EndTimestamp   primitives.Timestamp

	StartMemoryBytes int64
	PeakMemoryBytes  int64
	EndMemoryBytes   int64

	QueryCount  int64
	CacheHits   int64
	CacheMisses int64
}

// ElapsedMs returns the wall-clock duration of the session in
// milliseconds. 0 on a nil receiver.
func (m *Metrics) ElapsedMs() float64 {
	if m == nil {
		return 0
	}
	return primitives.ElapsedMillis(m.StartTimestamp, m.EndTimestamp)
}

// MemoryDeltaMb returns (end-start) memory in megabytes. A negative
// sentinel (-1.0) signals a memory-sampling failure upstream, never an
// abort; 0 on a nil receiver.
func (m *Metrics) MemoryDeltaMb() float64 {
	if m == nil {
		return 0
	}
	if m.EndMemoryBytes < 0 || m.StartMemoryBytes < 0 {
		return -1.0
	}
	return float64(m.EndMemoryBytes-m.StartMemoryBytes) / (1024 * 1024)
}

// QueryCountOf returns the recorded query count, 0 on a nil receiver.
func (m *Metrics) QueryCountOf() int64 {
	if m == nil {
		return 0
	}
	return m.QueryCount
}

// CacheHitCount returns the recorded cache hit count, 0 on a nil receiver.
func (m *Metrics) CacheHitCount() int64 {
	if m == nil {
		return 0
	}
	return m.CacheHits
}

// CacheMissCount returns the recorded cache miss count, 0 on a nil receiver.
func (m *Metrics) CacheMissCount() int64 {
	if m == nil {
		return 0
	}
	return m.CacheMisses
}

// CacheHitRatio returns hits/(hits+misses), or 0 when the denominator is 0.
func (m *Metrics) CacheHitRatio() float64 {
	if m == nil {
		return 0
	}
	total := m.CacheHits + m.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(m.CacheHits) / float64(total)
}

// Stop validates handle, finalizes the slot's metrics, frees the slot
// (bumping its generation so the handle can never be reused), and
// unbinds the calling goroutine's current session if it matched. Returns
// nil on an invalid, stale, or already-stopped handle — stop is
// idempotent in the sense that the second call on the same handle is a
// clean failure, never a crash.
func (e *Engine) Stop(handle Handle) *Metrics {
	if !handle.Valid() {
		primitives.SetError(primitives.KindInvalidArgument, "invalid session handle")
		return nil
	}

	idx := handle.slotIndex()
	s := &e.slots[idx]

	s.mu.Lock()
	if !s.active || s.generation != handle.generation() {
		s.mu.Unlock()
		primitives.SetError(primitives.KindStale, "stale or inactive session handle")
		return nil
	}

	s.endTimestamp = primitives.Now()
	s.endMemory = e.sampleMemory()

	metrics := &Metrics{
		OperationName:    s.operationName,
		OperationKind:    s.operationKind,
		StartTimestamp:   s.startTimestamp,
		EndTimestamp:     s.endTimestamp,
		StartMemoryBytes: s.startMemory,
		PeakMemoryBytes:  s.peakMemory,
		EndMemoryBytes:   s.endMemory,
		QueryCount:       s.queryCount.Load(),
		CacheHits:        s.cacheHits.Load(),
		CacheMisses:      s.cacheMisses.Load(),
	}

	s.active = false
	s.generation++
	s.mu.Unlock()

	e.unbindIfCurrent(handle)

	e.logger.Log(mlog.LevelDebug, "session", "stopped", mlog.Fields{
		"handle":     int64(handle),
		"queryCount": metrics.QueryCount,
		"elapsedMs":  metrics.ElapsedMs(),
		"cacheRatio": metrics.CacheHitRatio(),
	})
	return metrics
}

// bindCurrent sets handle as the calling goroutine's current session.
func (e *Engine) bindCurrent(handle Handle) {
	gid := primitives.CurrentGoroutineID()
	e.currentMu.Lock()
	e.current[gid] = handle
	e.currentMu.Unlock()
}

// unbindIfCurrent clears the calling goroutine's binding only if it still
// points at handle (a later Start may have already rebound it).
func (e *Engine) unbindIfCurrent(handle Handle) {
	gid := primitives.CurrentGoroutineID()
	e.currentMu.Lock()
	if e.current[gid] == handle {
		delete(e.current, gid)
	}
	e.currentMu.Unlock()
}

// SetCurrentSessionID explicitly binds handle as the calling goroutine's
// current session, used when a host wants to route hooks to a session
// without relying on Start's implicit binding.
func (e *Engine) SetCurrentSessionID(handle Handle) {
	gid := primitives.CurrentGoroutineID()
	e.currentMu.Lock()
	e.current[gid] = handle
	e.currentMu.Unlock()
}

// GetCurrentSessionID returns the calling goroutine's bound session, or 0
// if none is bound. There is no inheritance across goroutines: a freshly
// spawned goroutine always observes 0 until it calls Start or
// SetCurrentSessionID itself.
func (e *Engine) GetCurrentSessionID() Handle {
	gid := primitives.CurrentGoroutineID()
	e.currentMu.RLock()
	defer e.currentMu.RUnlock()
	return e.current[gid]
}

func (e *Engine) currentSlot() (*slot, Handle, bool) {
	handle := e.GetCurrentSessionID()
	if !handle.Valid() {
		return nil, 0, false
	}
	s := &e.slots[handle.slotIndex()]
	s.mu.Lock()
	live := s.active && s.generation == handle.generation()
	s.mu.Unlock()
	if !live {
		return nil, 0, false
	}
	return s, handle, true
}

// IncrementQueryCount atomically increments the calling goroutine's bound
// session's query counter. A no-op (never an error) when no session is
// bound, since host hooks may fire outside a measurement window.
func (e *Engine) IncrementQueryCount() {
	if s, _, ok := e.currentSlot(); ok {
		s.queryCount.Add(1)
	}
}

// IncrementCacheHits atomically increments the bound session's cache-hit
// counter. No-op when unbound.
func (e *Engine) IncrementCacheHits() {
	if s, _, ok := e.currentSlot(); ok {
		s.cacheHits.Add(1)
	}
}

// IncrementCacheMisses atomically increments the bound session's
// cache-miss counter. No-op when unbound.
func (e *Engine) IncrementCacheMisses() {
	if s, _, ok := e.currentSlot(); ok {
		s.cacheMisses.Add(1)
	}
}

// ResetGlobalCounters clears the bound session's query/cache counters
// without ending the session. No-op when unbound.
func (e *Engine) ResetGlobalCounters() {
	if s, _, ok := e.currentSlot(); ok {
		s.queryCount.Store(0)
		s.cacheHits.Store(0)
		s.cacheMisses.Store(0)
	}
}

// defaultMemorySampler is the default resident-memory reading, based on
// the Go runtime's heap accounting. A sampling failure is not possible
// from runtime.ReadMemStats itself, but the -1.0 sentinel path in
// MemoryDeltaMb exists for hosts that plug in a sampler that can fail
// (e.g. reading /proc).
func defaultMemorySampler() int64 {
	return int64(currentHeapAlloc())
}
