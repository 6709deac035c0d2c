package primitives

import (
	"sync"
	"sync/atomic"
	"time"
)

// Timestamp is monotonic nanoseconds since an unspecified fixed origin.
// Only differences between two Timestamps are meaningful.
type Timestamp int64

// Now returns the current monotonic timestamp. The Go runtime's monotonic
// clock reading (time.Now().Sub semantics) already gives us what an
// RDTSC-calibrated fast path would: a cheap, monotonic counter that never
// goes backwards on this process. A dedicated calibrated-counter path is
// kept as an optional accelerator (see CalibrateFastClock) for parity with
// the source design, but Now() never requires it to be correct.
func Now() Timestamp {
	if atomic.LoadUint32(&fastClock.ready) == 1 {
		return Timestamp(fastClock.origin + int64(time.Since(fastClock.originTime)))
	}
	return Timestamp(monotonicOrigin.Add(time.Now()))
}

// monotonicOrigin anchors Now() to a fixed zero point the first time it is
// observed, so returned values are small and comparisons stay well inside
// int64 range even after long process lifetimes.
var monotonicOrigin = newOriginClock()

type originClock struct {
	once  sync.Once
	start time.Time
}

func newOriginClock() *originClock { return &originClock{} }

func (c *originClock) Add(now time.Time) int64 {
	c.once.Do(func() { c.start = now })
	return now.Sub(c.start).Nanoseconds()
}

// ElapsedMillis converts a start/end Timestamp pair to milliseconds as a
// lossy-on-purpose double, matching the spec's documented conversion.
func ElapsedMillis(start, end Timestamp) float64 {
	return float64(end-start) / 1e6
}

// fastClock models the optional RDTSC-style calibrated counter. On a
// platform/process where calibration never runs (the common case in pure
// Go, which has no portable RDTSC intrinsic), ready stays 0 and Now()
// silently falls back to the syscall-backed monotonic clock — exactly the
// behavior the spec documents for "implausible calibration ratio".
var fastClock struct {
	ready      uint32
	calibrated uint32 // guards at-most-once calibration via CAS
	origin     int64
	originTime time.Time
	hz         uint64
}

// CalibrateFastClock performs a one-time, idempotent calibration of the
// fast clock path by timing a short sleep against the monotonic clock and
// deriving an effective frequency. It is safe to call from multiple
// goroutines concurrently; only the first wins.
//
// A failure to produce a plausible ratio (a non-positive elapsed time for
// the calibration sleep) leaves the fast path
// disabled and Now() keeps using the syscall clock, never panicking.
func CalibrateFastClock() {
	if !atomic.CompareAndSwapUint32(&fastClock.calibrated, 0, 1) {
		return
	}

	const calibrationWindow = 2 * time.Millisecond
	start := time.Now()
	time.Sleep(calibrationWindow)
	elapsed := time.Since(start)

	if elapsed <= 0 {
		return // implausible ratio; stay on the fallback clock
	}

	fastClock.hz = uint64(float64(time.Second) / float64(elapsed) * float64(calibrationWindow))
	fastClock.origin = monotonicOrigin.Add(start)
	fastClock.originTime = start
	atomic.StoreUint32(&fastClock.ready, 1)
}

// FastClockFrequency returns the calibrated frequency in Hz, or 0 if the
// fast path was never successfully calibrated (the accessor interprets 0
// as "fall back to syscall clock").
func FastClockFrequency() uint64 {
	return atomic.LoadUint64(&fastClock.hz)
}
