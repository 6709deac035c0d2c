package primitives

import (
	"sync/atomic"
)

// RingBuffer is a fixed-capacity, single-producer/single-consumer queue of
// byte-slice elements of a fixed element size, fixed at construction.
//
// Concurrency model: exactly one producer goroutine calling Push, exactly
// one consumer goroutine calling Pop, same as eventloop.MicrotaskRing
// narrowed from MPSC to SPSC. Push publishes a slot's data with a
// release store to seq; Pop acquires that same seq before reading, so the
// data write happens-before the corresponding read.
//
// head and tail are each isolated on their own cache line (see
// align_test.go): the consumer only ever writes head, the producer only
// ever writes tail, and without the padding the two cursors would share a
// line and every Push/Pop would invalidate the other side's cache entry.
type RingBuffer struct {
	elementSize int
	capacity    int
	data        []byte // capacity*elementSize bytes
	seq         []atomic.Uint64

	_    [sizeOfCacheLine]byte
	head atomic.Uint64 // consumer cursor
	_    [sizeOfCacheLine]byte
	tail atomic.Uint64 // producer cursor
	_    [sizeOfCacheLine]byte
}

// ringSafetyCap bounds capacity*elementSize to keep construction requests
// reasonable and catch SIZE_MAX/element_size-style overflow before it
// reaches make().
const ringSafetyCap = 1 << 34 // 16 GiB

// NewRingBuffer constructs a ring of the given capacity (number of
// elements) and elementSize (bytes per element). Both must be >= 1 and
// their product must not exceed ringSafetyCap; violating either is a
// construction-time error (a null buffer downstream behaves per the
// documented null-receiver semantics, it is never constructed invalid).
func NewRingBuffer(capacity, elementSize int) (*RingBuffer, error) {
	if capacity < 1 || elementSize < 1 {
		return nil, WrapError(KindInvalidArgument, "ring buffer capacity and element size must be >= 1")
	}
	total, ok := MulSize(uint64(capacity), uint64(elementSize))
	if !ok || total > ringSafetyCap {
		return nil, WrapError(KindInvalidArgument, "ring buffer capacity*elementSize overflows or exceeds safety cap")
	}

	r := &RingBuffer{
		elementSize: elementSize,
		capacity:    capacity,
		data:        make([]byte, total),
		seq:         make([]atomic.Uint64, capacity),
	}
	for i := range r.seq {
		r.seq[i].Store(uint64(i))
	}
	return r, nil
}

// Push copies elem (must be exactly elementSize bytes) into the next free
// slot. Returns false if the ring is full.
func (r *RingBuffer) Push(elem []byte) bool {
	if r == nil || len(elem) != r.elementSize {
		return false
	}

	tail := r.tail.Load()
	idx := int(tail) % r.capacity
	seq := r.seq[idx].Load()

	if seq != tail {
		return false // slot not yet vacated by the consumer: ring is full
	}
	if !r.tail.CompareAndSwap(tail, tail+1) {
		return false // SPSC: only one producer, but guard anyway
	}

	copy(r.data[idx*r.elementSize:(idx+1)*r.elementSize], elem)
	r.seq[idx].Store(tail + 1) // release: publishes the write above
	return true
}

// Pop copies the oldest element into dst (must be exactly elementSize
// bytes) and removes it. Returns false if the ring is empty.
func (r *RingBuffer) Pop(dst []byte) bool {
	if r == nil || len(dst) != r.elementSize {
		return false
	}

	head := r.head.Load()
	idx := int(head) % r.capacity
	seq := r.seq[idx].Load() // acquire: pairs with the release store in Push

	if seq != head+1 {
		return false // nothing published at this slot yet: ring is empty
	}

	copy(dst, r.data[idx*r.elementSize:(idx+1)*r.elementSize])
	r.seq[idx].Store(head + uint64(r.capacity)) // mark vacated for next lap
	r.head.Store(head + 1)
	return true
}

// IsEmpty reports whether the ring currently holds no elements. On a nil
// receiver it reports true, matching the spec's null-buffer contract.
func (r *RingBuffer) IsEmpty() bool {
	if r == nil {
		return true
	}
	head := r.head.Load()
	idx := int(head) % r.capacity
	return r.seq[idx].Load() != head+1
}

// IsFull reports whether the ring currently has no free slots. On a nil
// receiver it reports false, matching the spec's null-buffer contract.
func (r *RingBuffer) IsFull() bool {
	if r == nil {
		return false
	}
	tail := r.tail.Load()
	idx := int(tail) % r.capacity
	return r.seq[idx].Load() != tail
}

// Len returns an instantaneous count of the number of queued elements.
func (r *RingBuffer) Len() int {
	if r == nil {
		return 0
	}
	tail := r.tail.Load()
	head := r.head.Load()
	if tail < head {
		return 0
	}
	return int(tail - head)
}
