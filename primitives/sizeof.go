package primitives

// These constants are verified via unit tests (see align_test.go).
const (
	// sizeOfCacheLine is the size of a CPU cache line. 64 bytes is standard
	// for x86-64; 128 bytes is standard for Apple Silicon and other ARM64.
	// We use 128 to satisfy the largest common alignment requirement, so a
	// single pad value works across every target this core ships on.
	sizeOfCacheLine = 128

	// sizeOfAtomicUint64 is the size of an atomic.Uint64 variable.
	sizeOfAtomicUint64 = 8
)
