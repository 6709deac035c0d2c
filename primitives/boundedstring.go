package primitives

// BoundedString is an owned, growable byte buffer that doubles its
// capacity on growth. AppendChar, AppendString and Reset are the only
// mutators; String yields a safe
// borrow that never panics, even on a nil receiver.
type BoundedString struct {
	buf []byte
}

// NewBoundedString allocates a BoundedString with the given initial
// capacity (0 is fine; it grows on first append).
func NewBoundedString(initialCapacity int) *BoundedString {
	if initialCapacity < 0 {
		initialCapacity = 0
	}
	return &BoundedString{buf: make([]byte, 0, initialCapacity)}
}

// AppendChar appends a single byte, growing by doubling when needed.
func (s *BoundedString) AppendChar(c byte) {
	if s == nil {
		return
	}
	s.grow(1)
	s.buf = append(s.buf, c)
}

// AppendString appends str, growing by doubling when needed.
func (s *BoundedString) AppendString(str string) {
	if s == nil || str == "" {
		return
	}
	s.grow(len(str))
	s.buf = append(s.buf, str...)
}

func (s *BoundedString) grow(extra int) {
	need := len(s.buf) + extra
	if cap(s.buf) >= need {
		return
	}
	newCap := cap(s.buf)
	if newCap == 0 {
		newCap = 16
	}
	for newCap < need {
		newCap *= 2
	}
	grown := make([]byte, len(s.buf), newCap)
	copy(grown, s.buf)
	s.buf = grown
}

// String yields the accumulated content. On a nil receiver it returns the
// empty string rather than crashing, matching the bounded-string contract
// for as_cstr on a null pointer.
func (s *BoundedString) String() string {
	if s == nil {
		return ""
	}
	return string(s.buf)
}

// Len returns the number of bytes currently held, 0 on a nil receiver.
func (s *BoundedString) Len() int {
	if s == nil {
		return 0
	}
	return len(s.buf)
}

// Reset empties the buffer without releasing its backing array.
func (s *BoundedString) Reset() {
	if s == nil {
		return
	}
	s.buf = s.buf[:0]
}

// TruncateCopy copies src into a string of at most maxBytes bytes. It is
// the common "truncate with a guaranteed terminator" operation used for
// every bounded field in this core (operation names, cluster
// representatives, class/method names, error messages, ...).
func TruncateCopy(src string, maxBytes int) string {
	if maxBytes < 0 {
		return ""
	}
	if len(src) <= maxBytes {
		return src
	}
	return src[:maxBytes]
}
