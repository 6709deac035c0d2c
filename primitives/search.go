package primitives

import "encoding/binary"

// MaxPatterns bounds the multi-pattern search table.
const MaxPatterns = 64

// simdPrefilterThreshold is the pattern length at which the 8-byte
// SWAR (SIMD-within-a-register) prefilter kicts in ahead of the scalar
// Boyer-Moore scan. The source gates a true vector path behind runtime CPU
// feature detection; this module has no portable vector-intrinsics
// library in the retrieved example corpus, so the accelerator here is a
// pure-Go word-at-a-time equality scan over the first 8 bytes of the
// pattern, which buys most of the same branch-prediction win without
// cgo or assembly. See DESIGN.md for why this remains a stdlib-only
// component.
const simdPrefilterThreshold = 16

// badCharTable is a Boyer-Moore bad-character shift table, one entry per
// possible byte value.
type badCharTable [256]int

func buildBadCharTable(pattern []byte) badCharTable {
	var t badCharTable
	for i := range t {
		t[i] = len(pattern)
	}
	for i := 0; i < len(pattern)-1; i++ {
		t[pattern[i]] = len(pattern) - 1 - i
	}
	return t
}

// goodSuffixTable is a Boyer-Moore good-suffix shift table.
func buildGoodSuffixTable(pattern []byte) []int {
	m := len(pattern)
	shift := make([]int, m+1)
	borderPos := make([]int, m+1)

	for i := range shift {
		shift[i] = 0
	}

	i, j := m, m+1
	borderPos[i] = j
	for i > 0 {
		for j <= m && pattern[i-1] != pattern[j-1] {
			if shift[j] == 0 {
				shift[j] = j - i
			}
			j = borderPos[j]
		}
		i--
		j--
		borderPos[i] = j
	}

	j = borderPos[0]
	for i := 0; i <= m; i++ {
		if shift[i] == 0 {
			shift[i] = j
		}
		if i == j {
			j = borderPos[j]
		}
	}
	return shift
}

// swarPrefilterMatch does an 8-bytes-at-a-time equality scan of the first
// 8 bytes of needle against haystack at offset pos, as a cheap
// disqualifying prefilter before running the full comparison. Returns
// true if the 8-byte prefix could match (always true if haystack doesn't
// have 8 bytes remaining — the caller falls back to a byte compare).
func swarPrefilterMatch(haystack []byte, pos int, needlePrefix uint64) bool {
	if pos+8 > len(haystack) {
		return true
	}
	word := binary.LittleEndian.Uint64(haystack[pos : pos+8])
	return word == needlePrefix
}

// FindSubstring returns the byte offset of the first occurrence of needle
// in haystack, or -1 if not found. A nil/empty haystack or needle, or a
// needle longer than haystack, is always "not found", never a fault.
func FindSubstring(haystack, needle []byte) int {
	n, m := len(haystack), len(needle)
	if n == 0 || m == 0 || m > n {
		return -1
	}
	if m == 1 {
		for i, b := range haystack {
			if b == needle[0] {
				return i
			}
		}
		return -1
	}

	badChar := buildBadCharTable(needle)
	goodSuffix := buildGoodSuffixTable(needle)

	var prefix uint64
	usePrefilter := m >= simdPrefilterThreshold
	if usePrefilter {
		prefix = binary.LittleEndian.Uint64(needle[:8])
	}

	s := 0
	for s <= n-m {
		if usePrefilter && !swarPrefilterMatch(haystack, s, prefix) {
			s += badChar[haystack[s+m-1]]
			if s <= 0 {
				s = 1
			}
			continue
		}

		j := m - 1
		for j >= 0 && needle[j] == haystack[s+j] {
			j--
		}
		if j < 0 {
			return s
		}

		bcShift := j - badChar[haystack[s+j]]
		gsShift := goodSuffix[j+1]
		shift := bcShift
		if gsShift > shift {
			shift = gsShift
		}
		if shift < 1 {
			shift = 1
		}
		s += shift
	}
	return -1
}

// Pattern is one entry in a MultiPatternSearch table.
type Pattern struct {
	ID   int
	Text []byte
}

// MultiPatternSearch holds up to MaxPatterns patterns and reports the
// earliest match (by haystack offset) across all of them, along with which
// pattern matched. Each pattern is searched separately; when two patterns
// match at the same offset, the one listed first wins.
type MultiPatternSearch struct {
	patterns []Pattern
}

// NewMultiPatternSearch builds a search set from patterns, truncating to
// MaxPatterns entries if more are supplied.
func NewMultiPatternSearch(patterns []Pattern) *MultiPatternSearch {
	if len(patterns) > MaxPatterns {
		patterns = patterns[:MaxPatterns]
	}
	cp := make([]Pattern, len(patterns))
	copy(cp, patterns)
	return &MultiPatternSearch{patterns: cp}
}

// FindEarliest scans haystack once per pattern and returns the offset and
// pattern id of whichever match starts earliest. Returns (-1, -1) if no
// pattern matches or haystack is empty.
func (m *MultiPatternSearch) FindEarliest(haystack []byte) (offset int, patternID int) {
	if m == nil || len(haystack) == 0 {
		return -1, -1
	}

	bestOffset := -1
	bestID := -1
	for _, p := range m.patterns {
		idx := FindSubstring(haystack, p.Text)
		if idx < 0 {
			continue
		}
		if bestOffset == -1 || idx < bestOffset {
			bestOffset = idx
			bestID = p.ID
		}
	}
	return bestOffset, bestID
}
