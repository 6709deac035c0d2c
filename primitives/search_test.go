package primitives

import "testing"

func TestFindSubstring_Basic(t *testing.T) {
	cases := []struct {
		haystack, needle string
		want             int
	}{
		{"hello world", "world", 6},
		{"hello world", "hello", 0},
		{"hello world", "xyz", -1},
		{"abc", "abcd", -1},
		{"", "a", -1},
		{"abc", "", -1},
		{"aaaaaaaaaaaaaaaaaaaab", "aaaab", 16},
	}
	for _, c := range cases {
		got := FindSubstring([]byte(c.haystack), []byte(c.needle))
		if got != c.want {
			t.Errorf("FindSubstring(%q, %q) = %d, want %d", c.haystack, c.needle, got, c.want)
		}
	}
}

func TestFindSubstring_NilInputsNeverFault(t *testing.T) {
	if got := FindSubstring(nil, []byte("x")); got != -1 {
		t.Fatalf("expected -1 for nil haystack, got %d", got)
	}
	if got := FindSubstring([]byte("x"), nil); got != -1 {
		t.Fatalf("expected -1 for nil needle, got %d", got)
	}
	if got := FindSubstring(nil, nil); got != -1 {
		t.Fatalf("expected -1 for both nil, got %d", got)
	}
}

func TestFindSubstring_LongPatternUsesPrefilterPath(t *testing.T) {
	needle := "this-is-a-needle-longer-than-sixteen-bytes"
	haystack := "padding before " + needle + " padding after"
	got := FindSubstring([]byte(haystack), []byte(needle))
	want := len("padding before ")
	if got != want {
		t.Fatalf("expected match at %d, got %d", want, got)
	}
}

func TestFindSubstring_SingleByteNeedle(t *testing.T) {
	if got := FindSubstring([]byte("abcdef"), []byte("d")); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
	if got := FindSubstring([]byte("abcdef"), []byte("z")); got != -1 {
		t.Fatalf("expected -1, got %d", got)
	}
}

func TestMultiPatternSearch_FindsEarliestMatch(t *testing.T) {
	s := NewMultiPatternSearch([]Pattern{
		{ID: 1, Text: []byte("foo")},
		{ID: 2, Text: []byte("bar")},
	})

	offset, id := s.FindEarliest([]byte("xxbarxxfooxx"))
	if offset != 2 || id != 2 {
		t.Fatalf("expected (2, 2), got (%d, %d)", offset, id)
	}

	offset, id = s.FindEarliest([]byte("no match here"))
	if offset != -1 || id != -1 {
		t.Fatalf("expected (-1, -1), got (%d, %d)", offset, id)
	}
}

func TestMultiPatternSearch_NilAndEmptyHaystack(t *testing.T) {
	var s *MultiPatternSearch
	if offset, id := s.FindEarliest([]byte("anything")); offset != -1 || id != -1 {
		t.Fatalf("expected (-1, -1) for nil receiver, got (%d, %d)", offset, id)
	}

	s = NewMultiPatternSearch([]Pattern{{ID: 1, Text: []byte("x")}})
	if offset, id := s.FindEarliest(nil); offset != -1 || id != -1 {
		t.Fatalf("expected (-1, -1) for nil haystack, got (%d, %d)", offset, id)
	}
}

func TestMultiPatternSearch_TruncatesToMaxPatterns(t *testing.T) {
	patterns := make([]Pattern, MaxPatterns+10)
	for i := range patterns {
		patterns[i] = Pattern{ID: i, Text: []byte("p")}
	}
	s := NewMultiPatternSearch(patterns)
	if len(s.patterns) != MaxPatterns {
		t.Fatalf("expected truncation to %d patterns, got %d", MaxPatterns, len(s.patterns))
	}
}
