package primitives

import "testing"

func TestFNV1a64_NilOrEmptyReturnsOffsetBasis(t *testing.T) {
	if got := FNV1a64(nil); got != fnvOffsetBasis {
		t.Fatalf("expected offset basis for nil input, got %d", got)
	}
	if got := FNV1a64([]byte{}); got != fnvOffsetBasis {
		t.Fatalf("expected offset basis for empty input, got %d", got)
	}
	if got := FNV1a64String(""); got != fnvOffsetBasis {
		t.Fatalf("expected offset basis for empty string, got %d", got)
	}
}

func TestFNV1a64_StableAndDistinguishing(t *testing.T) {
	a := FNV1a64String("select * from users")
	b := FNV1a64String("select * from users")
	c := FNV1a64String("select * from widgets")

	if a != b {
		t.Fatal("expected identical input to hash identically")
	}
	if a == c {
		t.Fatal("expected distinct input to hash differently")
	}
}

func TestFNV1a64_BytesAndStringAgree(t *testing.T) {
	s := "SELECT 1"
	if FNV1a64([]byte(s)) != FNV1a64String(s) {
		t.Fatal("byte-slice and string hash paths must agree")
	}
}
