package primitives

import "testing"

func TestAddSize_Overflow(t *testing.T) {
	if _, ok := AddSize(1, 2); !ok {
		t.Fatal("expected success for small addition")
	}
	if sum, ok := AddSize(1, 2); ok && sum != 3 {
		t.Fatalf("expected 3, got %d", sum)
	}
	if _, ok := AddSize(^uint64(0), 1); ok {
		t.Fatal("expected overflow to report failure")
	}
}

func TestMulSize_Overflow(t *testing.T) {
	if product, ok := MulSize(6, 7); !ok || product != 42 {
		t.Fatalf("expected (42, true), got (%d, %v)", product, ok)
	}
	if product, ok := MulSize(0, 12345); !ok || product != 0 {
		t.Fatalf("expected (0, true) for zero operand, got (%d, %v)", product, ok)
	}
	if _, ok := MulSize(^uint64(0), 2); ok {
		t.Fatal("expected overflow to report failure")
	}
}
