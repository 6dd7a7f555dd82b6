package entitykey

import "testing"

func branchA() [16]byte { return [16]byte{1} }
func branchB() [16]byte { return [16]byte{2} }

func TestNewValidation(t *testing.T) {
	b := branchA()
	if _, err := New(b, TypeKV, nil); err == nil {
		t.Fatal("expected error for empty user key")
	}
	if _, err := New(b, TypeKV, []byte{'a', 0, 'b'}); err == nil {
		t.Fatal("expected error for embedded NUL")
	}
	long := make([]byte, MaxUserKeyLen+1)
	if _, err := New(b, TypeKV, long); err == nil {
		t.Fatal("expected error for over-length user key")
	}
	ok := make([]byte, MaxUserKeyLen)
	for i := range ok {
		ok[i] = 'k'
	}
	if _, err := New(b, TypeKV, ok); err != nil {
		t.Fatalf("max-length key should be valid: %v", err)
	}
}

func TestCompareOrdering(t *testing.T) {
	a, _ := New(branchA(), TypeKV, []byte("a"))
	b, _ := New(branchA(), TypeKV, []byte("b"))
	if Compare(a, b) >= 0 {
		t.Fatal("a must sort before b within same branch/type")
	}
	c, _ := New(branchA(), TypeEventLog, []byte("a"))
	if Compare(a, c) >= 0 {
		t.Fatal("TypeKV must sort before TypeEventLog")
	}
	d, _ := New(branchB(), TypeKV, []byte("a"))
	if Compare(a, d) >= 0 {
		t.Fatal("branchA must sort before branchB")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	k, _ := New(branchA(), TypeJSONDoc, []byte("docs/1"))
	raw := []byte(Encode(k))
	dec, ok := Decode(raw)
	if !ok {
		t.Fatal("decode failed")
	}
	if dec.BranchID != k.BranchID || dec.Type != k.Type || string(dec.UserKey) != string(k.UserKey) {
		t.Fatal("round trip mismatch")
	}
}

func TestHasPrefix(t *testing.T) {
	k, _ := New(branchA(), TypeKV, []byte("orders/42"))
	if !HasPrefix(k, branchA(), TypeKV, []byte("orders/")) {
		t.Fatal("expected prefix match")
	}
	if HasPrefix(k, branchA(), TypeKV, []byte("users/")) {
		t.Fatal("unexpected prefix match")
	}
	if HasPrefix(k, branchB(), TypeKV, []byte("orders/")) {
		t.Fatal("prefix match must respect branch")
	}
}
