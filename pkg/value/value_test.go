package value

import "testing"

func TestEqualCrossKind(t *testing.T) {
	if Equal(Int(1), Float(1.0)) {
		t.Fatal("Int and Float must never compare equal")
	}
	if !Equal(Null(), Null()) {
		t.Fatal("Null must equal Null")
	}
}

func TestEqualMapOrderSensitive(t *testing.T) {
	a := Map([]Entry{{Key: "a", Val: Int(1)}, {Key: "b", Val: Int(2)}})
	b := Map([]Entry{{Key: "b", Val: Int(2)}, {Key: "a", Val: Int(1)}})
	if Equal(a, b) {
		t.Fatal("ordered maps with different insertion order must not be equal")
	}
	c := Map([]Entry{{Key: "a", Val: Int(1)}, {Key: "b", Val: Int(2)}})
	if !Equal(a, c) {
		t.Fatal("identical ordered maps must be equal")
	}
}

func TestBytesCopyIsolation(t *testing.T) {
	raw := []byte{1, 2, 3}
	v := Bytes(raw)
	raw[0] = 0xFF
	if v.Blob()[0] != 1 {
		t.Fatal("Bytes must copy its input, not alias it")
	}
	out := v.Blob()
	out[0] = 0xEE
	if v.Blob()[0] != 1 {
		t.Fatal("Blob must return a defensive copy")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Value{
		Null(),
		Bool(true),
		Bool(false),
		Int(-42),
		Float(3.14159),
		String("hello strata"),
		Bytes([]byte{0, 1, 2, 255}),
		Seq([]Value{Int(1), String("x"), Null()}),
		Map([]Entry{
			{Key: "name", Val: String("branch")},
			{Key: "count", Val: Int(7)},
			{Key: "nested", Val: Seq([]Value{Int(1), Int(2)})},
		}),
	}
	for _, v := range cases {
		enc := Encode(v)
		dec, err := Decode(enc)
		if err != nil {
			t.Fatalf("decode failed for %v: %v", v, err)
		}
		if !Equal(v, dec) {
			t.Fatalf("round trip mismatch: %v != %v", v, dec)
		}
	}
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode(nil)
	if err == nil {
		t.Fatal("expected error decoding empty buffer")
	}
	_, err = Decode([]byte{byte(KindInt), 1, 2})
	if err == nil {
		t.Fatal("expected error decoding truncated int")
	}
	_, err = Decode([]byte{0xFE})
	if err == nil {
		t.Fatal("expected error decoding unknown kind tag")
	}
}

func TestVersionOrdering(t *testing.T) {
	a := Txn(1)
	b := Txn(2)
	if !a.Less(b) {
		t.Fatal("Txn(1) must be less than Txn(2)")
	}
	if a.Less(Sequence(0)) || Sequence(0).Less(a) {
		t.Fatal("cross-kind comparisons must always report false")
	}
	if !a.Equal(Txn(1)) {
		t.Fatal("equal kind and number must compare equal")
	}
}

func TestVersionedValueTTL(t *testing.T) {
	ttl := int64(1000)
	vv := VersionedValue{Value: Int(1), Ver: Txn(1), CreatedAt: 5000, TTL: &ttl}
	if vv.ExpiredAt(5000) {
		t.Fatal("must not be expired at creation time")
	}
	if !vv.ExpiredAt(6000) {
		t.Fatal("must be expired once now reaches created_at+ttl")
	}
	noTTL := VersionedValue{Value: Int(1), Ver: Txn(1), CreatedAt: 5000}
	if noTTL.ExpiredAt(1 << 40) {
		t.Fatal("value with no TTL never expires")
	}
}
