// Package value implements Strata's tagged Value union, the
// VersionedValue wrapper every stored entry carries, and the Version
// tagged-u64 that records which subsystem assigned it.
package value

import "fmt"

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindMap
	KindSeq
)

// String renders a Kind for diagnostics.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindMap:
		return "map"
	case KindSeq:
		return "seq"
	default:
		return "unknown"
	}
}

// Entry is one key/value pair of an ordered Map value. Maps preserve
// insertion order rather than sorting by key.
type Entry struct {
	Key string
	Val Value
}

// Value is Strata's tagged union. The zero Value is Null.
type Value struct {
	kind   Kind
	b      bool
	i      int64
	f      float64
	s      string
	bytes  []byte
	mapv   []Entry
	seqv   []Value
}

func Null() Value                { return Value{kind: KindNull} }
func Bool(b bool) Value          { return Value{kind: KindBool, b: b} }
func Int(i int64) Value          { return Value{kind: KindInt, i: i} }
func Float(f float64) Value      { return Value{kind: KindFloat, f: f} }
func String(s string) Value      { return Value{kind: KindString, s: s} }

func Bytes(b []byte) Value {
	if b == nil {
		return Value{kind: KindBytes}
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: KindBytes, bytes: cp}
}

func Map(entries []Entry) Value {
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	return Value{kind: KindMap, mapv: cp}
}

func Seq(items []Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindSeq, seqv: cp}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) Bool() bool   { return v.b }
func (v Value) Int() int64   { return v.i }
func (v Value) Float() float64 { return v.f }
func (v Value) Text() string { return v.s }

func (v Value) Blob() []byte {
	if v.bytes == nil {
		return nil
	}
	cp := make([]byte, len(v.bytes))
	copy(cp, v.bytes)
	return cp
}

func (v Value) Entries() []Entry {
	cp := make([]Entry, len(v.mapv))
	copy(cp, v.mapv)
	return cp
}

func (v Value) Items() []Value {
	cp := make([]Value, len(v.seqv))
	copy(cp, v.seqv)
	return cp
}

// Equal reports whether two values are structurally identical.
// Cross-kind values are never equal, including Int vs Float.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f
	case KindString:
		return a.s == b.s
	case KindBytes:
		return string(a.bytes) == string(b.bytes)
	case KindMap:
		if len(a.mapv) != len(b.mapv) {
			return false
		}
		for i := range a.mapv {
			if a.mapv[i].Key != b.mapv[i].Key || !Equal(a.mapv[i].Val, b.mapv[i].Val) {
				return false
			}
		}
		return true
	case KindSeq:
		if len(a.seqv) != len(b.seqv) {
			return false
		}
		for i := range a.seqv {
			if !Equal(a.seqv[i], b.seqv[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindString:
		return v.s
	case KindBytes:
		return fmt.Sprintf("bytes(%d)", len(v.bytes))
	case KindMap:
		return fmt.Sprintf("map(%d)", len(v.mapv))
	case KindSeq:
		return fmt.Sprintf("seq(%d)", len(v.seqv))
	default:
		return "?"
	}
}
