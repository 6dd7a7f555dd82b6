package value

import (
	"encoding/binary"
	"errors"
	"math"

	"strata/internal/wireformat"
)

// ErrMalformed is returned by Decode when the byte stream is truncated
// or carries an unknown Kind tag.
var ErrMalformed = errors.New("value: malformed encoding")

// Encode serializes v into the uniform byte representation used by
// WAL mutations and snapshot sections. The core never interprets this
// beyond what Decode needs to round-trip it.
func Encode(v Value) []byte {
	buf := make([]byte, 0, 16)
	return appendValue(buf, v)
}

func appendValue(buf []byte, v Value) []byte {
	buf = append(buf, byte(v.kind))
	switch v.kind {
	case KindNull:
		// no payload
	case KindBool:
		if v.b {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case KindInt:
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], uint64(v.i))
		buf = append(buf, tmp[:]...)
	case KindFloat:
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v.f))
		buf = append(buf, tmp[:]...)
	case KindString:
		buf = wireformat.AppendBytes(buf, []byte(v.s))
	case KindBytes:
		buf = wireformat.AppendBytes(buf, v.bytes)
	case KindMap:
		buf = wireformat.AppendUvarint(buf, uint64(len(v.mapv)))
		for _, e := range v.mapv {
			buf = wireformat.AppendBytes(buf, []byte(e.Key))
			buf = appendValue(buf, e.Val)
		}
	case KindSeq:
		buf = wireformat.AppendUvarint(buf, uint64(len(v.seqv)))
		for _, item := range v.seqv {
			buf = appendValue(buf, item)
		}
	}
	return buf
}

// Decode deserializes a Value previously produced by Encode.
func Decode(buf []byte) (Value, error) {
	v, n, err := decodeValue(buf)
	if err != nil {
		return Value{}, err
	}
	if n != len(buf) {
		return Value{}, ErrMalformed
	}
	return v, nil
}

func decodeValue(buf []byte) (Value, int, error) {
	if len(buf) < 1 {
		return Value{}, 0, ErrMalformed
	}
	kind := Kind(buf[0])
	rest := buf[1:]
	consumed := 1

	switch kind {
	case KindNull:
		return Null(), consumed, nil
	case KindBool:
		if len(rest) < 1 {
			return Value{}, 0, ErrMalformed
		}
		return Bool(rest[0] != 0), consumed + 1, nil
	case KindInt:
		if len(rest) < 8 {
			return Value{}, 0, ErrMalformed
		}
		return Int(int64(binary.LittleEndian.Uint64(rest[:8]))), consumed + 8, nil
	case KindFloat:
		if len(rest) < 8 {
			return Value{}, 0, ErrMalformed
		}
		return Float(math.Float64frombits(binary.LittleEndian.Uint64(rest[:8]))), consumed + 8, nil
	case KindString:
		b, n, ok := wireformat.ReadBytes(rest)
		if !ok {
			return Value{}, 0, ErrMalformed
		}
		return String(string(b)), consumed + n, nil
	case KindBytes:
		b, n, ok := wireformat.ReadBytes(rest)
		if !ok {
			return Value{}, 0, ErrMalformed
		}
		return Bytes(b), consumed + n, nil
	case KindMap:
		count, n := wireformat.Uvarint(rest)
		if n == 0 {
			return Value{}, 0, ErrMalformed
		}
		off := n
		entries := make([]Entry, 0, count)
		for i := uint64(0); i < count; i++ {
			if off > len(rest) {
				return Value{}, 0, ErrMalformed
			}
			keyBytes, kn, ok := wireformat.ReadBytes(rest[off:])
			if !ok {
				return Value{}, 0, ErrMalformed
			}
			off += kn
			if off > len(rest) {
				return Value{}, 0, ErrMalformed
			}
			val, vn, err := decodeValue(rest[off:])
			if err != nil {
				return Value{}, 0, err
			}
			off += vn
			entries = append(entries, Entry{Key: string(keyBytes), Val: val})
		}
		return Map(entries), consumed + off, nil
	case KindSeq:
		count, n := wireformat.Uvarint(rest)
		if n == 0 {
			return Value{}, 0, ErrMalformed
		}
		off := n
		items := make([]Value, 0, count)
		for i := uint64(0); i < count; i++ {
			if off > len(rest) {
				return Value{}, 0, ErrMalformed
			}
			item, vn, err := decodeValue(rest[off:])
			if err != nil {
				return Value{}, 0, err
			}
			off += vn
			items = append(items, item)
		}
		return Seq(items), consumed + off, nil
	default:
		return Value{}, 0, ErrMalformed
	}
}
