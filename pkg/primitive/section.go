package primitive

import (
	"encoding/binary"
	"fmt"

	"strata/internal/wireformat"
	"strata/pkg/durability/snapshot"
	"strata/pkg/entitykey"
	"strata/pkg/store"
	"strata/pkg/value"
)

// EncodeSection materializes every live (branch, user_key) entry under
// tag, across every branch the store currently holds, into one
// snapshot.Section. Because EntityKey+VersionedValue already IS the
// primitive's materialized state for every primitive except
// vectorindex's derived HNSW graph (which is never stored, only
// rebuilt on load), a single codec keyed by type tag satisfies the
// snapshot contract for all of them.
func EncodeSection(st *store.Store, tag entitykey.TypeTag, atVersion uint64, nowMicros int64) snapshot.Section {
	var buf []byte
	var count uint64
	var body []byte
	for _, branch := range st.Branches() {
		rows := st.ScanPrefix(branch, tag, nil, atVersion, nowMicros)
		for _, row := range rows {
			body = appendEntry(body, branch, row.Key.UserKey, row.Value)
			count++
		}
	}
	buf = wireformat.AppendUvarint(buf, count)
	buf = append(buf, body...)
	return snapshot.Section{Type: byte(tag), Data: buf}
}

// DecodeSection applies a previously-encoded section back into st, the
// counterpart "snapshot deserializer" of EncodeSection. Used both by
// recovery's snapshot-load step and directly in tests.
func DecodeSection(st *store.Store, sec snapshot.Section) error {
	count, n := wireformat.Uvarint(sec.Data)
	if n == 0 && len(sec.Data) != 0 {
		return fmt.Errorf("primitive: section %#x: malformed entry count", sec.Type)
	}
	off := n
	for i := uint64(0); i < count; i++ {
		branch, userKey, vv, consumed, ok := readEntry(sec.Data[off:])
		if !ok {
			return fmt.Errorf("primitive: section %#x: malformed entry %d", sec.Type, i)
		}
		off += consumed
		k, err := entitykey.New(branch, entitykey.TypeTag(sec.Type), userKey)
		if err != nil {
			return fmt.Errorf("primitive: section %#x: entry %d: %w", sec.Type, i, err)
		}
		st.Apply(k, vv)
	}
	return nil
}

func appendEntry(buf []byte, branch [16]byte, userKey []byte, vv value.VersionedValue) []byte {
	buf = append(buf, branch[:]...)
	buf = wireformat.AppendBytes(buf, userKey)
	buf = append(buf, byte(vv.Ver.Kind()))
	buf = wireformat.AppendUvarint(buf, vv.Ver.Number())
	buf = wireformat.AppendUvarint(buf, vv.CommitVersion)
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(vv.CreatedAt))
	buf = append(buf, ts[:]...)
	if vv.TTL != nil {
		buf = append(buf, 1)
		buf = wireformat.AppendUvarint(buf, uint64(*vv.TTL))
	} else {
		buf = append(buf, 0)
	}
	buf = wireformat.AppendBytes(buf, value.Encode(vv.Value))
	return buf
}

func readEntry(buf []byte) (branch [16]byte, userKey []byte, vv value.VersionedValue, consumed int, ok bool) {
	if len(buf) < 16 {
		return branch, nil, vv, 0, false
	}
	copy(branch[:], buf[:16])
	off := 16

	uk, n, good := wireformat.ReadBytes(buf[off:])
	if !good {
		return branch, nil, vv, 0, false
	}
	userKey = append([]byte(nil), uk...)
	off += n

	if off+1 > len(buf) {
		return branch, nil, vv, 0, false
	}
	kind := value.VersionKind(buf[off])
	off++

	num, n := wireformat.Uvarint(buf[off:])
	if n == 0 {
		return branch, nil, vv, 0, false
	}
	off += n

	commitVersion, n := wireformat.Uvarint(buf[off:])
	if n == 0 {
		return branch, nil, vv, 0, false
	}
	off += n

	if off+8 > len(buf) {
		return branch, nil, vv, 0, false
	}
	createdAt := int64(binary.LittleEndian.Uint64(buf[off : off+8]))
	off += 8

	if off+1 > len(buf) {
		return branch, nil, vv, 0, false
	}
	hasTTL := buf[off] != 0
	off++

	var ttl *int64
	if hasTTL {
		t, n := wireformat.Uvarint(buf[off:])
		if n == 0 {
			return branch, nil, vv, 0, false
		}
		off += n
		signed := int64(t)
		ttl = &signed
	}

	valBytes, n, good := wireformat.ReadBytes(buf[off:])
	if !good {
		return branch, nil, vv, 0, false
	}
	off += n
	v, err := value.Decode(valBytes)
	if err != nil {
		return branch, nil, vv, 0, false
	}

	vv = value.VersionedValue{
		Value:         v,
		Ver:           versionOf(kind, num),
		CreatedAt:     createdAt,
		TTL:           ttl,
		CommitVersion: commitVersion,
	}
	return branch, userKey, vv, off, true
}

func versionOf(kind value.VersionKind, n uint64) value.Version {
	switch kind {
	case value.VersionSequence:
		return value.Sequence(n)
	case value.VersionCounter:
		return value.Counter(n)
	default:
		return value.Txn(n)
	}
}
