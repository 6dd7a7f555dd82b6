// Package eventlog implements Strata's append-only event log (type tag
// 0x02). Every append is assigned a monotonically increasing, per-
// stream Sequence version, so "append" is an ordinary Put against a
// primitive-chosen key: the core never needs a third Mutation kind for
// it. Grounded on the teacher's pkg/cowbtree sequential-insert
// convention, generalized to the OCC commit path through
// txn.Context.BufferPutVersioned.
package eventlog

import (
	"encoding/binary"
	"fmt"

	"strata/pkg/entitykey"
	"strata/pkg/primitive"
	"strata/pkg/store"
	"strata/pkg/txn"
	"strata/pkg/value"
)

// maxStreamLen bounds the stream identifier so it fits the one-byte
// length prefix used to keep the tail-counter and event keyspaces
// disjoint within the same type tag.
const maxStreamLen = 255

var ErrStreamIDTooLong = fmt.Errorf("eventlog: stream id exceeds %d bytes", maxStreamLen)

// Primitive wires the event log type tag onto a shared store.
type Primitive struct {
	store *store.Store
}

// New returns an event log primitive backed by core, registered with
// reg under the event log type tag. Event chains are materialized
// store state, not derived — no Rebuild hook is needed.
func New(core *store.Store, reg *primitive.Registry) *Primitive {
	reg.Register(primitive.Registration{
		Name:     "eventlog",
		TypeTags: []entitykey.TypeTag{entitykey.TypeEventLog},
	})
	return &Primitive{store: core}
}

// counterKey addresses the next-sequence tail for stream. It shares
// the EventLog type tag with event entries but is tagged with a
// distinct leading discriminator byte so the two keyspaces can never
// collide.
func counterKey(branch [16]byte, stream []byte) (entitykey.Key, error) {
	if len(stream) > maxStreamLen {
		return entitykey.Key{}, ErrStreamIDTooLong
	}
	uk := make([]byte, 0, 2+len(stream))
	uk = append(uk, 0x02, byte(len(stream)))
	uk = append(uk, stream...)
	return entitykey.New(branch, entitykey.TypeEventLog, uk)
}

// eventKey addresses one appended event. The user key is the stream
// id followed by its 8-byte big-endian sequence number, so that for a
// fixed stream prefix, byte-lexicographic user-key order matches
// numeric sequence order and ScanPrefix can walk a stream in append
// order.
func eventKey(branch [16]byte, stream []byte, seq uint64) (entitykey.Key, error) {
	if len(stream) > maxStreamLen {
		return entitykey.Key{}, ErrStreamIDTooLong
	}
	uk := make([]byte, 0, 2+len(stream)+8)
	uk = append(uk, 0x01, byte(len(stream)))
	uk = append(uk, stream...)
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], seq)
	uk = append(uk, seqBuf[:]...)
	return entitykey.New(branch, entitykey.TypeEventLog, uk)
}

// Append buffers an event onto stream and returns the sequence number
// it will occupy once c commits. Reading the tail counter through
// txn.Read records it in c's read set, so two concurrent appends to
// the same stream racing for the same sequence number abort one of
// them at commit time rather than silently overwriting each other.
func (p *Primitive) Append(c *txn.Context, stream []byte, payload value.Value) (uint64, error) {
	ck, err := counterKey(c.Branch, stream)
	if err != nil {
		return 0, err
	}

	var next uint64
	if vv, ok := txn.Read(p.store, c, ck, 0); ok {
		next = uint64(vv.Value.Int())
	}

	ek, err := eventKey(c.Branch, stream, next)
	if err != nil {
		return 0, err
	}
	c.BufferPutVersioned(ek, payload, nil, value.Sequence(next+1))
	c.BufferPut(ck, value.Int(int64(next+1)), nil)
	return next, nil
}

// Event is one entry read back from a stream.
type Event struct {
	Seq     uint64
	Payload value.Value
}

// Scan returns every event appended to stream, in append order, as of
// snapshotVersion. Like kv.Scan, this is a direct point-in-time store
// read rather than a buffered transactional operation.
func Scan(core *store.Store, branch [16]byte, stream []byte, snapshotVersion uint64, nowMicros int64) ([]Event, error) {
	prefix := make([]byte, 0, 2+len(stream))
	prefix = append(prefix, 0x01, byte(len(stream)))
	prefix = append(prefix, stream...)

	rows := core.ScanPrefix(branch, entitykey.TypeEventLog, prefix, snapshotVersion, nowMicros)
	out := make([]Event, 0, len(rows))
	for _, r := range rows {
		if len(r.Key.UserKey) != len(prefix)+8 {
			continue
		}
		seq := binary.BigEndian.Uint64(r.Key.UserKey[len(prefix):])
		out = append(out, Event{Seq: seq, Payload: r.Value.Value})
	}
	return out, nil
}
