// Package trace implements Strata's immutable trace span primitive
// (type tag 0x08). A span is addressed by (trace id, span id) and,
// once recorded, can never be overwritten — Record fails both the
// local read check and, defensively, the commit-time cas check if a
// concurrent transaction beat it to the same span id. Grounded on the
// teacher's pkg/mvcc write-once validation pattern, generalized onto
// the shared entity-key/txn machinery.
package trace

import (
	"errors"
	"fmt"

	"strata/pkg/entitykey"
	"strata/pkg/primitive"
	"strata/pkg/store"
	"strata/pkg/txn"
	"strata/pkg/value"
)

const maxTraceIDLen = 255

var (
	ErrTraceIDTooLong = fmt.Errorf("trace: trace id exceeds %d bytes", maxTraceIDLen)
	// ErrSpanExists is returned by Record when a span with the same
	// trace id and span id has already been written.
	ErrSpanExists = errors.New("trace: span already recorded")
)

// Primitive wires the trace type tag onto a shared store.
type Primitive struct {
	store *store.Store
}

// New returns a trace primitive backed by core, registered with reg
// under the trace type tag. Spans are immutable, materialized store
// state, not derived — no Rebuild hook is needed.
func New(core *store.Store, reg *primitive.Registry) *Primitive {
	reg.Register(primitive.Registration{
		Name:     "trace",
		TypeTags: []entitykey.TypeTag{entitykey.TypeTrace},
	})
	return &Primitive{store: core}
}

func spanKey(branch [16]byte, traceID, spanID []byte) (entitykey.Key, error) {
	if len(traceID) > maxTraceIDLen {
		return entitykey.Key{}, ErrTraceIDTooLong
	}
	uk := make([]byte, 0, 1+len(traceID)+len(spanID))
	uk = append(uk, byte(len(traceID)))
	uk = append(uk, traceID...)
	uk = append(uk, spanID...)
	return entitykey.New(branch, entitykey.TypeTrace, uk)
}

// Record writes span under (traceID, spanID). It fails with
// ErrSpanExists if this context already observes a span there, and
// stages a cas-absent precondition so a concurrent writer racing for
// the same span id aborts one of the two transactions at commit.
func (p *Primitive) Record(c *txn.Context, traceID, spanID []byte, span value.Value) error {
	k, err := spanKey(c.Branch, traceID, spanID)
	if err != nil {
		return err
	}
	if _, ok := txn.Read(p.store, c, k, 0); ok {
		return ErrSpanExists
	}
	c.RequireVersion(k, value.Version{}, false)
	c.BufferPut(k, span, nil)
	return nil
}

// Get reads one span, if present.
func (p *Primitive) Get(c *txn.Context, traceID, spanID []byte, nowMicros int64) (value.Value, bool, error) {
	k, err := spanKey(c.Branch, traceID, spanID)
	if err != nil {
		return value.Value{}, false, err
	}
	vv, ok := txn.Read(p.store, c, k, nowMicros)
	if !ok {
		return value.Value{}, false, nil
	}
	return vv.Value, true, nil
}

// Span is one entry read back from a trace.
type Span struct {
	SpanID []byte
	Value  value.Value
}

// Scan returns every span recorded under traceID, ordered by span id
// bytes, as of snapshotVersion.
func Scan(core *store.Store, branch [16]byte, traceID []byte, snapshotVersion uint64, nowMicros int64) ([]Span, error) {
	if len(traceID) > maxTraceIDLen {
		return nil, ErrTraceIDTooLong
	}
	prefix := make([]byte, 0, 1+len(traceID))
	prefix = append(prefix, byte(len(traceID)))
	prefix = append(prefix, traceID...)

	rows := core.ScanPrefix(branch, entitykey.TypeTrace, prefix, snapshotVersion, nowMicros)
	out := make([]Span, len(rows))
	for i, r := range rows {
		spanID := append([]byte(nil), r.Key.UserKey[len(prefix):]...)
		out[i] = Span{SpanID: spanID, Value: r.Value.Value}
	}
	return out, nil
}
