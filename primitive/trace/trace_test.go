package trace

import (
	"testing"

	"github.com/stretchr/testify/require"

	"strata/pkg/primitive"
	"strata/pkg/store"
	"strata/pkg/txn"
	"strata/pkg/value"
)

type nopWal struct{}

func (nopWal) Append(txn.Record) error { return nil }

func TestRecordAndScanOrdersBySpanID(t *testing.T) {
	st := store.New()
	co := txn.NewCoordinator(st, &nopWal{}, func() int64 { return 0 })
	p := New(st, primitive.NewRegistry())
	var branch [16]byte
	traceID := []byte("trace-1")

	for _, spanID := range []string{"b", "a", "c"} {
		c := co.Begin(branch, 0)
		require.NoError(t, p.Record(c, traceID, []byte(spanID), value.String(spanID)))
		_, err := co.Commit(c)
		require.NoError(t, err)
	}

	spans, err := Scan(st, branch, traceID, st.CurrentCommitVersion(), 0)
	require.NoError(t, err)
	require.Len(t, spans, 3)
	require.Equal(t, "a", string(spans[0].SpanID))
	require.Equal(t, "b", string(spans[1].SpanID))
	require.Equal(t, "c", string(spans[2].SpanID))
}

func TestRecordRejectsDuplicateSpan(t *testing.T) {
	st := store.New()
	co := txn.NewCoordinator(st, &nopWal{}, func() int64 { return 0 })
	p := New(st, primitive.NewRegistry())
	var branch [16]byte
	traceID := []byte("trace-1")

	c1 := co.Begin(branch, 0)
	require.NoError(t, p.Record(c1, traceID, []byte("s"), value.Int(1)))
	_, err := co.Commit(c1)
	require.NoError(t, err)

	c2 := co.Begin(branch, 0)
	err = p.Record(c2, traceID, []byte("s"), value.Int(2))
	require.ErrorIs(t, err, ErrSpanExists)
}

func TestConcurrentRecordOfSameSpanConflicts(t *testing.T) {
	st := store.New()
	co := txn.NewCoordinator(st, &nopWal{}, func() int64 { return 0 })
	p := New(st, primitive.NewRegistry())
	var branch [16]byte
	traceID := []byte("trace-1")

	c1 := co.Begin(branch, 0)
	require.NoError(t, p.Record(c1, traceID, []byte("s"), value.Int(1)))

	c2 := co.Begin(branch, 0)
	require.NoError(t, p.Record(c2, traceID, []byte("s"), value.Int(2)))

	_, err := co.Commit(c1)
	require.NoError(t, err)

	_, err = co.Commit(c2)
	require.ErrorIs(t, err, txn.ErrAborted)
}
