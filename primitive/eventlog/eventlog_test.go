package eventlog

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

func TestAppendAssignsIncreasingSequence(t *testing.T) {
	st := store.New()
	co := txn.NewCoordinator(st, &nopWal{}, func() int64 { return 0 })
	p := New(st, primitive.NewRegistry())
	var branch [16]byte

	var seqs []uint64
	for _, payload := range []string{"first", "second", "third"} {
		c := co.Begin(branch, 0)
		seq, err := p.Append(c, []byte("orders"), value.String(payload))
		require.NoError(t, err)
		_, err = co.Commit(c)
		require.NoError(t, err)
		seqs = append(seqs, seq)
	}
	require.Equal(t, []uint64{0, 1, 2}, seqs)

	events, err := Scan(st, branch, []byte("orders"), st.CurrentCommitVersion(), 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, uint64(0), events[0].Seq)
	require.True(t, value.Equal(events[0].Payload, value.String("first")))
	require.Equal(t, uint64(2), events[2].Seq)
	require.True(t, value.Equal(events[2].Payload, value.String("third")))
}

func TestStreamsAreIndependent(t *testing.T) {
	st := store.New()
	co := txn.NewCoordinator(st, &nopWal{}, func() int64 { return 0 })
	p := New(st, primitive.NewRegistry())
	var branch [16]byte

	c1 := co.Begin(branch, 0)
	seqA, err := p.Append(c1, []byte("a"), value.Int(1))
	require.NoError(t, err)
	_, err = co.Commit(c1)
	require.NoError(t, err)

	c2 := co.Begin(branch, 0)
	seqB, err := p.Append(c2, []byte("b"), value.Int(2))
	require.NoError(t, err)
	_, err = co.Commit(c2)
	require.NoError(t, err)

	require.Equal(t, uint64(0), seqA)
	require.Equal(t, uint64(0), seqB)
}

func TestConcurrentAppendToSameStreamConflicts(t *testing.T) {
	st := store.New()
	co := txn.NewCoordinator(st, &nopWal{}, func() int64 { return 0 })
	p := New(st, primitive.NewRegistry())
	var branch [16]byte

	seed := co.Begin(branch, 0)
	_, err := p.Append(seed, []byte("s"), value.Int(0))
	require.NoError(t, err)
	_, err = co.Commit(seed)
	require.NoError(t, err)

	c1 := co.Begin(branch, 0)
	_, err = p.Append(c1, []byte("s"), value.Int(1))
	require.NoError(t, err)

	c2 := co.Begin(branch, 0)
	_, err = p.Append(c2, []byte("s"), value.Int(2))
	require.NoError(t, err)

	_, err = co.Commit(c2)
	require.NoError(t, err)

	_, err = co.Commit(c1)
	require.ErrorIs(t, err, txn.ErrAborted)
}
