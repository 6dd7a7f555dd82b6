package statecell

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

func TestCreateThenCompareAndSwap(t *testing.T) {
	st := store.New()
	co := txn.NewCoordinator(st, &nopWal{}, func() int64 { return 0 })
	p := New(st, primitive.NewRegistry())
	var branch [16]byte

	c1 := co.Begin(branch, 0)
	require.NoError(t, p.CompareAndSwap(c1, []byte("cell"), nil, value.Int(7)))
	_, err := co.Commit(c1)
	require.NoError(t, err)

	c2 := co.Begin(branch, 0)
	got, ver, ok, err := p.Get(c2, []byte("cell"), 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, value.Equal(got, value.Int(7)))
	require.Equal(t, value.VersionCounter, ver.Kind())
	require.Equal(t, uint64(1), ver.Number())

	c3 := co.Begin(branch, 0)
	require.NoError(t, p.CompareAndSwap(c3, []byte("cell"), &ver, value.Int(8)))
	newVer, err := co.Commit(c3)
	require.NoError(t, err)
	require.Equal(t, uint64(2), newVer) // commit_version, distinct from the cell's own counter

	c4 := co.Begin(branch, 0)
	got, ver, ok, err = p.Get(c4, []byte("cell"), 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, value.Equal(got, value.Int(8)))
	require.Equal(t, uint64(2), ver.Number())
}

func TestCompareAndSwapConflict(t *testing.T) {
	st := store.New()
	co := txn.NewCoordinator(st, &nopWal{}, func() int64 { return 0 })
	p := New(st, primitive.NewRegistry())
	var branch [16]byte

	seed := co.Begin(branch, 0)
	require.NoError(t, p.CompareAndSwap(seed, []byte("cell"), nil, value.Int(7)))
	_, err := co.Commit(seed)
	require.NoError(t, err)

	reader := co.Begin(branch, 0)
	_, staleVer, ok, err := p.Get(reader, []byte("cell"), 0)
	require.NoError(t, err)
	require.True(t, ok)

	winner := co.Begin(branch, 0)
	require.NoError(t, p.CompareAndSwap(winner, []byte("cell"), &staleVer, value.Int(9)))
	_, err = co.Commit(winner)
	require.NoError(t, err)

	loser := co.Begin(branch, 0)
	require.NoError(t, p.CompareAndSwap(loser, []byte("cell"), &staleVer, value.Int(8)))
	_, err = co.Commit(loser)
	require.ErrorIs(t, err, txn.ErrAborted)
}

func TestCompareAndSwapAgainstAbsentRejectsIfCreated(t *testing.T) {
	st := store.New()
	co := txn.NewCoordinator(st, &nopWal{}, func() int64 { return 0 })
	p := New(st, primitive.NewRegistry())
	var branch [16]byte

	first := co.Begin(branch, 0)
	require.NoError(t, p.CompareAndSwap(first, []byte("cell"), nil, value.Int(1)))
	_, err := co.Commit(first)
	require.NoError(t, err)

	second := co.Begin(branch, 0)
	require.NoError(t, p.CompareAndSwap(second, []byte("cell"), nil, value.Int(2)))
	_, err = co.Commit(second)
	require.ErrorIs(t, err, txn.ErrAborted)
}

func TestSetBumpsCounterFromCurrentValue(t *testing.T) {
	st := store.New()
	co := txn.NewCoordinator(st, &nopWal{}, func() int64 { return 0 })
	p := New(st, primitive.NewRegistry())
	var branch [16]byte

	for i := 0; i < 3; i++ {
		c := co.Begin(branch, 0)
		require.NoError(t, p.Set(c, []byte("counter"), value.Int(int64(i))))
		_, err := co.Commit(c)
		require.NoError(t, err)
	}

	c := co.Begin(branch, 0)
	_, ver, ok, err := p.Get(c, []byte("counter"), 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(3), ver.Number())
}
