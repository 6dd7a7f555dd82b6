package kv

import (
	"testing"

	"github.com/stretchr/testify/require"

	"strata/pkg/store"
	"strata/pkg/txn"
	"strata/pkg/value"
)

func TestPutGetDeleteRoundTrip(t *testing.T) {
	st := store.New()
	wal := &nopWal{}
	co := txn.NewCoordinator(st, wal, func() int64 { return 1000 })
	p := New(st)

	var branch [16]byte
	branch[0] = 1

	c := co.Begin(branch, 0)
	require.NoError(t, p.Put(c, []byte("a"), value.Int(42), nil))
	_, err := co.Commit(c)
	require.NoError(t, err)

	c2 := co.Begin(branch, 0)
	got, ok, err := p.Get(c2, []byte("a"), 1000)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, value.Equal(got, value.Int(42)))

	c3 := co.Begin(branch, 0)
	require.NoError(t, p.Delete(c3, []byte("a")))
	_, err = co.Commit(c3)
	require.NoError(t, err)

	c4 := co.Begin(branch, 0)
	_, ok, err = p.Get(c4, []byte("a"), 1000)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestScanOrdersByKey(t *testing.T) {
	st := store.New()
	co := txn.NewCoordinator(st, &nopWal{}, func() int64 { return 0 })
	p := New(st)
	var branch [16]byte

	for _, k := range []string{"c", "a", "b"} {
		c := co.Begin(branch, 0)
		require.NoError(t, p.Put(c, []byte(k), value.String(k), nil))
		_, err := co.Commit(c)
		require.NoError(t, err)
	}

	entries := Scan(st, branch, nil, st.CurrentCommitVersion(), 0)
	require.Len(t, entries, 3)
	require.Equal(t, "a", string(entries[0].Key))
	require.Equal(t, "b", string(entries[1].Key))
	require.Equal(t, "c", string(entries[2].Key))
}

type nopWal struct{}

func (nopWal) Append(txn.Record) error { return nil }
