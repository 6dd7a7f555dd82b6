package vectorindex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"strata/pkg/primitive"
	"strata/pkg/store"
	"strata/pkg/txn"
)

type nopWal struct{}

func (nopWal) Append(txn.Record) error { return nil }

func TestPutAndSearchKNN(t *testing.T) {
	st := store.New()
	reg := primitive.NewRegistry()
	co := txn.NewCoordinator(st, &nopWal{}, func() int64 { return 0 })
	p := New(st, reg, DefaultConfig(3, DistanceEuclidean))
	var branch [16]byte

	vectors := map[string][]float32{
		"a": {0, 0, 0},
		"b": {1, 0, 0},
		"c": {10, 10, 10},
	}
	for key, data := range vectors {
		c := co.Begin(branch, 0)
		require.NoError(t, p.Put(c, []byte(key), NewVector(data)))
		_, err := co.Commit(c)
		require.NoError(t, err)
	}
	p.MarkDirty(branch)

	results, err := p.SearchKNN(branch, NewVector([]float32{0, 0, 0}), 2, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "a", results[0].Key)
	require.Equal(t, "b", results[1].Key)
}

func TestPutRejectsDimensionMismatch(t *testing.T) {
	st := store.New()
	reg := primitive.NewRegistry()
	co := txn.NewCoordinator(st, &nopWal{}, func() int64 { return 0 })
	p := New(st, reg, DefaultConfig(3, DistanceCosine))
	var branch [16]byte

	c := co.Begin(branch, 0)
	err := p.Put(c, []byte("bad"), NewVector([]float32{1, 2}))
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestRebuildReconstructsGraphAfterRecovery(t *testing.T) {
	st := store.New()
	reg := primitive.NewRegistry()
	co := txn.NewCoordinator(st, &nopWal{}, func() int64 { return 0 })
	p := New(st, reg, DefaultConfig(2, DistanceEuclidean))
	var branch [16]byte

	c := co.Begin(branch, 0)
	require.NoError(t, p.Put(c, []byte("x"), NewVector([]float32{1, 1})))
	_, err := co.Commit(c)
	require.NoError(t, err)

	fresh := New(st, primitive.NewRegistry(), DefaultConfig(2, DistanceEuclidean))
	require.NoError(t, fresh.Rebuild(st, branch))

	results, err := fresh.SearchKNN(branch, NewVector([]float32{1, 1}), 1, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "x", results[0].Key)
}
