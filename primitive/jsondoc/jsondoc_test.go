package jsondoc

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

func TestPutGetDeleteDocument(t *testing.T) {
	st := store.New()
	co := txn.NewCoordinator(st, &nopWal{}, func() int64 { return 0 })
	p := New(st, primitive.NewRegistry())
	var branch [16]byte

	doc := value.Map([]value.Entry{
		{Key: "name", Val: value.String("agent-7")},
		{Key: "tags", Val: value.Seq([]value.Value{value.String("a"), value.String("b")})},
	})

	c := co.Begin(branch, 0)
	require.NoError(t, p.Put(c, []byte("doc-1"), doc, nil))
	_, err := co.Commit(c)
	require.NoError(t, err)

	c2 := co.Begin(branch, 0)
	got, ok, err := p.Get(c2, []byte("doc-1"), 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, value.Equal(got, doc))

	c3 := co.Begin(branch, 0)
	require.NoError(t, p.Delete(c3, []byte("doc-1")))
	_, err = co.Commit(c3)
	require.NoError(t, err)

	c4 := co.Begin(branch, 0)
	_, ok, err = p.Get(c4, []byte("doc-1"), 0)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestScanDocumentsByPrefix(t *testing.T) {
	st := store.New()
	co := txn.NewCoordinator(st, &nopWal{}, func() int64 { return 0 })
	p := New(st, primitive.NewRegistry())
	var branch [16]byte

	for _, id := range []string{"user:2", "user:1", "order:1"} {
		c := co.Begin(branch, 0)
		require.NoError(t, p.Put(c, []byte(id), value.String(id), nil))
		_, err := co.Commit(c)
		require.NoError(t, err)
	}

	entries := Scan(st, branch, []byte("user:"), st.CurrentCommitVersion(), 0)
	require.Len(t, entries, 2)
	require.Equal(t, "user:1", string(entries[0].Key))
	require.Equal(t, "user:2", string(entries[1].Key))
}
