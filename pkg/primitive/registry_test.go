package primitive

import (
	"testing"

	"github.com/stretchr/testify/require"

	"strata/pkg/entitykey"
)

func TestRegisterAndOwner(t *testing.T) {
	r := NewRegistry()
	r.Register(Registration{Name: "kv", TypeTags: []entitykey.TypeTag{entitykey.TypeKV}})

	owner, ok := r.Owner(entitykey.TypeKV)
	require.True(t, ok)
	require.Equal(t, "kv", owner)

	_, ok = r.Owner(entitykey.TypeEventLog)
	require.False(t, ok)
}

func TestRegisterCollisionPanics(t *testing.T) {
	r := NewRegistry()
	r.Register(Registration{Name: "kv", TypeTags: []entitykey.TypeTag{entitykey.TypeKV}})

	require.Panics(t, func() {
		r.Register(Registration{Name: "other", TypeTags: []entitykey.TypeTag{entitykey.TypeKV}})
	})
}
