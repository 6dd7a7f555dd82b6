package txn

import (
	"strata/pkg/entitykey"
	"strata/pkg/store"
	"strata/pkg/value"
)

// Read implements read-your-writes against c's buffered write set
// first, falling back to a snapshot lookup bounded by c.StartVer, and
// in both miss and hit cases recording exactly one read-set entry for
// k: the first observation wins, so a second Read of the same key
// within the same context is a no-op against the read set. Every
// primitive's Get goes through this single path so read-set
// bookkeeping can never diverge between primitives.
func Read(st *store.Store, c *Context, k entitykey.Key, nowMicros int64) (value.VersionedValue, bool) {
	enc := entitykey.Encode(k)
	for i := len(c.writes) - 1; i >= 0; i-- {
		w := c.writes[i]
		if entitykey.Encode(w.key) != enc {
			continue
		}
		if w.tombstone {
			return value.VersionedValue{}, false
		}
		vv := value.VersionedValue{Value: w.val}
		if w.verOverride != nil {
			vv.Ver = *w.verOverride
		}
		return vv, true
	}

	if _, already := c.reads[enc]; already {
		// Already recorded on an earlier Read of the same key; resolve
		// the current value without touching the read set again.
		vv, ok := st.Get(k, c.StartVer, nowMicros)
		return vv, ok
	}

	vv, ok := st.Get(k, c.StartVer, nowMicros)
	if !ok {
		c.RecordRead(k, 0)
		return value.VersionedValue{}, false
	}
	c.RecordRead(k, vv.Ver.Number())
	return vv, true
}
