package vectorindex

import (
	"sync"

	"strata/pkg/entitykey"
	"strata/pkg/primitive"
	"strata/pkg/store"
	"strata/pkg/txn"
	"strata/pkg/value"
)

// Primitive wires the vector collection type tag onto a shared store
// and maintains one in-memory HNSW graph per branch as a read-path
// accelerator over the durable vectors. The graph is never itself
// persisted: the registry's Rebuild hook reconstructs it from scratch
// after a snapshot load or WAL replay, and pkg/database marks a
// branch's graph dirty (MarkDirty) after each commit rather than
// Put/Delete maintaining it incrementally inside the OCC transaction,
// because a buffered write isn't durable until commit
// succeeds and the coordinator has no hook into a primitive's
// in-memory side effects mid-transaction.
type Primitive struct {
	store  *store.Store
	config Config

	mu     sync.Mutex
	graphs map[[16]byte]*graph
	dirty  map[[16]byte]bool
}

// New returns a vector collection primitive backed by core, registers
// its recovery rebuild hook with reg, and configures every collection
// under this primitive with config (one shared dimension and distance
// metric per database, not per collection — a simplification the
// caller should document to users keeping multiple distinct embedding
// spaces in the same database).
func New(core *store.Store, reg *primitive.Registry, config Config) *Primitive {
	p := &Primitive{
		store:  core,
		config: config,
		graphs: make(map[[16]byte]*graph),
		dirty:  make(map[[16]byte]bool),
	}
	reg.Register(primitive.Registration{
		Name:     "vectorindex",
		TypeTags: []entitykey.TypeTag{entitykey.TypeVectorIndex},
		Rebuild:  p.Rebuild,
	})
	return p
}

func key(branch [16]byte, userKey []byte) (entitykey.Key, error) {
	return entitykey.New(branch, entitykey.TypeVectorIndex, userKey)
}

// Put buffers a write of vec at userKey. vec's dimension must match
// the collection's configured Dimension.
func (p *Primitive) Put(c *txn.Context, userKey []byte, vec Vector) error {
	if vec.Dimension() != p.config.Dimension {
		return ErrDimensionMismatch
	}
	k, err := key(c.Branch, userKey)
	if err != nil {
		return err
	}
	c.BufferPut(k, value.Bytes(vec.ToBytes()), nil)
	return nil
}

// Delete buffers a tombstone write at userKey.
func (p *Primitive) Delete(c *txn.Context, userKey []byte) error {
	k, err := key(c.Branch, userKey)
	if err != nil {
		return err
	}
	c.BufferDelete(k)
	return nil
}

// Get reads the raw vector stored at userKey.
func (p *Primitive) Get(c *txn.Context, userKey []byte, nowMicros int64) (Vector, bool, error) {
	k, err := key(c.Branch, userKey)
	if err != nil {
		return Vector{}, false, err
	}
	vv, ok := txn.Read(p.store, c, k, nowMicros)
	if !ok {
		return Vector{}, false, nil
	}
	vec, err := VectorFromBytes(vv.Value.Blob())
	if err != nil {
		return Vector{}, false, err
	}
	return vec, true, nil
}

// MarkDirty invalidates branch's cached graph so the next SearchKNN
// rebuilds it from current store state first. pkg/database calls this
// after every successful commit on branch, whether or not its
// writeset touched the vector collection, so a
// search never runs against a graph older than the transactions the
// caller already knows committed.
func (p *Primitive) MarkDirty(branch [16]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dirty[branch] = true
}

func (p *Primitive) buildGraph(branch [16]byte, nowMicros int64) *graph {
	g := newGraph(p.config)
	rows := p.store.ScanPrefix(branch, entitykey.TypeVectorIndex, nil, p.store.CurrentCommitVersion(), nowMicros)
	for _, r := range rows {
		vec, err := VectorFromBytes(r.Value.Value.Blob())
		if err != nil {
			continue
		}
		_ = g.Insert(string(r.Key.UserKey), vec)
	}
	return g
}

func (p *Primitive) graphFor(branch [16]byte, nowMicros int64) *graph {
	p.mu.Lock()
	g, ok := p.graphs[branch]
	isDirty := p.dirty[branch]
	p.mu.Unlock()

	if ok && !isDirty {
		return g
	}

	g = p.buildGraph(branch, nowMicros)
	p.mu.Lock()
	p.graphs[branch] = g
	p.dirty[branch] = false
	p.mu.Unlock()
	return g
}

// SearchKNN returns the k nearest neighbors to query within branch,
// rebuilding the branch's graph first if it's missing or marked dirty.
func (p *Primitive) SearchKNN(branch [16]byte, query Vector, k int, nowMicros int64) ([]SearchResult, error) {
	return p.graphFor(branch, nowMicros).SearchKNN(query, k)
}

// Rebuild satisfies pkg/primitive.Registration.Rebuild: after a
// snapshot load or WAL tail replay, reconstruct branch's HNSW graph
// wholesale from the raw vectors recovery just restored into the
// store. The graph is derived state and is never itself part of a
// snapshot section.
func (p *Primitive) Rebuild(st *store.Store, branch [16]byte) error {
	g := newGraph(p.config)
	rows := st.ScanPrefix(branch, entitykey.TypeVectorIndex, nil, st.CurrentCommitVersion(), 0)
	for _, r := range rows {
		vec, err := VectorFromBytes(r.Value.Value.Blob())
		if err != nil {
			continue
		}
		if err := g.Insert(string(r.Key.UserKey), vec); err != nil {
			continue
		}
	}
	p.mu.Lock()
	p.graphs[branch] = g
	p.dirty[branch] = false
	p.mu.Unlock()
	return nil
}
