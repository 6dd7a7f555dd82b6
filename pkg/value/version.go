package value

import "fmt"

// VersionKind identifies which subsystem assigned a Version.
type VersionKind uint8

const (
	// VersionTxn marks a version allocated by the transaction
	// coordinator at commit time: its number is a commit_version.
	VersionTxn VersionKind = iota
	// VersionSequence marks a version allocated by a primitive's own
	// monotonic counter (event log offsets, trace span sequence).
	VersionSequence
	// VersionCounter marks a version allocated by a CAS-style counter
	// (state cell generation numbers).
	VersionCounter
)

// String renders a VersionKind for diagnostics.
func (k VersionKind) String() string {
	switch k {
	case VersionTxn:
		return "txn"
	case VersionSequence:
		return "sequence"
	case VersionCounter:
		return "counter"
	default:
		return "unknown"
	}
}

// Version is a tagged u64: the kind records which subsystem produced
// the number, and the number's meaning (commit id, sequence offset,
// generation count) only makes sense within that kind. Comparing two
// Versions of the same kind is a plain unsigned comparison; comparing
// across kinds is undefined and Less reports false for both
// directions rather than guessing.
type Version struct {
	kind VersionKind
	n    uint64
}

// Txn builds a Version recording a transaction commit id.
func Txn(commitID uint64) Version { return Version{kind: VersionTxn, n: commitID} }

// Sequence builds a Version recording a primitive-owned sequence number.
func Sequence(n uint64) Version { return Version{kind: VersionSequence, n: n} }

// Counter builds a Version recording a CAS generation counter.
func Counter(n uint64) Version { return Version{kind: VersionCounter, n: n} }

// VersionFromKind rebuilds a Version from its raw kind and number, as
// read back off the wire (WAL records, snapshot sections) where only
// the tag byte and number are persisted.
func VersionFromKind(kind VersionKind, n uint64) Version { return Version{kind: kind, n: n} }

// Kind reports which subsystem produced v.
func (v Version) Kind() VersionKind { return v.kind }

// Number returns the raw u64 payload.
func (v Version) Number() uint64 { return v.n }

// Less reports whether v sorts before o. Same-kind versions compare
// by their unsigned number; cross-kind comparisons always report
// false, since there is no defined ordering between them.
func (v Version) Less(o Version) bool {
	if v.kind != o.kind {
		return false
	}
	return v.n < o.n
}

// Equal reports whether v and o carry the same kind and number.
func (v Version) Equal(o Version) bool {
	return v.kind == o.kind && v.n == o.n
}

func (v Version) String() string {
	return fmt.Sprintf("%s(%d)", v.kind, v.n)
}

// VersionedValue is what every version-chain node in the store holds:
// the stored Value, the Version that produced it, the wall-clock
// creation time in microseconds since the Unix epoch, and an optional
// TTL. TTL expiry is a read-time filter only — there is no background
// sweep; expiry enforcement stays in the read path.
//
// CommitVersion is the store's commit_version under which this entry
// became visible. It is tracked separately from Ver because Ver's
// number means different things depending on its kind (a commit id
// for VersionTxn, but a primitive-owned sequence or generation number
// for VersionSequence/VersionCounter) — only CommitVersion gives a
// uniform, monotonic axis every chain node can be ordered and bounded
// by for snapshot isolation, regardless of which primitive wrote it.
type VersionedValue struct {
	Value         Value
	Ver           Version
	CreatedAt     int64  // microseconds since Unix epoch
	TTL           *int64 // microseconds; nil means no expiry
	CommitVersion uint64
}

// ExpiresAt returns the absolute expiry time in microseconds and true,
// or (0, false) if vv carries no TTL.
func (vv VersionedValue) ExpiresAt() (int64, bool) {
	if vv.TTL == nil {
		return 0, false
	}
	return vv.CreatedAt + *vv.TTL, true
}

// ExpiredAt reports whether vv has expired as of nowMicros.
func (vv VersionedValue) ExpiredAt(nowMicros int64) bool {
	exp, ok := vv.ExpiresAt()
	if !ok {
		return false
	}
	return nowMicros >= exp
}
