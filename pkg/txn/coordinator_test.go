package txn

import (
	"testing"

	"strata/pkg/entitykey"
	"strata/pkg/store"
	"strata/pkg/value"
)

type recordingWal struct {
	records []Record
}

func (w *recordingWal) Append(rec Record) error {
	w.records = append(w.records, rec)
	return nil
}

func fixedClock(t int64) NowMicros { return func() int64 { return t } }

func testKey(t *testing.T, uk string) entitykey.Key {
	t.Helper()
	var b [16]byte
	b[0] = 9
	k, err := entitykey.New(b, entitykey.TypeKV, []byte(uk))
	if err != nil {
		t.Fatal(err)
	}
	return k
}

func TestCommitAppliesWritesAndPersists(t *testing.T) {
	st := store.New()
	wal := &recordingWal{}
	co := NewCoordinator(st, wal, fixedClock(100))

	var branch [16]byte
	branch[0] = 9
	ctx := co.Begin(branch, 0)
	k := testKey(t, "a")
	ctx.BufferPut(k, value.Int(1), nil)

	commitVer, err := co.Commit(ctx)
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if len(wal.records) != 1 {
		t.Fatalf("expected 1 WAL record, got %d", len(wal.records))
	}
	got, ok := st.Get(k, commitVer, 0)
	if !ok || got.Value.Int() != 1 {
		t.Fatalf("expected committed value visible in store, got %v ok=%v", got, ok)
	}
}

func TestCommitAbortsOnReadSetConflict(t *testing.T) {
	st := store.New()
	co := NewCoordinator(st, &recordingWal{}, fixedClock(0))
	var branch [16]byte
	k := testKey(t, "a")

	ctx1 := co.Begin(branch, 0)
	ctx1.RecordRead(k, 0) // observed: key doesn't exist yet (version 0)

	// A concurrent transaction commits a write to the same key first.
	ctx2 := co.Begin(branch, 0)
	ctx2.BufferPut(k, value.Int(99), nil)
	if _, err := co.Commit(ctx2); err != nil {
		t.Fatalf("ctx2 commit should succeed: %v", err)
	}

	ctx1.BufferPut(k, value.Int(1), nil)
	_, err := co.Commit(ctx1)
	if err != ErrAborted {
		t.Fatalf("expected ErrAborted due to read set conflict, got %v", err)
	}
}

func TestCommitValidatesCasPrecondition(t *testing.T) {
	st := store.New()
	co := NewCoordinator(st, &recordingWal{}, fixedClock(0))
	var branch [16]byte
	k := testKey(t, "cell")

	// First write establishes a version.
	ctx1 := co.Begin(branch, 0)
	ctx1.BufferPut(k, value.Int(1), nil)
	v1, err := co.Commit(ctx1)
	if err != nil {
		t.Fatal(err)
	}

	// A second transaction races in and bumps the version first.
	ctxRace := co.Begin(branch, 0)
	ctxRace.BufferPut(k, value.Int(2), nil)
	if _, err := co.Commit(ctxRace); err != nil {
		t.Fatal(err)
	}

	// Our CAS still expects v1, which is now stale.
	ctx2 := co.Begin(branch, 0)
	ctx2.RequireVersion(k, value.Txn(v1), true)
	ctx2.BufferPut(k, value.Int(3), nil)
	_, err = co.Commit(ctx2)
	if err != ErrAborted {
		t.Fatalf("expected CAS validation to fail, got %v", err)
	}
}

func TestDeadlineExceeded(t *testing.T) {
	ctx := Acquire(1, [16]byte{}, 0)
	ctx.DeadlineAt = 100
	if err := ctx.CheckDeadline(50); err != nil {
		t.Fatalf("expected no error before deadline, got %v", err)
	}
	if err := ctx.CheckDeadline(150); err != ErrDeadlineExceeded {
		t.Fatalf("expected ErrDeadlineExceeded, got %v", err)
	}
}
