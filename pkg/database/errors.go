// Package database implements the Database facade: Open/Close/
// Checkpoint/Compact/Transaction over the store, the OCC coordinator,
// and the durability engine, plus the branch-identity bookkeeping
// (name→id resolution, per-branch commit-lock cleanup) that layer
// owns. Grounded on the teacher's pkg/turdb/db.go (Options struct,
// locked Open/Close, closed-flag guard) and pkg/turdb/pool.go's
// prepared-object reuse, generalized from a SQL connection handle
// into a multi-primitive transaction facade.
package database

import (
	"errors"
	"fmt"

	"strata/pkg/durability/fsyncdir"
	"strata/pkg/durability/manifest"
	"strata/pkg/durability/recovery"
	"strata/pkg/durability/snapshot"
	"strata/pkg/durability/wal"
	"strata/pkg/entitykey"
	"strata/pkg/txn"
	"strata/primitive/eventlog"
	"strata/primitive/runindex"
	"strata/primitive/trace"
	"strata/primitive/vectorindex"
)

// Code classifies an Error into one of the boundary categories callers
// can switch on. Inner packages (pkg/store, pkg/txn,
// pkg/durability/*) return plain sentinel/wrapped errors; Database is
// the only layer that classifies them into a Code.
type Code int

const (
	CodeNotFound Code = iota
	CodeVersionConflict
	CodeTransactionAborted
	CodeBranchNotFound
	CodeInvalidOperation
	CodeDimensionMismatch
	CodeCorruptWAL
	CodeCorruptSnapshot
	CodeCodecMismatch
	CodeIO
	CodeSerialization
)

func (c Code) String() string {
	switch c {
	case CodeNotFound:
		return "NotFound"
	case CodeVersionConflict:
		return "VersionConflict"
	case CodeTransactionAborted:
		return "TransactionAborted"
	case CodeBranchNotFound:
		return "BranchNotFound"
	case CodeInvalidOperation:
		return "InvalidOperation"
	case CodeDimensionMismatch:
		return "DimensionMismatch"
	case CodeCorruptWAL:
		return "CorruptWal"
	case CodeCorruptSnapshot:
		return "CorruptSnapshot"
	case CodeCodecMismatch:
		return "CodecMismatch"
	case CodeIO:
		return "Io"
	case CodeSerialization:
		return "Serialization"
	default:
		return "Unknown"
	}
}

// Error is the typed error every Database method surfaces at its
// boundary, wrapping whatever inner error actually occurred.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("strata: %s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("strata: %s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(code Code, msg string, err error) *Error {
	return &Error{Code: code, Msg: msg, Err: err}
}

// ErrBranchNotFound is the sentinel wrapped by every BranchNotFound
// classification, so callers can errors.Is against it without caring
// about the wrapping *Error.
var ErrBranchNotFound = errors.New("database: branch not found")

// classify maps an inner-package error to a boundary Code, defaulting
// to CodeIO for anything unrecognized (disk errors, permission
// failures, and other catch-all cases).
func classify(err error) *Error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return de
	}

	switch {
	case errors.Is(err, txn.ErrAborted):
		return newErr(CodeVersionConflict, "read or cas precondition no longer holds", err)
	case errors.Is(err, txn.ErrDeadlineExceeded):
		return newErr(CodeTransactionAborted, "transaction deadline exceeded", err)
	case errors.Is(err, txn.ErrNotActive):
		return newErr(CodeTransactionAborted, "transaction is not active", err)
	case errors.Is(err, entitykey.ErrEmptyUserKey), errors.Is(err, entitykey.ErrUserKeyTooLong), errors.Is(err, entitykey.ErrEmbeddedNUL):
		return newErr(CodeInvalidOperation, "invalid key", err)
	case errors.Is(err, vectorindex.ErrDimensionMismatch):
		return newErr(CodeDimensionMismatch, "vector dimension mismatch", err)
	case errors.Is(err, ErrBranchNotFound):
		return newErr(CodeBranchNotFound, "branch not found", err)
	case errors.Is(err, runindex.ErrBranchNameTaken):
		return newErr(CodeInvalidOperation, "branch name already registered", err)
	case errors.Is(err, trace.ErrSpanExists), errors.Is(err, trace.ErrTraceIDTooLong):
		return newErr(CodeInvalidOperation, "invalid trace operation", err)
	case errors.Is(err, eventlog.ErrStreamIDTooLong):
		return newErr(CodeInvalidOperation, "invalid event log stream id", err)
	case errors.Is(err, manifest.ErrBadMagic), errors.Is(err, manifest.ErrBadChecksum):
		return newErr(CodeCorruptWAL, "manifest corrupt", err)
	case errors.Is(err, snapshot.ErrBadMagic), errors.Is(err, snapshot.ErrBadChecksum), errors.Is(err, snapshot.ErrSectionCRC):
		return newErr(CodeCorruptSnapshot, "snapshot corrupt", err)
	case errors.Is(err, wal.ErrBadMagic), errors.Is(err, wal.ErrBadDatabase):
		return newErr(CodeCorruptWAL, "WAL segment corrupt", err)
	case errors.Is(err, fsyncdir.ErrLocked):
		return newErr(CodeIO, "database directory already locked", err)
	case errors.Is(err, recovery.ErrNoManifest):
		return newErr(CodeIO, "no manifest found", err)
	default:
		return newErr(CodeIO, "i/o failure", err)
	}
}
