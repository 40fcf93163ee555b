package syncengine

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the engine. Check these with errors.Is();
// the richer variants below (Conflict, PushAborted, PullAborted) carry
// additional payload and should be inspected with errors.As().
var (
	// ErrInvalidParameter marks a malformed query, a forbidden field
	// combination, or a bad queryId.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInvalidAction marks a mutation rejected by the condensation
	// rules (NotSupported).
	ErrInvalidAction = errors.New("invalid action for pending operation")

	// ErrInvalidQueryId marks a queryId that does not match the grammar
	// ^[A-Za-z][A-Za-z0-9_-]{0,24}$.
	ErrInvalidQueryId = errors.New("invalid queryId")

	// ErrMissingDataSource marks a context that was never wired to a
	// DataSource.
	ErrMissingDataSource = errors.New("sync context has no data source")

	// ErrMissingRemoteClient marks a push/pull attempted without a
	// RemoteClient configured.
	ErrMissingRemoteClient = errors.New("sync context has no remote client")

	// ErrQueueConflict marks an attempt to add an Operation for a
	// (table, itemId) pair that already has a pending Operation.
	ErrQueueConflict = errors.New("pending operation already exists for item")

	// ErrPushCancelled marks a push task stopped via its cancel flag.
	ErrPushCancelled = errors.New("push cancelled")

	// ErrPullCancelled marks a pull task stopped via its cancel flag.
	ErrPullCancelled = errors.New("pull cancelled")

	// ErrPurgeAborted marks a purge that declined to run because pending
	// operations exist on the target table and either force was not set
	// or the purge query has a predicate.
	ErrPurgeAborted = errors.New("purge aborted: pending operations exist")

	// ErrStoreInconsistent marks a completed local-store write whose
	// paired queue write failed, leaving the store and queue disagreeing
	// about a mutation.
	ErrStoreInconsistent = errors.New("local store and operation queue are inconsistent")

	// ErrProtocolSkew marks a RemoteClient reporting a wire protocol
	// version below MinSupportedProtocolVersion.
	ErrProtocolSkew = errors.New("remote protocol version is not supported")

	// ErrExecutorClosed marks a task submitted to a serialExecutor after
	// Close.
	ErrExecutorClosed = errors.New("executor is closed")
)

// StoreError wraps a failure reported by the DataSource.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error during %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// TransportError wraps a network or authorization failure reported by the
// RemoteClient. Kind distinguishes Transport from Auth, among others.
type TransportError struct {
	Kind RemoteErrorKind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteErrorKind classifies the error a RemoteClient call returned.
type RemoteErrorKind string

const (
	RemoteErrorTransport          RemoteErrorKind = "transport"
	RemoteErrorAuth               RemoteErrorKind = "auth"
	RemoteErrorConflict           RemoteErrorKind = "conflict"
	RemoteErrorPreconditionFailed RemoteErrorKind = "precondition_failed"
	RemoteErrorValidation         RemoteErrorKind = "validation"
)

// ConflictError marks a server-side 412/409 rejection. It carries the
// server's authoritative item and version so a ConflictResolver or the
// embedder's own UI can decide how to proceed.
type ConflictError struct {
	TableName  string
	ItemID     string
	ServerItem Item
	Version    string
	Err        error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s/%s (server version %s): %v", e.TableName, e.ItemID, e.Version, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// TableOperationError records a per-operation failure collected during a
// push. It is attached to the Operation it failed and is never surfaced on
// its own, only as part of a PushAbortedError's Errors slice or via
// OperationQueue lookups.
type TableOperationError struct {
	OperationID int64
	TableName   string
	ItemID      string
	Kind        RemoteErrorKind
	Err         error
}

func (e *TableOperationError) Error() string {
	return fmt.Sprintf("operation %d (%s/%s) failed: %s: %v", e.OperationID, e.TableName, e.ItemID, e.Kind, e.Err)
}

func (e *TableOperationError) Unwrap() error { return e.Err }

// PushAbortedError is returned when a push terminates early due to a
// transport/auth failure, with that failure as Cause, and also when a push
// ran to the end but collected per-operation errors, with a nil Cause.
// Errors contains every TableOperationError collected for the ops
// processed.
type PushAbortedError struct {
	Errors []*TableOperationError
	Cause  error
}

func (e *PushAbortedError) Error() string {
	return fmt.Sprintf("push aborted after %d per-operation error(s): %v", len(e.Errors), e.Cause)
}

func (e *PushAbortedError) Unwrap() error { return e.Cause }

// PullAbortedError wraps the error of a failed mandatory pre-pull
// pushdown, most commonly a PushAbortedError. Failures of the pull's own
// page reads and merges are returned unwrapped.
type PullAbortedError struct {
	QueryID   string
	TableName string
	Cause     error
}

func (e *PullAbortedError) Error() string {
	return fmt.Sprintf("pull of table %q (queryId=%q) aborted: %v", e.TableName, e.QueryID, e.Cause)
}

func (e *PullAbortedError) Unwrap() error { return e.Cause }

// PurgeAbortedError is returned when purge declines to run because pending
// operations exist and either force was not requested or the purge query
// has a predicate.
type PurgeAbortedError struct {
	TableName      string
	PendingOpCount int
}

func (e *PurgeAbortedError) Error() string {
	return fmt.Sprintf("purge of table %q aborted: %d pending operation(s) (use force)", e.TableName, e.PendingOpCount)
}

func (e *PurgeAbortedError) Unwrap() error { return ErrPurgeAborted }

// IsRetryable reports whether err is likely to succeed if retried
// unchanged: transport failures and any StoreError, but not
// validation, conflict, or programmer errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind == RemoteErrorTransport
	}
	var se *StoreError
	return errors.As(err, &se)
}

// IsUserActionRequired reports whether err requires the application or its
// conflict callback to decide how to proceed, rather than being safe to
// retry or ignore.
func IsUserActionRequired(err error) bool {
	if err == nil {
		return false
	}
	var ce *ConflictError
	if errors.As(err, &ce) {
		return true
	}
	var pe *PurgeAbortedError
	return errors.As(err, &pe)
}
