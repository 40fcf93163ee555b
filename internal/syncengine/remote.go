package syncengine

import "context"

// RemoteFeatures carries SDK telemetry/feature flags through to the
// RemoteClient call, mirroring a "features" parameter on the wire
// contract. The engine does not interpret its contents; it is opaque
// pass-through for the embedder's RemoteClient implementation.
type RemoteFeatures map[string]string

// RemoteClient is the interface for server-side table CRUD and query
// contract. It is external: the REST client that executes HTTP
// requests is out of scope for the engine itself. See
// internal/remoteclient for a concrete net/http implementation.
type RemoteClient interface {
	TableInsert(ctx context.Context, tableName string, item Item, features RemoteFeatures) (Item, error)
	TableUpdate(ctx context.Context, tableName string, item Item, features RemoteFeatures) (Item, error)
	TableDelete(ctx context.Context, tableName string, item Item, features RemoteFeatures) error
	TableRead(ctx context.Context, query Query, features RemoteFeatures) (QueryResult, error)
}

// VersionedRemoteClient is an optional capability: an adapter may report
// the wire protocol version it speaks so SyncContext can refuse to push or
// pull across an incompatible skew before issuing any network call.
// Adapters that don't implement this interface are never version-checked.
type VersionedRemoteClient interface {
	ProtocolVersion() string
}

// PushHandler, when set on SyncContext, replaces the default RemoteClient
// dispatch for every operation in a push. It receives the operation being
// pushed and the configured RemoteClient, and must return either the
// server's authoritative item (for Insert/Update) or a nil item (for
// Delete) plus an error classified the same way a RemoteClient error
// would be (ConflictError, TransportError, or a validation error).
type PushHandler func(ctx context.Context, op *Operation, remote RemoteClient) (Item, error)

// ConflictResolver is the user-supplied conflict callback. When set on
// SyncContext, it is invoked with a ConflictError and the item's current
// local state. Returning a non-nil Item pushes that item as an Update in
// place of the failed operation; returning a nil Item, or an error, leaves
// the operation pending with the conflict recorded, the same as if no
// resolver were configured at all.
type ConflictResolver func(ctx context.Context, conflict *ConflictError, localItem Item) (Item, error)
