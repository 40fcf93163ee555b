// Package syncengine implements the offline sync engine of a mobile-backend
// client SDK: an application reads and writes records in named logical
// tables while disconnected, and this package reconciles those changes with
// a remote server when connectivity returns.
//
// Overview
//
// Local mutations are recorded as pending Operations keyed by (table,
// itemId). Successive mutations against the same item are condensed into a
// single Operation representing their net effect (see CondenseAction).
// SyncContext is the coordinator: it owns a single-writer serialization
// domain for all queue and local-store mutations, and hosts the push/pull
// lane that drains pending Operations to a RemoteClient or pulls
// server-side changes into the local store.
//
//	Application
//	     │ insert/update/delete
//	     ▼
//	SyncContext.ApplyLocalMutation ──► condense ──► OperationQueue + DataSource
//	     │ push / pull
//	     ▼
//	push/pull lane (maxConcurrent=1) ──► RemoteClient + DataSource
//	     │
//	     ▼
//	completion callback (callback executor)
//
// Usage
//
//	ctx, err := syncengine.NewContext(syncengine.ContextConfig{
//	    DataSource: myDataSource,
//	    Remote:     myRemoteClient,
//	})
//	if err != nil {
//	    return err
//	}
//	defer ctx.Close()
//
//	todo := ctx.Table("todo")
//	todo.Insert(context.Background(), syncengine.Item{"text": "buy milk"}, func(item syncengine.Item, err error) {
//	    if err != nil {
//	        log.Printf("insert failed: %v", err)
//	    }
//	})
//
//	ctx.Push(context.Background(), func(err error) {
//	    if err != nil {
//	        log.Printf("push failed: %v", err)
//	    }
//	})
//
// Concurrency
//
// All queue and local-store mutations run on a single serialized writer
// domain (see executor.go). Push and pull tasks contend for a FIFO lane
// with maxConcurrent=1. User completions are always delivered on a bounded
// callback executor, never on the writer domain, so embedders observe one
// threading model regardless of which entry point they call.
//
// Error Handling
//
// Every public entry point delivers exactly one completion: either a
// success payload or a single aggregate error from the kinds in errors.go.
// Per-operation push errors are collected, not surfaced individually; they
// are attached to the operation record and included in the aggregate
// PushAbortedError (whose Cause is nil when the push was not cut short).
package syncengine
