package syncengine

import (
	"context"
	"time"
)

// DefaultPullPageSize is used when a Query's FetchLimit is zero.
const DefaultPullPageSize = 50

// PullResult summarizes a completed pull, delivered to the completion
// callback alongside a nil error.
type PullResult struct {
	ItemsUpserted int
	ItemsDeleted  int

	// SkippedRows counts server rows dropped because they had no
	// parseable __updatedAt during an incremental pull, rather than
	// coercing them to the zero time.
	SkippedRows int

	// DeltaToken is the token now persisted for this (table, queryId),
	// formatted as ISO-8601 UTC. Empty for a non-incremental pull.
	DeltaToken string
}

// Pull runs a pre-flight validation, a mandatory
// pre-pull pushdown on dirty tables, and either an incremental (queryId
// set) or plain paged read merged into the local store. It returns
// immediately; completion is invoked exactly once on the callback
// executor.
func (c *SyncContext) Pull(ctx context.Context, req PullRequest, completion func(PullResult, error)) {
	go func() {
		result, err := c.pullSync(ctx, req)
		if completion != nil {
			c.callbacks.Dispatch(func() { completion(result, err) })
		}
	}()
}

func (c *SyncContext) pullSync(ctx context.Context, req PullRequest) (PullResult, error) {
	if err := req.Validate(); err != nil {
		return PullResult{}, err
	}

	var result PullResult
	err := c.lane.Run(func(ctx context.Context, _ <-chan struct{}) error {
		r, err := c.pullLocked(ctx, req)
		result = r
		return err
	}, ctx, nil)
	return result, err
}

// pullLocked runs the validated pull. The caller must already hold the
// push/pull lane.
func (c *SyncContext) pullLocked(ctx context.Context, req PullRequest) (PullResult, error) {
	if c.remote == nil {
		return PullResult{}, ErrMissingRemoteClient
	}
	if err := c.checkProtocolVersion(); err != nil {
		return PullResult{}, err
	}

	table := req.Query.TableName
	if err := c.pushdownBeforePull(ctx, table); err != nil {
		return PullResult{}, &PullAbortedError{QueryID: req.QueryID, TableName: table, Cause: err}
	}

	query := normalizePullQuery(req.Query)
	c.emit(Event{Type: EventPullStarted, TableName: table, Data: map[string]any{"queryId": req.QueryID}})

	var result PullResult
	var err error
	if req.QueryID != "" {
		result, err = c.pullIncremental(ctx, table, req.QueryID, query)
	} else {
		result, err = c.pullPlain(ctx, query)
	}

	c.emit(Event{Type: EventPullCompleted, TableName: table, Data: map[string]any{
		"upserted": result.ItemsUpserted, "deleted": result.ItemsDeleted, "skipped": result.SkippedRows,
	}})
	return result, err
}

// pushdownBeforePull implements the "pre-pull pushdown" rule: if the
// target table has pending operations, push first; loop, since condensed
// writes may appear during the push itself.
func (c *SyncContext) pushdownBeforePull(ctx context.Context, table string) error {
	for {
		if err := ctx.Err(); err != nil {
			return ErrPullCancelled
		}
		pending := c.queue.GetOperationsForTable(table, nil)
		if len(pending) == 0 {
			return nil
		}
		if err := c.pushLocked(ctx); err != nil {
			return err
		}
	}
}

func normalizePullQuery(q Query) Query {
	out := q.Clone()
	if out.Parameters == nil {
		out.Parameters = map[string]string{}
	}
	out.Parameters["__includeDeleted"] = "true"
	return out
}

func (c *SyncContext) pullPlain(ctx context.Context, query Query) (PullResult, error) {
	var result PullResult
	pageQuery := query
	pageSize := pageQuery.FetchLimit
	if pageSize == 0 {
		pageSize = DefaultPullPageSize
	}
	pageQuery.FetchLimit = pageSize

	for {
		if err := ctx.Err(); err != nil {
			return result, ErrPullCancelled
		}
		page, err := c.remote.TableRead(ctx, pageQuery, nil)
		if err != nil {
			return result, classifyAndWrapRemoteErr(err)
		}
		if len(page.Items) == 0 {
			return result, nil
		}

		merged, err := c.mergePullPage(ctx, pageQuery.TableName, page.Items)
		if err != nil {
			return result, err
		}
		result.ItemsUpserted += merged.ItemsUpserted
		result.ItemsDeleted += merged.ItemsDeleted
		result.SkippedRows += merged.SkippedRows
		c.emit(Event{Type: EventPullPage, TableName: pageQuery.TableName, Data: map[string]any{"count": len(page.Items)}})

		pageQuery.FetchOffset += len(page.Items)
	}
}

func (c *SyncContext) pullIncremental(ctx context.Context, table, queryID string, baseQuery Query) (PullResult, error) {
	var result PullResult

	token, err := c.loadDeltaToken(ctx, table, queryID)
	if err != nil {
		return result, err
	}

	pageQuery := baseQuery
	pageQuery.Order = []OrderClause{{Field: SystemFieldUpdatedAt, Direction: OrderAscending}}
	pageQuery.FetchOffset = 0
	pageSize := pageQuery.FetchLimit
	if pageSize == 0 {
		pageSize = DefaultPullPageSize
	}
	pageQuery.FetchLimit = pageSize
	pageQuery.UpdatedAtLowerBound = token

	for {
		if err := ctx.Err(); err != nil {
			return result, ErrPullCancelled
		}

		page, err := c.remote.TableRead(ctx, pageQuery, nil)
		if err != nil {
			return result, classifyAndWrapRemoteErr(err)
		}
		if len(page.Items) == 0 {
			if token.After(epoch) {
				result.DeltaToken = FormatSyncTime(token)
			}
			return result, nil
		}

		maxUpdatedAt := token
		mergeable := make([]Item, 0, len(page.Items))
		for _, it := range page.Items {
			t, ok := itemUpdatedAt(it)
			if !ok {
				result.SkippedRows++
				continue
			}
			if t.After(maxUpdatedAt) {
				maxUpdatedAt = t
			}
			mergeable = append(mergeable, it)
		}

		merged, err := c.mergePullPage(ctx, table, mergeable)
		if err != nil {
			return result, err
		}
		result.ItemsUpserted += merged.ItemsUpserted
		result.ItemsDeleted += merged.ItemsDeleted
		c.emit(Event{Type: EventPullPage, TableName: table, Data: map[string]any{"count": len(page.Items)}})

		if maxUpdatedAt.After(token) {
			token = maxUpdatedAt
			if err := c.saveDeltaToken(ctx, table, queryID, token); err != nil {
				return result, err
			}
			pageQuery.FetchOffset = 0
			pageQuery.UpdatedAtLowerBound = token
		} else {
			pageQuery.FetchOffset += len(page.Items)
		}
	}
}

type mergedPage struct {
	ItemsUpserted int
	ItemsDeleted  int
	SkippedRows   int
}

// mergePullPage implements the per-page merge: discard items
// with a pending local op (local wins until pushed), partition the rest
// by __deleted, and apply inside the writer domain so a concurrent local
// mutation can never race the upsert/delete batch.
func (c *SyncContext) mergePullPage(ctx context.Context, table string, items []Item) (mergedPage, error) {
	var toUpsert []Item
	var toDeleteIDs []string

	for _, it := range items {
		id := it.ID()
		if id == "" {
			continue
		}
		if _, pending := c.queue.Get(OperationKey{TableName: table, ItemID: id}); pending {
			continue
		}
		if it.Deleted() {
			toDeleteIDs = append(toDeleteIDs, id)
		} else {
			toUpsert = append(toUpsert, it)
		}
	}

	var out mergedPage
	err := c.writer.Submit(func() error {
		if len(toDeleteIDs) > 0 {
			if err := c.ds.Delete(ctx, table, toDeleteIDs); err != nil {
				return &StoreError{Op: "delete pulled items", Err: err}
			}
		}
		if len(toUpsert) > 0 {
			if err := c.ds.Upsert(ctx, table, toUpsert); err != nil {
				return &StoreError{Op: "upsert pulled items", Err: err}
			}
		}
		out.ItemsDeleted = len(toDeleteIDs)
		out.ItemsUpserted = len(toUpsert)
		return nil
	})
	return out, err
}

func (c *SyncContext) loadDeltaToken(ctx context.Context, table, queryID string) (time.Time, error) {
	item, err := c.ds.Read(ctx, c.ds.ConfigTableName(), deltaTokenID(table, queryID))
	if err != nil {
		return time.Time{}, &StoreError{Op: "read delta token", Err: err}
	}
	if item == nil {
		return epoch, nil
	}
	value, _ := item["value"].(string)
	parsed, parseErr := ParseSyncTime(value)
	if parseErr != nil {
		return epoch, nil
	}
	return parsed, nil
}

func (c *SyncContext) saveDeltaToken(ctx context.Context, table, queryID string, t time.Time) error {
	return c.writer.Submit(func() error {
		cv := NewDeltaTokenConfigValue(table, queryID, FormatSyncTime(t))
		row := Item{
			SystemFieldID: cv.ID,
			"table":        cv.Table,
			"keyType":      int(cv.KeyType),
			"key":          cv.Key,
			"value":        cv.Value,
		}
		if err := c.ds.Upsert(ctx, c.ds.ConfigTableName(), []Item{row}); err != nil {
			return &StoreError{Op: "save delta token", Err: err}
		}
		return nil
	})
}

func classifyAndWrapRemoteErr(err error) error {
	kind := classifyRemoteError(err)
	if kind == RemoteErrorTransport || kind == RemoteErrorAuth {
		return &TransportError{Kind: kind, Err: err}
	}
	return err
}
