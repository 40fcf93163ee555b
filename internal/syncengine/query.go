package syncengine

import (
	"fmt"
	"regexp"
	"time"
)

// queryIDPattern is the allowed queryId grammar.
var queryIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{0,24}$`)

// ValidateQueryID rejects a queryId that does not match
// ^[A-Za-z][A-Za-z0-9_-]{0,24}$. A nil/empty queryId is permitted and
// signals a non-incremental pull.
func ValidateQueryID(queryID string) error {
	if queryID == "" {
		return nil
	}
	if !queryIDPattern.MatchString(queryID) {
		return fmt.Errorf("%w: %q must match %s", ErrInvalidQueryId, queryID, queryIDPattern.String())
	}
	return nil
}

// OrderDirection is the sort direction for a Query's ordering clause.
type OrderDirection int

const (
	OrderAscending OrderDirection = iota
	OrderDescending
)

// OrderClause orders query results by a single field.
type OrderClause struct {
	Field     string
	Direction OrderDirection
}

// Query describes a read against a table, local or remote. The predicate
// construction language itself is out of scope; Predicate is
// a plain Go filter function so the engine's own code and tests do not
// need a query-builder DSL to exercise pull/purge semantics.
type Query struct {
	TableName string

	// Predicate filters items; nil matches everything.
	Predicate func(Item) bool

	// Order is applied in the listed order; empty means unordered. An
	// incremental pull replaces it with __updatedAt ascending.
	Order []OrderClause

	// FetchOffset and FetchLimit page the result set. FetchLimit == 0
	// means no limit for a local read; a pull uses DefaultPullPageSize.
	FetchOffset int
	FetchLimit  int

	// SelectFields, when non-empty, asks the server to project only
	// these fields. Forbidden together with a queryId.
	SelectFields []string

	// IncludeTotalCount asks the server to compute the matching row
	// count. Forbidden together with a queryId.
	IncludeTotalCount bool

	// Parameters are raw wire-level query parameters forwarded to the
	// RemoteClient. __systemProperties is reserved and rejected if the
	// caller sets it; __includeDeleted is forced to "true" by the pull
	// normalization step regardless of what the caller supplies.
	Parameters map[string]string

	// UpdatedAtLowerBound, when non-zero, filters to items whose
	// __updatedAt is >= this timestamp. PullRunner sets this internally
	// for incremental pulls; callers may also set it directly for
	// purge's "older than" use case.
	UpdatedAtLowerBound time.Time
}

// Clone returns a deep-enough copy of q for the engine to mutate safely
// (e.g. to inject __includeDeleted or override ordering) without touching
// the caller's Query.
func (q Query) Clone() Query {
	out := q
	out.Order = append([]OrderClause(nil), q.Order...)
	out.SelectFields = append([]string(nil), q.SelectFields...)
	out.Parameters = make(map[string]string, len(q.Parameters))
	for k, v := range q.Parameters {
		out.Parameters[k] = v
	}
	return out
}

// hasForbiddenSystemPropertiesParam reports whether Parameters contains a
// __systemProperties key under any case, which is forbidden.
func (q Query) hasForbiddenSystemPropertiesParam() bool {
	for k := range q.Parameters {
		if equalFoldASCII(k, "__systemProperties") {
			return true
		}
	}
	return false
}

// hasFalseIncludeDeletedParam reports whether Parameters explicitly sets
// __includeDeleted to a false-ish value, which is forbidden (pulls
// always force __includeDeleted=true).
func (q Query) hasFalseIncludeDeletedParam() bool {
	v, ok := q.Parameters["__includeDeleted"]
	if !ok {
		return false
	}
	return v == "false" || v == "0"
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// PullRequest bundles a pull's query with its optional incremental
// queryId, validated together.
type PullRequest struct {
	Query   Query
	QueryID string
}

// Validate applies the pre-flight checks a pull requires.
func (r PullRequest) Validate() error {
	if err := ValidateQueryID(r.QueryID); err != nil {
		return err
	}
	if len(r.Query.SelectFields) > 0 {
		return fmt.Errorf("%w: selectFields is not supported on a pull query", ErrInvalidParameter)
	}
	if r.Query.IncludeTotalCount {
		return fmt.Errorf("%w: includeTotalCount is not supported on a pull query", ErrInvalidParameter)
	}
	if r.QueryID != "" {
		if len(r.Query.Order) > 0 {
			return fmt.Errorf("%w: queryId cannot be combined with explicit ordering", ErrInvalidParameter)
		}
		if r.Query.FetchOffset != 0 {
			return fmt.Errorf("%w: queryId cannot be combined with a non-zero fetch offset", ErrInvalidParameter)
		}
	}
	if r.Query.hasForbiddenSystemPropertiesParam() {
		return fmt.Errorf("%w: __systemProperties is reserved", ErrInvalidParameter)
	}
	if r.Query.hasFalseIncludeDeletedParam() {
		return fmt.Errorf("%w: __includeDeleted cannot be set false on a pull", ErrInvalidParameter)
	}
	return nil
}
