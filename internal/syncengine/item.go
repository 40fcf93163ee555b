package syncengine

// Item is an opaque mapping from field name to JSON-compatible value. Every
// item carries a string "id"; system fields (__version, __updatedAt,
// __deleted, __createdAt) are optional and preserved verbatim when present.
type Item map[string]any

// System property field names, as defined by the wire contract.
const (
	SystemFieldID        = "id"
	SystemFieldVersion   = "__version"
	SystemFieldUpdatedAt = "__updatedAt"
	SystemFieldCreatedAt = "__createdAt"
	SystemFieldDeleted   = "__deleted"
)

// SystemProperty names one of the server-managed metadata fields the
// DataSource can be asked to preserve for a given table.
type SystemProperty string

const (
	SystemPropertyVersion   SystemProperty = "version"
	SystemPropertyCreatedAt SystemProperty = "createdAt"
	SystemPropertyUpdatedAt SystemProperty = "updatedAt"
	SystemPropertyDeleted   SystemProperty = "deleted"
)

// SystemPropertySet is the set of system properties a table's DataSource
// implementation knows how to preserve. The zero value behaves as
// {SystemPropertyVersion}, matching the DataSource.SystemPropertiesForTable
// default.
type SystemPropertySet map[SystemProperty]bool

// NewSystemPropertySet builds a set from the given properties.
func NewSystemPropertySet(props ...SystemProperty) SystemPropertySet {
	set := make(SystemPropertySet, len(props))
	for _, p := range props {
		set[p] = true
	}
	return set
}

// Has reports whether prop is a member of the set.
func (s SystemPropertySet) Has(prop SystemProperty) bool {
	if s == nil {
		return prop == SystemPropertyVersion
	}
	return s[prop]
}

// ID returns the item's "id" field as a string, or "" if absent or not a
// string.
func (it Item) ID() string {
	v, _ := it[SystemFieldID].(string)
	return v
}

// WithID returns a shallow copy of it with "id" set to id.
func (it Item) WithID(id string) Item {
	out := it.Clone()
	out[SystemFieldID] = id
	return out
}

// Deleted reports whether the item carries a truthy __deleted system field.
func (it Item) Deleted() bool {
	v, ok := it[SystemFieldDeleted].(bool)
	return ok && v
}

// Clone returns a shallow copy of the item. Values are not deep-copied;
// callers that mutate nested maps/slices must clone those themselves.
func (it Item) Clone() Item {
	if it == nil {
		return Item{}
	}
	out := make(Item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

// StripSystemProperties returns a copy of it with every system field
// removed except those named in keep. This is used when cancelling a
// pending operation with a user-supplied "corrected" item,
// which must not let stale server metadata leak back into the local store.
func (it Item) StripSystemProperties(keep ...string) Item {
	keepSet := make(map[string]bool, len(keep))
	for _, k := range keep {
		keepSet[k] = true
	}
	out := it.Clone()
	for _, field := range []string{SystemFieldVersion, SystemFieldUpdatedAt, SystemFieldCreatedAt, SystemFieldDeleted} {
		if !keepSet[field] {
			delete(out, field)
		}
	}
	return out
}
