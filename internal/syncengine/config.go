package syncengine

import "fmt"

// ConfigKeyType distinguishes the kinds of values stored in the reserved
// config table. It reserves ConfigKeyDeltaToken for the incremental-pull
// high-water mark; other values are free for embedder use.
type ConfigKeyType int

const (
	ConfigKeyDeltaToken ConfigKeyType = iota
	ConfigKeyUserDefined
)

// ConfigValue is a typed key used to store delta tokens and other
// per-(table, key) metadata.
type ConfigValue struct {
	ID      string
	Table   string
	KeyType ConfigKeyType
	Key     string
	Value   string
}

// deltaTokenID formats the composite id a delta token is stored under:
// "deltaToken|{table}|{queryId}".
func deltaTokenID(table, queryID string) string {
	return fmt.Sprintf("deltaToken|%s|%s", table, queryID)
}

// NewDeltaTokenConfigValue builds the ConfigValue row for persisting a
// delta token.
func NewDeltaTokenConfigValue(table, queryID, isoTimestamp string) ConfigValue {
	return ConfigValue{
		ID:      deltaTokenID(table, queryID),
		Table:   table,
		KeyType: ConfigKeyDeltaToken,
		Key:     queryID,
		Value:   isoTimestamp,
	}
}
