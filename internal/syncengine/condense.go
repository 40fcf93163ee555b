package syncengine

// CondenseAction is the decision the queue makes when a new local mutation
// targets an item that already has a pending Operation.
type CondenseAction int

const (
	// AddNew creates a fresh operation with the next operationId and
	// appends it; there was no pending operation for this item.
	AddNew CondenseAction = iota

	// Keep retains the existing operation unchanged (the local store is
	// still updated with the new data; only the queue entry is
	// unaffected).
	Keep

	// ToDelete rewrites the existing operation's type to Delete,
	// preserving its operationId.
	ToDelete

	// ToDeleteAsDiscard removes the existing operation entirely without
	// ever pushing it: an Insert immediately followed by a Delete
	// cancels out, since the server never learned of the item.
	ToDeleteAsDiscard

	// NotSupported rejects the mutation outright (ErrInvalidAction).
	NotSupported
)

// String renders the condense action for logging.
func (a CondenseAction) String() string {
	switch a {
	case AddNew:
		return "add-new"
	case Keep:
		return "keep"
	case ToDelete:
		return "to-delete"
	case ToDeleteAsDiscard:
		return "to-delete-as-discard"
	case NotSupported:
		return "not-supported"
	default:
		return "unknown"
	}
}

// condenseTable encodes the condensation matrix: rows are the
// existing pending operation's type, columns are the new action. Absence
// of a pending operation is handled separately in Condense, since there is
// no "existing.type" to index on in that case.
var condenseTable = map[OperationType]map[OperationType]CondenseAction{
	OperationInsert: {
		OperationInsert: NotSupported,
		OperationUpdate: Keep,
		OperationDelete: ToDeleteAsDiscard,
	},
	OperationUpdate: {
		OperationInsert: NotSupported,
		OperationUpdate: Keep,
		OperationDelete: ToDelete,
	},
	OperationDelete: {
		OperationInsert: NotSupported,
		OperationUpdate: NotSupported,
		OperationDelete: NotSupported,
	},
}

// Condense decides the CondenseAction for a newAction mutation against an
// existing pending operation. existing may be nil, meaning there is no
// pending operation for this (table, itemId) yet, always AddNew in that
// case.
func Condense(existing *Operation, newAction OperationType) CondenseAction {
	if existing == nil {
		return AddNew
	}
	row, ok := condenseTable[existing.Type]
	if !ok {
		return NotSupported
	}
	action, ok := row[newAction]
	if !ok {
		return NotSupported
	}
	return action
}
