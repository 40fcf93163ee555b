package syncengine

import "testing"

func TestCondenseNoExisting(t *testing.T) {
	if got := Condense(nil, OperationInsert); got != AddNew {
		t.Errorf("Condense(nil, insert) = %v, want AddNew", got)
	}
	if got := Condense(nil, OperationDelete); got != AddNew {
		t.Errorf("Condense(nil, delete) = %v, want AddNew", got)
	}
}

func TestCondenseMatrix(t *testing.T) {
	cases := []struct {
		existing OperationType
		action   OperationType
		want     CondenseAction
	}{
		{OperationInsert, OperationInsert, NotSupported},
		{OperationInsert, OperationUpdate, Keep},
		{OperationInsert, OperationDelete, ToDeleteAsDiscard},
		{OperationUpdate, OperationInsert, NotSupported},
		{OperationUpdate, OperationUpdate, Keep},
		{OperationUpdate, OperationDelete, ToDelete},
		{OperationDelete, OperationInsert, NotSupported},
		{OperationDelete, OperationUpdate, NotSupported},
		{OperationDelete, OperationDelete, NotSupported},
	}
	for _, c := range cases {
		existing := &Operation{Type: c.existing}
		if got := Condense(existing, c.action); got != c.want {
			t.Errorf("Condense(existing=%v, action=%v) = %v, want %v", c.existing, c.action, got, c.want)
		}
	}
}
