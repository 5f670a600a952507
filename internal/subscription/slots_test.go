package subscription

import (
	"errors"
	"testing"
)

func TestTable(t *testing.T) {
	table := NewTable(2)
	if table.Capacity() != 2 || table.Used() != 0 {
		t.Fatalf("fresh table capacity=%d used=%d", table.Capacity(), table.Used())
	}
	if _, ok := table.Lookup(1); ok {
		t.Error("lookup on empty table succeeded")
	}

	if err := table.Bind(1, "a"); err != nil {
		t.Fatal(err)
	}
	if err := table.Bind(2, "b"); err != nil {
		t.Fatal(err)
	}
	if err := table.Bind(1, "a2"); err != nil {
		t.Errorf("rebinding an existing ID must not need a slot: %v", err)
	}
	if err := table.Bind(3, "c"); !errors.Is(err, ErrNoFreeSlot) {
		t.Errorf("expected ErrNoFreeSlot, got %v", err)
	}
	if err := table.Bind(0, "zero"); err == nil {
		t.Error("topic ID 0 accepted")
	}

	slot, ok := table.Lookup(1)
	if !ok || slot.TopicName != "a2" {
		t.Errorf("Lookup(1) = %+v, %v", slot, ok)
	}

	table.Reset()
	if table.Used() != 0 || table.Capacity() != 2 {
		t.Errorf("after reset capacity=%d used=%d", table.Capacity(), table.Used())
	}
}
