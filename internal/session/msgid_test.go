package session

import "testing"

func TestMsgID(t *testing.T) {
	ids := newMsgIDs()

	if id := ids.next(); id != 1 {
		t.Fatalf("Expected 1, got %d", id)
	}
	if id := ids.next(); id != 2 {
		t.Fatalf("Expected 2, got %d", id)
	}

	ids.currentID = 65535
	if id := ids.next(); id != 65535 {
		t.Fatalf("Expected 65535, got %d", id)
	}
	if id := ids.next(); id != 1 {
		t.Fatalf("Expected 1 after overflow, got %d", id)
	}
}
