package dispatch

import "testing"

func TestRegisterSupersedesOldSession(t *testing.T) {
	r := NewRegistry()
	r.Register("captain-1", "conn-a")
	r.Register("captain-1", "conn-b")

	conn, ok := r.Lookup("captain-1")
	if !ok || conn != "conn-b" {
		t.Fatalf("expected conn-b, got %q ok=%v", conn, ok)
	}
}

func TestRegisterReportsSupersededSession(t *testing.T) {
	r := NewRegistry()
	if prev, superseded := r.Register("captain-1", "conn-a"); superseded || prev != "" {
		t.Fatalf("first register should not supersede, got %q %v", prev, superseded)
	}
	if prev, superseded := r.Register("captain-1", "conn-b"); !superseded || prev != "conn-a" {
		t.Fatalf("reconnect should report conn-a superseded, got %q %v", prev, superseded)
	}
	// after a full disconnect the next session counts as fresh again
	r.Unregister("conn-b")
	if _, superseded := r.Register("captain-1", "conn-c"); superseded {
		t.Fatal("register after unregister should not supersede")
	}
}

func TestStaleUnregisterDoesNotClobberReconnect(t *testing.T) {
	r := NewRegistry()
	r.Register("captain-1", "conn-a")
	r.Register("captain-1", "conn-b") // reconnect

	// late disconnect from the superseded session
	if _, removed := r.Unregister("conn-a"); removed {
		t.Fatal("superseded connection should already be gone")
	}
	conn, ok := r.Lookup("captain-1")
	if !ok || conn != "conn-b" {
		t.Fatalf("reconnect mapping clobbered: %q ok=%v", conn, ok)
	}
}

func TestUnregisterIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Register("captain-1", "conn-a")

	id, removed := r.Unregister("conn-a")
	if !removed || id != "captain-1" {
		t.Fatalf("expected captain-1 removed, got %q %v", id, removed)
	}
	if _, removed := r.Unregister("conn-a"); removed {
		t.Fatal("second unregister should be a no-op")
	}
	if _, ok := r.Lookup("captain-1"); ok {
		t.Fatal("identity should be unmapped after unregister")
	}
}
