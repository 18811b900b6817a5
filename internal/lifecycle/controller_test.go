package lifecycle

import "testing"

func TestNewControllerStartsArmed(t *testing.T) {
	c := NewController()
	if !c.StreamEnabled() {
		t.Fatal("expected StreamEnabled at construction")
	}
	if c.FirstSnapshotSeen() {
		t.Fatal("expected FirstSnapshotSeen to start clear")
	}
	if c.IsShutdown() {
		t.Fatal("expected IsShutdown to start false")
	}
}

func TestMarkFirstSnapshotLatches(t *testing.T) {
	c := NewController()
	c.MarkFirstSnapshot()
	c.MarkFirstSnapshot()
	if !c.FirstSnapshotSeen() {
		t.Fatal("expected FirstSnapshotSeen to latch true")
	}
}

func TestShutdownClosesGateAndContext(t *testing.T) {
	c := NewController()
	c.Shutdown()

	if c.StreamEnabled() {
		t.Fatal("expected StreamEnabled to clear on Shutdown")
	}
	if !c.IsShutdown() {
		t.Fatal("expected IsShutdown to be true")
	}
	select {
	case <-c.Context().Done():
	default:
		t.Fatal("expected Context to be cancelled after Shutdown")
	}
}
