package broker

import "testing"

func TestInterruptSetOnce(t *testing.T) {
	i := NewInterrupt()
	if i.Raised() {
		t.Fatalf("raised at start")
	}
	i.Set()
	i.Set()
	if !i.Raised() {
		t.Fatalf("not raised after Set")
	}
	select {
	case <-i.Done():
	default:
		t.Fatalf("Done not closed")
	}
}

func TestStopLeavesFlagDown(t *testing.T) {
	i := NotifyInterrupt()
	i.Stop()
	i.Stop()
	if i.Raised() {
		t.Fatalf("Stop raised the flag")
	}
}
