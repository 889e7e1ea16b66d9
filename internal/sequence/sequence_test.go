package sequence

import "testing"

func TestMonitor_FirstFrameAlwaysAccepted(t *testing.T) {
	m := New()
	if got := m.Observe(5, false); got != OutcomeAccept {
		t.Fatalf("got %v, want OutcomeAccept", got)
	}
}

func TestMonitor_InOrderAccepted(t *testing.T) {
	m := New()
	m.Observe(0, false)
	if got := m.Observe(1, false); got != OutcomeAccept {
		t.Fatalf("got %v, want OutcomeAccept", got)
	}
}

func TestMonitor_DuplicateOrReorderDiscarded(t *testing.T) {
	m := New()
	m.Observe(0, false)
	m.Observe(1, false)
	if got := m.Observe(0, false); got != OutcomeDiscard {
		t.Fatalf("got %v, want OutcomeDiscard", got)
	}
}

func TestMonitor_GapOnDeltaTriggersResync(t *testing.T) {
	m := New()
	m.Observe(0, false) // keyframe seq 0
	if got := m.Observe(2, true); got != OutcomeAcceptWithResync {
		t.Fatalf("got %v, want OutcomeAcceptWithResync", got)
	}
}

func TestMonitor_GapOnNonDeltaAcceptsWithoutResync(t *testing.T) {
	m := New()
	m.Observe(0, false)
	if got := m.Observe(2, false); got != OutcomeAccept {
		t.Fatalf("got %v, want OutcomeAccept", got)
	}
}

func TestMonitor_Reset(t *testing.T) {
	m := New()
	m.Observe(5, false)
	m.Reset()
	if got := m.Observe(0, false); got != OutcomeAccept {
		t.Fatalf("got %v after reset, want OutcomeAccept", got)
	}
}

func TestMonitor_WrapAroundIsInOrderNotADiscard(t *testing.T) {
	m := New()
	m.Observe(^uint32(0), false) // expected becomes 0 after wraparound
	if got := m.Observe(0, false); got != OutcomeAccept {
		t.Fatalf("got %v, want OutcomeAccept across wraparound", got)
	}
}
