// Package sequence implements the receiver's SequenceMonitor from spec.md
// §4.6: tracking the expected frame sequence number across reordering,
// duplication and gaps in a disposable-frame stream.
package sequence

// Outcome tells the receiver pipeline what to do with an incoming frame
// before it ever reaches Canvas.Apply*.
type Outcome int

const (
	// OutcomeAccept means the frame should be applied normally.
	OutcomeAccept Outcome = iota
	// OutcomeDiscard means the frame is a stale reorder/duplicate and must
	// not touch the canvas.
	OutcomeDiscard
	// OutcomeAcceptWithResync means the frame should be applied, but only
	// after a Resync is sent first — a gap was detected and, if this frame
	// is a Delta, it may reference canvas state that never arrived.
	OutcomeAcceptWithResync
)

// Monitor tracks expected_seq per spec.md §4.6. The zero value is a fresh
// monitor with no expectation set, the same state New returns.
type Monitor struct {
	expected     uint32
	haveExpected bool
}

// New creates a Monitor with no expectation yet set — the first frame
// observed is always accepted and sets the baseline.
func New() *Monitor {
	return &Monitor{}
}

// Reset returns the monitor to its fresh-session state, per spec.md §3's
// Lifecycle invariant (a fresh connection resets sequence expectation).
func (m *Monitor) Reset() {
	m.expected = 0
	m.haveExpected = false
}

// Observe records one incoming frame's sequence number and reports what
// the caller should do before applying it. isDelta tells Observe whether a
// detected gap requires a pre-emptive Resync (only Deltas can reference
// canvas state that never arrived).
func (m *Monitor) Observe(seq uint32, isDelta bool) Outcome {
	if !m.haveExpected {
		m.expected = seq + 1
		m.haveExpected = true
		return OutcomeAccept
	}

	if seq == m.expected {
		m.expected = seq + 1
		return OutcomeAccept
	}

	// Signed 32-bit delta handles u32 wraparound: seq - expected, interpreted
	// as a two's-complement distance, is negative for "already behind" and
	// positive for "a gap ahead".
	delta := int32(seq - m.expected)
	if delta < 0 {
		return OutcomeDiscard
	}

	m.expected = seq + 1
	if isDelta {
		return OutcomeAcceptWithResync
	}
	return OutcomeAccept
}
