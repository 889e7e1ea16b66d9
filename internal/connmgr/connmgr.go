// Package connmgr implements the ConnectionManager from spec.md §4.7: the
// capability set (start, stop, send, on_status, on_latency) shared by both
// sides of a session, the client-side exponential-backoff reconnect
// policy, and the backpressure-aware outbound queue.
//
// Grounded on the domain stack's cenkalti/backoff/v4 dependency for the
// reconnect delay sequence, and on framegrace-texelation's connection
// reactor (other_examples) for the read-loop/write-queue split: one
// goroutine drains incoming messages, a mutex-guarded queue holds
// outbound frames, and writes are serialized onto the transport.
package connmgr

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pixeldelta/mirror/internal/transport"
	"github.com/pixeldelta/mirror/internal/wire"
)

// Status is one of spec.md §4.7's connection status tags.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// OutboundHighWater is spec.md §4.7's default backpressure threshold.
const OutboundHighWater = 8

// ConnectTimeout is spec.md §5's default CONNECT_TIMEOUT.
const ConnectTimeout = 10 * time.Second

const (
	// DelayInitial is spec.md §4.7's default starting reconnect delay.
	DelayInitial = 1 * time.Second
	// DelayMax is spec.md §4.7's default reconnect delay ceiling.
	DelayMax = 30 * time.Second
)

// outboundFrame is one queued message awaiting the write loop, tagged with
// enough of wire.Kind to apply the backpressure drop policy.
type outboundFrame struct {
	data []byte
	kind wire.Kind
}

// droppable reports whether spec.md §4.7 permits dropping this kind under
// backpressure — everything except Keyframe.
func droppable(k wire.Kind) bool { return k != wire.KindKeyframe }

// Dialer opens a fresh transport connection, used by client-side managers
// to drive reconnection.
type Dialer func(ctx context.Context) (transport.Conn, error)

// Manager is the ConnectionManager. Construct with NewClient for a
// reconnecting client session, or NewServer to wrap one already-accepted
// server-side connection.
type Manager struct {
	dial      Dialer // nil for server-side managers: no reconnect
	onConn    func(transport.Conn)
	onRecv    func([]byte)
	onStat    func(Status)
	onLat     func(int64)
	onDelay   func(time.Duration)
	highWater int

	mu      sync.Mutex
	conn    transport.Conn
	queue   []outboundFrame
	queueCh chan struct{} // signaled whenever the queue gains an item

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Manager at construction.
type Option func(*Manager)

// WithOnRecv registers the callback invoked with each received message's
// raw bytes, on the manager's own read-loop goroutine.
func WithOnRecv(fn func([]byte)) Option { return func(m *Manager) { m.onRecv = fn } }

// WithOnStatus registers spec.md §4.7's on_status callback.
func WithOnStatus(fn func(Status)) Option { return func(m *Manager) { m.onStat = fn } }

// WithOnLatency registers spec.md §4.7's on_latency callback.
func WithOnLatency(fn func(int64)) Option { return func(m *Manager) { m.onLat = fn } }

// WithOnReconnectDelay registers a hook invoked whenever the client
// reconnect loop's backoff delay changes — after each failed dial and on
// reset to DelayInitial following a successful connect — so a
// stats.Recorder can keep its ReconnectDelayMs gauge (SPEC_FULL.md §4.8)
// current. No-op for a server-side Manager, which never reconnects.
func WithOnReconnectDelay(fn func(time.Duration)) Option { return func(m *Manager) { m.onDelay = fn } }

// WithHighWater overrides OutboundHighWater.
func WithHighWater(n int) Option { return func(m *Manager) { m.highWater = n } }

// WithOnConnect registers a hook invoked once per successful (re)connect,
// before any frames are sent — used by the sender pipeline to invalidate
// its fingerprint cache and force a fresh keyframe.
func WithOnConnect(fn func(transport.Conn)) Option { return func(m *Manager) { m.onConn = fn } }

func newManager(opts []Option) *Manager {
	m := &Manager{highWater: OutboundHighWater, queueCh: make(chan struct{}, 1)}
	for _, o := range opts {
		o(m)
	}
	return m
}

// NewClient creates a reconnecting client-side Manager. Start begins the
// connect-retry loop immediately.
func NewClient(dial Dialer, opts ...Option) *Manager {
	m := newManager(opts)
	m.dial = dial
	return m
}

// NewServer wraps one already-accepted server-side connection. There is no
// reconnect: a TransportClosed error here triggers session teardown, per
// spec.md §7.
func NewServer(conn transport.Conn, opts ...Option) *Manager {
	m := newManager(opts)
	m.conn = conn
	return m
}

func (m *Manager) setStatus(s Status) {
	if m.onStat != nil {
		m.onStat(s)
	}
}

// Start begins serving the connection on a background goroutine and
// returns immediately. For a client Manager that goroutine runs the
// reconnect loop until ctx is done or Stop is called; for a server Manager
// it serves the wrapped connection once and exits when it closes.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		if m.dial != nil {
			m.runClient(ctx)
		} else {
			m.runServer(ctx)
		}
	}()
}

func (m *Manager) runServer(ctx context.Context) {
	m.setStatus(StatusConnected)
	if m.onConn != nil {
		m.onConn(m.conn)
	}
	m.serveOneConnection(ctx, m.conn)
	m.setStatus(StatusDisconnected)
}

func (m *Manager) runClient(ctx context.Context) {
	delay := DelayInitial
	m.reportDelay(delay)
	for {
		select {
		case <-ctx.Done():
			m.setStatus(StatusDisconnected)
			return
		default:
		}

		m.setStatus(StatusConnecting)
		dialCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
		conn, err := m.dial(dialCtx)
		cancel()
		if err != nil {
			m.setStatus(StatusFailed)
			if !sleepOrDone(ctx, delay) {
				m.setStatus(StatusDisconnected)
				return
			}
			delay = nextDelay(delay)
			m.reportDelay(delay)
			continue
		}

		delay = DelayInitial
		m.reportDelay(delay)
		m.mu.Lock()
		m.conn = conn
		m.mu.Unlock()
		m.setStatus(StatusConnected)
		if m.onConn != nil {
			m.onConn(conn)
		}

		m.serveOneConnection(ctx, conn)

		select {
		case <-ctx.Done():
			m.setStatus(StatusDisconnected)
			return
		default:
		}
		// TransportClosed: reconnect per spec.md §7, starting the backoff
		// sequence fresh from DelayInitial since this was a clean connect.
		m.setStatus(StatusDisconnected)
		if !sleepOrDone(ctx, delay) {
			return
		}
		delay = nextDelay(delay)
		m.reportDelay(delay)
	}
}

// reportDelay invokes the on_reconnect_delay hook, if registered.
func (m *Manager) reportDelay(d time.Duration) {
	if m.onDelay != nil {
		m.onDelay(d)
	}
}

// nextDelay applies cenkalti/backoff/v4's exponential policy manually,
// since spec.md §4.7 needs explicit control over the reset-on-success and
// double-on-failure transitions rather than backoff.Retry's black-box
// retry loop.
func nextDelay(delay time.Duration) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     delay,
		Multiplier:          2,
		RandomizationFactor: 0,
		MaxInterval:         DelayMax,
		MaxElapsedTime:      0,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	// The first NextBackOff after Reset returns InitialInterval itself
	// (the current delay); the second is the doubled, capped value.
	b.NextBackOff()
	next := b.NextBackOff()
	if next > DelayMax {
		return DelayMax
	}
	return next
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// serveOneConnection runs the read loop and write loop for one live
// connection until it closes or ctx is cancelled.
func (m *Manager) serveOneConnection(ctx context.Context, conn transport.Conn) {
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if m.onRecv != nil {
				m.onRecv(data)
			}
		}
	}()

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		m.writeLoop(ctx, conn)
	}()

	select {
	case <-readDone:
	case <-writeDone:
	case <-ctx.Done():
	}
	_ = conn.Close()
	<-readDone
	<-writeDone
}

func (m *Manager) writeLoop(ctx context.Context, conn transport.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.queueCh:
		}
		for {
			frame, ok := m.dequeue()
			if !ok {
				break
			}
			if err := conn.WriteMessage(frame.data); err != nil {
				return
			}
		}
	}
}

// Dequeue removes and returns the oldest queued outbound frame. Exposed
// alongside Send/QueueDepth for callers or tests driving the write side
// without going through Start's built-in write loop.
func (m *Manager) Dequeue() (data []byte, kind wire.Kind, ok bool) {
	f, ok := m.dequeue()
	return f.data, f.kind, ok
}

func (m *Manager) dequeue() (outboundFrame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return outboundFrame{}, false
	}
	f := m.queue[0]
	m.queue = m.queue[1:]
	return f, true
}

// Send enqueues a wire-encoded frame for the write loop, applying spec.md
// §4.7's backpressure policy: past OutboundHighWater queued frames, the
// oldest droppable (non-Keyframe) entry is evicted to make room. If no
// entry is droppable, the new frame is itself dropped unless it is a
// Keyframe. Returns whether the frame was queued (false means dropped).
func (m *Manager) Send(data []byte, kind wire.Kind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) >= m.highWater {
		evicted := false
		for i, f := range m.queue {
			if droppable(f.kind) {
				m.queue = append(m.queue[:i], m.queue[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted && kind != wire.KindKeyframe {
			return false
		}
	}

	m.queue = append(m.queue, outboundFrame{data: data, kind: kind})
	select {
	case m.queueCh <- struct{}{}:
	default:
	}
	return true
}

// QueueDepth reports the number of frames currently queued, for metrics
// and tests.
func (m *Manager) QueueDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Stop is idempotent: it cancels pending I/O, releases the transport and
// transitions to disconnected. A second call is a no-op.
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.cancel = nil
	if m.done != nil {
		<-m.done
	}
}

// Latency reports now_ms - ts_ms for a frame whose timestamp was just
// observed, and invokes on_latency.
func (m *Manager) Latency(nowMs, tsMs uint32) {
	if m.onLat == nil {
		return
	}
	m.onLat(int64(int32(nowMs - tsMs)))
}
