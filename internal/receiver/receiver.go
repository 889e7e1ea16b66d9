// Package receiver implements the receiver-side pipeline from spec.md §2:
// frame deserialization → tile/frame decode → canvas apply → recovery
// request on anomalies.
package receiver

import (
	"time"

	"go.uber.org/zap"

	"github.com/pixeldelta/mirror/internal/canvas"
	"github.com/pixeldelta/mirror/internal/codec"
	"github.com/pixeldelta/mirror/internal/connmgr"
	"github.com/pixeldelta/mirror/internal/geom"
	"github.com/pixeldelta/mirror/internal/pool"
	"github.com/pixeldelta/mirror/internal/sequence"
	"github.com/pixeldelta/mirror/internal/stats"
	"github.com/pixeldelta/mirror/internal/wire"
)

// Config holds the session-constant settings the receiver needs: the
// session geometry and tile size advertised by the sender's first
// Keyframe govern canvas allocation, but the caller may also pre-size it
// when the geometry is known up front (e.g. a fixed demo).
type Config struct {
	Width, Height, Tile int
}

// Pipeline owns one receiver session: the Canvas and SequenceMonitor. It
// is exclusively owned by its own callback-invocation goroutine, per
// spec.md §5's single-writer invariant.
type Pipeline struct {
	tile  codec.TileCodec
	frame codec.FrameCodec
	mgr   *connmgr.Manager
	stats *stats.Recorder
	log   *zap.Logger

	canvas *canvas.Canvas
	seqMon *sequence.Monitor
	grid   geom.Grid
	tileSz int

	onSnapshot func([]byte, int, int)
}

// New builds a receiver Pipeline. cfg.Width/Height/Tile may be zero if
// unknown ahead of the first Keyframe; Canvas allocates itself lazily from
// the first Keyframe's advertised geometry in that case.
func New(cfg Config, tileCodec codec.TileCodec, frameCodec codec.FrameCodec, mgr *connmgr.Manager, rec *stats.Recorder, log *zap.Logger, onSnapshot func(rgb []byte, w, h int)) *Pipeline {
	p := &Pipeline{
		tile:       tileCodec,
		frame:      frameCodec,
		mgr:        mgr,
		stats:      rec,
		log:        log,
		seqMon:     sequence.New(),
		tileSz:     cfg.Tile,
		onSnapshot: onSnapshot,
	}
	if cfg.Width > 0 && cfg.Height > 0 {
		p.canvas = canvas.New(cfg.Width, cfg.Height, cfg.Tile)
		if cfg.Tile > 0 {
			if g, err := geom.NewGrid(cfg.Width, cfg.Height, cfg.Tile); err == nil {
				p.grid = g
			}
		}
	}
	return p
}

// Reset returns the session to its fresh-connection state, per spec.md
// §3's Lifecycle invariant. Wired as the connmgr.Manager's on-connect
// hook.
func (p *Pipeline) Reset() {
	p.seqMon.Reset()
	if p.canvas != nil {
		p.canvas.Reset()
	}
}

// sendResync requests a fresh Keyframe and counts it in stats.
func (p *Pipeline) sendResync() {
	data, err := wire.Encode(wire.Resync{})
	if err != nil {
		p.log.Error("receiver: encode resync", zap.Error(err))
		return
	}
	p.mgr.Send(data, wire.KindResync)
	if p.stats != nil {
		p.stats.ResyncTotal.Inc()
	}
}

// HandleInbound processes one server→client message: parses the wire
// frame, runs it through the SequenceMonitor, applies it to the Canvas,
// reports latency, and publishes a snapshot to the registered ViewSink
// callback.
func (p *Pipeline) HandleInbound(data []byte) {
	rec, err := wire.Read(data)
	if err != nil {
		p.log.Warn("receiver: malformed frame, requesting resync", zap.Error(err))
		p.sendResync()
		return
	}

	seq, ts, isDelta := frameMeta(rec)
	outcome := p.seqMon.Observe(seq, isDelta)
	if outcome == sequence.OutcomeDiscard {
		return
	}
	resynced := false
	if outcome == sequence.OutcomeAcceptWithResync {
		p.sendResync()
		resynced = true
	}

	if p.mgr != nil {
		nowMs := uint32(time.Now().UnixMilli())
		p.mgr.Latency(nowMs, ts)
	}

	switch v := rec.(type) {
	case wire.Empty:
		// No canvas change.
	case wire.Keyframe:
		p.applyKeyframe(v)
	case wire.Delta:
		p.applyDelta(v, resynced)
	}
}

func frameMeta(rec wire.Record) (seq, ts uint32, isDelta bool) {
	switch v := rec.(type) {
	case wire.Empty:
		return v.Seq, v.TS, false
	case wire.Keyframe:
		return v.Seq, v.TS, false
	case wire.Delta:
		return v.Seq, v.TS, true
	default:
		return 0, 0, false
	}
}

func (p *Pipeline) applyKeyframe(kf wire.Keyframe) {
	rgb, w, h, err := p.frame.Decode(kf.Payload)
	pool.Put(kf.Payload)
	if err != nil {
		p.log.Warn("receiver: keyframe decode failed, requesting resync", zap.Error(err))
		p.sendResync()
		return
	}
	if err := codec.CheckGeometry(w, h, int(kf.W), int(kf.H)); err != nil {
		p.log.Warn("receiver: keyframe geometry mismatch, requesting resync", zap.Error(err))
		p.sendResync()
		return
	}

	if p.canvas == nil {
		p.canvas = canvas.New(int(kf.W), int(kf.H), int(kf.Tile))
		p.tileSz = int(kf.Tile)
		if g, err := geom.NewGrid(int(kf.W), int(kf.H), int(kf.Tile)); err == nil {
			p.grid = g
		}
	}

	if err := p.canvas.ApplyKeyframe(rgb, w, h); err != nil {
		p.log.Warn("receiver: apply keyframe failed, requesting resync", zap.Error(err))
		p.sendResync()
		return
	}
	p.publish()
}

func (p *Pipeline) applyDelta(d wire.Delta, resyncAlreadySent bool) {
	if !p.canvas.Ready() {
		// spec.md §4.5: a Delta before the first Keyframe is discarded and
		// must provoke exactly one Resync. HandleInbound's sequence-gap
		// check may already have sent one for this same frame; only send a
		// second one here if it didn't.
		if !resyncAlreadySent {
			p.sendResync()
		}
		return
	}

	if err := p.canvas.BeginDelta(); err != nil {
		p.sendResync()
		return
	}

	for _, t := range d.Tiles {
		rgb, w, h, err := p.tile.Decode(t.Data)
		pool.Put(t.Data)
		if err != nil {
			p.log.Warn("receiver: tile decode failed, rewinding delta", zap.Error(err))
			p.canvas.RewindDelta()
			p.sendResync()
			return
		}
		if err := codec.CheckGeometry(w, h, int(t.TW), int(t.TH)); err != nil {
			p.log.Warn("receiver: tile geometry mismatch, rewinding delta", zap.Error(err))
			p.canvas.RewindDelta()
			p.sendResync()
			return
		}
		rect := p.rectFor(int(t.TX), int(t.TY), int(t.TW), int(t.TH))
		if err := p.canvas.PasteTile(rect, rgb); err != nil {
			p.log.Warn("receiver: tile paste failed, rewinding delta", zap.Error(err))
			p.canvas.RewindDelta()
			p.sendResync()
			return
		}
	}
	p.canvas.CommitDelta()
	p.publish()
}

// rectFor recovers the destination rectangle for a tile record. When the
// grid is known (the usual case, set from the session's first Keyframe)
// it uses the grid's own ragged-edge geometry; otherwise it falls back to
// the wire-declared (tw, th), which the caller has already verified.
func (p *Pipeline) rectFor(tx, ty, tw, th int) geom.Rect {
	if p.grid.Tile != 0 {
		return p.grid.TileAt(tx, ty)
	}
	tile := p.tileSz
	return geom.Rect{X: tx * tile, Y: ty * tile, W: tw, H: th}
}

// publish hands the current canvas contents to the registered ViewSink.
// The snapshot buffer is pool-backed (internal/pool) and is returned to the
// pool once the callback returns, so onSnapshot must consume it (or copy
// out what it needs) synchronously rather than retain the slice — the one
// ViewSink this repository ships, cmd/mirror-client's PNG snapshotter,
// does exactly that.
func (p *Pipeline) publish() {
	if p.onSnapshot == nil {
		return
	}
	w, h := p.canvas.Dimensions()
	snap := p.canvas.Snapshot()
	p.onSnapshot(snap, w, h)
	canvas.ReleaseSnapshot(snap)
}
