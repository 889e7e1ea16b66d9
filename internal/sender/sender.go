// Package sender implements the sender-side pipeline from spec.md §2:
// capture → partition → fingerprint diff → fallback decision → per-tile
// encode → frame serialization → send, driven by the periodic capture
// interval timer that spec.md §5 lists as one of the pipeline's four
// suspension points.
//
// Grounded on the teacher's internal/tile.Generate loop for the overall
// "partition work, dispatch to a bounded worker pool, collect results in
// submission order" shape (generator.go), adapted from a one-shot batch
// pyramid build to a recurring per-frame capture loop.
package sender

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pixeldelta/mirror/internal/capture"
	"github.com/pixeldelta/mirror/internal/codec"
	"github.com/pixeldelta/mirror/internal/connmgr"
	"github.com/pixeldelta/mirror/internal/fingerprint"
	"github.com/pixeldelta/mirror/internal/geom"
	"github.com/pixeldelta/mirror/internal/planner"
	"github.com/pixeldelta/mirror/internal/pool"
	"github.com/pixeldelta/mirror/internal/stats"
	"github.com/pixeldelta/mirror/internal/wire"
)

// Config holds the session-constant settings spec.md §6 lists for the
// sender side.
type Config struct {
	Tile              int
	FallbackThreshold float64
	CaptureInterval   time.Duration
	Workers           int // CPU-bound encode workers, spec.md §5 default 1
}

// Pipeline owns one sender session: the FingerprintCache, the Planner, a
// worker pool for tile/frame encoding, and the frame sequence counter.
// Exclusively owned by its own run goroutine, per spec.md §5's
// single-writer invariant.
type Pipeline struct {
	cfg   Config
	src   capture.Source
	tile  codec.TileCodec
	frame codec.FrameCodec
	mgr   *connmgr.Manager
	stats *stats.Recorder
	log   *zap.Logger

	grid    geom.Grid
	cache   *fingerprint.Cache
	planner *planner.Planner
	seq     uint32
}

// New builds a sender Pipeline for one session. w/h is the FrameSource's
// fixed geometry.
func New(cfg Config, src capture.Source, tileCodec codec.TileCodec, frameCodec codec.FrameCodec, mgr *connmgr.Manager, rec *stats.Recorder, log *zap.Logger) (*Pipeline, error) {
	w, h := src.Geometry()
	grid, err := geom.NewGrid(w, h, cfg.Tile)
	if err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}
	cache := fingerprint.New()
	return &Pipeline{
		cfg:     cfg,
		src:     src,
		tile:    tileCodec,
		frame:   frameCodec,
		mgr:     mgr,
		stats:   rec,
		log:     log,
		grid:    grid,
		cache:   cache,
		planner: planner.New(cache, cfg.FallbackThreshold),
	}, nil
}

// Reset invalidates the planner and resets the sequence counter, per
// spec.md §3's Lifecycle invariant for a fresh connection. Wired as the
// connmgr.Manager's on-connect hook.
func (p *Pipeline) Reset() {
	p.planner.Invalidate()
	p.seq = 0
}

// Resync forces the next frame to be a Keyframe without discarding the
// current sequence number, per an explicit client Resync request
// (spec.md §4.2 edge cases).
func (p *Pipeline) Resync() {
	p.planner.ForceKeyframeNext()
}

// HandleInbound decodes one client→server message and reacts to it:
// Resync forces a keyframe, Input is otherwise out of the core's concern
// (spec.md §1 explicitly excludes input-event forwarding from the core,
// beyond carrying the opaque payload).
func (p *Pipeline) HandleInbound(data []byte) {
	rec, err := wire.Read(data)
	if err != nil {
		p.log.Warn("sender: malformed inbound frame", zap.Error(err))
		return
	}
	switch v := rec.(type) {
	case wire.Resync:
		p.Resync()
	case wire.Input:
		// Opaque to the core; an app shell would forward this to its input
		// injector. Nothing here retains the payload, so return its
		// pool-backed buffer (wire.Read) immediately.
		pool.Put(v.Payload)
	}
}

// Run drives the capture loop until ctx is cancelled: on each tick it
// captures a frame, plans it, encodes the result and hands it to the
// connmgr.Manager for transmission.
func (p *Pipeline) Run(ctx context.Context) error {
	interval := p.cfg.CaptureInterval
	if interval <= 0 {
		interval = 66 * time.Millisecond // ~15fps default
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.captureAndSend(ctx); err != nil {
				return err
			}
		}
	}
}

func (p *Pipeline) captureAndSend(ctx context.Context) error {
	rgb, err := p.src.NextFrame(ctx)
	if err != nil {
		return fmt.Errorf("sender: capture: %w", err)
	}

	w, h := p.src.Geometry()
	decision := p.planner.Plan(p.grid, func(tx, ty int) []byte {
		rect := p.grid.TileAt(tx, ty)
		return geom.ExtractRGB(rgb, w, rect)
	})

	ts := uint32(time.Now().UnixMilli())
	switch decision.Kind {
	case planner.KindEmpty:
		p.emit(wire.Empty{Seq: p.seq, TS: ts}, wire.KindEmpty)

	case planner.KindKeyframe:
		payload, err := p.frame.Encode(rgb, w, h)
		if err != nil {
			p.log.Warn("sender: frame encode failed, forcing keyframe retry next frame", zap.Error(err))
			p.planner.Invalidate()
			p.stats.FramesDropped.Inc()
			return nil
		}
		p.emit(wire.Keyframe{Seq: p.seq, TS: ts, W: uint16(w), H: uint16(h), Tile: uint16(p.cfg.Tile), Payload: payload}, wire.KindKeyframe)

	case planner.KindDelta:
		tiles, ok := p.encodeTiles(rgb, w, decision.Changed)
		if !ok {
			// spec.md §4.2 failure policy: discard the partial delta,
			// invalidate the cache, force a keyframe on the next frame.
			p.planner.Invalidate()
			p.stats.FramesDropped.Inc()
			return nil
		}
		p.emit(wire.Delta{Seq: p.seq, TS: ts, Tiles: tiles}, wire.KindDelta)
	}

	p.seq++
	return nil
}

// encodeTiles runs one attempt per tile, per spec.md §4.2's no-retry
// discipline, optionally spread across p.cfg.Workers worker goroutines
// while preserving the caller's raster-order result slice so the
// FrameWriter emits tiles in the order the planner decided (spec.md §5:
// "out-of-order completion is not permitted").
func (p *Pipeline) encodeTiles(rgb []byte, frameW int, changed []planner.ChangedTile) ([]wire.TileRecord, bool) {
	out := make([]wire.TileRecord, len(changed))
	workers := p.cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	jobs := make(chan int, len(changed))
	var wg sync.WaitGroup
	var mu sync.Mutex
	failed := false

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				c := changed[i]
				tileRGB := geom.ExtractRGB(rgb, frameW, c.Rect)
				data, err := p.tile.Encode(tileRGB, c.Rect.W, c.Rect.H)
				pool.Put(tileRGB)
				if err != nil {
					mu.Lock()
					failed = true
					mu.Unlock()
					continue
				}
				out[i] = wire.TileRecord{
					TX: uint16(c.TX), TY: uint16(c.TY),
					TW: uint16(c.Rect.W), TH: uint16(c.Rect.H),
					Data: data,
				}
			}
		}()
	}
	for i := range changed {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if failed {
		return nil, false
	}
	return out, true
}

func (p *Pipeline) emit(rec wire.Record, kind wire.Kind) {
	data, err := wire.Encode(rec)
	if err != nil {
		p.log.Error("sender: encode wire record", zap.Error(err))
		return
	}
	if !p.mgr.Send(data, kind) {
		p.stats.FramesDropped.Inc()
		return
	}
	p.stats.FramesSent.WithLabelValues(kind.String()).Inc()
}
