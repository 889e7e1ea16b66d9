// Command mirror-client connects to a mirror-server, reconstructs the
// canvas, and periodically writes it out as a PNG snapshot — a minimal
// ViewSink standing in for a real desktop or browser-canvas renderer,
// which spec.md §1 places out of scope.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pixeldelta/mirror/internal/codec"
	"github.com/pixeldelta/mirror/internal/connmgr"
	"github.com/pixeldelta/mirror/internal/receiver"
	"github.com/pixeldelta/mirror/internal/stats"
	"github.com/pixeldelta/mirror/internal/transport"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	var (
		url              string
		snapshotDir      string
		snapshotInterval int
	)

	flag.StringVar(&url, "url", "ws://127.0.0.1:8765/mirror", "mirror-server websocket URL")
	flag.StringVar(&snapshotDir, "snapshot-dir", "", "Directory to write periodic canvas PNG snapshots (disabled if empty)")
	flag.IntVar(&snapshotInterval, "snapshot-interval", 2000, "Snapshot interval in milliseconds")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: mirror-client [flags]\n\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if snapshotDir != "" {
		if err := os.MkdirAll(snapshotDir, 0o755); err != nil {
			logger.Fatal("creating snapshot dir", zap.Error(err))
		}
	}

	reg := prometheus.NewRegistry()
	rec := stats.New(reg, "mirror", "client")

	tileCodec := codec.NewWebPTileCodec()
	frameCodec := codec.NewJPEGFrameCodec()

	snap := newSnapshotter(snapshotDir, time.Duration(snapshotInterval)*time.Millisecond, logger)

	var pipeline *receiver.Pipeline
	mgr := connmgr.NewClient(
		func(ctx context.Context) (transport.Conn, error) { return transport.Dial(ctx, url) },
		connmgr.WithOnStatus(func(s connmgr.Status) {
			logger.Info("connection status", zap.String("status", s.String()))
		}),
		connmgr.WithOnLatency(func(ms int64) {
			logger.Debug("latency", zap.Int64("ms", ms))
			rec.LastLatencyMs.Set(float64(ms))
		}),
		connmgr.WithOnReconnectDelay(func(d time.Duration) {
			rec.ReconnectDelayMs.Set(float64(d.Milliseconds()))
		}),
		connmgr.WithOnRecv(func(data []byte) { pipeline.HandleInbound(data) }),
		connmgr.WithOnConnect(func(transport.Conn) { pipeline.Reset() }),
	)

	pipeline = receiver.New(receiver.Config{}, tileCodec, frameCodec, mgr, rec, logger, snap.onSnapshot)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr.Start(ctx)
	<-ctx.Done()
	logger.Info("shutting down")
	mgr.Stop()
}

// snapshotter rate-limits PNG writes to at most once per interval, since
// Canvas publishes a snapshot after every applied frame and the demo has
// no real UI paint loop to throttle that against.
type snapshotter struct {
	dir      string
	interval time.Duration
	last     time.Time
	count    int
	logger   *zap.Logger
}

func newSnapshotter(dir string, interval time.Duration, logger *zap.Logger) *snapshotter {
	return &snapshotter{dir: dir, interval: interval, logger: logger}
}

func (s *snapshotter) onSnapshot(rgb []byte, w, h int) {
	if s.dir == "" {
		return
	}
	now := time.Now()
	if !s.last.IsZero() && now.Sub(s.last) < s.interval {
		return
	}
	s.last = now
	s.count++

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		srcRow := y * w * 3
		dstRow := img.PixOffset(0, y)
		for x := 0; x < w; x++ {
			si := srcRow + x*3
			di := dstRow + x*4
			img.Pix[di+0] = rgb[si+0]
			img.Pix[di+1] = rgb[si+1]
			img.Pix[di+2] = rgb[si+2]
			img.Pix[di+3] = 0xff
		}
	}

	path := filepath.Join(s.dir, fmt.Sprintf("snapshot-%05d.png", s.count))
	f, err := os.Create(path)
	if err != nil {
		s.logger.Warn("snapshot: create file", zap.Error(err))
		return
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		s.logger.Warn("snapshot: encode png", zap.Error(err))
	}
}
