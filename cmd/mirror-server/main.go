// Command mirror-server serves the sender side of the pipeline: it
// captures a synthetic desktop (see internal/capture), streams
// keyframe/delta/empty frames to whichever client connects, and exposes
// Prometheus metrics for the session.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pixeldelta/mirror/internal/capture"
	"github.com/pixeldelta/mirror/internal/codec"
	"github.com/pixeldelta/mirror/internal/connmgr"
	"github.com/pixeldelta/mirror/internal/sender"
	"github.com/pixeldelta/mirror/internal/stats"
	"github.com/pixeldelta/mirror/internal/transport"
)

func main() {
	var (
		addr              string
		tile              int
		tileQuality       int
		frameQuality      int
		captureIntervalMs int
		fallbackThreshold float64
		width             int
		height            int
		workers           int
		patternName       string
	)

	flag.StringVar(&addr, "addr", ":8765", "Listen address for the mirror websocket and /metrics")
	flag.IntVar(&tile, "tile", 64, "Tile size in pixels")
	flag.IntVar(&tileQuality, "tile-quality", codec.DefaultTileQuality, "WebP tile quality (1-100)")
	flag.IntVar(&frameQuality, "frame-quality", codec.DefaultFrameQuality, "JPEG keyframe quality (1-100)")
	flag.IntVar(&captureIntervalMs, "capture-interval", 66, "Capture interval in milliseconds")
	flag.Float64Var(&fallbackThreshold, "fallback-threshold", 0.7, "Fraction of changed tiles above which a delta falls back to a keyframe")
	flag.IntVar(&width, "width", 640, "Synthetic frame width")
	flag.IntVar(&height, "height", 480, "Synthetic frame height")
	flag.IntVar(&workers, "workers", 1, "CPU-bound tile encode workers")
	flag.StringVar(&patternName, "pattern", capture.PatternNameSweep, "Synthetic capture pattern: solid, sweep")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: mirror-server [flags]\n\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	pattern, err := capture.ParsePattern(patternName)
	if err != nil {
		logger.Fatal("invalid pattern", zap.Error(err))
	}
	src := capture.NewSynthetic(width, height, pattern)

	reg := prometheus.NewRegistry()
	rec := stats.New(reg, "mirror", "server")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/mirror", func(w http.ResponseWriter, r *http.Request) {
		conn, err := transport.Accept(w, r)
		if err != nil {
			logger.Warn("upgrade failed", zap.Error(err))
			return
		}
		serveSession(r.Context(), conn, sender.Config{
			Tile:              tile,
			FallbackThreshold: fallbackThreshold,
			CaptureInterval:   time.Duration(captureIntervalMs) * time.Millisecond,
			Workers:           workers,
		}, src, tileQuality, frameQuality, rec, logger)
	})

	httpSrv := &http.Server{Addr: addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("listening", zap.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}

// serveSession runs one accepted connection's sender Pipeline to
// completion. Each connection gets its own fresh fingerprint cache and
// sequence counter, per spec.md §3's per-connection Lifecycle invariant.
func serveSession(ctx context.Context, conn transport.Conn, cfg sender.Config, src capture.Source, tileQuality, frameQuality int, rec *stats.Recorder, logger *zap.Logger) {
	// pipeline is constructed after mgr, but mgr's callbacks need to reach
	// into it; the indirection through this variable lets the closures
	// below capture it before it exists; Start() only invokes them later.
	var pipeline *sender.Pipeline

	mgr := connmgr.NewServer(conn,
		connmgr.WithOnStatus(func(s connmgr.Status) {
			logger.Info("connection status", zap.String("status", s.String()))
		}),
		connmgr.WithOnRecv(func(data []byte) { pipeline.HandleInbound(data) }),
		connmgr.WithOnConnect(func(transport.Conn) { pipeline.Reset() }),
	)

	tileCodec := &codec.WebPTileCodec{Quality: tileQuality}
	frameCodec := &codec.JPEGFrameCodec{Quality: frameQuality}

	var err error
	pipeline, err = sender.New(cfg, src, tileCodec, frameCodec, mgr, rec, logger)
	if err != nil {
		logger.Error("building sender pipeline", zap.Error(err))
		return
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	mgr.Start(sessionCtx)
	if err := pipeline.Run(sessionCtx); err != nil {
		logger.Info("session ended", zap.Error(err))
	}
	mgr.Stop()
}
