package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/technosupport/ts-aegis/internal/api"
	"github.com/technosupport/ts-aegis/internal/capture"
	"github.com/technosupport/ts-aegis/internal/config"
	"github.com/technosupport/ts-aegis/internal/data"
	"github.com/technosupport/ts-aegis/internal/enhance"
	"github.com/technosupport/ts-aegis/internal/events"
	"github.com/technosupport/ts-aegis/internal/flow"
	"github.com/technosupport/ts-aegis/internal/metrics"
	"github.com/technosupport/ts-aegis/internal/pipeline"
	"github.com/technosupport/ts-aegis/internal/tokens"
	"github.com/technosupport/ts-aegis/internal/watermark"
)

// Exit codes: 0 normal, 1 capture device unavailable, 2 configuration
// error, 3 unrecoverable pipeline error.
const (
	exitOK          = 0
	exitCaptureLost = 1
	exitConfig      = 2
	exitPipeline    = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("Fatal: %v", err)
		return exitConfig
	}

	embedder, err := watermark.NewEmbedder([]byte(cfg.WatermarkSecret))
	if err != nil {
		log.Printf("Fatal: %v", err)
		return exitConfig
	}

	rescuer, err := enhance.NewRescuer(enhance.RescueMode(cfg.Sensors.RescueMode))
	if err != nil {
		log.Printf("Fatal: unknown glare rescue mode %q", cfg.Sensors.RescueMode)
		return exitConfig
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Persistence (optional) ---
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Printf("Fatal: DB open error: %v", err)
			return exitConfig
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			// Best-effort policy: a dead DB at startup degrades, it does
			// not abort. Incident writes reconcile when it returns.
			log.Printf("Warning: DB ping failed: %v. Incident persistence degraded.", err)
		}
	}

	// --- Event sink publishers ---
	m := metrics.New()
	hub := events.NewHub()
	pubs := []events.Publisher{hub}

	var cache *events.DetectionCache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		cache = events.NewDetectionCache(rdb)
		pubs = append(pubs, cache)
	}

	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(-1))
		if err != nil {
			log.Printf("Warning: NATS connect failed: %v. Event fan-out disabled.", err)
		} else {
			defer nc.Close()
			pubs = append(pubs, events.NewNATSPublisher(nc, cfg.NATSSubject, 3))
		}
	}

	if db != nil {
		pubs = append(pubs, data.NewIncidentRecorder(db))
	}

	sink := events.NewSink(cfg.EventQueueCap, events.NewDedup(1024), pubs...)
	go sink.Run(ctx)

	// --- Runtime sensor config + hot reload ---
	runtime := config.NewRuntime(cfg.Sensors)
	if *configPath != "" {
		if err := config.Watch(ctx, *configPath, runtime); err != nil {
			log.Printf("Warning: config watcher unavailable: %v", err)
		}
	}

	// --- Capture ---
	src, err := capture.Open(cfg.CaptureSource)
	if err != nil {
		log.Printf("Fatal: %v", err)
		return exitCaptureLost
	}
	defer src.Close()

	// --- Pipeline ---
	opts := pipeline.Options{
		Source:       src,
		Thresholds:   cfg.Thresholds,
		Runtime:      runtime,
		Flow:         flow.NewFarneback(),
		Rescuer:      rescuer,
		Embedder:     embedder,
		Sink:         sink,
		Metrics:      m,
		WarmupFrames: cfg.WarmupFrames,
	}
	if db != nil {
		opts.OnGlareOpened = pipeline.NewGlareArchiver(cfg.GlareImageDir, db).Hook()
	}
	p := pipeline.New(opts)

	// --- Control API ---
	var tokenMgr *tokens.Manager
	if cfg.JWTSecret != "" {
		tokenMgr = tokens.NewManager(cfg.JWTSecret)
	} else {
		log.Printf("Warning: AEGIS_JWT_SECRET unset, control API is unauthenticated")
	}

	server := api.NewServer(api.Options{
		Runtime:    runtime,
		Control:    p,
		Frames:     p.Frames(),
		Cache:      cache,
		DB:         dbOrNil(db),
		Hub:        hub,
		Tokens:     tokenMgr,
		MetricsH:   m.Handler(),
		Secret:     []byte(cfg.WatermarkSecret),
		Thresholds: cfg.Thresholds,
	})

	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: server.Router()}
	go func() {
		log.Printf("Control API listening on %s", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// --- Signals ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		log.Printf("Received %v, shutting down", s)
		cancel()
	}()

	log.Printf("Pipeline starting on source %s", cfg.CaptureSource)
	runErr := p.Run(ctx)

	// Cooperative shutdown: stop intake, drain the sink, stop HTTP.
	cancel()
	sink.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	switch {
	case runErr == nil:
		return exitOK
	case errors.Is(runErr, pipeline.ErrCaptureLost):
		return exitCaptureLost
	default:
		log.Printf("Pipeline error: %v", runErr)
		return exitPipeline
	}
}

// dbOrNil avoids handing a typed-nil *sql.DB to the API's interface.
func dbOrNil(db *sql.DB) data.DBTX {
	if db == nil {
		return nil
	}
	return db
}
