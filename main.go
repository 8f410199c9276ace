package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kerbside-data/sentinel.report/internal/api"
	"github.com/kerbside-data/sentinel.report/internal/config"
	"github.com/kerbside-data/sentinel.report/internal/db"
	"github.com/kerbside-data/sentinel.report/internal/fsutil"
	"github.com/kerbside-data/sentinel.report/internal/httputil"
	"github.com/kerbside-data/sentinel.report/internal/monitoring"
	"github.com/kerbside-data/sentinel.report/internal/timeutil"
	"github.com/kerbside-data/sentinel.report/internal/version"
	"github.com/kerbside-data/sentinel.report/internal/vision"
)

var (
	devMode    = flag.Bool("dev", false, "Run in dev mode (verbose engine logging)")
	listen     = flag.String("listen", ":8080", "Listen address")
	configPath = flag.String("config", "", "Engine config file (JSON); defaults apply when empty")
	dbPath     = flag.String("db", "sentinel_alerts.db", "SQLite database file")
	detections = flag.String("detections", "", "Detection log (JSONL) to replay through the engine")
	alertsURL  = flag.String("alerts-url", "", "Deliver alerts to a remote collector instead of the local store")
)

const migrationsDir = "migrations"

// storeSink persists alerts locally and pushes them to live WebSocket clients.
func storeSink(database *db.DB, hub *api.Hub) vision.SinkFunc {
	return func(ctx context.Context, ev *vision.ViolationEvent) error {
		alert := &db.Alert{
			ViolationType: string(ev.Type),
			Confidence:    ev.Confidence,
			ObjectID:      ev.ObjectID,
			SnapshotPath:  ev.SnapshotPath,
			ZoneID:        ev.ZoneID,
			Metadata:      ev.Metadata,
		}
		if err := database.InsertAlert(alert); err != nil {
			return err
		}
		hub.BroadcastAlert(alert)
		return nil
	}
}

func loadConfig() *config.EngineConfig {
	path := *configPath
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigPath); err != nil {
			return config.DefaultEngineConfig()
		}
		path = config.DefaultConfigPath
	}
	cfg, err := config.LoadEngineConfig(path)
	if err != nil {
		log.Fatalf("failed to load config %q: %v", path, err)
	}
	return cfg
}

// Main
func main() {
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		db.RunMigrateCommand(os.Args[2:], "sentinel_alerts.db", migrationsDir)
		return
	}

	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	monitoring.SetDebug(*devMode)

	// The ops stream carries data-loss warnings (dropped alerts, failed
	// delivery) and is always on; diag and trace are dev-only.
	if *devMode {
		vision.SetLogWriters(os.Stderr, os.Stderr, os.Stderr)
	} else {
		vision.SetLogWriters(os.Stderr, nil, nil)
	}

	cfg := loadConfig()

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	var zones []*vision.Zone
	for _, zc := range cfg.GetZones() {
		z, err := vision.NewZone(zc.ID, zc.Polygon)
		if err != nil {
			log.Fatalf("invalid zone %q: %v", zc.ID, err)
		}
		zones = append(zones, z)
	}
	zoneRule := vision.NewZoneRule(zones, cfg.GetDwellThresholdFrames())

	dx, dy := cfg.GetLaneDirection()
	dirRule, err := vision.NewDirectionRule([2]float64{dx, dy}, cfg.GetDirectionThresholdFrames(), cfg.GetMinDisplacementPx())
	if err != nil {
		log.Fatalf("invalid lane direction: %v", err)
	}

	clock := timeutil.RealClock{}
	tracker := vision.NewTracker(vision.TrackerConfig{
		MaxMatchDistance: cfg.GetMaxMatchDistancePx(),
		MaxMissedFrames:  cfg.GetMaxMissedFrames(),
		HistoryLength:    cfg.GetHistoryLength(),
	})
	manager := vision.NewViolationManager(zoneRule, dirRule, cfg.GetDispatchQueueSize(), clock)

	capturer, err := vision.NewSnapshotCapturer(fsutil.OSFileSystem{}, cfg.GetSnapshotDir())
	if err != nil {
		log.Fatalf("failed to prepare snapshot directory: %v", err)
	}

	hub := api.NewHub()

	var sink vision.Sink
	if *alertsURL != "" {
		sink = vision.NewHTTPSink(httputil.NewStandardClient(nil), *alertsURL)
	} else {
		sink = storeSink(database, hub)
	}
	dispatcher := vision.NewDispatcher(manager, capturer, sink)

	// The engine only runs when a detection log is supplied; without one the
	// process serves the alert API over whatever the store already holds.
	var pipeline *vision.Pipeline
	if *detections != "" {
		f, err := os.Open(*detections)
		if err != nil {
			log.Fatalf("failed to open detection log: %v", err)
		}
		defer f.Close()
		source, err := vision.NewReplaySource(f, cfg.GetFrameRate(), clock)
		if err != nil {
			log.Fatalf("failed to parse detection log: %v", err)
		}
		pipeline = vision.NewPipeline(source, source, tracker, manager)
	}

	var engineStats func() api.EngineSnapshot
	if pipeline != nil {
		engineStats = func() api.EngineSnapshot {
			return api.EngineSnapshot{
				Pipeline:   pipeline.Stats(),
				Violations: manager.Stats(),
				Dispatch:   dispatcher.Stats(),
			}
		}
	}

	log.Printf("sentinel-report %s (%s) starting on %s", version.Version, version.GitSHA, *listen)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// drain the dispatch queue until the engine closes it
	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatcher.Run(ctx)
		log.Print("dispatcher routine terminated")
	}()

	// run the frame loop: replay source -> tracker -> rules -> dispatch queue
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer manager.CloseQueue()
		if pipeline == nil {
			<-ctx.Done()
			return
		}
		if err := pipeline.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("pipeline error: %v", err)
		}
		log.Print("pipeline routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes (accessible only in dev mode or over Tailscale)
		database.AttachAdminRoutes(mux)

		// mount the alert API and the zone debug plot
		apiMux := api.NewServer(database, cfg, hub, engineStats).ServeMux()
		mux.Handle("/api/", apiMux)
		mux.Handle("/debug/zones.png", apiMux)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
