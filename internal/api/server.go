package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/kerbside-data/sentinel.report/internal/config"
	"github.com/kerbside-data/sentinel.report/internal/db"
	"github.com/kerbside-data/sentinel.report/internal/timeutil"
	"github.com/kerbside-data/sentinel.report/internal/vision"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// EngineSnapshot bundles the live engine counters for /api/engine/stats.
type EngineSnapshot struct {
	Pipeline   vision.PipelineStats   `json:"pipeline"`
	Violations vision.ManagerStats    `json:"violations"`
	Dispatch   vision.DispatcherStats `json:"dispatch"`
}

type Server struct {
	db          *db.DB
	cfg         *config.EngineConfig
	hub         *Hub
	engineStats func() EngineSnapshot
	snapshotDir string
	clock       timeutil.Clock
}

// NewServer builds the HTTP API over the alert store. engineStats may be
// nil when no engine is running in this process (e.g. ingest-only mode);
// the endpoint then reports 404.
func NewServer(database *db.DB, cfg *config.EngineConfig, hub *Hub, engineStats func() EngineSnapshot) *Server {
	return &Server{
		db:          database,
		cfg:         cfg,
		hub:         hub,
		engineStats: engineStats,
		snapshotDir: cfg.GetSnapshotDir(),
		clock:       timeutil.RealClock{},
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/alerts", s.handleAlerts)
	mux.HandleFunc("/api/alerts/", s.getAlert)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/stats/hourly", s.showHourlyStats)
	mux.HandleFunc("/api/stats/chart", s.showHourlyChart)
	mux.HandleFunc("/api/engine/stats", s.showEngineStats)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/snapshots/", s.serveSnapshot)
	mux.HandleFunc("/api/live", s.serveWebSocket)
	mux.HandleFunc("/debug/zones.png", s.renderZonePlot)
	return mux
}
