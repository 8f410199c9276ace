package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kerbside-data/sentinel.report/internal/db"
	"github.com/kerbside-data/sentinel.report/internal/httputil"
	"github.com/kerbside-data/sentinel.report/internal/security"
	"github.com/kerbside-data/sentinel.report/internal/version"
	"github.com/kerbside-data/sentinel.report/internal/vision"
)

const maxAlertBodyBytes = 256 * 1024

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listAlerts(w, r)
	case http.MethodPost:
		s.createAlert(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := db.AlertFilter{ViolationType: q.Get("type")}

	if filter.ViolationType != "" && !vision.ValidViolationType(filter.ViolationType) {
		httputil.BadRequest(w, fmt.Sprintf("unknown violation type %q", filter.ViolationType))
		return
	}
	if v := q.Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.BadRequest(w, "since must be RFC3339")
			return
		}
		filter.Since = ts
	}
	if v := q.Get("until"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.BadRequest(w, "until must be RFC3339")
			return
		}
		filter.Until = ts
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			httputil.BadRequest(w, "limit must be between 1 and 1000")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.BadRequest(w, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	alerts, err := s.db.ListAlerts(filter)
	if err != nil {
		httputil.InternalServerError(w, "failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []db.Alert{}
	}
	httputil.WriteJSONOK(w, alerts)
}

// alertRequest is the POST /api/alerts body, matching the engine's event
// encoding.
type alertRequest struct {
	ViolationType string                 `json:"violation_type"`
	Confidence    float64                `json:"confidence"`
	ObjectID      int64                  `json:"object_id"`
	SnapshotPath  string                 `json:"snapshot_path"`
	ZoneID        string                 `json:"zone_id"`
	Metadata      map[string]interface{} `json:"metadata"`
}

func (s *Server) createAlert(w http.ResponseWriter, r *http.Request) {
	var req alertRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAlertBodyBytes))
	if err := dec.Decode(&req); err != nil {
		httputil.BadRequest(w, "invalid JSON body")
		return
	}
	if !vision.ValidViolationType(req.ViolationType) {
		httputil.BadRequest(w, fmt.Sprintf("unknown violation type %q", req.ViolationType))
		return
	}
	if req.Confidence < 0 || req.Confidence > 1 {
		httputil.BadRequest(w, "confidence must be between 0 and 1")
		return
	}

	alert := &db.Alert{
		ViolationType: req.ViolationType,
		Confidence:    req.Confidence,
		ObjectID:      req.ObjectID,
		SnapshotPath:  req.SnapshotPath,
		ZoneID:        req.ZoneID,
		Metadata:      req.Metadata,
		CreatedAt:     s.clock.Now().UTC(),
	}
	if err := s.db.InsertAlert(alert); err != nil {
		httputil.InternalServerError(w, "failed to persist alert")
		return
	}

	if s.hub != nil {
		s.hub.BroadcastAlert(alert)
	}

	httputil.WriteJSON(w, http.StatusCreated, alert)
}

func (s *Server) getAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/alerts/")
	if id == "" || strings.Contains(id, "/") {
		httputil.NotFound(w, "alert not found")
		return
	}

	alert, err := s.db.GetAlert(id)
	if errors.Is(err, sql.ErrNoRows) {
		httputil.NotFound(w, "alert not found")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, "failed to load alert")
		return
	}
	httputil.WriteJSONOK(w, alert)
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	stats, err := s.db.GetAlertStats(s.clock.Now())
	if err != nil {
		httputil.InternalServerError(w, "failed to compute stats")
		return
	}
	httputil.WriteJSONOK(w, stats)
}

func (s *Server) showHourlyStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	buckets, err := s.db.GetHourlyCounts(s.clock.Now())
	if err != nil {
		httputil.InternalServerError(w, "failed to compute hourly counts")
		return
	}
	httputil.WriteJSONOK(w, buckets)
}

func (s *Server) showEngineStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.engineStats == nil {
		httputil.NotFound(w, "no engine running in this process")
		return
	}
	httputil.WriteJSONOK(w, s.engineStats())
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"version":                    version.Version,
		"git_sha":                    version.GitSHA,
		"zones":                      s.cfg.Zones,
		"lane_direction":             s.cfg.LaneDirection,
		"dwell_threshold_frames":     s.cfg.GetDwellThresholdFrames(),
		"direction_threshold_frames": s.cfg.GetDirectionThresholdFrames(),
		"min_displacement_px":        s.cfg.GetMinDisplacementPx(),
		"max_match_distance_px":      s.cfg.GetMaxMatchDistancePx(),
		"max_missed_frames":          s.cfg.GetMaxMissedFrames(),
		"history_length":             s.cfg.GetHistoryLength(),
		"frame_rate":                 s.cfg.GetFrameRate(),
		"snapshot_dir":               s.cfg.GetSnapshotDir(),
	})
}

// serveSnapshot serves evidence images by filename, confined to the
// snapshot directory.
func (s *Server) serveSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/snapshots/")
	if name == "" {
		httputil.NotFound(w, "snapshot not found")
		return
	}
	path := filepath.Join(s.snapshotDir, filepath.Clean("/"+name))
	if err := security.ValidatePathWithinDirectory(path, s.snapshotDir); err != nil {
		httputil.NotFound(w, "snapshot not found")
		return
	}
	http.ServeFile(w, r, path)
}
