package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kerbside-data/sentinel.report/internal/config"
	"github.com/kerbside-data/sentinel.report/internal/db"
	"github.com/kerbside-data/sentinel.report/internal/vision"
)

func newTestServer(t *testing.T) (*Server, *db.DB) {
	t.Helper()
	database, err := db.NewDB(filepath.Join(t.TempDir(), "api-test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultEngineConfig()
	srv := NewServer(database, cfg, NewHub(), nil)
	srv.snapshotDir = t.TempDir()
	return srv, database
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateAndGetAlert(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.ServeMux()

	rec := doJSON(t, mux, http.MethodPost, "/api/alerts",
		`{"violation_type":"ILLEGAL_PARKING","confidence":0.93,"object_id":4,"zone_id":"zone_1","metadata":{"dwell_frames":150}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST status = %d, body %s", rec.Code, rec.Body.String())
	}

	var created db.Alert
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding created alert: %v", err)
	}
	if created.ID == "" {
		t.Fatal("created alert has no ID")
	}
	if created.ViolationType != "ILLEGAL_PARKING" || created.ObjectID != 4 {
		t.Errorf("created = %+v", created)
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/alerts/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rec.Code)
	}
	var fetched db.Alert
	if err := json.Unmarshal(rec.Body.Bytes(), &fetched); err != nil {
		t.Fatalf("decoding fetched alert: %v", err)
	}
	if fetched.ID != created.ID || fetched.ZoneID != "zone_1" {
		t.Errorf("fetched = %+v", fetched)
	}
}

func TestCreateAlertValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.ServeMux()

	cases := []struct {
		name string
		body string
	}{
		{"unknown type", `{"violation_type":"JAYWALKING","confidence":0.9,"object_id":1}`},
		{"bad confidence", `{"violation_type":"WRONG_WAY","confidence":1.5,"object_id":1}`},
		{"not json", `parked too long`},
	}
	for _, c := range cases {
		rec := doJSON(t, mux, http.MethodPost, "/api/alerts", c.body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", c.name, rec.Code)
		}
	}
}

func TestGetAlertNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.ServeMux(), http.MethodGet, "/api/alerts/no-such-alert", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestListAlertsFiltering(t *testing.T) {
	srv, database := newTestServer(t)
	mux := srv.ServeMux()

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		if err := database.InsertAlert(&db.Alert{
			ViolationType: "ILLEGAL_PARKING", Confidence: 0.9, ObjectID: int64(i),
			ZoneID: "zone_1", CreatedAt: now.Add(-time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatal(err)
		}
	}
	if err := database.InsertAlert(&db.Alert{
		ViolationType: "WRONG_WAY", Confidence: 0.8, ObjectID: 50, CreatedAt: now,
	}); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, mux, http.MethodGet, "/api/alerts?type=WRONG_WAY", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var alerts []db.Alert
	if err := json.Unmarshal(rec.Body.Bytes(), &alerts); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(alerts) != 1 || alerts[0].ViolationType != "WRONG_WAY" {
		t.Errorf("filtered list = %+v", alerts)
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/alerts?limit=2", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &alerts); err != nil {
		t.Fatalf("decoding page: %v", err)
	}
	if len(alerts) != 2 {
		t.Errorf("limited list has %d alerts, want 2", len(alerts))
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/alerts?type=JAYWALKING", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown type filter: status = %d, want 400", rec.Code)
	}
	rec = doJSON(t, mux, http.MethodGet, "/api/alerts?since=yesterday", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad since: status = %d, want 400", rec.Code)
	}
}

func TestListAlertsEmptyIsArray(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.ServeMux(), http.MethodGet, "/api/alerts", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("empty list body = %q, want []", body)
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, database := newTestServer(t)
	if err := database.InsertAlert(&db.Alert{
		ViolationType: "WRONG_WAY", Confidence: 0.8, ObjectID: 1, CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, srv.ServeMux(), http.MethodGet, "/api/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var stats db.AlertStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decoding stats: %v", err)
	}
	if stats.Total != 1 || stats.ByType["WRONG_WAY"] != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestHourlyStatsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.ServeMux(), http.MethodGet, "/api/stats/hourly", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var buckets []db.HourlyBucket
	if err := json.Unmarshal(rec.Body.Bytes(), &buckets); err != nil {
		t.Fatalf("decoding buckets: %v", err)
	}
	if len(buckets) != 24 {
		t.Errorf("got %d buckets, want 24", len(buckets))
	}
}

func TestHourlyChartEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.ServeMux(), http.MethodGet, "/api/stats/chart", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %s, want text/html", ct)
	}
	if !strings.Contains(rec.Body.String(), "echarts") {
		t.Error("chart page does not reference echarts")
	}
}

func TestConfigEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.ServeMux(), http.MethodGet, "/api/config", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var cfg map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("decoding config: %v", err)
	}
	if cfg["dwell_threshold_frames"] != float64(config.DefaultDwellThresholdFrames) {
		t.Errorf("dwell_threshold_frames = %v", cfg["dwell_threshold_frames"])
	}
	if cfg["version"] == "" {
		t.Error("version missing from config payload")
	}
}

func TestEngineStatsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	// Without an engine the endpoint is absent.
	rec := doJSON(t, srv.ServeMux(), http.MethodGet, "/api/engine/stats", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("no-engine status = %d, want 404", rec.Code)
	}

	srv.engineStats = func() EngineSnapshot {
		return EngineSnapshot{
			Pipeline:   vision.PipelineStats{FramesProcessed: 42, ActiveTracks: 3},
			Violations: vision.ManagerStats{TotalFired: 2, ByType: map[string]int64{"WRONG_WAY": 2}},
		}
	}
	rec = doJSON(t, srv.ServeMux(), http.MethodGet, "/api/engine/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var snap EngineSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decoding snapshot: %v", err)
	}
	if snap.Pipeline.FramesProcessed != 42 || snap.Violations.TotalFired != 2 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestZonePlotEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.ServeMux(), http.MethodGet, "/debug/zones.png", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %s, want image/png", ct)
	}
	body := rec.Body.Bytes()
	if len(body) < 8 || body[1] != 'P' || body[2] != 'N' || body[3] != 'G' {
		t.Error("response is not a PNG")
	}
}

func TestSnapshotTraversalRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.ServeMux()
	for _, path := range []string{
		"/api/snapshots/../secrets.txt",
		"/api/snapshots/..%2F..%2Fetc%2Fpasswd",
	} {
		rec := doJSON(t, mux, http.MethodGet, path, "")
		if rec.Code == http.StatusOK {
			t.Errorf("%s: traversal served with 200", path)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.ServeMux()
	cases := []struct {
		method, path string
	}{
		{http.MethodDelete, "/api/alerts"},
		{http.MethodPost, "/api/stats"},
		{http.MethodPost, "/api/config"},
		{http.MethodPut, "/api/alerts/abc"},
	}
	for _, c := range cases {
		rec := doJSON(t, mux, c.method, c.path, "")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: status = %d, want 405", c.method, c.path, rec.Code)
		}
	}
}
