package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS alerts (
			id                TEXT PRIMARY KEY,
			violation_type    TEXT NOT NULL,
			confidence        DOUBLE NOT NULL,
			object_id         BIGINT NOT NULL,
			snapshot_path     TEXT,
			zone_id           TEXT,
			metadata          TEXT,
			created_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts (created_at);
		CREATE INDEX IF NOT EXISTS idx_alerts_type ON alerts (violation_type);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// OpenDB opens the database without creating the schema. Used by the
// migrate subcommand, which manages the schema itself.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &DB{db}, nil
}

// Alert is one persisted violation record.
type Alert struct {
	ID            string                 `json:"id"`
	ViolationType string                 `json:"violation_type"`
	Confidence    float64                `json:"confidence"`
	ObjectID      int64                  `json:"object_id"`
	SnapshotPath  string                 `json:"snapshot_path,omitempty"`
	ZoneID        string                 `json:"zone_id,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

func (a *Alert) String() string {
	return fmt.Sprintf("ID: %s, Type: %s, Object: %d, Confidence: %.2f, Zone: %s, CreatedAt: %s",
		a.ID, a.ViolationType, a.ObjectID, a.Confidence, a.ZoneID, a.CreatedAt.Format(time.RFC3339))
}

// InsertAlert persists an alert. A missing ID or CreatedAt is assigned
// server-side.
func (db *DB) InsertAlert(a *Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	var metadata sql.NullString
	if len(a.Metadata) > 0 {
		raw, err := json.Marshal(a.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode alert metadata: %w", err)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := db.Exec(
		`INSERT INTO alerts (
			id, violation_type, confidence, object_id,
			snapshot_path, zone_id, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ViolationType, a.Confidence, a.ObjectID,
		nullString(a.SnapshotPath), nullString(a.ZoneID), metadata,
		a.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// GetAlert returns one alert by ID, or sql.ErrNoRows.
func (db *DB) GetAlert(id string) (*Alert, error) {
	row := db.QueryRow(
		`SELECT id, violation_type, confidence, object_id,
			snapshot_path, zone_id, metadata, created_at
		FROM alerts WHERE id = ?`, id)
	return scanAlert(row)
}

// AlertFilter narrows ListAlerts results. Zero values mean no filtering on
// that dimension.
type AlertFilter struct {
	ViolationType string
	Since         time.Time
	Until         time.Time
	Limit         int
	Offset        int
}

const defaultListLimit = 100

// ListAlerts returns alerts newest-first, optionally filtered.
func (db *DB) ListAlerts(f AlertFilter) ([]Alert, error) {
	var conds []string
	var args []interface{}
	if f.ViolationType != "" {
		conds = append(conds, "violation_type = ?")
		args = append(args, f.ViolationType)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Since.UTC().Format(time.RFC3339Nano))
	}
	if !f.Until.IsZero() {
		conds = append(conds, "created_at < ?")
		args = append(args, f.Until.UTC().Format(time.RFC3339Nano))
	}

	query := `SELECT id, violation_type, confidence, object_id,
			snapshot_path, zone_id, metadata, created_at
		FROM alerts`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit, f.Offset)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return alerts, nil
}

// CountAlerts returns the total number of persisted alerts.
func (db *DB) CountAlerts() (int64, error) {
	var n int64
	err := db.QueryRow("SELECT COUNT(*) FROM alerts").Scan(&n)
	return n, err
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(s scanner) (*Alert, error) {
	var (
		a         Alert
		snapshot  sql.NullString
		zone      sql.NullString
		metadata  sql.NullString
		createdAt string
	)
	if err := s.Scan(
		&a.ID, &a.ViolationType, &a.Confidence, &a.ObjectID,
		&snapshot, &zone, &metadata, &createdAt,
	); err != nil {
		return nil, err
	}
	a.SnapshotPath = snapshot.String
	a.ZoneID = zone.String
	if metadata.Valid {
		if err := json.Unmarshal([]byte(metadata.String), &a.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode alert metadata: %w", err)
		}
	}
	ts, err := parseTimestamp(createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse alert timestamp: %w", err)
	}
	a.CreatedAt = ts
	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// parseTimestamp accepts both RFC3339 (written by InsertAlert) and sqlite's
// CURRENT_TIMESTAMP format (rows created by hand or by older schemas).
func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02 15:04:05", s)
}
