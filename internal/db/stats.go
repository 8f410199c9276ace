package db

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// AlertStats summarizes the alert table for the stats API.
type AlertStats struct {
	Total      int64            `json:"total"`
	Today      int64            `json:"today"`
	Yesterday  int64            `json:"yesterday"`
	ByType     map[string]int64 `json:"by_type"`
	ByZone     map[string]int64 `json:"by_zone"`
	Confidence ConfidenceStats  `json:"confidence"`
}

// ConfidenceStats holds quantiles over recorded alert confidences.
type ConfidenceStats struct {
	P50 float64 `json:"p50"`
	P90 float64 `json:"p90"`
	P99 float64 `json:"p99"`
}

// GetAlertStats computes aggregate counts plus confidence quantiles. "Today"
// is measured from local midnight at the given reference time.
func (db *DB) GetAlertStats(now time.Time) (*AlertStats, error) {
	stats := &AlertStats{
		ByType: make(map[string]int64),
		ByZone: make(map[string]int64),
	}

	if err := db.QueryRow("SELECT COUNT(*) FROM alerts").Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	err := db.QueryRow(
		"SELECT COUNT(*) FROM alerts WHERE created_at >= ?",
		midnight.UTC().Format(time.RFC3339Nano),
	).Scan(&stats.Today)
	if err != nil {
		return nil, fmt.Errorf("failed to count today's alerts: %w", err)
	}

	// Previous full local day, for the day-over-day trend on the dashboard.
	err = db.QueryRow(
		"SELECT COUNT(*) FROM alerts WHERE created_at >= ? AND created_at < ?",
		midnight.AddDate(0, 0, -1).UTC().Format(time.RFC3339Nano),
		midnight.UTC().Format(time.RFC3339Nano),
	).Scan(&stats.Yesterday)
	if err != nil {
		return nil, fmt.Errorf("failed to count yesterday's alerts: %w", err)
	}

	rows, err := db.Query("SELECT violation_type, COUNT(*) FROM alerts GROUP BY violation_type")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var t string
		var n int64
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		stats.ByType[t] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	zoneRows, err := db.Query("SELECT zone_id, COUNT(*) FROM alerts WHERE zone_id IS NOT NULL GROUP BY zone_id")
	if err != nil {
		return nil, err
	}
	defer zoneRows.Close()
	for zoneRows.Next() {
		var z string
		var n int64
		if err := zoneRows.Scan(&z, &n); err != nil {
			return nil, err
		}
		stats.ByZone[z] = n
	}
	if err := zoneRows.Err(); err != nil {
		return nil, err
	}

	conf, err := db.confidenceQuantiles()
	if err != nil {
		return nil, err
	}
	stats.Confidence = conf

	return stats, nil
}

func (db *DB) confidenceQuantiles() (ConfidenceStats, error) {
	rows, err := db.Query("SELECT confidence FROM alerts")
	if err != nil {
		return ConfidenceStats{}, err
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var c float64
		if err := rows.Scan(&c); err != nil {
			return ConfidenceStats{}, err
		}
		values = append(values, c)
	}
	if err := rows.Err(); err != nil {
		return ConfidenceStats{}, err
	}
	if len(values) == 0 {
		return ConfidenceStats{}, nil
	}

	// stat.Quantile requires sorted input.
	sort.Float64s(values)
	return ConfidenceStats{
		P50: stat.Quantile(0.50, stat.Empirical, values, nil),
		P90: stat.Quantile(0.90, stat.Empirical, values, nil),
		P99: stat.Quantile(0.99, stat.Empirical, values, nil),
	}, nil
}

// HourlyBucket is one hour's alert count for the 24h distribution.
type HourlyBucket struct {
	Hour  time.Time `json:"hour"`
	Count int64     `json:"count"`
}

// GetHourlyCounts returns alert counts for the trailing 24 hours, one bucket
// per hour, oldest first. Empty hours are present with a zero count.
func (db *DB) GetHourlyCounts(now time.Time) ([]HourlyBucket, error) {
	start := now.Truncate(time.Hour).Add(-23 * time.Hour)

	rows, err := db.Query(
		"SELECT created_at FROM alerts WHERE created_at >= ?",
		start.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int64]int64)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		ts, err := parseTimestamp(raw)
		if err != nil {
			return nil, err
		}
		h := ts.Truncate(time.Hour).Unix()
		counts[h]++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	buckets := make([]HourlyBucket, 24)
	for i := range buckets {
		hour := start.Add(time.Duration(i) * time.Hour)
		buckets[i] = HourlyBucket{Hour: hour, Count: counts[hour.Unix()]}
	}
	return buckets, nil
}
