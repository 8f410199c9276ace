package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical engine defaults file.
const DefaultConfigPath = "config/engine.defaults.json"

// ZoneConfig describes one restricted area for the illegal-parking rule.
// The polygon is an ordered list of [x, y] pixel vertices.
type ZoneConfig struct {
	ID      string      `json:"id"`
	Polygon [][]float64 `json:"polygon"`
}

// EngineConfig represents the root configuration for the violation engine.
// All fields are optional in the JSON file; the Get* methods provide the
// fallback defaults, so partial configs are safe.
type EngineConfig struct {
	// Rule geometry
	Zones         []ZoneConfig `json:"zones,omitempty"`
	LaneDirection []float64    `json:"lane_direction,omitempty"` // [dx, dy], permitted travel direction

	// Rule thresholds
	DwellThresholdFrames     *int     `json:"dwell_threshold_frames,omitempty"`
	DirectionThresholdFrames *int     `json:"direction_threshold_frames,omitempty"`
	MinDisplacementPx        *float64 `json:"min_displacement_px,omitempty"`

	// Tracker params
	MaxMatchDistancePx *float64 `json:"max_match_distance_px,omitempty"`
	MaxMissedFrames    *int     `json:"max_missed_frames,omitempty"`
	HistoryLength      *int     `json:"history_length,omitempty"`

	// Evidence and dispatch
	SnapshotDir       *string `json:"snapshot_dir,omitempty"`
	DispatchQueueSize *int    `json:"dispatch_queue_size,omitempty"`

	// Nominal camera frame rate, used only to report thresholds in seconds.
	FrameRate *float64 `json:"frame_rate,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyEngineConfig returns an EngineConfig with all fields unset.
func EmptyEngineConfig() *EngineConfig {
	return &EngineConfig{}
}

// DefaultEngineConfig returns a config populated with the stock deployment
// values: one rectangular kerbside zone and an eastbound lane.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Zones: []ZoneConfig{{
			ID:      "zone_1",
			Polygon: [][]float64{{100, 400}, {500, 400}, {500, 700}, {100, 700}},
		}},
		LaneDirection:            []float64{1, 0},
		DwellThresholdFrames:     ptrInt(DefaultDwellThresholdFrames),
		DirectionThresholdFrames: ptrInt(DefaultDirectionThresholdFrames),
		MinDisplacementPx:        ptrFloat64(DefaultMinDisplacementPx),
		MaxMatchDistancePx:       ptrFloat64(DefaultMaxMatchDistancePx),
		MaxMissedFrames:          ptrInt(DefaultMaxMissedFrames),
		HistoryLength:            ptrInt(DefaultHistoryLength),
		SnapshotDir:              ptrString(DefaultSnapshotDir),
		DispatchQueueSize:        ptrInt(DefaultDispatchQueueSize),
		FrameRate:                ptrFloat64(DefaultFrameRate),
	}
}

// Default values. Dwell of 150 frames is 5 seconds at the nominal 30 fps.
const (
	DefaultDwellThresholdFrames     = 150
	DefaultDirectionThresholdFrames = 10
	DefaultMinDisplacementPx        = 5.0
	DefaultMaxMatchDistancePx       = 80.0
	DefaultMaxMissedFrames          = 30
	DefaultHistoryLength            = 30
	DefaultSnapshotDir              = "snapshots"
	DefaultDispatchQueueSize        = 64
	DefaultFrameRate                = 30.0
)

// LoadEngineConfig loads an EngineConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON retain their defaults.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyEngineConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for fatal errors. The engine refuses to
// start with an invalid rule configuration rather than silently disabling a
// rule.
func (c *EngineConfig) Validate() error {
	for i, z := range c.Zones {
		if z.ID == "" {
			return fmt.Errorf("zone %d: missing id", i)
		}
		if len(z.Polygon) < 3 {
			return fmt.Errorf("zone %q: polygon needs at least 3 vertices, got %d", z.ID, len(z.Polygon))
		}
		for j, v := range z.Polygon {
			if len(v) != 2 {
				return fmt.Errorf("zone %q: vertex %d must be [x, y], got %d values", z.ID, j, len(v))
			}
			if !isFinite(v[0]) || !isFinite(v[1]) {
				return fmt.Errorf("zone %q: vertex %d has non-finite coordinate", z.ID, j)
			}
		}
	}

	if c.LaneDirection != nil {
		if len(c.LaneDirection) != 2 {
			return fmt.Errorf("lane_direction must be [dx, dy], got %d values", len(c.LaneDirection))
		}
		dx, dy := c.LaneDirection[0], c.LaneDirection[1]
		if !isFinite(dx) || !isFinite(dy) {
			return fmt.Errorf("lane_direction has non-finite component")
		}
		if dx == 0 && dy == 0 {
			return fmt.Errorf("lane_direction vector cannot be zero")
		}
	}

	if c.DwellThresholdFrames != nil && *c.DwellThresholdFrames < 1 {
		return fmt.Errorf("dwell_threshold_frames must be >= 1, got %d", *c.DwellThresholdFrames)
	}
	if c.DirectionThresholdFrames != nil && *c.DirectionThresholdFrames < 1 {
		return fmt.Errorf("direction_threshold_frames must be >= 1, got %d", *c.DirectionThresholdFrames)
	}
	if c.MinDisplacementPx != nil && (*c.MinDisplacementPx < 0 || !isFinite(*c.MinDisplacementPx)) {
		return fmt.Errorf("min_displacement_px must be >= 0, got %v", *c.MinDisplacementPx)
	}
	if c.MaxMatchDistancePx != nil && (*c.MaxMatchDistancePx <= 0 || !isFinite(*c.MaxMatchDistancePx)) {
		return fmt.Errorf("max_match_distance_px must be positive, got %v", *c.MaxMatchDistancePx)
	}
	if c.MaxMissedFrames != nil && *c.MaxMissedFrames < 1 {
		return fmt.Errorf("max_missed_frames must be >= 1, got %d", *c.MaxMissedFrames)
	}
	if c.HistoryLength != nil && *c.HistoryLength < 2 {
		return fmt.Errorf("history_length must be >= 2, got %d", *c.HistoryLength)
	}
	if c.DispatchQueueSize != nil && *c.DispatchQueueSize < 1 {
		return fmt.Errorf("dispatch_queue_size must be >= 1, got %d", *c.DispatchQueueSize)
	}
	if c.FrameRate != nil && (*c.FrameRate <= 0 || !isFinite(*c.FrameRate)) {
		return fmt.Errorf("frame_rate must be positive, got %v", *c.FrameRate)
	}

	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// GetZones returns the configured zones, or the stock default zone when the
// file specifies none.
func (c *EngineConfig) GetZones() []ZoneConfig {
	if len(c.Zones) > 0 {
		return c.Zones
	}
	return DefaultEngineConfig().Zones
}

// GetLaneDirection returns the expected travel direction vector.
func (c *EngineConfig) GetLaneDirection() (dx, dy float64) {
	if len(c.LaneDirection) == 2 {
		return c.LaneDirection[0], c.LaneDirection[1]
	}
	return 1, 0
}

// GetDwellThresholdFrames returns the illegal-parking dwell threshold.
func (c *EngineConfig) GetDwellThresholdFrames() int {
	if c.DwellThresholdFrames != nil {
		return *c.DwellThresholdFrames
	}
	return DefaultDwellThresholdFrames
}

// GetDirectionThresholdFrames returns the wrong-way frame threshold.
func (c *EngineConfig) GetDirectionThresholdFrames() int {
	if c.DirectionThresholdFrames != nil {
		return *c.DirectionThresholdFrames
	}
	return DefaultDirectionThresholdFrames
}

// GetMinDisplacementPx returns the displacement below which a track is
// treated as stationary by the direction rule.
func (c *EngineConfig) GetMinDisplacementPx() float64 {
	if c.MinDisplacementPx != nil {
		return *c.MinDisplacementPx
	}
	return DefaultMinDisplacementPx
}

// GetMaxMatchDistancePx returns the centroid association gate.
func (c *EngineConfig) GetMaxMatchDistancePx() float64 {
	if c.MaxMatchDistancePx != nil {
		return *c.MaxMatchDistancePx
	}
	return DefaultMaxMatchDistancePx
}

// GetMaxMissedFrames returns the track retirement threshold.
func (c *EngineConfig) GetMaxMissedFrames() int {
	if c.MaxMissedFrames != nil {
		return *c.MaxMissedFrames
	}
	return DefaultMaxMissedFrames
}

// GetHistoryLength returns the centroid history capacity.
func (c *EngineConfig) GetHistoryLength() int {
	if c.HistoryLength != nil {
		return *c.HistoryLength
	}
	return DefaultHistoryLength
}

// GetSnapshotDir returns the evidence snapshot directory.
func (c *EngineConfig) GetSnapshotDir() string {
	if c.SnapshotDir != nil {
		return *c.SnapshotDir
	}
	return DefaultSnapshotDir
}

// GetDispatchQueueSize returns the bounded dispatch channel capacity.
func (c *EngineConfig) GetDispatchQueueSize() int {
	if c.DispatchQueueSize != nil {
		return *c.DispatchQueueSize
	}
	return DefaultDispatchQueueSize
}

// GetFrameRate returns the nominal camera frame rate.
func (c *EngineConfig) GetFrameRate() float64 {
	if c.FrameRate != nil {
		return *c.FrameRate
	}
	return DefaultFrameRate
}
