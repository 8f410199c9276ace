package vision

import "time"

// ViolationType identifies which rule a violation event came from.
type ViolationType string

const (
	ViolationIllegalParking ViolationType = "ILLEGAL_PARKING"
	ViolationWrongWay       ViolationType = "WRONG_WAY"
)

// The violation-type universe is closed and small, so per-track fired flags
// are an enum-indexed boolean array rather than a dynamic map.
const numViolationTypes = 2

func violationIndex(t ViolationType) int {
	switch t {
	case ViolationIllegalParking:
		return 0
	case ViolationWrongWay:
		return 1
	}
	return -1
}

// ValidViolationType reports whether s names a known violation type.
func ValidViolationType(s string) bool {
	return violationIndex(ViolationType(s)) >= 0
}

// ViolationEvent is the engine's output record. It is immutable once
// constructed; ownership transfers to the dispatch sink on emission.
type ViolationEvent struct {
	Type         ViolationType          `json:"violation_type"`
	Confidence   float64                `json:"confidence"`
	ObjectID     int64                  `json:"object_id"`
	SnapshotPath string                 `json:"snapshot_path,omitempty"`
	ZoneID       string                 `json:"zone_id,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is the engine-side detection time. The sink assigns its own
	// server-side identity and timestamp on persistence.
	CreatedAt time.Time `json:"-"`
}
