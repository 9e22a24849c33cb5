package entities

import "time"

// SessionStatus is the lifecycle state of an irrigation session.
type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionStopped   SessionStatus = "stopped"
	SessionFailed    SessionStatus = "failed"
)

// IrrigationSession is one irrigation cycle for a field. At most one
// session per field may be active at a time.
type IrrigationSession struct {
	ID          string        `gorm:"primaryKey" json:"id"`
	FieldID     string        `gorm:"index" json:"field_id"`
	StationCode string        `json:"station_code"`
	Status      SessionStatus `gorm:"index" json:"status"`

	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	InitialLevelCm  float64    `json:"initial_level_cm"`
	TargetLevelCm   float64    `json:"target_level_cm"`
	AchievedLevelCm *float64   `json:"achieved_level_cm,omitempty"`

	// Monitoring parameters, frozen at session creation.
	ToleranceCm          float64       `json:"tolerance_cm"`
	MaxDuration          time.Duration `json:"max_duration"`
	CheckInterval        time.Duration `json:"check_interval"`
	MinFlowRateCmMin     float64       `json:"min_flow_rate_cm_min"`
	EmergencyStopLevelCm float64       `json:"emergency_stop_level_cm"`

	GateLevel    int    `json:"gate_level"`
	StopReason   string `json:"stop_reason,omitempty"`
	AnomalyCount int    `json:"anomaly_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether the session has reached a final state.
func (s *IrrigationSession) Terminal() bool {
	switch s.Status {
	case SessionCompleted, SessionStopped, SessionFailed:
		return true
	}
	return false
}

// MonitoringSample is one monitor-loop poll result, owned by a session.
// Samples are append-only time-series facts (not relational rows).
type MonitoringSample struct {
	SessionID         string    `json:"session_id"`
	FieldID           string    `json:"field_id"`
	Timestamp         time.Time `json:"timestamp"`
	WaterLevelCm      float64   `json:"water_level_cm"`
	FlowRateCmMin     float64   `json:"flow_rate_cm_min"`
	SensorReliability float64   `json:"sensor_reliability"`
	GateLevel         int       `json:"gate_level"`
}
