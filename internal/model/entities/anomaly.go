package entities

import "time"

// AnomalyType classifies a detected irrigation irregularity.
type AnomalyType string

const (
	AnomalyLowFlow       AnomalyType = "low_flow"
	AnomalyNoRise        AnomalyType = "no_rise"
	AnomalyRapidDrop     AnomalyType = "rapid_drop"
	AnomalySensorFailure AnomalyType = "sensor_failure"
	AnomalyOverflowRisk  AnomalyType = "overflow_risk"
)

// AnomalySeverity: warnings are recorded and surfaced but do not halt
// irrigation; critical anomalies always force a stop.
type AnomalySeverity string

const (
	SeverityWarning  AnomalySeverity = "warning"
	SeverityCritical AnomalySeverity = "critical"
)

// Anomaly is a durable record of a deviation detected during an active
// session. Every forced stop leaves one of these behind with a
// human-readable description.
type Anomaly struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	SessionID string          `gorm:"index" json:"session_id"`
	FieldID   string          `gorm:"index" json:"field_id"`
	Type      AnomalyType     `gorm:"index" json:"type"`
	Severity  AnomalySeverity `gorm:"index" json:"severity"`

	DetectedAt  time.Time `json:"detected_at"`
	Description string    `json:"description"`

	// Metrics snapshot at detection time.
	WaterLevelCm  float64 `json:"water_level_cm"`
	FlowRateCmMin float64 `json:"flow_rate_cm_min"`

	ResolutionAction string     `json:"resolution_action,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
}

// Resolved reports whether the anomaly has been closed out.
func (a *Anomaly) Resolved() bool { return a.ResolvedAt != nil }
