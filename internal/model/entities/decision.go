package entities

import "time"

// DecisionAction is what the decision engine wants done with a field.
type DecisionAction string

const (
	ActionStartIrrigation DecisionAction = "start_irrigation"
	ActionStopIrrigation  DecisionAction = "stop_irrigation"
	ActionMaintain        DecisionAction = "maintain"
)

// NotificationLevel orders operator notifications.
type NotificationLevel string

const (
	NotifyInfo NotificationLevel = "info"
	NotifyHigh NotificationLevel = "high"
)

// Notification is an operator-facing message attached to a decision or
// emitted by the monitor loop.
type Notification struct {
	Level   NotificationLevel `json:"level"`
	Message string            `json:"message"`
}

// Decision is the output of the AWD decision engine for one field at one
// point in time.
type Decision struct {
	Action        DecisionAction `json:"action"`
	TargetLevelCm float64        `json:"target_level_cm,omitempty"`
	Duration      time.Duration  `json:"duration,omitempty"`
	Reason        string         `json:"reason"`

	// Emergency marks the moisture-override path; it always takes
	// precedence over phase-derived decisions in the drying phase.
	Emergency bool `json:"emergency,omitempty"`

	// Confidence drops below 1 when the engine had to fall back to a
	// configured default water level instead of a live reading.
	Confidence float64 `json:"confidence"`

	Notifications []Notification `json:"notifications,omitempty"`
}

// Rainfall is the weather oracle's answer for a field's location.
type Rainfall struct {
	AmountMm   float64   `json:"amount_mm"`
	ForecastMm []float64 `json:"forecast_mm,omitempty"`
}
