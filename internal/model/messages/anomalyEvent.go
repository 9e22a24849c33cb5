package messages

import (
	"time"

	"github.com/munbon/awd-control/internal/model/entities"
)

// AnomalyEvent is published after an anomaly record has been persisted, so
// the durable record always exists before anyone is notified.
type AnomalyEvent struct {
	FieldID       string                   `json:"field_id"`
	SessionID     string                   `json:"session_id"`
	Type          entities.AnomalyType     `json:"type"`
	Severity      entities.AnomalySeverity `json:"severity"`
	Description   string                   `json:"description"`
	WaterLevelCm  float64                  `json:"water_level_cm"`
	FlowRateCmMin float64                  `json:"flow_rate_cm_min"`
	Timestamp     time.Time                `json:"timestamp"`
}

// Notification is an operator-facing push message on notify/{level}/{field}.
type Notification struct {
	FieldID   string                     `json:"field_id"`
	Level     entities.NotificationLevel `json:"level"`
	Message   string                     `json:"message"`
	Timestamp time.Time                  `json:"timestamp"`
}
