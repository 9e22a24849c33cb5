package messages

import (
	"time"

	"github.com/munbon/awd-control/internal/model/entities"
)

// IrrigationDecisionEvent is published by the control service to record
// WHY/WHAT the decision engine chose for a field.
type IrrigationDecisionEvent struct {
	FieldID       string                  `json:"field_id"`
	SessionID     string                  `json:"session_id,omitempty"`
	Week          int                     `json:"week"`
	Phase         entities.Phase          `json:"phase"`
	Action        entities.DecisionAction `json:"action"`
	TargetLevelCm float64                 `json:"target_level_cm,omitempty"`
	DurationMin   float64                 `json:"duration_min,omitempty"`
	Reason        string                  `json:"reason"`
	Emergency     bool                    `json:"emergency,omitempty"`
	Confidence    float64                 `json:"confidence"`
	Timestamp     time.Time               `json:"timestamp"`
}
