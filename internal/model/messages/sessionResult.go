package messages

import (
	"time"

	"github.com/munbon/awd-control/internal/model/entities"
)

// SessionResultEvent is published when a session reaches a terminal state.
type SessionResultEvent struct {
	SessionID       string                 `json:"session_id"`
	FieldID         string                 `json:"field_id"`
	Status          entities.SessionStatus `json:"status"`
	Reason          string                 `json:"reason,omitempty"`
	InitialLevelCm  float64                `json:"initial_level_cm"`
	TargetLevelCm   float64                `json:"target_level_cm"`
	AchievedLevelCm float64                `json:"achieved_level_cm"`
	DurationMin     float64                `json:"duration_min"`
	VolumeLiters    float64                `json:"volume_liters"`
	StartedAt       time.Time              `json:"started_at"`
	Timestamp       time.Time              `json:"timestamp"`
}
