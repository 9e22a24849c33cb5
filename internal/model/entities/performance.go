package entities

import "time"

// PerformanceRecord is derived from a completed session and feeds future
// duration/flow predictions and water-savings reporting.
type PerformanceRecord struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	SessionID string `gorm:"uniqueIndex" json:"session_id"`
	FieldID   string `gorm:"index" json:"field_id"`

	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	DurationMin float64   `json:"duration_min"`

	WaterVolumeLiters float64 `json:"water_volume_liters"`
	AvgFlowRateCmMin  float64 `json:"avg_flow_rate_cm_min"`
	MaxFlowRateCmMin  float64 `json:"max_flow_rate_cm_min"`
	MinFlowRateCmMin  float64 `json:"min_flow_rate_cm_min"`

	// EfficiencyScore in [0,1]: target-achievement ratio discounted by an
	// anomaly penalty.
	EfficiencyScore float64 `json:"efficiency_score"`

	// Environmental snapshot.
	TemperatureC       float64 `json:"temperature_c"`
	RainfallMm         float64 `json:"rainfall_mm"`
	ConcurrentSessions int     `json:"concurrent_sessions"`

	CreatedAt time.Time `json:"created_at"`
}
