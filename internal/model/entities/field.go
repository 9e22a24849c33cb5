package entities

import "time"

// PlantingMethod selects which AWD phase schedule template applies to a field.
type PlantingMethod string

const (
	PlantingTransplanted PlantingMethod = "transplanted"
	PlantingDirectSeeded PlantingMethod = "direct-seeded"
)

// Field represents a managed irrigation unit (one paddy plot).
type Field struct {
	ID             string         `gorm:"primaryKey" json:"id"`
	Name           string         `json:"name"`
	AreaHa         float64        `json:"area_ha"`
	SoilType       string         `json:"soil_type"`
	ZoneID         string         `gorm:"index" json:"zone_id"`
	PlantingMethod PlantingMethod `json:"planting_method"`

	// AwdEnabled soft-disables the field: the decision engine always
	// returns "maintain" while false. Fields are never deleted.
	AwdEnabled bool `json:"awd_enabled"`

	// ScheduleAnchorDate is the start of growth week 0.
	ScheduleAnchorDate time.Time `json:"schedule_anchor_date"`

	// StationCode is the external SCADA gate identifier; empty until mapped.
	StationCode string `json:"station_code"`

	// PriorityLevel 1..10, combined with urgency signals by downstream
	// coordination tooling. Stored and surfaced, not acted on here.
	PriorityLevel int `json:"priority_level"`

	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	// DefaultLevelCm is the GIS-derived water height used when no sensor
	// reading is available.
	DefaultLevelCm float64 `json:"default_level_cm"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GrowthWeek returns the number of whole weeks elapsed since the schedule
// anchor date. Negative spans clamp to week 0.
func (f *Field) GrowthWeek(now time.Time) int {
	if f.ScheduleAnchorDate.IsZero() || now.Before(f.ScheduleAnchorDate) {
		return 0
	}
	return int(now.Sub(f.ScheduleAnchorDate).Hours() / (24 * 7))
}

// AwdConfiguration holds the tunable thresholds for a field. Exactly one
// row per field is active; updates insert a new version and flip the flag
// so the audit history is preserved.
type AwdConfiguration struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	FieldID string `gorm:"index" json:"field_id"`
	Version int    `json:"version"`
	Active  bool   `gorm:"index" json:"active"`

	DryingDepthCm        float64 `json:"drying_depth_cm"`
	SafeAwdDepthCm       float64 `json:"safe_awd_depth_cm"`
	EmergencyMoisturePct float64 `json:"emergency_moisture_pct"`
	RainfallThresholdMm  float64 `json:"rainfall_threshold_mm"`
	ToleranceCm          float64 `json:"tolerance_cm"`

	CreatedAt time.Time `json:"created_at"`
}

// DefaultAwdConfiguration returns the stock thresholds applied when a field
// is registered without explicit tuning.
func DefaultAwdConfiguration(fieldID string) AwdConfiguration {
	return AwdConfiguration{
		FieldID:              fieldID,
		Version:              1,
		Active:               true,
		DryingDepthCm:        15,
		SafeAwdDepthCm:       15,
		EmergencyMoisturePct: 20,
		RainfallThresholdMm:  5,
		ToleranceCm:          1,
	}
}
