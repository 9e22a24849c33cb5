package entities

import "time"

// SensorType distinguishes the two reading kinds produced in the field.
type SensorType string

const (
	SensorWaterLevel SensorType = "water_level"
	SensorMoisture   SensorType = "moisture"
)

// SensorReading is an immutable time-series fact. Water level is measured
// in cm relative to the soil surface (negative = below ground, via the
// perforated AWD observation tube); moisture is a percentage.
type SensorReading struct {
	FieldID        string     `json:"field_id"`
	SensorID       string     `json:"sensor_id"`
	Timestamp      time.Time  `json:"timestamp"`
	SensorType     SensorType `json:"sensor_type"`
	WaterLevelCm   *float64   `json:"water_level_cm,omitempty"`
	MoisturePct    *float64   `json:"moisture_pct,omitempty"`
	TemperatureC   float64    `json:"temperature_c,omitempty"`
	BatteryVoltage float64    `json:"battery_voltage,omitempty"`
}

// Level returns the water level, or the given fallback when this reading
// carries no level channel.
func (r *SensorReading) Level(fallback float64) float64 {
	if r == nil || r.WaterLevelCm == nil {
		return fallback
	}
	return *r.WaterLevelCm
}

// Age returns how old the reading is relative to now.
func (r *SensorReading) Age(now time.Time) time.Duration {
	if r == nil {
		return 1<<63 - 1
	}
	return now.Sub(r.Timestamp)
}
