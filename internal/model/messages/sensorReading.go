package messages

import (
	"time"

	"github.com/munbon/awd-control/internal/model/entities"
)

// SensorReading is the wire payload published by field telemetry units on
// sensor/level/{field}/{sensor} and sensor/moisture/{field}/{sensor}.
type SensorReading struct {
	FieldID        string              `json:"field_id"`
	SensorID       string              `json:"sensor_id"`
	SensorType     entities.SensorType `json:"sensor_type"`
	WaterLevelCm   *float64            `json:"water_level_cm,omitempty"`
	MoisturePct    *float64            `json:"moisture_pct,omitempty"`
	TemperatureC   float64             `json:"temperature_c,omitempty"`
	BatteryVoltage float64             `json:"battery_voltage,omitempty"`
	Timestamp      time.Time           `json:"timestamp"`
}

// Entity converts the wire payload to the domain reading.
func (m SensorReading) Entity() entities.SensorReading {
	return entities.SensorReading{
		FieldID:        m.FieldID,
		SensorID:       m.SensorID,
		SensorType:     m.SensorType,
		WaterLevelCm:   m.WaterLevelCm,
		MoisturePct:    m.MoisturePct,
		TemperatureC:   m.TemperatureC,
		BatteryVoltage: m.BatteryVoltage,
		Timestamp:      m.Timestamp,
	}
}
