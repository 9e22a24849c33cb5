// Package decision holds the AWD decision engine: a pure function from
// (field, configuration, growth week, latest reading, weather) to an
// irrigation decision. All side effects live in the control service.
package decision

import (
	"fmt"
	"math"
	"time"

	"github.com/munbon/awd-control/internal/model/entities"
)

const (
	// reFloodTargetCm: the level drying-phase re-flooding aims for, per
	// standard AWD practice (re-flood to a shallow 5cm pond).
	reFloodTargetCm = 5.0

	// emergencyDuration: fixed run length of the moisture-override start.
	emergencyDuration = 120 * time.Minute

	// preparationDuration: land soaking runs for two days.
	preparationDuration = 48 * time.Hour
)

// Decide computes the irrigation decision for a field at a given growth
// week. It is deterministic: identical inputs always produce the identical
// decision. reading and weather may be nil; a nil reading falls back to the
// field's configured default level with reduced confidence, a nil weather
// is treated as zero rainfall.
func Decide(field *entities.Field, cfg *entities.AwdConfiguration, week int, reading *entities.SensorReading, weather *entities.Rainfall) entities.Decision {
	if !field.AwdEnabled {
		return entities.Decision{Action: entities.ActionMaintain, Reason: "AWD inactive", Confidence: 1}
	}

	pw := entities.ScheduleFor(field.PlantingMethod).Lookup(week)

	confidence := 1.0
	level := field.DefaultLevelCm
	if reading != nil && reading.WaterLevelCm != nil {
		level = *reading.WaterLevelCm
	} else {
		confidence = 0.5
	}

	rainfall := 0.0
	if weather != nil {
		rainfall = weather.AmountMm
	}

	switch pw.Phase {
	case entities.PhasePreparation:
		return entities.Decision{
			Action:        entities.ActionStartIrrigation,
			TargetLevelCm: pw.TargetLevelCm,
			Duration:      preparationDuration,
			Reason:        "Field preparation phase",
			Confidence:    confidence,
		}

	case entities.PhaseHarvest:
		// Never overridden by sensor data: the field must drain.
		return entities.Decision{
			Action:     entities.ActionStopIrrigation,
			Reason:     "Harvest preparation phase",
			Confidence: confidence,
			Notifications: []entities.Notification{
				{Level: entities.NotifyHigh, Message: fmt.Sprintf("Field %s entering harvest preparation: terminal drainage", field.ID)},
			},
		}

	case entities.PhaseWetting:
		return decideWetting(field, cfg, pw, level, rainfall, confidence)

	case entities.PhaseDrying:
		return decideDrying(field, cfg, week, reading, level, confidence)
	}

	return entities.Decision{Action: entities.ActionMaintain, Reason: "unknown phase", Confidence: 0}
}

func decideWetting(field *entities.Field, cfg *entities.AwdConfiguration, pw entities.PhaseWeek, level, rainfall, confidence float64) entities.Decision {
	if rainfall > cfg.RainfallThresholdMm {
		// 10mm of rain raises the pond roughly 1cm.
		estimated := level + rainfall/10
		if estimated >= pw.TargetLevelCm {
			return entities.Decision{
				Action:     entities.ActionStopIrrigation,
				Reason:     "Rainfall sufficient",
				Confidence: confidence,
			}
		}
	}

	if level >= pw.TargetLevelCm {
		return entities.Decision{
			Action:     entities.ActionMaintain,
			Reason:     "Target level achieved",
			Confidence: confidence,
		}
	}

	d := entities.Decision{
		Action:        entities.ActionStartIrrigation,
		TargetLevelCm: pw.TargetLevelCm,
		Duration:      NaiveDuration(level, pw.TargetLevelCm),
		Reason:        "Wetting phase - below target level",
		Confidence:    confidence,
	}
	if pw.FertilizerNotice {
		d.Notifications = append(d.Notifications, entities.Notification{
			Level:   entities.NotifyHigh,
			Message: fmt.Sprintf("Field %s: apply fertilizer before re-flooding completes", field.ID),
		})
	}
	return d
}

func decideDrying(field *entities.Field, cfg *entities.AwdConfiguration, week int, reading *entities.SensorReading, level, confidence float64) entities.Decision {
	// Emergency moisture override is evaluated first and always wins over
	// the phase-derived stop.
	if reading != nil && reading.MoisturePct != nil && *reading.MoisturePct < cfg.EmergencyMoisturePct {
		return entities.Decision{
			Action:        entities.ActionStartIrrigation,
			TargetLevelCm: reFloodTargetCm,
			Duration:      emergencyDuration,
			Reason:        "Moisture critically low",
			Emergency:     true,
			Confidence:    confidence,
			Notifications: []entities.Notification{
				{Level: entities.NotifyHigh, Message: fmt.Sprintf("Field %s: emergency irrigation, soil moisture %.0f%% below %.0f%%", field.ID, *reading.MoisturePct, cfg.EmergencyMoisturePct)},
			},
		}
	}

	// Low-water alarm: the perched water table fell to the safe AWD depth.
	if level <= -cfg.SafeAwdDepthCm {
		return entities.Decision{
			Action:        entities.ActionStartIrrigation,
			TargetLevelCm: reFloodTargetCm,
			Duration:      NaiveDuration(level, reFloodTargetCm),
			Reason:        "Moisture threshold reached",
			Confidence:    confidence,
		}
	}

	return entities.Decision{
		Action:     entities.ActionStopIrrigation,
		Reason:     fmt.Sprintf("Drying phase - Week %d", week),
		Confidence: confidence,
	}
}

// NaiveDuration is the 1cm-per-hour fallback duration model with a one
// hour floor. The analytics predictor overrides it once enough history
// exists for the field.
func NaiveDuration(levelCm, targetCm float64) time.Duration {
	minutes := math.Max(60, (targetCm-levelCm)*60)
	return time.Duration(minutes) * time.Minute
}
