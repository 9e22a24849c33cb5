package control

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/munbon/awd-control/internal/model/entities"
	"github.com/munbon/awd-control/internal/services/analytics"
	"github.com/munbon/awd-control/internal/store"
)

// FieldStatus is the operator status view of a field.
type FieldStatus struct {
	FieldID        string  `json:"field_id"`
	Active         bool    `json:"active"`
	SessionID      string  `json:"session_id,omitempty"`
	CurrentLevelCm float64 `json:"current_level_cm"`
	TargetLevelCm  float64 `json:"target_level_cm,omitempty"`
	FlowRateCmMin  float64 `json:"flow_rate_cm_min"`
	EtaMin         float64 `json:"eta_min,omitempty"`
	GateLevel      int     `json:"gate_level,omitempty"`
	AnomaliesCount int     `json:"anomalies_count"`
}

// Status reports the field's live irrigation state. For idle fields the
// current level comes from the latest sensor reading.
func (c *Controller) Status(ctx context.Context, fieldID string) (*FieldStatus, error) {
	field, err := c.fields.Get(ctx, fieldID)
	if err != nil {
		return nil, err
	}

	st := &FieldStatus{FieldID: fieldID}
	sess, err := c.sessions.ActiveForField(ctx, fieldID)
	if errors.Is(err, store.ErrNotFound) {
		rctx, cancel := context.WithTimeout(ctx, c.cfg.SensorTimeout)
		defer cancel()
		if reading, rerr := c.sensors.Latest(rctx, fieldID); rerr == nil {
			st.CurrentLevelCm = reading.Level(field.DefaultLevelCm)
		} else {
			st.CurrentLevelCm = field.DefaultLevelCm
		}
		return st, nil
	}
	if err != nil {
		return nil, err
	}

	st.Active = true
	st.SessionID = sess.ID
	st.TargetLevelCm = sess.TargetLevelCm
	st.GateLevel = sess.GateLevel
	st.AnomaliesCount = sess.AnomalyCount
	st.CurrentLevelCm = sess.InitialLevelCm
	if sample, ok := c.lastSample(sess.ID); ok {
		st.CurrentLevelCm = sample.WaterLevelCm
		st.FlowRateCmMin = sample.FlowRateCmMin
		if sample.FlowRateCmMin > 0 && sample.WaterLevelCm < sess.TargetLevelCm {
			st.EtaMin = (sess.TargetLevelCm - sample.WaterLevelCm) / sample.FlowRateCmMin
		}
	}
	return st, nil
}

// Recommendation answers "how long would irrigating this field to the
// target take", using the analytics predictor over the field's history.
func (c *Controller) Recommendation(ctx context.Context, fieldID string, targetLevelCm *float64) (*analytics.Prediction, error) {
	field, err := c.fields.Get(ctx, fieldID)
	if err != nil {
		return nil, err
	}

	target := 0.0
	if targetLevelCm != nil {
		target = *targetLevelCm
	} else {
		target = entities.ScheduleFor(field.PlantingMethod).Lookup(field.GrowthWeek(time.Now())).TargetLevelCm
	}

	level := field.DefaultLevelCm
	rctx, cancel := context.WithTimeout(ctx, c.cfg.SensorTimeout)
	defer cancel()
	if reading, rerr := c.sensors.Latest(rctx, fieldID); rerr == nil {
		level = reading.Level(level)
	}

	pred, err := c.learn.Predict(ctx, fieldID, math.Max(0, target-level))
	if err != nil {
		return nil, err
	}
	return &pred, nil
}
