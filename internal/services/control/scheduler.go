package control

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/munbon/awd-control/internal/model/entities"
	"github.com/munbon/awd-control/internal/model/messages"
	"github.com/munbon/awd-control/internal/services/decision"
	"github.com/munbon/awd-control/internal/store"
)

// Scheduler runs the decision engine over every AWD-enabled field on a
// fixed cadence and dispatches the outcomes through the controller.
type Scheduler struct {
	ctrl     *Controller
	weather  WeatherClient
	interval time.Duration
}

func NewScheduler(ctrl *Controller, weather WeatherClient, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{ctrl: ctrl, weather: weather, interval: interval}
}

// Run evaluates once at startup and then on every tick until ctx ends.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep evaluates all enabled fields. Per-field failures are logged and
// skipped so one broken field never blocks the rest of the zone.
func (s *Scheduler) Sweep(ctx context.Context) {
	fields, err := s.ctrl.fields.ListEnabled(ctx)
	if err != nil {
		log.Printf("scheduler: field list error: %v", err)
		return
	}
	for i := range fields {
		if err := s.evaluateField(ctx, &fields[i]); err != nil {
			log.Printf("scheduler: field %s evaluation error: %v", fields[i].ID, err)
		}
	}
}

func (s *Scheduler) evaluateField(ctx context.Context, field *entities.Field) error {
	cfg, err := s.ctrl.fields.ActiveConfig(ctx, field.ID)
	if err != nil {
		return err
	}

	var reading *entities.SensorReading
	rctx, cancel := context.WithTimeout(ctx, s.ctrl.cfg.SensorTimeout)
	if r, rerr := s.ctrl.sensors.Latest(rctx, field.ID); rerr == nil {
		reading = r
	} else if !errors.Is(rerr, ErrSensorUnavailable) {
		log.Printf("scheduler: reading fetch for %s: %v", field.ID, rerr)
	}
	cancel()

	var weather *entities.Rainfall
	if s.weather != nil {
		if w, werr := s.weather.Rainfall(ctx, field.Latitude, field.Longitude); werr == nil {
			weather = w
		} else {
			log.Printf("scheduler: weather fetch for %s: %v", field.ID, werr)
		}
	}

	week := field.GrowthWeek(time.Now())
	d := decision.Decide(field, cfg, week, reading, weather)
	if s.ctrl.metrics != nil {
		s.ctrl.metrics.Decisions.WithLabelValues(string(d.Action)).Inc()
	}

	evt := messages.IrrigationDecisionEvent{
		FieldID:       field.ID,
		Week:          week,
		Phase:         entities.ScheduleFor(field.PlantingMethod).Lookup(week).Phase,
		Action:        d.Action,
		TargetLevelCm: d.TargetLevelCm,
		DurationMin:   d.Duration.Minutes(),
		Reason:        d.Reason,
		Emergency:     d.Emergency,
		Confidence:    d.Confidence,
	}

	switch d.Action {
	case entities.ActionStartIrrigation:
		req := StartRequest{
			FieldID:       field.ID,
			TargetLevelCm: d.TargetLevelCm,
			Reason:        d.Reason,
			Emergency:     d.Emergency,
		}
		// Emergency and land-preparation runs are fixed-length. Everything
		// else leaves the duration unset so the controller can prefer the
		// analytics predictor over the engine's naive estimate once the
		// field has history.
		if d.Emergency || evt.Phase == entities.PhasePreparation {
			req.Duration = d.Duration
		}
		sess, serr := s.ctrl.StartIrrigation(ctx, req)
		switch {
		case errors.Is(serr, store.ErrConflict):
			log.Printf("scheduler: field %s already irrigating, decision %q skipped", field.ID, d.Reason)
		case serr != nil:
			return serr
		default:
			evt.SessionID = sess.ID
		}

	case entities.ActionStopIrrigation:
		sess, serr := s.ctrl.StopIrrigation(ctx, field.ID, d.Reason)
		switch {
		case errors.Is(serr, store.ErrNotFound):
			// Nothing running, nothing to stop.
		case serr != nil:
			return serr
		default:
			evt.SessionID = sess.ID
		}

	case entities.ActionMaintain:
		// No dispatch.
	}

	s.ctrl.events.Decision(evt)
	for _, n := range d.Notifications {
		s.ctrl.events.Notify(field.ID, n.Level, n.Message)
	}
	return nil
}
