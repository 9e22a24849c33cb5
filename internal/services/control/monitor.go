package control

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/munbon/awd-control/internal/model/entities"
)

// monitor is the per-session watchdog: one goroutine per active session,
// polling the water level every CheckInterval and applying the anomaly
// rules in priority order.
type monitor struct {
	c    *Controller
	sess *entities.IrrigationSession

	sensorFailures int // consecutive failed reads
	lowFlowStreak  int // consecutive below-min-flow cycles under target
	lastLevel      float64
	lastTime       time.Time
}

// newMonitor seeds the flow baseline from the session's starting state so
// the first cycle already has a computable flow rate instead of a zero
// that the progress rules would read as low_flow.
func newMonitor(c *Controller, sess *entities.IrrigationSession) *monitor {
	return &monitor{
		c:         c,
		sess:      sess,
		lastLevel: sess.InitialLevelCm,
		lastTime:  sess.StartTime,
	}
}

func (m *monitor) run(ctx context.Context) {
	interval := m.sess.CheckInterval
	if interval <= 0 {
		interval = m.c.cfg.CheckInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("monitor: session %s watching field=%s interval=%s target=%.1fcm",
		m.sess.ID, m.sess.FieldID, interval, m.sess.TargetLevelCm)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if done := m.poll(ctx); done {
				return
			}
		}
	}
}

// poll runs one monitor cycle. Returns true once the session reached a
// terminal state and the monitor should exit.
func (m *monitor) poll(ctx context.Context) bool {
	if m.c.metrics != nil {
		m.c.metrics.MonitorPolls.Inc()
	}

	// An operator stop or a concurrent monitor may have ended the session
	// between ticks.
	active, err := m.c.sessions.IsActive(ctx, m.sess.ID)
	if err != nil {
		log.Printf("monitor: session %s status query error: %v", m.sess.ID, err)
		return false
	}
	if !active {
		m.c.cancelMonitor(m.sess.ID)
		return true
	}

	now := time.Now().UTC()

	rctx, cancel := context.WithTimeout(ctx, m.c.cfg.SensorTimeout)
	reading, rerr := m.c.sensors.Latest(rctx, m.sess.FieldID)
	cancel()

	var level float64
	stale := false
	if rerr == nil && reading.WaterLevelCm != nil {
		level = *reading.WaterLevelCm
		m.sensorFailures = 0
	} else {
		// Continue on the last known level while the sensor is out; the
		// failure streak decides when this stops being tolerable.
		level = m.lastLevel
		stale = true
		m.sensorFailures++
	}

	flowRate := 0.0
	if !stale {
		if elapsed := now.Sub(m.lastTime).Minutes(); elapsed > 0 {
			flowRate = (level - m.lastLevel) / elapsed
		}
	}

	reliability := math.Max(0, 1-0.25*float64(m.sensorFailures))
	sample := entities.MonitoringSample{
		SessionID:         m.sess.ID,
		FieldID:           m.sess.FieldID,
		Timestamp:         now,
		WaterLevelCm:      level,
		FlowRateCmMin:     flowRate,
		SensorReliability: reliability,
		GateLevel:         m.sess.GateLevel,
	}
	// Every cycle leaves a sample, anomalous or not: the analytics record
	// and the post-mortem trace both need the full series.
	m.c.appendSample(sample)
	if m.c.samples != nil {
		if err := m.c.samples.WriteSample(ctx, sample); err != nil {
			log.Printf("monitor: sample write error for session %s: %v", m.sess.ID, err)
		}
	}

	done := m.evaluate(ctx, now, level, flowRate, stale)
	if !stale {
		m.lastLevel = level
		m.lastTime = now
	}
	return done
}

// evaluate applies completion and anomaly rules. Rule order is fixed:
// sensor_failure, rapid_drop, overflow_risk, then completion, then the
// progress rules (no_rise, low_flow), then max duration.
func (m *monitor) evaluate(ctx context.Context, now time.Time, level, flowRate float64, stale bool) bool {
	sess := m.sess

	if stale {
		if m.sensorFailures >= m.c.cfg.SensorFailureLimit {
			desc := fmt.Sprintf("sensor unreadable for %d consecutive checks", m.sensorFailures)
			m.c.recordAnomaly(ctx, sess, entities.AnomalySensorFailure, entities.SeverityCritical,
				desc, level, flowRate, "stop irrigation")
			m.finish(ctx, entities.SessionStopped, "sensor_failure: "+desc, level)
			return true
		}
		m.c.recordAnomaly(ctx, sess, entities.AnomalySensorFailure, entities.SeverityWarning,
			fmt.Sprintf("sensor read failed (%d/%d), holding last known level %.1fcm",
				m.sensorFailures, m.c.cfg.SensorFailureLimit, level),
			level, flowRate, "continue with last known level")
		return false
	}

	// rapid_drop: the level fell hard while the gate is open, which means
	// water is leaving the field somewhere it should not.
	if m.prevDrop(level) >= m.c.cfg.RapidDropCm {
		desc := fmt.Sprintf("level dropped %.1fcm in one interval (threshold %.1fcm)",
			m.prevDrop(level), m.c.cfg.RapidDropCm)
		m.c.recordAnomaly(ctx, sess, entities.AnomalyRapidDrop, entities.SeverityCritical,
			desc, level, flowRate, "stop irrigation, suspected breach or drain failure")
		m.finish(ctx, entities.SessionStopped, "rapid_drop: "+desc, level)
		return true
	}

	// overflow_risk: past target plus tolerance, or at the emergency stop
	// level. Always wins over completion.
	if level > sess.TargetLevelCm+sess.ToleranceCm || level >= sess.EmergencyStopLevelCm {
		desc := fmt.Sprintf("level %.1fcm exceeds target %.1fcm + tolerance %.1fcm (emergency stop %.1fcm)",
			level, sess.TargetLevelCm, sess.ToleranceCm, sess.EmergencyStopLevelCm)
		m.c.recordAnomaly(ctx, sess, entities.AnomalyOverflowRisk, entities.SeverityCritical,
			desc, level, flowRate, "stop irrigation")
		m.finish(ctx, entities.SessionStopped, "overflow_risk: "+desc, level)
		return true
	}

	// Completion: within tolerance of target.
	if math.Abs(level-sess.TargetLevelCm) <= sess.ToleranceCm {
		m.finish(ctx, entities.SessionCompleted,
			fmt.Sprintf("target %.1fcm reached (level %.1fcm)", sess.TargetLevelCm, level), level)
		return true
	}

	// Progress rules only apply while still below target.
	if level < sess.TargetLevelCm && flowRate < sess.MinFlowRateCmMin {
		m.lowFlowStreak++
		if m.lowFlowStreak >= m.c.cfg.NoRiseChecks {
			desc := fmt.Sprintf("no rise over %d consecutive checks (flow %.4fcm/min)",
				m.lowFlowStreak, flowRate)
			m.c.recordAnomaly(ctx, sess, entities.AnomalyNoRise, entities.SeverityCritical,
				desc, level, flowRate, "stop irrigation, suspected blocked inlet or upstream shortage")
			m.finish(ctx, entities.SessionStopped, "no_rise: "+desc, level)
			return true
		}
		m.c.recordAnomaly(ctx, sess, entities.AnomalyLowFlow, entities.SeverityWarning,
			fmt.Sprintf("flow %.4fcm/min below minimum %.4fcm/min (%d/%d)",
				flowRate, sess.MinFlowRateCmMin, m.lowFlowStreak, m.c.cfg.NoRiseChecks),
			level, flowRate, "raise gate one level")
		m.c.adjustGate(ctx, sess)
	} else {
		m.lowFlowStreak = 0
	}

	if now.Sub(sess.StartTime) >= sess.MaxDuration {
		m.finish(ctx, entities.SessionFailed,
			fmt.Sprintf("%s: %s elapsed at level %.1fcm", ErrDurationExceeded, sess.MaxDuration, level), level)
		return true
	}
	return false
}

// prevDrop is the level fall since the previous cycle, zero when rising.
func (m *monitor) prevDrop(level float64) float64 {
	return math.Max(0, m.lastLevel-level)
}

func (m *monitor) finish(ctx context.Context, status entities.SessionStatus, reason string, level float64) {
	if _, err := m.c.finishSession(ctx, m.sess, status, reason, level, true); err != nil {
		log.Printf("monitor: session %s finish error: %v", m.sess.ID, err)
	}
}
