// Package control is the execution side of the AWD system: it turns
// decision-engine output into irrigation sessions and SCADA gate commands,
// runs one monitor loop per active session, and exposes the operator API.
package control

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/munbon/awd-control/internal/model/entities"
	"github.com/munbon/awd-control/internal/model/messages"
	"github.com/munbon/awd-control/internal/scada"
	"github.com/munbon/awd-control/internal/services/analytics"
	"github.com/munbon/awd-control/internal/store"
)

// Config carries the monitor-loop tunables. The documented example values
// are defaults, not contracts: everything here is env-configurable.
type Config struct {
	CheckInterval        time.Duration // default 300s, clamped to [180s, 600s]
	DefaultToleranceCm   float64
	DefaultMaxDuration   time.Duration
	MinFlowRateCmMin     float64
	RapidDropCm          float64
	NoRiseChecks         int
	SensorFailureLimit   int
	EmergencyStopAboveCm float64 // emergency stop level = target + this
	SensorTimeout        time.Duration
}

// Sanitize fills zero values and clamps the check interval.
func (c *Config) Sanitize() {
	if c.CheckInterval == 0 {
		c.CheckInterval = 300 * time.Second
	}
	if c.CheckInterval < 180*time.Second {
		c.CheckInterval = 180 * time.Second
	}
	if c.CheckInterval > 600*time.Second {
		c.CheckInterval = 600 * time.Second
	}
	if c.DefaultToleranceCm <= 0 {
		c.DefaultToleranceCm = 1
	}
	if c.DefaultMaxDuration <= 0 {
		c.DefaultMaxDuration = 12 * time.Hour
	}
	if c.MinFlowRateCmMin <= 0 {
		c.MinFlowRateCmMin = 0.005
	}
	if c.RapidDropCm <= 0 {
		c.RapidDropCm = 2
	}
	if c.NoRiseChecks <= 0 {
		c.NoRiseChecks = 3
	}
	if c.SensorFailureLimit <= 0 {
		c.SensorFailureLimit = 3
	}
	if c.EmergencyStopAboveCm <= 0 {
		c.EmergencyStopAboveCm = 5
	}
	if c.SensorTimeout <= 0 {
		c.SensorTimeout = 5 * time.Second
	}
}

// StartRequest is a start_irrigation call, from the operator API or the
// decision scheduler.
type StartRequest struct {
	FieldID              string        `json:"field_id"`
	TargetLevelCm        float64       `json:"target_level_cm"`
	ToleranceCm          float64       `json:"tolerance_cm,omitempty"`
	MaxDuration          time.Duration `json:"max_duration,omitempty"`
	EmergencyStopLevelCm float64       `json:"emergency_stop_level_cm,omitempty"`
	Duration             time.Duration `json:"duration,omitempty"`
	Reason               string        `json:"reason,omitempty"`
	Emergency            bool          `json:"emergency,omitempty"`
}

// Controller owns session lifecycle and gate dispatch.
type Controller struct {
	fields    *store.FieldStore
	sessions  *store.SessionStore
	anomalies *store.AnomalyStore
	learn     *analytics.Service
	sensors   SensorSource
	flow      FlowClient
	sink      scada.CommandSink
	events    *EventPublisher
	samples   SampleWriter
	metrics   *Metrics
	cfg       Config

	// Per-field start/stop serialization; paired with the transactional
	// check in SessionStore.CreateActive this closes the two-concurrent-
	// starts race.
	fieldMu    sync.Mutex
	fieldLocks map[string]*sync.Mutex

	// Monitor bookkeeping, keyed by session id.
	monMu     sync.Mutex
	monitors  map[string]context.CancelFunc
	sampleLog map[string][]entities.MonitoringSample
	last      sync.Map // session id -> entities.MonitoringSample

	runCtx context.Context
}

func NewController(
	fields *store.FieldStore,
	sessions *store.SessionStore,
	anomalies *store.AnomalyStore,
	learn *analytics.Service,
	sensors SensorSource,
	flow FlowClient,
	sink scada.CommandSink,
	events *EventPublisher,
	samples SampleWriter,
	metrics *Metrics,
	cfg Config,
) *Controller {
	cfg.Sanitize()
	return &Controller{
		fields:     fields,
		sessions:   sessions,
		anomalies:  anomalies,
		learn:      learn,
		sensors:    sensors,
		flow:       flow,
		sink:       sink,
		events:     events,
		samples:    samples,
		metrics:    metrics,
		cfg:        cfg,
		fieldLocks: make(map[string]*sync.Mutex),
		monitors:   make(map[string]context.CancelFunc),
		sampleLog:  make(map[string][]entities.MonitoringSample),
		runCtx:     context.Background(),
	}
}

// Run resumes monitors for sessions that were active at shutdown and
// blocks until ctx is cancelled. Monitors spawned later inherit ctx.
func (c *Controller) Run(ctx context.Context) {
	c.runCtx = ctx
	active, err := c.sessions.ListActive(ctx)
	if err != nil {
		log.Printf("control: resume query error: %v", err)
	}
	for i := range active {
		sess := active[i]
		log.Printf("control: resuming monitor for session %s field=%s", sess.ID, sess.FieldID)
		c.spawnMonitor(&sess)
	}
	if c.metrics != nil {
		c.metrics.ActiveSessions.Set(float64(len(active)))
	}
	<-ctx.Done()
}

func (c *Controller) lockField(fieldID string) func() {
	c.fieldMu.Lock()
	mu, ok := c.fieldLocks[fieldID]
	if !ok {
		mu = &sync.Mutex{}
		c.fieldLocks[fieldID] = mu
	}
	c.fieldMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// StartIrrigation creates an active session for the field and dispatches
// the gate-open command. Returns store.ErrConflict while another session
// is active, store.ErrNotFound for unknown fields.
func (c *Controller) StartIrrigation(ctx context.Context, req StartRequest) (*entities.IrrigationSession, error) {
	field, err := c.fields.Get(ctx, req.FieldID)
	if err != nil {
		return nil, err
	}

	unlock := c.lockField(field.ID)
	defer unlock()

	level := field.DefaultLevelCm
	rctx, cancel := context.WithTimeout(ctx, c.cfg.SensorTimeout)
	reading, rerr := c.sensors.Latest(rctx, field.ID)
	cancel()
	if rerr != nil {
		log.Printf("control: no reading for %s at start, using default level %.1fcm: %v", field.ID, level, rerr)
	} else {
		level = reading.Level(level)
	}

	target := req.TargetLevelCm
	if target == 0 {
		target = entities.ScheduleFor(field.PlantingMethod).Lookup(field.GrowthWeek(time.Now())).TargetLevelCm
	}
	tolerance := req.ToleranceCm
	if tolerance <= 0 {
		if cfg, err := c.fields.ActiveConfig(ctx, field.ID); err == nil {
			tolerance = cfg.ToleranceCm
		}
	}
	if tolerance <= 0 {
		tolerance = c.cfg.DefaultToleranceCm
	}
	maxDur := req.MaxDuration
	if maxDur <= 0 {
		maxDur = c.cfg.DefaultMaxDuration
	}
	emergencyStop := req.EmergencyStopLevelCm
	if emergencyStop <= 0 {
		emergencyStop = target + c.cfg.EmergencyStopAboveCm
	}

	duration := req.Duration
	if duration <= 0 {
		pred, perr := c.learn.Predict(ctx, field.ID, math.Max(0, target-level))
		if perr != nil {
			return nil, fmt.Errorf("predict duration: %w", perr)
		}
		duration = pred.Duration
	}

	flowM3s := requiredFlowM3s(level, target, field.AreaHa, duration)
	advice, ferr := c.flow.GateLevelForFlow(ctx, field.StationCode, flowM3s)
	if ferr != nil {
		advice = FallbackGateAdvice(flowM3s)
		log.Printf("control: flow service unavailable for %s, using fallback gate level %d: %v",
			field.StationCode, advice.GateLevel, ferr)
	}

	sess := &entities.IrrigationSession{
		ID:                   uuid.New().String(),
		FieldID:              field.ID,
		StationCode:          field.StationCode,
		StartTime:            time.Now().UTC(),
		InitialLevelCm:       level,
		TargetLevelCm:        target,
		ToleranceCm:          tolerance,
		MaxDuration:          maxDur,
		CheckInterval:        c.cfg.CheckInterval,
		MinFlowRateCmMin:     c.cfg.MinFlowRateCmMin,
		EmergencyStopLevelCm: emergencyStop,
		GateLevel:            advice.GateLevel,
	}
	if err := c.sessions.CreateActive(ctx, sess); err != nil {
		return nil, err
	}

	// Gate command failures do not roll the session back: the sink's own
	// polling retries delivery and the monitor loop will observe whether
	// water actually moves.
	if _, err := c.sink.Submit(ctx, field.StationCode, advice.GateLevel, sess.ID); err != nil {
		log.Printf("control: gate open command failed for session %s: %v", sess.ID, err)
		c.events.Notify(field.ID, entities.NotifyHigh,
			fmt.Sprintf("Gate open command for %s failed, SCADA sink will retry", field.StationCode))
	} else if c.metrics != nil {
		c.metrics.GateCommands.WithLabelValues("open").Inc()
	}

	c.spawnMonitor(sess)
	if c.metrics != nil {
		c.metrics.ActiveSessions.Inc()
	}
	c.events.Notify(field.ID, entities.NotifyInfo,
		fmt.Sprintf("Irrigation started for field %s: %.1fcm -> %.1fcm", field.ID, level, target))
	log.Printf("control: session %s started field=%s level=%.1f target=%.1f gate=%d duration=%s",
		sess.ID, field.ID, level, target, advice.GateLevel, duration)
	return sess, nil
}

// StopIrrigation stops the field's active session. Stopping a field whose
// latest session is already terminal is a no-op returning that session, so
// repeated stops neither error nor duplicate the gate-close command.
func (c *Controller) StopIrrigation(ctx context.Context, fieldID, reason string) (*entities.IrrigationSession, error) {
	if _, err := c.fields.Get(ctx, fieldID); err != nil {
		return nil, err
	}

	unlock := c.lockField(fieldID)
	defer unlock()

	sess, err := c.sessions.ActiveForField(ctx, fieldID)
	if errors.Is(err, store.ErrNotFound) {
		latest, lerr := c.sessions.LatestForField(ctx, fieldID)
		if lerr != nil {
			return nil, store.ErrNotFound
		}
		if latest.Terminal() {
			return latest, nil
		}
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	level := sess.InitialLevelCm
	if s, ok := c.lastSample(sess.ID); ok {
		level = s.WaterLevelCm
	} else {
		rctx, cancel := context.WithTimeout(ctx, c.cfg.SensorTimeout)
		if reading, rerr := c.sensors.Latest(rctx, fieldID); rerr == nil {
			level = reading.Level(level)
		}
		cancel()
	}
	return c.finishSession(ctx, sess, entities.SessionStopped, reason, level, true)
}

// finishSession performs the single transition of a session to a terminal
// state. The conditional update in the store makes it idempotent: the
// losing caller of a concurrent stop gets the already-final session back
// and emits no further gate commands, records or events.
func (c *Controller) finishSession(ctx context.Context, sess *entities.IrrigationSession, status entities.SessionStatus, reason string, achievedLevel float64, closeGate bool) (*entities.IrrigationSession, error) {
	ok, err := c.sessions.Finish(ctx, sess.ID, status, achievedLevel, reason)
	if err != nil {
		return nil, err
	}
	if !ok {
		return c.sessions.Get(ctx, sess.ID)
	}

	if closeGate {
		if _, err := c.sink.Submit(ctx, sess.StationCode, entities.GateClosed, sess.ID); err != nil {
			log.Printf("control: gate close command failed for session %s: %v", sess.ID, err)
			c.events.Notify(sess.FieldID, entities.NotifyHigh,
				fmt.Sprintf("Gate close command for %s failed, SCADA sink will retry", sess.StationCode))
		} else if c.metrics != nil {
			c.metrics.GateCommands.WithLabelValues("close").Inc()
		}
	}

	c.cancelMonitor(sess.ID)
	final, err := c.sessions.Get(ctx, sess.ID)
	if err != nil {
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.ActiveSessions.Dec()
		c.metrics.SessionsEnded.WithLabelValues(string(status)).Inc()
	}

	samples := c.takeSampleLog(sess.ID)
	var volume float64
	if field, ferr := c.fields.Get(ctx, sess.FieldID); ferr == nil {
		concurrent, _ := c.sessions.CountActive(ctx)
		if rec, rerr := c.learn.Record(ctx, final, field.AreaHa, samples, analytics.EnvSnapshot{
			ConcurrentSessions: int(concurrent),
		}); rerr != nil {
			log.Printf("control: analytics record error for session %s: %v", sess.ID, rerr)
		} else {
			volume = rec.WaterVolumeLiters
		}
	}

	// State is persisted above; only now does anyone get told about it.
	c.events.SessionResult(messages.SessionResultEvent{
		SessionID:       final.ID,
		FieldID:         final.FieldID,
		Status:          final.Status,
		Reason:          reason,
		InitialLevelCm:  final.InitialLevelCm,
		TargetLevelCm:   final.TargetLevelCm,
		AchievedLevelCm: achievedLevel,
		DurationMin:     time.Since(final.StartTime).Minutes(),
		VolumeLiters:    volume,
		StartedAt:       final.StartTime,
	})
	level := entities.NotifyInfo
	if status == entities.SessionFailed {
		level = entities.NotifyHigh
	}
	c.events.Notify(final.FieldID, level,
		fmt.Sprintf("Irrigation session %s %s: %s", final.ID, status, reason))
	log.Printf("control: session %s %s field=%s achieved=%.1fcm reason=%q",
		final.ID, status, final.FieldID, achievedLevel, reason)
	return final, nil
}

// adjustGate bumps the session's gate one level open in response to a
// low_flow warning.
func (c *Controller) adjustGate(ctx context.Context, sess *entities.IrrigationSession) {
	if sess.GateLevel >= entities.GateMaxOpen {
		return
	}
	next := sess.GateLevel + 1
	if _, err := c.sink.Submit(ctx, sess.StationCode, next, sess.ID); err != nil {
		log.Printf("control: gate adjust command failed for session %s: %v", sess.ID, err)
		return
	}
	if err := c.sessions.UpdateGateLevel(ctx, sess.ID, next); err != nil {
		log.Printf("control: gate level update failed for session %s: %v", sess.ID, err)
	}
	sess.GateLevel = next
	if c.metrics != nil {
		c.metrics.GateCommands.WithLabelValues("adjust").Inc()
	}
	log.Printf("control: session %s gate raised to %d", sess.ID, next)
}

// recordAnomaly persists the anomaly, bumps counters, and only then
// publishes the event and any notification.
func (c *Controller) recordAnomaly(ctx context.Context, sess *entities.IrrigationSession, typ entities.AnomalyType, sev entities.AnomalySeverity, desc string, level, flowRate float64, action string) {
	a := entities.Anomaly{
		SessionID:        sess.ID,
		FieldID:          sess.FieldID,
		Type:             typ,
		Severity:         sev,
		DetectedAt:       time.Now().UTC(),
		Description:      desc,
		WaterLevelCm:     level,
		FlowRateCmMin:    flowRate,
		ResolutionAction: action,
	}
	if err := c.anomalies.Append(ctx, &a); err != nil {
		log.Printf("control: anomaly persist error for session %s: %v", sess.ID, err)
		return
	}
	if err := c.sessions.IncrementAnomalyCount(ctx, sess.ID); err != nil {
		log.Printf("control: anomaly count update error for session %s: %v", sess.ID, err)
	}
	sess.AnomalyCount++
	if c.metrics != nil {
		c.metrics.Anomalies.WithLabelValues(string(typ), string(sev)).Inc()
	}

	c.events.Anomaly(messages.AnomalyEvent{
		FieldID:       sess.FieldID,
		SessionID:     sess.ID,
		Type:          typ,
		Severity:      sev,
		Description:   desc,
		WaterLevelCm:  level,
		FlowRateCmMin: flowRate,
	})
	if sev == entities.SeverityCritical {
		c.events.Notify(sess.FieldID, entities.NotifyHigh,
			fmt.Sprintf("Critical %s anomaly on field %s: %s", typ, sess.FieldID, desc))
	}
	log.Printf("control: %s anomaly (%s) session=%s field=%s: %s", typ, sev, sess.ID, sess.FieldID, desc)
}

// ---- monitor bookkeeping ----

func (c *Controller) spawnMonitor(sess *entities.IrrigationSession) {
	ctx, cancel := context.WithCancel(c.runCtx)
	c.monMu.Lock()
	c.monitors[sess.ID] = cancel
	c.monMu.Unlock()
	m := newMonitor(c, sess)
	go m.run(ctx)
}

// cancelMonitor is idempotent: a second cancellation finds no entry.
func (c *Controller) cancelMonitor(sessionID string) {
	c.monMu.Lock()
	cancel, ok := c.monitors[sessionID]
	if ok {
		delete(c.monitors, sessionID)
	}
	c.monMu.Unlock()
	if ok {
		cancel()
	}
}

func (c *Controller) appendSample(s entities.MonitoringSample) {
	c.monMu.Lock()
	c.sampleLog[s.SessionID] = append(c.sampleLog[s.SessionID], s)
	c.monMu.Unlock()
	c.last.Store(s.SessionID, s)
}

func (c *Controller) lastSample(sessionID string) (entities.MonitoringSample, bool) {
	v, ok := c.last.Load(sessionID)
	if !ok {
		return entities.MonitoringSample{}, false
	}
	return v.(entities.MonitoringSample), true
}

func (c *Controller) takeSampleLog(sessionID string) []entities.MonitoringSample {
	c.monMu.Lock()
	defer c.monMu.Unlock()
	samples := c.sampleLog[sessionID]
	delete(c.sampleLog, sessionID)
	return samples
}

// requiredFlowM3s converts a level deficit over a field area and fill
// duration into the volumetric flow the gate must deliver.
func requiredFlowM3s(levelCm, targetCm, areaHa float64, duration time.Duration) float64 {
	deficit := math.Max(0, targetCm-levelCm)
	if duration <= 0 {
		duration = time.Hour
	}
	volumeM3 := deficit / 100 * areaHa * 10000
	return volumeM3 / duration.Seconds()
}
