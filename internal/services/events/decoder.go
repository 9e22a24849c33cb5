package events

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	msg "github.com/munbon/awd-control/internal/model/messages"
)

// CommonEvent is the normalized shape every consumed topic reduces to
// before being written as a system_event point.
type CommonEvent struct {
	EventType     string // irrigation.decision | irrigation.anomaly | irrigation.result | notification
	SourceService string
	FieldID       string
	Severity      string // info|warning|error
	Fields        map[string]interface{}
	Timestamp     time.Time
}

// MQTTHandler turns MQTT event messages into CommonEvents and hands them
// to the sink.
type MQTTHandler struct{ sink func(CommonEvent) }

func NewMQTTHandler(sink func(CommonEvent)) *MQTTHandler { return &MQTTHandler{sink: sink} }

func (h *MQTTHandler) Handle(_ string, m mqtt.Message) error {
	topic := m.Topic()
	payload := m.Payload()

	var (
		evt CommonEvent
		err error
	)
	switch {
	case strings.HasPrefix(topic, "event/decision/"):
		evt, err = decodeDecision(topic, payload)
	case strings.HasPrefix(topic, "event/anomaly/"):
		evt, err = decodeAnomaly(topic, payload)
	case strings.HasPrefix(topic, "event/sessionResult/"):
		evt, err = decodeSessionResult(topic, payload)
	case strings.HasPrefix(topic, "notify/"):
		evt, err = decodeNotification(topic, payload)
	default:
		return nil // ignore other topics
	}
	if err != nil {
		return err
	}
	if h.sink != nil {
		h.sink(evt)
	}
	return nil
}

func decodeDecision(topic string, payload []byte) (CommonEvent, error) {
	var d msg.IrrigationDecisionEvent
	if err := json.Unmarshal(payload, &d); err != nil {
		return CommonEvent{}, err
	}
	fieldID := pickFieldID(topic, d.FieldID, "event/decision/")
	if fieldID == "" {
		return CommonEvent{}, errors.New("decision: missing field")
	}
	return CommonEvent{
		EventType:     "irrigation.decision",
		SourceService: "control-service",
		FieldID:       fieldID,
		Severity:      "info",
		Fields: map[string]interface{}{
			"action":          string(d.Action),
			"phase":           string(d.Phase),
			"week":            int64(d.Week),
			"target_level_cm": d.TargetLevelCm,
			"duration_min":    d.DurationMin,
			"confidence":      d.Confidence,
			"emergency":       d.Emergency,
			"reason":          d.Reason,
		},
		Timestamp: d.Timestamp,
	}, nil
}

func decodeAnomaly(topic string, payload []byte) (CommonEvent, error) {
	var a msg.AnomalyEvent
	if err := json.Unmarshal(payload, &a); err != nil {
		return CommonEvent{}, err
	}
	fieldID := pickFieldID(topic, a.FieldID, "event/anomaly/")
	if fieldID == "" {
		return CommonEvent{}, errors.New("anomaly: missing field")
	}
	severity := "warning"
	if string(a.Severity) == "critical" {
		severity = "error"
	}
	return CommonEvent{
		EventType:     "irrigation.anomaly",
		SourceService: "control-service",
		FieldID:       fieldID,
		Severity:      severity,
		Fields: map[string]interface{}{
			"anomaly_type":     string(a.Type),
			"session_id":       a.SessionID,
			"water_level_cm":   a.WaterLevelCm,
			"flow_rate_cm_min": a.FlowRateCmMin,
			"description":      a.Description,
		},
		Timestamp: a.Timestamp,
	}, nil
}

func decodeSessionResult(topic string, payload []byte) (CommonEvent, error) {
	var r msg.SessionResultEvent
	if err := json.Unmarshal(payload, &r); err != nil {
		return CommonEvent{}, err
	}
	fieldID := pickFieldID(topic, r.FieldID, "event/sessionResult/")
	if fieldID == "" {
		return CommonEvent{}, errors.New("sessionResult: missing field")
	}
	severity := "info"
	if string(r.Status) == "failed" {
		severity = "error"
	}
	return CommonEvent{
		EventType:     "irrigation.result",
		SourceService: "control-service",
		FieldID:       fieldID,
		Severity:      severity,
		Fields: map[string]interface{}{
			"session_id":        r.SessionID,
			"status":            string(r.Status),
			"initial_level_cm":  r.InitialLevelCm,
			"target_level_cm":   r.TargetLevelCm,
			"achieved_level_cm": r.AchievedLevelCm,
			"duration_min":      r.DurationMin,
			"volume_liters":     r.VolumeLiters,
			"reason":            r.Reason,
		},
		Timestamp: r.Timestamp,
	}, nil
}

func decodeNotification(topic string, payload []byte) (CommonEvent, error) {
	var n msg.Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return CommonEvent{}, err
	}
	// notify/{level}/{field}
	parts := strings.Split(topic, "/")
	level := ""
	fieldID := n.FieldID
	if len(parts) >= 3 {
		level = parts[1]
		if fieldID == "" {
			fieldID = parts[2]
		}
	}
	if fieldID == "" {
		return CommonEvent{}, errors.New("notification: missing field")
	}
	severity := "info"
	if level == "high" {
		severity = "warning"
	}
	return CommonEvent{
		EventType:     "notification",
		SourceService: "control-service",
		FieldID:       fieldID,
		Severity:      severity,
		Fields: map[string]interface{}{
			"level":   level,
			"message": n.Message,
		},
		Timestamp: n.Timestamp,
	}, nil
}

// pickFieldID prefers the payload's field id, falling back to the topic
// suffix.
func pickFieldID(topic, payloadID, prefix string) string {
	if payloadID != "" {
		return payloadID
	}
	return strings.TrimPrefix(topic, prefix)
}
