package control

import (
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/munbon/awd-control/internal/model/entities"
	"github.com/munbon/awd-control/internal/model/messages"
	"github.com/munbon/awd-control/pkg/mqttbus"
)

// EventPublisher fans decision, anomaly, session-result and notification
// events out over MQTT. Publish failures are logged and dropped: events
// are the reporting trail, the relational store is the system of record
// and has already been updated by the time anything is published here.
type EventPublisher struct {
	pub mqttbus.IPublisher

	decisionTmpl string // event/decision/{field}
	anomalyTmpl  string // event/anomaly/{field}
	resultTmpl   string // event/sessionResult/{field}
	notifyTmpl   string // notify/{level}/{field}
}

func NewEventPublisher(pub mqttbus.IPublisher) *EventPublisher {
	return &EventPublisher{
		pub:          pub,
		decisionTmpl: "event/decision/{field}",
		anomalyTmpl:  "event/anomaly/{field}",
		resultTmpl:   "event/sessionResult/{field}",
		notifyTmpl:   "notify/{level}/{field}",
	}
}

func (e *EventPublisher) publish(topic string, v any) {
	if e == nil || e.pub == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("control: marshal event: %v", err)
		return
	}
	if err := e.pub.PublishToQos(topic, 1, false, string(b)); err != nil {
		log.Printf("control: publish %s: %v", topic, err)
	}
}

func (e *EventPublisher) Decision(evt messages.IrrigationDecisionEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	topic := strings.ReplaceAll(e.decisionTmpl, "{field}", evt.FieldID)
	e.publish(topic, evt)
}

func (e *EventPublisher) Anomaly(evt messages.AnomalyEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	topic := strings.ReplaceAll(e.anomalyTmpl, "{field}", evt.FieldID)
	e.publish(topic, evt)
}

func (e *EventPublisher) SessionResult(evt messages.SessionResultEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	topic := strings.ReplaceAll(e.resultTmpl, "{field}", evt.FieldID)
	e.publish(topic, evt)
}

func (e *EventPublisher) Notify(fieldID string, level entities.NotificationLevel, message string) {
	topic := strings.NewReplacer("{level}", string(level), "{field}", fieldID).Replace(e.notifyTmpl)
	e.publish(topic, messages.Notification{
		FieldID:   fieldID,
		Level:     level,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}
