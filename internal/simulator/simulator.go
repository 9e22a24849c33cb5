package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/munbon/awd-control/internal/model/entities"
	"github.com/munbon/awd-control/internal/model/messages"
	"github.com/munbon/awd-control/pkg/mqttbus"
)

// FieldSimulator publishes synthetic readings for one field. The commanded
// gate level comes from the same SCADA command table the control service
// writes, so a start_irrigation round-trips end to end locally.
type FieldSimulator struct {
	fieldID     string
	sensorID    string
	stationCode string
	gen         *LevelGenerator
	publisher   mqttbus.IPublisher
	db          *gorm.DB
}

func NewFieldSimulator(fieldID, sensorID, stationCode string, gen *LevelGenerator, publisher mqttbus.IPublisher, db *gorm.DB) *FieldSimulator {
	return &FieldSimulator{
		fieldID:     fieldID,
		sensorID:    sensorID,
		stationCode: stationCode,
		gen:         gen,
		publisher:   publisher,
		db:          db,
	}
}

// Start publishes level and moisture readings every interval until ctx
// is cancelled.
func (s *FieldSimulator) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *FieldSimulator) tick(ctx context.Context) {
	now := time.Now().UTC()
	gate := s.commandedGateLevel(ctx)
	level := s.gen.Next(now, gate)
	moisture := s.gen.Moisture()

	log.Printf("simulator: field=%s gate=%d level=%.1fcm moisture=%.0f%%",
		s.fieldID, gate, level, moisture)

	s.publish(fmt.Sprintf("sensor/level/%s/%s", s.fieldID, s.sensorID), messages.SensorReading{
		FieldID:      s.fieldID,
		SensorID:     s.sensorID,
		SensorType:   entities.SensorWaterLevel,
		WaterLevelCm: &level,
		Timestamp:    now,
	})
	s.publish(fmt.Sprintf("sensor/moisture/%s/%s", s.fieldID, s.sensorID), messages.SensorReading{
		FieldID:     s.fieldID,
		SensorID:    s.sensorID,
		SensorType:  entities.SensorMoisture,
		MoisturePct: &moisture,
		Timestamp:   now,
	})
}

// commandedGateLevel reads the most recent gate command for the field's
// station; no command yet means closed.
func (s *FieldSimulator) commandedGateLevel(ctx context.Context) int {
	var cmd entities.GateCommand
	err := s.db.WithContext(ctx).
		Where("gate_name = ?", s.stationCode).
		Order("start_time DESC").
		First(&cmd).Error
	if err != nil {
		return entities.GateClosed
	}
	return cmd.GateLevel
}

func (s *FieldSimulator) publish(topic string, m messages.SensorReading) {
	payload, err := json.Marshal(m)
	if err != nil {
		log.Printf("simulator: marshal: %v", err)
		return
	}
	if err := s.publisher.PublishToQos(topic, 0, false, string(payload)); err != nil {
		log.Printf("simulator: publish %s: %v", topic, err)
	}
}
