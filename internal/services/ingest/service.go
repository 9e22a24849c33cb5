// Package ingest is the sensor pipeline head: it consumes field telemetry
// off MQTT, validates it, persists it to InfluxDB and keeps a short-lived
// latest-reading cache for the control service's synchronous queries.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	gocache "github.com/patrickmn/go-cache"

	"github.com/munbon/awd-control/internal/model/entities"
	"github.com/munbon/awd-control/internal/model/messages"
	"github.com/munbon/awd-control/pkg/dedup"
	"github.com/munbon/awd-control/pkg/mqttbus"
)

// Validation bounds. A paddy pond deeper than half a meter or a tube
// reading below -50cm is sensor garbage, not field state.
const (
	maxLevelCm  = 50.0
	minLevelCm  = -50.0
	maxMoisture = 100.0
)

type InfluxConfig struct {
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string
}

type Service struct {
	consumer mqttbus.IConsumer[messages.SensorReading]
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
	bucket   string
	cache    *gocache.Cache
	dedup    *dedup.Deduper
}

func NewService(consumer mqttbus.IConsumer[messages.SensorReading], client influxdb2.Client, cfg InfluxConfig, cacheTTL time.Duration) (*Service, error) {
	if cfg.InfluxURL == "" || cfg.InfluxOrg == "" || cfg.InfluxBucket == "" {
		return nil, fmt.Errorf("influx config incomplete")
	}
	if cacheTTL <= 0 {
		cacheTTL = 15 * time.Minute
	}
	return &Service{
		consumer: consumer,
		writeAPI: client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket),
		queryAPI: client.QueryAPI(cfg.InfluxOrg),
		bucket:   cfg.InfluxBucket,
		cache:    gocache.New(cacheTTL, 2*cacheTTL),
		dedup:    dedup.New(10*time.Minute, 10000),
	}, nil
}

// Start consumes readings until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	s.consumer.SetHandler(func(topic string, msg mqtt.Message) error {
		var m messages.SensorReading
		if err := json.Unmarshal(msg.Payload(), &m); err != nil {
			log.Printf("ingest: invalid JSON on %s: %v", topic, err)
			return nil // keep the stream moving
		}
		if err := validate(&m); err != nil {
			log.Printf("ingest: rejected reading on %s: %v", topic, err)
			return nil
		}
		if m.Timestamp.IsZero() {
			m.Timestamp = time.Now().UTC()
		}
		if !s.dedup.ShouldProcess(dedupKey(&m)) {
			return nil
		}

		reading := m.Entity()
		if err := s.writePoint(ctx, &reading); err != nil {
			log.Printf("ingest: write error: %v", err)
			return err
		}
		s.cacheLatest(reading)
		return nil
	})
	s.consumer.ConsumeMessage(ctx)
}

func validate(m *messages.SensorReading) error {
	if m.FieldID == "" || m.SensorID == "" {
		return fmt.Errorf("missing field_id/sensor_id")
	}
	switch m.SensorType {
	case entities.SensorWaterLevel:
		if m.WaterLevelCm == nil {
			return fmt.Errorf("water_level reading without level")
		}
		if *m.WaterLevelCm < minLevelCm || *m.WaterLevelCm > maxLevelCm {
			return fmt.Errorf("level %.1fcm out of range", *m.WaterLevelCm)
		}
	case entities.SensorMoisture:
		if m.MoisturePct == nil {
			return fmt.Errorf("moisture reading without value")
		}
		if *m.MoisturePct < 0 || *m.MoisturePct > maxMoisture {
			return fmt.Errorf("moisture %.1f%% out of range", *m.MoisturePct)
		}
	default:
		return fmt.Errorf("unknown sensor type %q", m.SensorType)
	}
	return nil
}

func dedupKey(m *messages.SensorReading) string {
	return fmt.Sprintf("%s|%s|%s|%d", m.FieldID, m.SensorID, m.SensorType, m.Timestamp.UnixNano())
}

func cacheKey(fieldID string, t entities.SensorType) string {
	return fieldID + "|" + string(t)
}

// cacheLatest stores the reading as the field's latest for its channel
// unless a newer one is already cached. MQTT redelivery and broker
// reconnects can replay old readings out of order; "latest" never moves
// backwards because of them.
func (s *Service) cacheLatest(r entities.SensorReading) {
	key := cacheKey(r.FieldID, r.SensorType)
	if v, ok := s.cache.Get(key); ok {
		if cur := v.(entities.SensorReading); r.Timestamp.Before(cur.Timestamp) {
			return
		}
	}
	s.cache.SetDefault(key, r)
}

func (s *Service) writePoint(ctx context.Context, r *entities.SensorReading) error {
	tags := map[string]string{
		"field_id":  r.FieldID,
		"sensor_id": r.SensorID,
	}
	fields := map[string]interface{}{
		"temperature_c":   r.TemperatureC,
		"battery_voltage": r.BatteryVoltage,
	}
	measurement := string(r.SensorType)
	switch r.SensorType {
	case entities.SensorWaterLevel:
		fields["water_level_cm"] = *r.WaterLevelCm
	case entities.SensorMoisture:
		fields["moisture_pct"] = *r.MoisturePct
	}
	point := influxdb2.NewPoint(measurement, tags, fields, r.Timestamp)
	return s.writeAPI.WritePoint(ctx, point)
}

// Latest merges the field's freshest level and moisture cache entries into
// one reading. Returns nil when neither channel has been seen recently.
func (s *Service) Latest(fieldID string) *entities.SensorReading {
	var out *entities.SensorReading
	if v, ok := s.cache.Get(cacheKey(fieldID, entities.SensorWaterLevel)); ok {
		r := v.(entities.SensorReading)
		out = &r
	}
	if v, ok := s.cache.Get(cacheKey(fieldID, entities.SensorMoisture)); ok {
		m := v.(entities.SensorReading)
		if out == nil {
			out = &m
		} else {
			out.MoisturePct = m.MoisturePct
			if m.Timestamp.After(out.Timestamp) {
				out.Timestamp = m.Timestamp
			}
		}
	}
	return out
}

// Range queries stored readings for the field between from and to,
// oldest first.
func (s *Service) Range(ctx context.Context, fieldID string, from, to time.Time) ([]entities.SensorReading, error) {
	flux := fmt.Sprintf(`
from(bucket: %q)
  |> range(start: %s, stop: %s)
  |> filter(fn: (r) => r._measurement == "water_level" or r._measurement == "moisture")
  |> filter(fn: (r) => r.field_id == %q)
  |> pivot(rowKey: ["_time","_measurement","sensor_id"], columnKey: ["_field"], valueColumn: "_value")
  |> sort(columns: ["_time"])
`, s.bucket, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339), fieldID)

	res, err := s.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("influx query: %w", err)
	}
	defer func() { _ = res.Close() }()

	var out []entities.SensorReading
	for res.Next() {
		rec := res.Record()
		r := entities.SensorReading{
			FieldID:   fieldID,
			Timestamp: rec.Time(),
		}
		if v, ok := rec.ValueByKey("sensor_id").(string); ok {
			r.SensorID = v
		}
		switch rec.Measurement() {
		case "water_level":
			r.SensorType = entities.SensorWaterLevel
			if v, ok := rec.ValueByKey("water_level_cm").(float64); ok {
				r.WaterLevelCm = &v
			}
		case "moisture":
			r.SensorType = entities.SensorMoisture
			if v, ok := rec.ValueByKey("moisture_pct").(float64); ok {
				r.MoisturePct = &v
			}
		}
		if v, ok := rec.ValueByKey("temperature_c").(float64); ok {
			r.TemperatureC = v
		}
		if v, ok := rec.ValueByKey("battery_voltage").(float64); ok {
			r.BatteryVoltage = v
		}
		out = append(out, r)
	}
	if res.Err() != nil {
		return nil, fmt.Errorf("influx result: %w", res.Err())
	}
	return out, nil
}
