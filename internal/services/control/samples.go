package control

import (
	"context"
	"log"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/munbon/awd-control/internal/model/entities"
)

// SampleWriter persists monitor-loop samples to the time-series store.
type SampleWriter interface {
	WriteSample(ctx context.Context, sample entities.MonitoringSample) error
}

// InfluxSampleWriter writes monitoring samples as monitoring_sample points.
type InfluxSampleWriter struct {
	writeAPI api.WriteAPIBlocking
}

func NewInfluxSampleWriter(writeAPI api.WriteAPIBlocking) *InfluxSampleWriter {
	return &InfluxSampleWriter{writeAPI: writeAPI}
}

func (w *InfluxSampleWriter) WriteSample(ctx context.Context, m entities.MonitoringSample) error {
	point := influxdb2.NewPoint("monitoring_sample",
		map[string]string{
			"session_id": m.SessionID,
			"field_id":   m.FieldID,
		},
		map[string]interface{}{
			"water_level_cm":     m.WaterLevelCm,
			"flow_rate_cm_min":   m.FlowRateCmMin,
			"sensor_reliability": m.SensorReliability,
			"gate_level":         m.GateLevel,
		},
		m.Timestamp)
	if err := w.writeAPI.WritePoint(ctx, point); err != nil {
		log.Printf("control: sample write error: %v", err)
		return err
	}
	return nil
}

var _ SampleWriter = (*InfluxSampleWriter)(nil)
