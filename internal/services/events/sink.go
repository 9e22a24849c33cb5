package events

import (
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
)

// Sink converts CommonEvents into system_event points on the async write
// path. Numeric payload fields become Influx fields, identity becomes tags.
func Sink(w *Writer) func(CommonEvent) {
	return func(e CommonEvent) {
		t := e.Timestamp
		if t.IsZero() {
			t = time.Now().UTC()
		}
		tags := map[string]string{
			"event_type":     e.EventType,
			"source_service": e.SourceService,
			"field_id":       e.FieldID,
			"severity":       e.Severity,
		}
		fields := make(map[string]interface{}, len(e.Fields)+1)
		for k, v := range e.Fields {
			fields[k] = v
		}
		if len(fields) == 0 {
			fields["count"] = int64(1)
		}
		w.api.WritePoint(influxdb2.NewPoint("system_event", tags, fields, t))
		w.MarkIngest(e.EventType)
	}
}
