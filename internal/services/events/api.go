package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
)

// IrrigationResult is the dashboard payload for recent session outcomes.
type IrrigationResult struct {
	FieldID      string  `json:"field_id"`
	SessionID    string  `json:"session_id,omitempty"`
	VolumeLiters float64 `json:"volume_liters"`
	Status       string  `json:"status,omitempty"`
	Time         string  `json:"time"`
}

type resultQueryParams struct {
	Minutes   int
	Limit     int
	TimeoutMS int
}

func parseParams(r *http.Request, defMin, defLim, defTOms int) resultQueryParams {
	q := r.URL.Query()
	get := func(k string, def, min, max int) int {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				if n < min {
					return min
				}
				if max > 0 && n > max {
					return max
				}
				return n
			}
		}
		return def
	}
	return resultQueryParams{
		Minutes:   get("minutes", defMin, 1, 7*24*60),
		Limit:     get("limit", defLim, 1, 500),
		TimeoutMS: get("timeout_ms", defTOms, 200, 5000),
	}
}

func buildResultFlux(bucket string, minutes, limit int) string {
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%dm)
  |> filter(fn: (r) => r._measurement == "system_event" and r.event_type == "irrigation.result")
  |> filter(fn: (r) => r._field == "volume_liters")
  |> keep(columns: ["_time","_value","field_id"])
  |> sort(columns: ["_time"], desc: true)
  |> limit(n:%d)
`, bucket, minutes, limit)
}

// NewHTTPMux serves the dashboard read side over the events bucket.
func NewHTTPMux(influx influxdb2.Client, org, bucket string) *http.ServeMux {
	mux := http.NewServeMux()

	// GET /events/irrigation/latest?minutes=&limit=
	mux.HandleFunc("/events/irrigation/latest", func(w http.ResponseWriter, r *http.Request) {
		p := parseParams(r, 24*60, 50, 2000)

		ctx, cancel := context.WithTimeout(r.Context(), time.Duration(p.TimeoutMS)*time.Millisecond)
		defer cancel()

		api := influx.QueryAPI(org)
		res, err := api.Query(ctx, buildResultFlux(bucket, p.Minutes, p.Limit))
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Error", "influx-query-error")
			_, _ = w.Write([]byte("[]"))
			return
		}
		defer func() { _ = res.Close() }()

		out := make([]IrrigationResult, 0, p.Limit)
		for res.Next() {
			rec := res.Record()
			item := IrrigationResult{Time: rec.Time().UTC().Format(time.RFC3339)}
			if v, ok := rec.Value().(float64); ok {
				item.VolumeLiters = v
			}
			if v, ok := rec.ValueByKey("field_id").(string); ok {
				item.FieldID = v
			}
			out = append(out, item)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	})

	return mux
}
