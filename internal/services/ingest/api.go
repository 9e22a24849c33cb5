package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/munbon/awd-control/internal/model/entities"
)

func NewHTTPMux(svc *Service) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })

	// GET /readings/latest?field_id=...
	// 404 when no recent reading exists for the field; the control service
	// treats that as sensor-unavailable and falls back.
	mux.HandleFunc("/readings/latest", func(w http.ResponseWriter, r *http.Request) {
		fieldID := r.URL.Query().Get("field_id")
		if fieldID == "" {
			http.Error(w, "field_id required", http.StatusBadRequest)
			return
		}
		reading := svc.Latest(fieldID)
		if reading == nil {
			http.Error(w, "no recent reading", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reading)
	})

	// GET /readings/range?field_id=...&from=RFC3339&to=RFC3339
	mux.HandleFunc("/readings/range", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		fieldID := q.Get("field_id")
		if fieldID == "" {
			http.Error(w, "field_id required", http.StatusBadRequest)
			return
		}
		to := time.Now().UTC()
		from := to.Add(-24 * time.Hour)
		if s := q.Get("from"); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				http.Error(w, "invalid from", http.StatusBadRequest)
				return
			}
			from = t
		}
		if s := q.Get("to"); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				http.Error(w, "invalid to", http.StatusBadRequest)
				return
			}
			to = t
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		list, err := svc.Range(ctx, fieldID, from, to)
		if err != nil {
			http.Error(w, "query failed", http.StatusBadGateway)
			return
		}
		if list == nil {
			list = []entities.SensorReading{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(list)
	})

	return mux
}
