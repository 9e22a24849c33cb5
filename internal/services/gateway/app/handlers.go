package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"
)

// ---------- upstream payloads ----------

type FieldSummary struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ZoneID         string `json:"zone_id"`
	PlantingMethod string `json:"planting_method"`
	AwdEnabled     bool   `json:"awd_enabled"`
}

type FieldStatus struct {
	FieldID        string  `json:"field_id"`
	Active         bool    `json:"active"`
	SessionID      string  `json:"session_id,omitempty"`
	CurrentLevelCm float64 `json:"current_level_cm"`
	TargetLevelCm  float64 `json:"target_level_cm,omitempty"`
	FlowRateCmMin  float64 `json:"flow_rate_cm_min"`
	EtaMin         float64 `json:"eta_min,omitempty"`
	AnomaliesCount int     `json:"anomalies_count"`
}

type IrrigationResult struct {
	FieldID      string  `json:"field_id"`
	VolumeLiters float64 `json:"volume_liters"`
	Time         string  `json:"time"`
}

type DashboardData struct {
	Fields      []FieldStatus      `json:"fields"`
	Irrigations []IrrigationResult `json:"irrigations"`
	Stats       map[string]float64 `json:"stats"`
}

// HandleDashboard fans out to control and events in parallel and folds the
// answers into one payload. Missing upstreams leave empty panels.
func (g *Gateway) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	g.metrics.DashboardHits.Inc()

	ctx, cancel := context.WithTimeout(r.Context(), g.cfg.HTTPTimeout)
	defer cancel()

	var fields []FieldSummary
	var irrigations []IrrigationResult

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := g.control.GetJSON(ctx, "/fields", &fields); err != nil {
			g.cfg.Logger.Printf("gateway: fields fetch: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := g.events.GetJSON(ctx, "/events/irrigation/latest", &irrigations); err != nil {
			g.cfg.Logger.Printf("gateway: irrigations fetch: %v", err)
		}
	}()
	wg.Wait()

	// Per-field status fan-out, bounded by the field count.
	statuses := make([]FieldStatus, len(fields))
	var sg sync.WaitGroup
	for i := range fields {
		sg.Add(1)
		go func(i int) {
			defer sg.Done()
			st := FieldStatus{FieldID: fields[i].ID}
			path := "/irrigation/status?field_id=" + url.QueryEscape(fields[i].ID)
			if err := g.control.GetJSON(ctx, path, &st); err != nil {
				g.cfg.Logger.Printf("gateway: status fetch %s: %v", fields[i].ID, err)
			}
			statuses[i] = st
		}(i)
	}
	sg.Wait()

	data := DashboardData{
		Fields:      statuses,
		Irrigations: irrigations,
		Stats:       map[string]float64{},
	}
	if data.Irrigations == nil {
		data.Irrigations = []IrrigationResult{}
	}
	sort.Slice(data.Fields, func(i, j int) bool { return data.Fields[i].FieldID < data.Fields[j].FieldID })

	active := 0.0
	anomalies := 0.0
	volume := 0.0
	for _, s := range data.Fields {
		if s.Active {
			active++
		}
		anomalies += float64(s.AnomaliesCount)
	}
	for _, ir := range data.Irrigations {
		volume += ir.VolumeLiters
	}
	data.Stats["fields"] = float64(len(data.Fields))
	data.Stats["active_sessions"] = active
	data.Stats["open_anomalies"] = anomalies
	data.Stats["volume_liters_24h"] = volume

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// HandleFieldDetail proxies a single field's status, recommendation and
// latest reading into one view.
func (g *Gateway) HandleFieldDetail(w http.ResponseWriter, r *http.Request) {
	fieldID := r.URL.Query().Get("field_id")
	if fieldID == "" {
		http.Error(w, "field_id required", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), g.cfg.HTTPTimeout)
	defer cancel()

	q := url.QueryEscape(fieldID)
	var status FieldStatus
	var recommendation map[string]any
	var reading map[string]any

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		_ = g.control.GetJSON(ctx, "/irrigation/status?field_id="+q, &status)
	}()
	go func() {
		defer wg.Done()
		_ = g.control.GetJSON(ctx, "/irrigation/recommendation?field_id="+q, &recommendation)
	}()
	go func() {
		defer wg.Done()
		_ = g.ingest.GetJSON(ctx, "/readings/latest?field_id="+q, &reading)
	}()
	wg.Wait()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":         status,
		"recommendation": recommendation,
		"latest_reading": reading,
	})
}

// NewHTTPMux wires the gateway routes.
func NewHTTPMux(g *Gateway) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = fmt.Fprint(w, "ok") })
	mux.HandleFunc("/dashboard", g.HandleDashboard)
	mux.HandleFunc("/field", g.HandleFieldDetail)
	return mux
}
