package control

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/munbon/awd-control/internal/model/entities"
	"github.com/munbon/awd-control/internal/store"
)

// NewHTTPMux builds the operator API. Sentinel errors map to status codes:
// ErrConflict -> 409, ErrNotFound -> 404, everything else -> 500.
func NewHTTPMux(ctrl *Controller, anomalies *store.AnomalyStore, fields *store.FieldStore) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })

	// POST /irrigation/start
	mux.HandleFunc("/irrigation/start", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			FieldID              string  `json:"field_id"`
			TargetLevelCm        float64 `json:"target_level_cm"`
			ToleranceCm          float64 `json:"tolerance_cm"`
			MaxDurationMin       float64 `json:"max_duration_min"`
			EmergencyStopLevelCm float64 `json:"emergency_stop_level_cm"`
			Reason               string  `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FieldID == "" {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		sess, err := ctrl.StartIrrigation(r.Context(), StartRequest{
			FieldID:              req.FieldID,
			TargetLevelCm:        req.TargetLevelCm,
			ToleranceCm:          req.ToleranceCm,
			MaxDuration:          time.Duration(req.MaxDurationMin * float64(time.Minute)),
			EmergencyStopLevelCm: req.EmergencyStopLevelCm,
			Reason:               req.Reason,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"session_id": sess.ID,
			"status":     sess.Status,
		})
	})

	// POST /irrigation/stop
	mux.HandleFunc("/irrigation/stop", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			FieldID string `json:"field_id"`
			Reason  string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FieldID == "" {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Reason == "" {
			req.Reason = "manual stop"
		}
		sess, err := ctrl.StopIrrigation(r.Context(), req.FieldID, req.Reason)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"session_id": sess.ID,
			"status":     sess.Status,
			"reason":     req.Reason,
		})
	})

	// GET /irrigation/status?field_id=...
	mux.HandleFunc("/irrigation/status", func(w http.ResponseWriter, r *http.Request) {
		fieldID := r.URL.Query().Get("field_id")
		if fieldID == "" {
			http.Error(w, "field_id required", http.StatusBadRequest)
			return
		}
		st, err := ctrl.Status(r.Context(), fieldID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	})

	// GET /irrigation/recommendation?field_id=...&target_level_cm=...
	mux.HandleFunc("/irrigation/recommendation", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		fieldID := q.Get("field_id")
		if fieldID == "" {
			http.Error(w, "field_id required", http.StatusBadRequest)
			return
		}
		var target *float64
		if s := q.Get("target_level_cm"); s != "" {
			if v, err := strconv.ParseFloat(s, 64); err == nil {
				target = &v
			}
		}
		pred, err := ctrl.Recommendation(r.Context(), fieldID, target)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"duration_min":     pred.Duration.Minutes(),
			"flow_rate_cm_min": pred.FlowRateCmMin,
			"confidence":       pred.Confidence,
			"samples":          pred.Samples,
		})
	})

	// GET /analytics?field_id=...&days=30
	mux.HandleFunc("/analytics", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		fieldID := q.Get("field_id")
		if fieldID == "" {
			http.Error(w, "field_id required", http.StatusBadRequest)
			return
		}
		days := 30
		if s := q.Get("days"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				days = n
			}
		}
		since := time.Now().AddDate(0, 0, -days)
		summary, err := ctrl.learn.Summarize(r.Context(), fieldID, since)
		if err != nil {
			writeError(w, err)
			return
		}
		out := map[string]any{
			"field_id": fieldID,
			"days":     days,
			"patterns": summary,
			"optimal_parameters": map[string]any{
				"flow_cm_min":  summary.OptimalFlow,
				"duration_min": summary.OptimalDuration,
			},
		}
		if field, ferr := fields.Get(r.Context(), fieldID); ferr == nil {
			// Continuous-flooding baseline: a 5cm pond refilled daily.
			baseline := float64(days) * ctrl.learn.VolumePerDayBaseline(field.AreaHa)
			if sv, serr := ctrl.learn.WaterSaved(r.Context(), fieldID, baseline, since); serr == nil {
				out["insights"] = sv
			}
		}
		writeJSON(w, http.StatusOK, out)
	})

	// GET /anomalies?field_id=&type=&severity=&resolved=&days=&page=&per_page=
	mux.HandleFunc("/anomalies", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := store.AnomalyFilter{
			FieldID:  q.Get("field_id"),
			Type:     entities.AnomalyType(q.Get("type")),
			Severity: entities.AnomalySeverity(q.Get("severity")),
		}
		if s := q.Get("resolved"); s != "" {
			if b, err := strconv.ParseBool(s); err == nil {
				filter.Resolved = &b
			}
		}
		days := 7
		if s := q.Get("days"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				days = n
			}
		}
		filter.Since = time.Now().AddDate(0, 0, -days)
		if s := q.Get("page"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				filter.Page = n
			}
		}
		if s := q.Get("per_page"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				filter.PerPage = n
			}
		}
		list, total, err := anomalies.List(r.Context(), filter)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"anomalies": list,
			"total":     total,
			"page":      filter.Page,
			"per_page":  filter.PerPage,
		})
	})

	// Field registration and configuration, for operator tooling.
	mux.HandleFunc("/fields", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			list, err := fields.List(r.Context())
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, list)
		case http.MethodPost:
			var req struct {
				Field  entities.Field            `json:"field"`
				Config *entities.AwdConfiguration `json:"config"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Field.ID == "" {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}
			cfg := entities.DefaultAwdConfiguration(req.Field.ID)
			if req.Config != nil {
				cfg = *req.Config
				cfg.FieldID = req.Field.ID
			}
			if err := fields.Register(r.Context(), &req.Field, &cfg); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, req.Field)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// POST /fields/enable toggles AWD control for a field without losing
	// its configuration history.
	mux.HandleFunc("/fields/enable", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			FieldID string `json:"field_id"`
			Enabled bool   `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FieldID == "" {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := fields.SetEnabled(r.Context(), req.FieldID, req.Enabled); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"field_id": req.FieldID,
			"enabled":  req.Enabled,
		})
	})

	// PUT /fields/config replaces the field's active AWD configuration.
	mux.HandleFunc("/fields/config", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var cfg entities.AwdConfiguration
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil || cfg.FieldID == "" {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		saved, err := fields.ReplaceConfig(r.Context(), cfg.FieldID, cfg)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		log.Printf("control: request error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
