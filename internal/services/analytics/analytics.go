// Package analytics records completed-session performance and feeds the
// duration/flow predictions behind irrigation recommendations.
package analytics

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/munbon/awd-control/internal/model/entities"
	"github.com/munbon/awd-control/internal/services/decision"
	"github.com/munbon/awd-control/internal/store"
)

const (
	// minSamples: below this count the predictor falls back to the naive
	// 1cm/hour model with 0.5 confidence.
	minSamples = 5

	// anomalyPenaltyStep discounts the efficiency score per anomaly,
	// capped so a noisy session never scores below half its ratio.
	anomalyPenaltyStep = 0.1
	anomalyPenaltyCap  = 0.5
)

// Prediction is the answer to "how long will irrigating this deficit take".
type Prediction struct {
	Duration      time.Duration `json:"duration"`
	FlowRateCmMin float64       `json:"flow_rate_cm_min"`
	Confidence    float64       `json:"confidence"`
	Samples       int           `json:"samples"`
}

// EnvSnapshot captures conditions at session completion for the record.
type EnvSnapshot struct {
	TemperatureC       float64
	RainfallMm         float64
	ConcurrentSessions int
}

// Service derives performance records and serves predictions and
// water-savings summaries.
type Service struct {
	perf *store.PerformanceStore
}

func NewService(perf *store.PerformanceStore) *Service { return &Service{perf: perf} }

// Record computes and stores the performance record for a completed
// session. Sessions that produced no samples still get a record so the
// savings accounting stays complete.
func (s *Service) Record(ctx context.Context, sess *entities.IrrigationSession, area float64, samples []entities.MonitoringSample, env EnvSnapshot) (*entities.PerformanceRecord, error) {
	if sess.EndTime == nil {
		return nil, fmt.Errorf("session %s has no end time", sess.ID)
	}
	durationMin := sess.EndTime.Sub(sess.StartTime).Minutes()

	var avg, maxF, minF float64
	if len(samples) > 0 {
		minF = math.MaxFloat64
		for _, m := range samples {
			avg += m.FlowRateCmMin
			if m.FlowRateCmMin > maxF {
				maxF = m.FlowRateCmMin
			}
			if m.FlowRateCmMin < minF {
				minF = m.FlowRateCmMin
			}
		}
		avg /= float64(len(samples))
	}

	achieved := sess.InitialLevelCm
	if sess.AchievedLevelCm != nil {
		achieved = *sess.AchievedLevelCm
	}
	appliedCm := math.Max(0, achieved-sess.InitialLevelCm)

	rec := entities.PerformanceRecord{
		SessionID:          sess.ID,
		FieldID:            sess.FieldID,
		StartTime:          sess.StartTime,
		EndTime:            *sess.EndTime,
		DurationMin:        durationMin,
		WaterVolumeLiters:  VolumeLiters(appliedCm, area),
		AvgFlowRateCmMin:   avg,
		MaxFlowRateCmMin:   maxF,
		MinFlowRateCmMin:   minF,
		EfficiencyScore:    efficiencyScore(sess, appliedCm),
		TemperatureC:       env.TemperatureC,
		RainfallMm:         env.RainfallMm,
		ConcurrentSessions: env.ConcurrentSessions,
	}
	if err := s.perf.Append(ctx, &rec); err != nil {
		return nil, err
	}
	log.Printf("analytics: recorded session %s field=%s applied=%.1fcm volume=%.0fL efficiency=%.2f",
		sess.ID, sess.FieldID, appliedCm, rec.WaterVolumeLiters, rec.EfficiencyScore)
	return &rec, nil
}

// efficiencyScore = min(1, target_achieved_ratio) * (1 - anomaly_penalty).
func efficiencyScore(sess *entities.IrrigationSession, appliedCm float64) float64 {
	deficit := sess.TargetLevelCm - sess.InitialLevelCm
	ratio := 1.0
	if deficit > 0 {
		ratio = math.Min(1, appliedCm/deficit)
	}
	penalty := math.Min(anomalyPenaltyCap, anomalyPenaltyStep*float64(sess.AnomalyCount))
	return ratio * (1 - penalty)
}

// Predict estimates duration and flow for irrigating deficitCm on the
// field, weighting recent sessions more heavily. With fewer than
// minSamples records it falls back to the naive model.
func (s *Service) Predict(ctx context.Context, fieldID string, deficitCm float64) (Prediction, error) {
	if deficitCm <= 0 {
		deficitCm = 1
	}
	recs, err := s.perf.RecentForField(ctx, fieldID, 2*minSamples)
	if err != nil {
		return Prediction{}, err
	}

	if len(recs) < minSamples {
		dur := decision.NaiveDuration(0, deficitCm)
		return Prediction{
			Duration:      dur,
			FlowRateCmMin: deficitCm / dur.Minutes(),
			Confidence:    0.5,
			Samples:       len(recs),
		}, nil
	}

	// Recency-weighted average flow rate: records arrive newest first, so
	// weight n..1.
	var wsum, fsum float64
	n := len(recs)
	for i, r := range recs {
		if r.AvgFlowRateCmMin <= 0 {
			continue
		}
		w := float64(n - i)
		wsum += w
		fsum += w * r.AvgFlowRateCmMin
	}
	if wsum == 0 {
		dur := decision.NaiveDuration(0, deficitCm)
		return Prediction{Duration: dur, FlowRateCmMin: deficitCm / dur.Minutes(), Confidence: 0.5, Samples: n}, nil
	}

	flow := fsum / wsum
	minutes := deficitCm / flow
	return Prediction{
		Duration:      time.Duration(minutes * float64(time.Minute)),
		FlowRateCmMin: flow,
		Confidence:    math.Min(0.95, 0.5+0.05*float64(n)),
		Samples:       n,
	}, nil
}

// Savings reports water saved against a continuous-flooding baseline.
type Savings struct {
	BaselineLiters float64 `json:"baseline_liters"`
	ActualLiters   float64 `json:"actual_liters"`
	SavedLiters    float64 `json:"saved_liters"`
	SavedPercent   float64 `json:"saved_percent"`
}

// WaterSaved compares the field's summed irrigated volume since the cutoff
// with the configured continuous-flooding baseline.
func (s *Service) WaterSaved(ctx context.Context, fieldID string, baselineLiters float64, since time.Time) (Savings, error) {
	actual, err := s.perf.VolumeSince(ctx, fieldID, since)
	if err != nil {
		return Savings{}, err
	}
	sv := Savings{BaselineLiters: baselineLiters, ActualLiters: actual}
	sv.SavedLiters = math.Max(0, baselineLiters-actual)
	if baselineLiters > 0 {
		sv.SavedPercent = 100 * sv.SavedLiters / baselineLiters
	}
	return sv, nil
}

// Summary aggregates a field's records for the operator analytics view.
type Summary struct {
	FieldID         string  `json:"field_id"`
	Sessions        int     `json:"sessions"`
	AvgDurationMin  float64 `json:"avg_duration_min"`
	AvgFlowCmMin    float64 `json:"avg_flow_cm_min"`
	AvgEfficiency   float64 `json:"avg_efficiency"`
	TotalVolumeL    float64 `json:"total_volume_liters"`
	OptimalFlow     float64 `json:"optimal_flow_cm_min"`
	OptimalDuration float64 `json:"optimal_duration_min"`
}

// Summarize folds the field's records over the window into the operator
// analytics payload. "Optimal" parameters come from the highest-efficiency
// session observed.
func (s *Service) Summarize(ctx context.Context, fieldID string, since time.Time) (Summary, error) {
	recs, err := s.perf.ForFieldSince(ctx, fieldID, since)
	if err != nil {
		return Summary{}, err
	}
	out := Summary{FieldID: fieldID, Sessions: len(recs)}
	if len(recs) == 0 {
		return out, nil
	}
	best := recs[0]
	for _, r := range recs {
		out.AvgDurationMin += r.DurationMin
		out.AvgFlowCmMin += r.AvgFlowRateCmMin
		out.AvgEfficiency += r.EfficiencyScore
		out.TotalVolumeL += r.WaterVolumeLiters
		if r.EfficiencyScore > best.EfficiencyScore {
			best = r
		}
	}
	n := float64(len(recs))
	out.AvgDurationMin /= n
	out.AvgFlowCmMin /= n
	out.AvgEfficiency /= n
	out.OptimalFlow = best.AvgFlowRateCmMin
	out.OptimalDuration = best.DurationMin
	return out, nil
}

// VolumePerDayBaseline is the continuous-flooding comparison volume: a 5cm
// pond refilled once per day.
func (s *Service) VolumePerDayBaseline(areaHa float64) float64 {
	return VolumeLiters(5, areaHa)
}

// VolumeLiters converts an applied water depth over a field area to liters.
func VolumeLiters(depthCm, areaHa float64) float64 {
	// depth[m] * area[m^2] = m^3; 1 m^3 = 1000 L.
	return depthCm / 100 * areaHa * 10000 * 1000
}
