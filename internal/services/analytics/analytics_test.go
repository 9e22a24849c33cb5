package analytics

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/munbon/awd-control/internal/model/entities"
	"github.com/munbon/awd-control/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.PerformanceStore) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	perf := store.NewPerformanceStore(db)
	return NewService(perf), perf
}

func finishedSession(id string, initial, target, achieved float64, anomalies int) *entities.IrrigationSession {
	start := time.Now().Add(-2 * time.Hour)
	end := time.Now()
	return &entities.IrrigationSession{
		ID:              id,
		FieldID:         "field-01",
		Status:          entities.SessionCompleted,
		StartTime:       start,
		EndTime:         &end,
		InitialLevelCm:  initial,
		TargetLevelCm:   target,
		AchievedLevelCm: &achieved,
		AnomalyCount:    anomalies,
	}
}

func seedRecords(t *testing.T, perf *store.PerformanceStore, n int, flow float64) {
	t.Helper()
	for i := 0; i < n; i++ {
		end := time.Now().Add(-time.Duration(i) * time.Hour)
		require.NoError(t, perf.Append(context.Background(), &entities.PerformanceRecord{
			SessionID:         fmt.Sprintf("s%d", i),
			FieldID:           "field-01",
			StartTime:         end.Add(-2 * time.Hour),
			EndTime:           end,
			DurationMin:       120,
			WaterVolumeLiters: 50000,
			AvgFlowRateCmMin:  flow,
			EfficiencyScore:   0.9,
		}))
	}
}

func TestRecordComputesVolumeAndEfficiency(t *testing.T) {
	svc, _ := newTestService(t)

	sess := finishedSession("s1", 0, 5, 5, 0)
	samples := []entities.MonitoringSample{
		{FlowRateCmMin: 0.02}, {FlowRateCmMin: 0.04}, {FlowRateCmMin: 0.03},
	}

	rec, err := svc.Record(context.Background(), sess, 1.0, samples, EnvSnapshot{})
	require.NoError(t, err)

	// 5cm over 1ha = 500 m3 = 500000 L.
	assert.InDelta(t, 500000, rec.WaterVolumeLiters, 1)
	assert.InDelta(t, 0.03, rec.AvgFlowRateCmMin, 1e-9)
	assert.Equal(t, 0.04, rec.MaxFlowRateCmMin)
	assert.Equal(t, 0.02, rec.MinFlowRateCmMin)
	assert.Equal(t, 1.0, rec.EfficiencyScore)
}

func TestRecordAnomalyPenalty(t *testing.T) {
	svc, _ := newTestService(t)

	// Full target achieved but two anomalies: 1.0 * (1 - 0.2).
	rec, err := svc.Record(context.Background(), finishedSession("s1", 0, 5, 5, 2), 1.0, nil, EnvSnapshot{})
	require.NoError(t, err)
	assert.InDelta(t, 0.8, rec.EfficiencyScore, 1e-9)

	// Penalty caps at half.
	rec, err = svc.Record(context.Background(), finishedSession("s2", 0, 5, 5, 9), 1.0, nil, EnvSnapshot{})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, rec.EfficiencyScore, 1e-9)
}

func TestRecordPartialAchievement(t *testing.T) {
	svc, _ := newTestService(t)

	// Reached 2.5 of a 5cm deficit: ratio 0.5.
	rec, err := svc.Record(context.Background(), finishedSession("s1", 0, 5, 2.5, 0), 1.0, nil, EnvSnapshot{})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, rec.EfficiencyScore, 1e-9)
}

func TestPredictFallsBackBelowMinSamples(t *testing.T) {
	svc, perf := newTestService(t)
	seedRecords(t, perf, 3, 0.05)

	p, err := svc.Predict(context.Background(), "field-01", 6)
	require.NoError(t, err)

	// Naive model: 6cm at 1cm/hour.
	assert.Equal(t, 6*time.Hour, p.Duration)
	assert.Equal(t, 0.5, p.Confidence)
	assert.Equal(t, 3, p.Samples)
}

func TestPredictUsesHistoryAtMinSamples(t *testing.T) {
	svc, perf := newTestService(t)
	seedRecords(t, perf, 6, 0.05)

	p, err := svc.Predict(context.Background(), "field-01", 6)
	require.NoError(t, err)

	// All records at 0.05 cm/min: 6cm in 120 minutes.
	assert.InDelta(t, 120, p.Duration.Minutes(), 0.01)
	assert.InDelta(t, 0.05, p.FlowRateCmMin, 1e-9)
	// min(0.95, 0.5 + 0.05*6)
	assert.InDelta(t, 0.8, p.Confidence, 1e-9)
	assert.Equal(t, 6, p.Samples)
}

func TestPredictConfidenceCaps(t *testing.T) {
	svc, perf := newTestService(t)
	seedRecords(t, perf, 10, 0.05)

	p, err := svc.Predict(context.Background(), "field-01", 3)
	require.NoError(t, err)
	assert.LessOrEqual(t, p.Confidence, 0.95)
}

func TestWaterSaved(t *testing.T) {
	svc, perf := newTestService(t)
	seedRecords(t, perf, 4, 0.05) // 4 x 50000 L

	sv, err := svc.WaterSaved(context.Background(), "field-01", 500000, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 500000.0, sv.BaselineLiters)
	assert.Equal(t, 200000.0, sv.ActualLiters)
	assert.Equal(t, 300000.0, sv.SavedLiters)
	assert.InDelta(t, 60, sv.SavedPercent, 1e-9)
}

func TestSummarizePicksBestSessionAsOptimal(t *testing.T) {
	svc, perf := newTestService(t)
	ctx := context.Background()

	end := time.Now()
	require.NoError(t, perf.Append(ctx, &entities.PerformanceRecord{
		SessionID: "a", FieldID: "field-01", EndTime: end,
		DurationMin: 100, AvgFlowRateCmMin: 0.03, EfficiencyScore: 0.7, WaterVolumeLiters: 1000,
	}))
	require.NoError(t, perf.Append(ctx, &entities.PerformanceRecord{
		SessionID: "b", FieldID: "field-01", EndTime: end,
		DurationMin: 80, AvgFlowRateCmMin: 0.05, EfficiencyScore: 0.95, WaterVolumeLiters: 1200,
	}))

	sum, err := svc.Summarize(ctx, "field-01", end.Add(-time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Sessions)
	assert.Equal(t, 0.05, sum.OptimalFlow)
	assert.Equal(t, 80.0, sum.OptimalDuration)
	assert.InDelta(t, 2200, sum.TotalVolumeL, 1e-9)
}

func TestVolumeLiters(t *testing.T) {
	// 1cm over 1ha = 100 m3.
	assert.InDelta(t, 100000, VolumeLiters(1, 1), 1e-9)
	assert.InDelta(t, 750000, VolumeLiters(5, 1.5), 1e-6)
}
