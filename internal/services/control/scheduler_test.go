package control

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/munbon/awd-control/internal/model/entities"
)

type fakeWeather struct{ mm float64 }

func (f *fakeWeather) Rainfall(_ context.Context, _, _ float64) (*entities.Rainfall, error) {
	return &entities.Rainfall{AmountMm: f.mm}, nil
}

func TestSweepStartsIrrigationBelowTarget(t *testing.T) {
	h := newHarness(t)
	h.sensors.set(1.0) // well below the 5cm wetting target
	s := NewScheduler(h.ctrl, nil, time.Hour)
	ctx := context.Background()

	s.Sweep(ctx)

	sess, err := h.sessions.ActiveForField(ctx, "field-01")
	require.NoError(t, err)
	assert.Equal(t, 5.0, sess.TargetLevelCm)
	require.Len(t, h.sink.commands, 1)
	assert.Greater(t, h.sink.commands[0].gateLevel, entities.GateClosed)
}

func TestSweepSkipsFieldAlreadyIrrigating(t *testing.T) {
	h := newHarness(t)
	h.sensors.set(1.0)
	s := NewScheduler(h.ctrl, nil, time.Hour)
	ctx := context.Background()

	s.Sweep(ctx)
	s.Sweep(ctx)

	n, err := h.sessions.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Len(t, h.sink.commands, 1)
}

func TestSweepRainfallMakesStartUnnecessary(t *testing.T) {
	h := newHarness(t)
	h.sensors.set(4.5) // forecast rain covers the remaining deficit
	s := NewScheduler(h.ctrl, &fakeWeather{mm: 8}, time.Hour)
	ctx := context.Background()

	s.Sweep(ctx)

	_, err := h.sessions.ActiveForField(ctx, "field-01")
	assert.Error(t, err) // nothing started, nothing to stop
	assert.Empty(t, h.sink.commands)
}

func TestSweepPrefersPredictedDurationOverNaive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Enough history for the predictor: six sessions averaging 0.05cm/min.
	for i := 0; i < 6; i++ {
		rec := entities.PerformanceRecord{
			SessionID:        fmt.Sprintf("hist-%d", i),
			FieldID:          "field-01",
			StartTime:        time.Now().Add(-time.Duration(i+2) * time.Hour),
			EndTime:          time.Now().Add(-time.Duration(i+1) * time.Hour),
			AvgFlowRateCmMin: 0.05,
		}
		require.NoError(t, h.perf.Append(ctx, &rec))
	}

	h.sensors.set(1.0) // 4cm deficit to the 5cm wetting target
	NewScheduler(h.ctrl, nil, time.Hour).Sweep(ctx)

	_, err := h.sessions.ActiveForField(ctx, "field-01")
	require.NoError(t, err)

	// At 0.05cm/min the predicted run is 80min; the naive model says 240.
	// The flow-service request exposes which duration was used.
	predicted := requiredFlowM3s(1, 5, 1, 80*time.Minute)
	naive := requiredFlowM3s(1, 5, 1, 240*time.Minute)
	assert.InDelta(t, predicted, h.flow.lastRequest(), predicted*0.01)
	assert.Greater(t, h.flow.lastRequest(), naive)
}

func TestSweepIgnoresDisabledFields(t *testing.T) {
	h := newHarness(t)
	h.sensors.set(1.0)
	ctx := context.Background()

	require.NoError(t, h.fields.SetEnabled(ctx, "field-01", false))
	NewScheduler(h.ctrl, nil, time.Hour).Sweep(ctx)

	n, err := h.sessions.CountActive(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
