package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/munbon/awd-control/internal/model/entities"
)

func testField() *entities.Field {
	return &entities.Field{
		ID:             "field-01",
		AreaHa:         1.2,
		PlantingMethod: entities.PlantingTransplanted,
		AwdEnabled:     true,
		DefaultLevelCm: 0,
	}
}

func testConfig() *entities.AwdConfiguration {
	cfg := entities.DefaultAwdConfiguration("field-01")
	return &cfg
}

func levelReading(cm float64) *entities.SensorReading {
	return &entities.SensorReading{
		FieldID:      "field-01",
		SensorID:     "wl-01",
		SensorType:   entities.SensorWaterLevel,
		WaterLevelCm: &cm,
		Timestamp:    time.Now(),
	}
}

func moistureReading(pct float64) *entities.SensorReading {
	return &entities.SensorReading{
		FieldID:     "field-01",
		SensorID:    "sm-01",
		SensorType:  entities.SensorMoisture,
		MoisturePct: &pct,
		Timestamp:   time.Now(),
	}
}

func TestDecidePreparationWeek(t *testing.T) {
	d := Decide(testField(), testConfig(), 0, levelReading(0), nil)

	assert.Equal(t, entities.ActionStartIrrigation, d.Action)
	assert.Equal(t, 10.0, d.TargetLevelCm)
	assert.Equal(t, 48*time.Hour, d.Duration)
}

func TestDecideWettingBelowTarget(t *testing.T) {
	// Week 2 is a wetting week with a 5cm target; 7cm deficit needs at
	// least 420 minutes on the naive model.
	d := Decide(testField(), testConfig(), 2, levelReading(-2), nil)

	assert.Equal(t, entities.ActionStartIrrigation, d.Action)
	assert.Equal(t, 5.0, d.TargetLevelCm)
	assert.GreaterOrEqual(t, d.Duration, 420*time.Minute)
}

func TestDecideWettingRainfallInsufficient(t *testing.T) {
	// 8mm of rain on a 1cm level estimates 1.8cm, still below the 5cm
	// target: rain alone does not cancel irrigation.
	d := Decide(testField(), testConfig(), 2, levelReading(1), &entities.Rainfall{AmountMm: 8})

	assert.Equal(t, entities.ActionStartIrrigation, d.Action)
}

func TestDecideWettingRainfallSufficient(t *testing.T) {
	d := Decide(testField(), testConfig(), 2, levelReading(4.5), &entities.Rainfall{AmountMm: 8})

	assert.Equal(t, entities.ActionStopIrrigation, d.Action)
	assert.Equal(t, "Rainfall sufficient", d.Reason)
}

func TestDecideWettingTargetAchieved(t *testing.T) {
	d := Decide(testField(), testConfig(), 2, levelReading(6), nil)

	assert.Equal(t, entities.ActionMaintain, d.Action)
}

func TestDecideDryingEmergencyMoistureOverride(t *testing.T) {
	// 18% moisture is below the 20% emergency threshold: the override
	// wins over the drying-phase stop regardless of water level.
	r := moistureReading(18)
	d := Decide(testField(), testConfig(), 3, r, nil)

	assert.Equal(t, entities.ActionStartIrrigation, d.Action)
	assert.Equal(t, 120*time.Minute, d.Duration)
	assert.True(t, d.Emergency)
	require.NotEmpty(t, d.Notifications)
	assert.Equal(t, entities.NotifyHigh, d.Notifications[0].Level)
}

func TestDecideDryingSafeDepthReflood(t *testing.T) {
	// Water table at -16cm is past the 15cm safe AWD depth: re-flood.
	d := Decide(testField(), testConfig(), 3, levelReading(-16), nil)

	assert.Equal(t, entities.ActionStartIrrigation, d.Action)
	assert.Equal(t, 5.0, d.TargetLevelCm)
}

func TestDecideDryingAboveSafeDepth(t *testing.T) {
	d := Decide(testField(), testConfig(), 3, levelReading(-8), nil)

	assert.Equal(t, entities.ActionStopIrrigation, d.Action)
}

func TestDecideHarvestAlwaysStops(t *testing.T) {
	d := Decide(testField(), testConfig(), 13, levelReading(-25), nil)

	assert.Equal(t, entities.ActionStopIrrigation, d.Action)
	require.NotEmpty(t, d.Notifications)
}

func TestDecideWeekPastTemplateClampsToHarvest(t *testing.T) {
	d := Decide(testField(), testConfig(), 40, levelReading(2), nil)

	assert.Equal(t, entities.ActionStopIrrigation, d.Action)
}

func TestDecideAwdDisabledMaintains(t *testing.T) {
	f := testField()
	f.AwdEnabled = false

	d := Decide(f, testConfig(), 2, levelReading(-20), nil)

	assert.Equal(t, entities.ActionMaintain, d.Action)
}

func TestDecideNilReadingLowersConfidence(t *testing.T) {
	d := Decide(testField(), testConfig(), 2, nil, nil)

	assert.Equal(t, 0.5, d.Confidence)
}

func TestDecideDeterministic(t *testing.T) {
	f := testField()
	cfg := testConfig()
	r := levelReading(-3)
	w := &entities.Rainfall{AmountMm: 2}

	first := Decide(f, cfg, 4, r, w)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Decide(f, cfg, 4, r, w))
	}
}

func TestDecideFertilizerNoticeOnWettingWeeks(t *testing.T) {
	d := Decide(testField(), testConfig(), 4, levelReading(0), nil)

	require.Equal(t, entities.ActionStartIrrigation, d.Action)
	require.NotEmpty(t, d.Notifications)
	assert.Contains(t, d.Notifications[0].Message, "fertilizer")
}

func TestNaiveDuration(t *testing.T) {
	assert.Equal(t, 420*time.Minute, NaiveDuration(3, 10))
	// One hour floor for small deficits.
	assert.Equal(t, 60*time.Minute, NaiveDuration(9.8, 10))
}
