package ingest

import (
	"testing"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/munbon/awd-control/internal/model/entities"
	"github.com/munbon/awd-control/internal/model/messages"
	"github.com/munbon/awd-control/pkg/dedup"
)

func levelMsg(cm float64) messages.SensorReading {
	return messages.SensorReading{
		FieldID:      "field-01",
		SensorID:     "wl-01",
		SensorType:   entities.SensorWaterLevel,
		WaterLevelCm: &cm,
		Timestamp:    time.Now().UTC(),
	}
}

func moistureMsg(pct float64) messages.SensorReading {
	return messages.SensorReading{
		FieldID:     "field-01",
		SensorID:    "sm-01",
		SensorType:  entities.SensorMoisture,
		MoisturePct: &pct,
		Timestamp:   time.Now().UTC(),
	}
}

func TestValidateBounds(t *testing.T) {
	tests := []struct {
		name    string
		msg     messages.SensorReading
		wantErr bool
	}{
		{"level ok", levelMsg(5), false},
		{"ponded deep", levelMsg(50), false},
		{"level too high", levelMsg(51), true},
		{"tube floor", levelMsg(-50), false},
		{"level too low", levelMsg(-50.1), true},
		{"moisture ok", moistureMsg(80), false},
		{"moisture over", moistureMsg(100.5), true},
		{"moisture negative", moistureMsg(-1), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validate(&tc.msg)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateMissingChannels(t *testing.T) {
	m := levelMsg(5)
	m.WaterLevelCm = nil
	assert.Error(t, validate(&m))

	m = moistureMsg(80)
	m.MoisturePct = nil
	assert.Error(t, validate(&m))

	m = levelMsg(5)
	m.SensorType = "humidity"
	assert.Error(t, validate(&m))

	m = levelMsg(5)
	m.FieldID = ""
	assert.Error(t, validate(&m))
}

func TestDedupKeyDistinguishesChannels(t *testing.T) {
	at := time.Now().UTC()
	level := levelMsg(5)
	level.Timestamp = at
	moisture := moistureMsg(80)
	moisture.Timestamp = at

	d := dedup.New(time.Minute, 100)
	assert.True(t, d.ShouldProcess(dedupKey(&level)))
	assert.False(t, d.ShouldProcess(dedupKey(&level)))
	assert.True(t, d.ShouldProcess(dedupKey(&moisture)))

	// Same sensor, new timestamp: a fresh observation, not a duplicate.
	level.Timestamp = at.Add(time.Minute)
	assert.True(t, d.ShouldProcess(dedupKey(&level)))
}

func TestLatestMergesLevelAndMoisture(t *testing.T) {
	s := &Service{cache: gocache.New(time.Minute, time.Minute)}

	assert.Nil(t, s.Latest("field-01"))

	level := levelMsg(4.2).Entity()
	s.cache.SetDefault(cacheKey("field-01", entities.SensorWaterLevel), level)

	got := s.Latest("field-01")
	require.NotNil(t, got)
	assert.Equal(t, 4.2, *got.WaterLevelCm)
	assert.Nil(t, got.MoisturePct)

	moisture := moistureMsg(85).Entity()
	moisture.Timestamp = level.Timestamp.Add(time.Minute)
	s.cache.SetDefault(cacheKey("field-01", entities.SensorMoisture), moisture)

	got = s.Latest("field-01")
	require.NotNil(t, got)
	assert.Equal(t, 4.2, *got.WaterLevelCm)
	require.NotNil(t, got.MoisturePct)
	assert.Equal(t, 85.0, *got.MoisturePct)
	assert.Equal(t, moisture.Timestamp, got.Timestamp)
}

func TestLatestNotMovedBackByDelayedReading(t *testing.T) {
	s := &Service{cache: gocache.New(time.Minute, time.Minute)}
	now := time.Now().UTC()

	fresh := levelMsg(4.0).Entity()
	fresh.Timestamp = now
	s.cacheLatest(fresh)

	// A reading delayed in the broker arrives after a newer one; it must
	// not replace it.
	delayed := levelMsg(1.0).Entity()
	delayed.Timestamp = now.Add(-30 * time.Minute)
	s.cacheLatest(delayed)

	got := s.Latest("field-01")
	require.NotNil(t, got)
	assert.Equal(t, 4.0, *got.WaterLevelCm)
	assert.Equal(t, now, got.Timestamp)

	// A genuinely newer reading still advances it.
	newer := levelMsg(4.5).Entity()
	newer.Timestamp = now.Add(time.Minute)
	s.cacheLatest(newer)
	assert.Equal(t, 4.5, *s.Latest("field-01").WaterLevelCm)
}

func TestLatestMoistureOnly(t *testing.T) {
	s := &Service{cache: gocache.New(time.Minute, time.Minute)}
	s.cache.SetDefault(cacheKey("field-01", entities.SensorMoisture), moistureMsg(70).Entity())

	got := s.Latest("field-01")
	require.NotNil(t, got)
	assert.Nil(t, got.WaterLevelCm)
	assert.Equal(t, 70.0, *got.MoisturePct)

	assert.Nil(t, s.Latest("field-02"))
}
