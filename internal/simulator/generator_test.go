package simulator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/munbon/awd-control/internal/model/entities"
)

func TestLevelRisesWhileGateOpen(t *testing.T) {
	g := NewLevelGenerator(0, 1)
	t0 := time.Now()

	first := g.Next(t0, entities.GateFull)
	assert.Equal(t, 0.0, first) // first observation, nothing integrated yet

	// Three open steps at 0.015cm/min for an hour is 2.7cm, plus jitter.
	got := g.Next(t0.Add(time.Hour), entities.GateFull)
	assert.InDelta(t, 2.7, got, 0.1)
}

func TestLevelDecaysWhileGateClosed(t *testing.T) {
	g := NewLevelGenerator(5, 1)
	t0 := time.Now()

	g.Next(t0, entities.GateClosed)
	got := g.Next(t0.Add(time.Hour), entities.GateClosed)
	assert.InDelta(t, 5-0.24, got, 0.1)
	assert.Less(t, got, 5.0)
}

func TestLowGateRisesSlowerThanFull(t *testing.T) {
	low := NewLevelGenerator(0, 1)
	full := NewLevelGenerator(0, 1)
	t0 := time.Now()

	low.Next(t0, entities.GateLow)
	full.Next(t0, entities.GateFull)

	lowLevel := low.Next(t0.Add(time.Hour), entities.GateLow)
	fullLevel := full.Next(t0.Add(time.Hour), entities.GateFull)
	assert.Less(t, lowLevel, fullLevel)
}

func TestLevelClampedToTubeBounds(t *testing.T) {
	g := NewLevelGenerator(19, 1)
	t0 := time.Now()
	g.Next(t0, entities.GateFull)
	assert.LessOrEqual(t, g.Next(t0.Add(48*time.Hour), entities.GateFull), 20.0)

	g = NewLevelGenerator(-29, 1)
	g.Next(t0, entities.GateClosed)
	assert.GreaterOrEqual(t, g.Next(t0.Add(14*24*time.Hour), entities.GateClosed), -30.0)
}

func TestMoistureTracksWaterTable(t *testing.T) {
	assert.Equal(t, 95.0, NewLevelGenerator(3, 1).Moisture())
	assert.Equal(t, 95.0, NewLevelGenerator(0, 1).Moisture())
	assert.InDelta(t, 70.0, NewLevelGenerator(-7.5, 1).Moisture(), 0.001)
	assert.InDelta(t, 45.0, NewLevelGenerator(-15, 1).Moisture(), 0.001)
	assert.Equal(t, 15.0, NewLevelGenerator(-30, 1).Moisture())
}
