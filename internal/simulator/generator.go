// Package simulator is the local-development stand-in for a real paddy:
// it publishes synthetic water-level and moisture readings whose dynamics
// react to the gate commands the control service writes.
package simulator

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/munbon/awd-control/internal/model/entities"
)

// Hydraulic tunables, roughly matched to a 1ha transplanted paddy.
const (
	// risePerMinPerGate: cm/min of level rise per open gate step above
	// closed. Gate 4 fills about 2.7cm/h.
	risePerMinPerGate = 0.015

	// decayPerMin: percolation + evapotranspiration drain when the gate
	// is closed.
	decayPerMin = 0.004

	jitterCm = 0.05
)

// LevelGenerator integrates the field's water level over time.
type LevelGenerator struct {
	mu      sync.Mutex
	levelCm float64
	last    time.Time
	rng     *rand.Rand
}

func NewLevelGenerator(initialCm float64, seed int64) *LevelGenerator {
	return &LevelGenerator{
		levelCm: initialCm,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Next advances the level to now given the currently commanded gate level
// and returns the new reading value.
func (g *LevelGenerator) Next(now time.Time, gateLevel int) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.last.IsZero() {
		minutes := now.Sub(g.last).Minutes()
		if gateLevel > int(entities.GateClosed) {
			steps := float64(gateLevel - int(entities.GateClosed))
			g.levelCm += steps * risePerMinPerGate * minutes
		} else {
			g.levelCm -= decayPerMin * minutes
		}
		g.levelCm += (g.rng.Float64()*2 - 1) * jitterCm
		// The observation tube bottoms out at -30cm.
		g.levelCm = math.Max(-30, math.Min(20, g.levelCm))
	}
	g.last = now
	return g.levelCm
}

// Moisture derives soil moisture from the level: saturated while ponded,
// drying as the water table drops down the tube.
func (g *LevelGenerator) Moisture() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case g.levelCm >= 0:
		return 95
	case g.levelCm >= -15:
		// linear from 95% at surface to 45% at -15cm
		return 95 + g.levelCm/15*50
	default:
		return math.Max(15, 45+(g.levelCm+15)/15*30)
	}
}
