package movement

import (
	"math/rand/v2"
	"time"

	"github.com/UnknownOlympus/strider/internal/models"
)

// Step ranges in degrees. North/south and east/west steps are divided by the speed coefficient,
// so a larger coefficient means a shorter step.
const (
	JitterMax = 0.000003
	NSStepMin = 0.0000200
	NSStepMax = 0.000070
	WEStepMin = 0.0000600
	WEStepMax = 0.000070
)

// Source yields uniformly distributed floats in [0, 1).
// *rand.Rand from math/rand/v2 satisfies it.
type Source interface {
	Float64() float64
}

// Engine computes the next simulated position for a direction.
// It is not safe for concurrent use; the controller loop is its only caller.
type Engine struct {
	src Source
}

// NewEngine creates an Engine drawing from src. A nil src selects a time-seeded PCG generator.
func NewEngine(src Source) *Engine {
	if src == nil {
		seed := uint64(time.Now().UnixNano())
		src = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return &Engine{src: src}
}

// NewSeededEngine creates an Engine that produces a reproducible walk for the given seed.
func NewSeededEngine(seed uint64) *Engine {
	return &Engine{src: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Compute returns the position reached from current when moving in direction.
// Draw order is jitter, north/south step, east/west step; the idle case draws a second jitter
// for longitude. Cardinals take the full step on their axis and jitter on the other one,
// diagonals take half of both steps, and DirectionNone drifts by jitter only.
func (e *Engine) Compute(direction models.Direction, current models.Coordinates, speedCoeff float64) models.Coordinates {
	jitter := e.uniform(-JitterMax, JitterMax)
	moveNS := e.uniform(NSStepMin, NSStepMax) / speedCoeff
	moveWE := e.uniform(WEStepMin, WEStepMax) / speedCoeff

	lat, lng := current.Latitude, current.Longitude

	switch direction {
	case models.DirectionW:
		return models.Coordinates{Latitude: lat + jitter, Longitude: lng - moveWE}
	case models.DirectionE:
		return models.Coordinates{Latitude: lat + jitter, Longitude: lng + moveWE}
	case models.DirectionS:
		return models.Coordinates{Latitude: lat - moveNS, Longitude: lng + jitter}
	case models.DirectionN:
		return models.Coordinates{Latitude: lat + moveNS, Longitude: lng + jitter}
	case models.DirectionNE:
		return models.Coordinates{Latitude: lat + moveNS/2, Longitude: lng + moveWE/2}
	case models.DirectionES:
		return models.Coordinates{Latitude: lat - moveNS/2, Longitude: lng + moveWE/2}
	case models.DirectionSW:
		return models.Coordinates{Latitude: lat - moveNS/2, Longitude: lng - moveWE/2}
	case models.DirectionWN:
		return models.Coordinates{Latitude: lat + moveNS/2, Longitude: lng - moveWE/2}
	default:
		drift := e.uniform(-JitterMax, JitterMax)
		return models.Coordinates{Latitude: lat + jitter, Longitude: lng + drift}
	}
}

func (e *Engine) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*e.src.Float64()
}
