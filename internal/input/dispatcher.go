package input

import (
	"errors"
	"log/slog"

	"github.com/UnknownOlympus/strider/internal/location"
	"github.com/UnknownOlympus/strider/internal/metrics"
	"github.com/UnknownOlympus/strider/internal/models"
	"github.com/UnknownOlympus/strider/internal/movement"
)

// ErrLocationUnknown is returned when a move is requested before any position was committed.
var ErrLocationUnknown = errors.New("user location is not known yet")

// Action is what a key press resolves to.
type Action int

const (
	ActionNone Action = iota
	ActionMove
	ActionToggleAutopilot
)

// KeyToggleAutopilot is the space bar, which pauses or resumes the autopilot.
const KeyToggleAutopilot = 32

// keyDirections maps browser keyCodes to directions. Users rely on these bindings, including
// the duplicated ones (A and the left arrow both walk west, Z is an extra north key).
var keyDirections = map[int]models.Direction{
	65: models.DirectionW,  // A
	37: models.DirectionW,  // ArrowLeft
	87: models.DirectionN,  // W
	90: models.DirectionN,  // Z
	38: models.DirectionN,  // ArrowUp
	68: models.DirectionE,  // D
	39: models.DirectionE,  // ArrowRight
	83: models.DirectionS,  // S
	40: models.DirectionS,  // ArrowDown
	81: models.DirectionWN, // Q
	69: models.DirectionNE, // E
	67: models.DirectionES, // C
	89: models.DirectionSW, // Y
}

// DirectionForKey returns the direction bound to keyCode.
func DirectionForKey(keyCode int) (models.Direction, bool) {
	d, ok := keyDirections[keyCode]
	return d, ok
}

// SpeedSource supplies the speed coefficient. It is consulted on every move.
type SpeedSource interface {
	SpeedLimit() float64
}

// Dispatcher turns key presses and control-pad clicks into committed moves.
type Dispatcher struct {
	log     *slog.Logger
	engine  *movement.Engine
	store   *location.Store
	speed   SpeedSource
	metrics *metrics.Metrics

	last models.LastMove
}

// NewDispatcher wires a dispatcher to the engine and store it drives.
func NewDispatcher(
	log *slog.Logger,
	engine *movement.Engine,
	store *location.Store,
	speed SpeedSource,
	metrics *metrics.Metrics,
) *Dispatcher {
	return &Dispatcher{log: log, engine: engine, store: store, speed: speed, metrics: metrics}
}

// Move applies one step in direction and commits the result.
func (d *Dispatcher) Move(direction models.Direction) (models.Coordinates, error) {
	current, ok := d.store.Get()
	if !ok {
		return models.Coordinates{}, ErrLocationUnknown
	}

	next := d.engine.Compute(direction, current, d.speed.SpeedLimit())
	d.store.Commit(next, location.SourceMove)

	d.last = models.LastMove{Direction: direction, Revision: d.last.Revision + 1}
	if d.metrics != nil {
		d.metrics.Moves.WithLabelValues(directionLabel(direction)).Inc()
	}
	d.log.Debug("Moved", "direction", direction, "lat", next.Latitude, "lng", next.Longitude)

	return next, nil
}

// HandleKey resolves a browser keyCode. Movement keys are applied immediately; the autopilot
// toggle is reported back to the caller, which owns the autopilot. Unmapped keys are ignored.
func (d *Dispatcher) HandleKey(keyCode int) (Action, error) {
	if keyCode == KeyToggleAutopilot {
		return ActionToggleAutopilot, nil
	}

	direction, ok := DirectionForKey(keyCode)
	if !ok {
		return ActionNone, nil
	}

	if _, err := d.Move(direction); err != nil {
		return ActionMove, err
	}

	return ActionMove, nil
}

// LastMove returns the most recent move and its revision.
func (d *Dispatcher) LastMove() models.LastMove {
	return d.last
}

func directionLabel(d models.Direction) string {
	if d == models.DirectionNone {
		return "none"
	}
	return string(d)
}
