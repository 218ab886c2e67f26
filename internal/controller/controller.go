package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/UnknownOlympus/strider/internal/autopilot"
	"github.com/UnknownOlympus/strider/internal/geocoding"
	"github.com/UnknownOlympus/strider/internal/geolocation"
	"github.com/UnknownOlympus/strider/internal/input"
	"github.com/UnknownOlympus/strider/internal/location"
	"github.com/UnknownOlympus/strider/internal/metrics"
	"github.com/UnknownOlympus/strider/internal/models"
	"github.com/UnknownOlympus/strider/internal/movement"
	"github.com/UnknownOlympus/strider/internal/service"
	"github.com/UnknownOlympus/strider/internal/waypoint"
)

var (
	// ErrInvalidSpeedLimit is returned for a speed limit that is not a positive number.
	ErrInvalidSpeedLimit = errors.New("speed limit must be greater than zero")
	// ErrSearchDisabled is returned by Search when no destination provider is configured.
	ErrSearchDisabled = errors.New("destination search is not configured")
	// ErrStopped is returned when an operation is submitted after the loop has exited.
	ErrStopped = errors.New("controller is stopped")
)

// DefaultSpeedLimit is the initial speed coefficient. Steps are divided by it.
const DefaultSpeedLimit = 1.0

// Publisher pushes controller output to connected clients. Implementations must not block.
type Publisher interface {
	PublishState(ctx context.Context, state State)
	// PublishDestination announces a submitted destination; clients clear their search field.
	PublishDestination(ctx context.Context, destination models.Coordinates)
}

// Tracker receives every committed position and reports walk statistics.
type Tracker interface {
	Observe(snap location.Snapshot)
	Stats() service.Stats
	Reset(ctx context.Context) error
}

// State is the observable state of the walker.
type State struct {
	Position     *models.Coordinates `json:"position"`
	Source       location.Source     `json:"source,omitempty"`
	Revision     uint64              `json:"revision"`
	LastMove     models.LastMove     `json:"last_move"`
	Waypoints    []models.Waypoint   `json:"waypoints"`
	WaypointMode bool                `json:"waypoint_mode"`
	SpeedLimit   float64             `json:"speed_limit"`
	Draggable    bool                `json:"draggable"`
	Autopilot    bool                `json:"autopilot_running"`
	Stats        service.Stats       `json:"stats"`
}

// Options holds the collaborators of a Controller.
type Options struct {
	Log       *slog.Logger
	Metrics   *metrics.Metrics
	Engine    *movement.Engine
	Autopilot autopilot.Autopilot
	Publisher Publisher
	Notifier  geolocation.Notifier
	Device    geolocation.Locator // initial device fix
	Fallback  geolocation.Locator // IP geolocation
	Search    geocoding.Provider  // nil disables destination search
	Tracker   Tracker             // nil disables walk statistics

	SpeedLimit      float64
	ClearAfterRoute bool // drop the waypoints once a route was handed off
}

// Controller owns the position, waypoints and settings. All of them are touched only by the
// goroutine running Run; every operation is submitted to it as a closure.
type Controller struct {
	log       *slog.Logger
	metrics   *metrics.Metrics
	store     *location.Store
	input     *input.Dispatcher
	waypoints *waypoint.Manager
	autopilot autopilot.Autopilot
	bootstrap *geolocation.Bootstrap
	search    geocoding.Provider
	publisher Publisher
	tracker   Tracker

	speedLimit      float64
	draggable       bool
	source          location.Source
	clearAfterRoute bool

	ops     chan func()
	stopped chan struct{}
}

// New wires the components around a fresh location store. Call Run to start serving.
func New(opts Options) *Controller {
	c := &Controller{
		log:             opts.Log,
		metrics:         opts.Metrics,
		store:           location.NewStore(),
		autopilot:       opts.Autopilot,
		search:          opts.Search,
		publisher:       opts.Publisher,
		tracker:         opts.Tracker,
		speedLimit:      opts.SpeedLimit,
		draggable:       true,
		clearAfterRoute: opts.ClearAfterRoute,
		ops:             make(chan func()),
		stopped:         make(chan struct{}),
	}
	if c.speedLimit <= 0 {
		c.speedLimit = DefaultSpeedLimit
	}

	c.input = input.NewDispatcher(opts.Log, opts.Engine, c.store, c, opts.Metrics)
	c.waypoints = waypoint.NewManager(opts.Log, opts.Autopilot, opts.Metrics)
	c.bootstrap = geolocation.NewBootstrap(
		opts.Log, opts.Device, opts.Fallback, opts.Notifier, c.commit, opts.Metrics,
	)

	c.store.Subscribe(func(snap location.Snapshot) {
		c.source = snap.Source
		if c.tracker != nil {
			c.tracker.Observe(snap)
		}
	})

	return c
}

// Run serves operations until the context is canceled.
func (c *Controller) Run(ctx context.Context) {
	defer close(c.stopped)
	c.log.InfoContext(ctx, "Controller started...")

	for {
		select {
		case <-ctx.Done():
			c.log.InfoContext(ctx, "Controller stopped.")
			return
		case op := <-c.ops:
			op()
		}
	}
}

// Bootstrap resolves the initial position in the background: device first, then IP.
func (c *Controller) Bootstrap(ctx context.Context) {
	go func() {
		if err := c.bootstrap.Run(ctx); err != nil {
			c.log.ErrorContext(ctx, "Initial location is unavailable", "error", err)
		}
	}()
}

// SpeedLimit returns the current speed coefficient. Only the loop calls it, through the dispatcher.
func (c *Controller) SpeedLimit() float64 {
	return c.speedLimit
}

// do runs fn on the loop and waits for it.
func (c *Controller) do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	op := func() { done <- fn() }

	select {
	case c.ops <- op:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrStopped
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Move applies one step in direction.
func (c *Controller) Move(ctx context.Context, direction models.Direction) (models.Coordinates, error) {
	var next models.Coordinates
	err := c.do(ctx, func() error {
		var err error
		next, err = c.input.Move(direction)
		if err != nil {
			return err
		}
		c.publish(ctx)
		return nil
	})

	return next, err
}

// Key handles a browser keyCode: a move, the autopilot toggle, or nothing.
func (c *Controller) Key(ctx context.Context, keyCode int) error {
	return c.do(ctx, func() error {
		action, err := c.input.HandleKey(keyCode)
		if err != nil {
			return err
		}

		switch action {
		case input.ActionMove:
			c.publish(ctx)
		case input.ActionToggleAutopilot:
			if _, err = c.toggleAutopilot(ctx); err != nil {
				return err
			}
			c.publish(ctx)
		}
		return nil
	})
}

// Tap applies a map tap. Outside waypoint mode the tapped point is handed to the autopilot as a
// single destination; in waypoint mode it adds a waypoint, or removes the tapped marker. A marker
// that is not a known waypoint is ignored.
func (c *Controller) Tap(ctx context.Context, position models.Coordinates, markerID string) (waypoint.TapOutcome, error) {
	var outcome waypoint.TapOutcome
	err := c.do(ctx, func() error {
		position = position.Round6()
		outcome, _ = c.waypoints.Tap(position, markerID)
		switch outcome {
		case waypoint.TapDestination:
			return c.suggest(ctx, position)
		case waypoint.TapIgnored:
			c.log.DebugContext(ctx, "Tapped marker is not a waypoint", "marker", markerID)
			return nil
		}
		c.publish(ctx)
		return nil
	})

	return outcome, err
}

// ToggleWaypointMode flips waypoint mode and returns the new value.
func (c *Controller) ToggleWaypointMode(ctx context.Context) (bool, error) {
	var enabled bool
	err := c.do(ctx, func() error {
		enabled = c.waypoints.ToggleMode()
		c.publish(ctx)
		return nil
	})

	return enabled, err
}

// StartRoute hands all waypoints to the autopilot in one call. With no waypoints it does nothing.
func (c *Controller) StartRoute(ctx context.Context) error {
	return c.do(ctx, func() error {
		if err := c.waypoints.StartRouting(ctx); err != nil {
			return err
		}
		if c.clearAfterRoute && c.waypoints.Len() > 0 {
			c.waypoints.Clear()
			c.publish(ctx)
		}
		return nil
	})
}

// SelectDestination hands a single destination to the autopilot.
func (c *Controller) SelectDestination(ctx context.Context, destination models.Coordinates) error {
	return c.do(ctx, func() error {
		return c.suggest(ctx, destination)
	})
}

// Search resolves query and submits the result as the destination. The lookup runs on the
// caller's goroutine so movement is never held up by it.
func (c *Controller) Search(ctx context.Context, query string) (models.Coordinates, error) {
	if c.search == nil {
		return models.Coordinates{}, ErrSearchDisabled
	}

	startTime := time.Now()
	found, err := c.search.Geocode(ctx, query)
	if c.metrics != nil {
		c.metrics.LookupSeconds.WithLabelValues("search").Observe(time.Since(startTime).Seconds())
	}
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("failed to search destination: %w", err)
	}

	return *found, c.SelectDestination(ctx, *found)
}

// DeviceFix commits a position reported by a browser's own geolocation.
func (c *Controller) DeviceFix(ctx context.Context, position models.Coordinates) error {
	return c.commit(ctx, position, location.SourceDevice)
}

// Place moves the position to an explicit point, e.g. a dragged marker.
func (c *Controller) Place(ctx context.Context, position models.Coordinates) error {
	return c.commit(ctx, position.Round6(), location.SourceManual)
}

// DeviceError records a failed browser geolocation and falls back to the IP location in the
// background.
func (c *Controller) DeviceError(ctx context.Context, reason string) {
	go func() {
		if err := c.bootstrap.DeviceFailed(ctx, errors.New(reason)); err != nil {
			c.log.ErrorContext(ctx, "Fallback location is unavailable", "error", err)
		}
	}()
}

// Locate reruns the location bootstrap. There is no automatic retry; clients ask for this.
func (c *Controller) Locate(ctx context.Context) {
	c.Bootstrap(ctx)
}

// SetSpeedLimit changes the speed coefficient used by subsequent moves.
func (c *Controller) SetSpeedLimit(ctx context.Context, limit float64) error {
	if limit <= 0 || math.IsNaN(limit) {
		return fmt.Errorf("%w: %v", ErrInvalidSpeedLimit, limit)
	}

	return c.do(ctx, func() error {
		c.speedLimit = limit
		c.publish(ctx)
		return nil
	})
}

// ToggleDrag flips whether the map view may be panned and returns the new value.
func (c *Controller) ToggleDrag(ctx context.Context) (bool, error) {
	var draggable bool
	err := c.do(ctx, func() error {
		c.draggable = !c.draggable
		draggable = c.draggable
		c.publish(ctx)
		return nil
	})

	return draggable, err
}

// ToggleAutopilot pauses a running autopilot or starts a paused one and returns whether it runs now.
func (c *Controller) ToggleAutopilot(ctx context.Context) (bool, error) {
	var running bool
	err := c.do(ctx, func() error {
		var err error
		if running, err = c.toggleAutopilot(ctx); err != nil {
			return err
		}
		c.publish(ctx)
		return nil
	})

	return running, err
}

// ResetTrack zeroes the walk statistics and forgets the recorded track.
func (c *Controller) ResetTrack(ctx context.Context) error {
	if c.tracker == nil {
		return nil
	}
	if err := c.tracker.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset track: %w", err)
	}

	return c.do(ctx, func() error {
		c.publish(ctx)
		return nil
	})
}

// State returns a snapshot of the observable state.
func (c *Controller) State(ctx context.Context) (State, error) {
	var state State
	err := c.do(ctx, func() error {
		state = c.state()
		return nil
	})

	return state, err
}

// Refresh pushes the current state to the publisher.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.do(ctx, func() error {
		c.publish(ctx)
		return nil
	})
}

func (c *Controller) commit(ctx context.Context, position models.Coordinates, source location.Source) error {
	return c.do(ctx, func() error {
		c.store.Commit(position, source)
		c.log.InfoContext(ctx, "Location set", "source", source, "lat", position.Latitude, "lng", position.Longitude)
		c.publish(ctx)
		return nil
	})
}

func (c *Controller) suggest(ctx context.Context, destination models.Coordinates) error {
	err := c.autopilot.Suggest(ctx, models.NewSuggestion(destination))
	c.count("suggest", err)
	if err != nil {
		return fmt.Errorf("failed to hand destination to autopilot: %w", err)
	}

	c.publisher.PublishDestination(ctx, destination)
	return nil
}

func (c *Controller) toggleAutopilot(ctx context.Context) (bool, error) {
	command := "start"
	if c.autopilot.Running() {
		command = "pause"
	}

	running, err := autopilot.Toggle(ctx, c.autopilot)
	c.count(command, err)
	if err != nil {
		return running, fmt.Errorf("failed to %s autopilot: %w", command, err)
	}

	return running, nil
}

func (c *Controller) publish(ctx context.Context) {
	c.publisher.PublishState(ctx, c.state())
}

func (c *Controller) state() State {
	state := State{
		Revision:     c.store.Revision(),
		LastMove:     c.input.LastMove(),
		Waypoints:    c.waypoints.List(),
		WaypointMode: c.waypoints.Enabled(),
		SpeedLimit:   c.speedLimit,
		Draggable:    c.draggable,
		Autopilot:    c.autopilot.Running(),
	}
	if position, ok := c.store.Get(); ok {
		state.Position = &position
		state.Source = c.source
	}
	if c.tracker != nil {
		state.Stats = c.tracker.Stats()
	}

	return state
}

func (c *Controller) count(command string, err error) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	c.metrics.AutopilotCommands.WithLabelValues(command, status).Inc()
}
