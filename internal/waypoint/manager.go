package waypoint

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/UnknownOlympus/strider/internal/autopilot"
	"github.com/UnknownOlympus/strider/internal/metrics"
	"github.com/UnknownOlympus/strider/internal/models"
	"github.com/google/uuid"
)

// TapOutcome tells the caller what a map tap did.
type TapOutcome int

const (
	// TapDestination means waypoint mode is off and the tap is a single destination.
	TapDestination TapOutcome = iota
	// TapAdded means a new waypoint was placed.
	TapAdded
	// TapRemoved means an existing waypoint marker was tapped and removed.
	TapRemoved
	// TapIgnored means the tapped marker is not a known waypoint. Nothing changed.
	TapIgnored
)

// Manager keeps the ordered list of user-placed waypoints.
// Like the location store it is confined to the controller loop.
type Manager struct {
	log       *slog.Logger
	autopilot autopilot.Autopilot
	metrics   *metrics.Metrics
	newID     func() string

	points  []models.Waypoint
	enabled bool
}

// NewManager creates an empty manager with waypoint mode off.
func NewManager(log *slog.Logger, ap autopilot.Autopilot, metrics *metrics.Metrics) *Manager {
	return &Manager{
		log:       log,
		autopilot: ap,
		metrics:   metrics,
		newID:     uuid.NewString,
	}
}

// Add appends a waypoint and returns its identifier.
func (m *Manager) Add(position models.Coordinates) string {
	id := m.newID()
	m.points = append(m.points, models.Waypoint{ID: id, Position: position})
	m.observe()

	return id
}

// Remove drops the waypoint with the given id and reports whether it existed.
// Unknown ids are ignored.
func (m *Manager) Remove(id string) bool {
	idx := slices.IndexFunc(m.points, func(w models.Waypoint) bool { return w.ID == id })
	if idx < 0 {
		return false
	}
	m.points = slices.Delete(m.points, idx, idx+1)
	m.observe()

	return true
}

// Clear removes every waypoint.
func (m *Manager) Clear() {
	m.points = nil
	m.observe()
}

// List returns a copy of the waypoints in insertion order.
func (m *Manager) List() []models.Waypoint {
	return slices.Clone(m.points)
}

// Len returns the number of waypoints.
func (m *Manager) Len() int {
	return len(m.points)
}

// Enabled reports whether map taps edit waypoints.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// ToggleMode flips waypoint mode and returns the new value.
func (m *Manager) ToggleMode() bool {
	m.enabled = !m.enabled
	return m.enabled
}

// Tap applies a map tap. markerID is set when an existing waypoint marker was tapped.
// With waypoint mode off nothing changes and TapDestination is returned.
func (m *Manager) Tap(position models.Coordinates, markerID string) (TapOutcome, string) {
	if !m.enabled {
		return TapDestination, ""
	}

	if markerID != "" {
		if !m.Remove(markerID) {
			return TapIgnored, ""
		}
		return TapRemoved, markerID
	}

	return TapAdded, m.Add(position)
}

// StartRouting hands every waypoint, in order, to the autopilot in a single call.
// An empty list is not an error and does not reach the autopilot.
func (m *Manager) StartRouting(ctx context.Context) error {
	if len(m.points) == 0 {
		m.log.DebugContext(ctx, "No waypoints to route")
		return nil
	}

	route := make([]models.Suggestion, 0, len(m.points))
	for _, w := range m.points {
		route = append(route, models.NewSuggestion(w.Position))
	}

	if err := m.autopilot.Route(ctx, route); err != nil {
		m.count("route", "failure")
		return fmt.Errorf("failed to hand route to autopilot: %w", err)
	}
	m.count("route", "success")
	m.log.InfoContext(ctx, "Route handed to autopilot", "waypoints", len(route))

	return nil
}

func (m *Manager) observe() {
	if m.metrics != nil {
		m.metrics.Waypoints.Set(float64(len(m.points)))
	}
}

func (m *Manager) count(command, status string) {
	if m.metrics != nil {
		m.metrics.AutopilotCommands.WithLabelValues(command, status).Inc()
	}
}
