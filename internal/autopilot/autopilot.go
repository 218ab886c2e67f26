package autopilot

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/UnknownOlympus/strider/internal/models"
)

// Autopilot is the external component that walks the simulated position along a route.
// strider only hands it destinations and pause/start commands.
type Autopilot interface {
	Suggest(ctx context.Context, suggestion models.Suggestion) error
	Route(ctx context.Context, route []models.Suggestion) error
	Pause(ctx context.Context) error
	Start(ctx context.Context) error
	Running() bool
}

// Toggle pauses a running autopilot and starts a paused one. It reports the state it requested.
func Toggle(ctx context.Context, ap Autopilot) (bool, error) {
	if ap.Running() {
		return false, ap.Pause(ctx)
	}
	return true, ap.Start(ctx)
}

// LogAutopilot is used when no autopilot transport is configured. It logs every hand-off and
// keeps the running flag locally.
type LogAutopilot struct {
	log     *slog.Logger
	running atomic.Bool
}

// NewLogAutopilot creates a LogAutopilot.
func NewLogAutopilot(log *slog.Logger) *LogAutopilot {
	return &LogAutopilot{log: log}
}

func (l *LogAutopilot) Suggest(ctx context.Context, suggestion models.Suggestion) error {
	l.log.InfoContext(ctx, "Destination suggested", "lat", suggestion.LatLng.Lat, "lng", suggestion.LatLng.Lng)
	return nil
}

func (l *LogAutopilot) Route(ctx context.Context, route []models.Suggestion) error {
	l.log.InfoContext(ctx, "Route suggested", "waypoints", len(route))
	return nil
}

func (l *LogAutopilot) Pause(ctx context.Context) error {
	l.running.Store(false)
	l.log.InfoContext(ctx, "Autopilot paused")
	return nil
}

func (l *LogAutopilot) Start(ctx context.Context) error {
	l.running.Store(true)
	l.log.InfoContext(ctx, "Autopilot started")
	return nil
}

func (l *LogAutopilot) Running() bool {
	return l.running.Load()
}
