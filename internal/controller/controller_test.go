package controller_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/UnknownOlympus/strider/internal/controller"
	"github.com/UnknownOlympus/strider/internal/geolocation"
	"github.com/UnknownOlympus/strider/internal/input"
	"github.com/UnknownOlympus/strider/internal/location"
	"github.com/UnknownOlympus/strider/internal/metrics"
	"github.com/UnknownOlympus/strider/internal/models"
	"github.com/UnknownOlympus/strider/internal/movement"
	"github.com/UnknownOlympus/strider/internal/service"
	"github.com/UnknownOlympus/strider/internal/waypoint"
	"github.com/UnknownOlympus/strider/test/mocks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var berlin = models.Coordinates{Latitude: 52.520008, Longitude: 13.404954}

type fakePublisher struct {
	mu           sync.Mutex
	states       []controller.State
	destinations []models.Coordinates
}

func (f *fakePublisher) PublishState(_ context.Context, state controller.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, state)
}

func (f *fakePublisher) PublishDestination(_ context.Context, destination models.Coordinates) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destinations = append(f.destinations, destination)
}

func (f *fakePublisher) lastState() (controller.State, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.states) == 0 {
		return controller.State{}, false
	}
	return f.states[len(f.states)-1], true
}

type fakeTracker struct {
	mu       sync.Mutex
	observed []location.Snapshot
	resets   int
}

func (f *fakeTracker) Observe(snap location.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observed = append(f.observed, snap)
}

func (f *fakeTracker) Stats() service.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return service.Stats{Points: len(f.observed)}
}

func (f *fakeTracker) Reset(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return nil
}

type fixture struct {
	ctrl      *controller.Controller
	autopilot *mocks.Autopilot
	device    *mocks.Locator
	fallback  *mocks.Locator
	notifier  *mocks.Notifier
	search    *mocks.Provider
	publisher *fakePublisher
	tracker   *fakeTracker
	metrics   *metrics.Metrics
}

func newFixture(t *testing.T, clearAfterRoute bool) *fixture {
	t.Helper()
	f := &fixture{
		autopilot: mocks.NewAutopilot(t),
		device:    mocks.NewLocator(t),
		fallback:  mocks.NewLocator(t),
		notifier:  mocks.NewNotifier(t),
		search:    mocks.NewProvider(t),
		publisher: &fakePublisher{},
		tracker:   &fakeTracker{},
		metrics:   metrics.NewMetrics(prometheus.NewRegistry()),
	}
	f.ctrl = controller.New(controller.Options{
		Log:             slog.Default(),
		Metrics:         f.metrics,
		Engine:          movement.NewSeededEngine(7),
		Autopilot:       f.autopilot,
		Publisher:       f.publisher,
		Notifier:        f.notifier,
		Device:          f.device,
		Fallback:        f.fallback,
		Search:          f.search,
		Tracker:         f.tracker,
		ClearAfterRoute: clearAfterRoute,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go f.ctrl.Run(ctx)
	t.Cleanup(cancel)

	return f
}

func (f *fixture) idleAutopilot() {
	f.autopilot.On("Running").Return(false).Maybe()
}

func TestMove(t *testing.T) {
	ctx := t.Context()

	t.Run("unknown location", func(t *testing.T) {
		f := newFixture(t, false)

		_, err := f.ctrl.Move(ctx, models.DirectionN)

		require.ErrorIs(t, err, input.ErrLocationUnknown)
		assert.Empty(t, f.publisher.states)
	})

	t.Run("step north after a device fix", func(t *testing.T) {
		f := newFixture(t, false)
		f.idleAutopilot()

		require.NoError(t, f.ctrl.DeviceFix(ctx, berlin))
		next, err := f.ctrl.Move(ctx, models.DirectionN)
		require.NoError(t, err)

		assert.Greater(t, next.Latitude, berlin.Latitude)
		state, err := f.ctrl.State(ctx)
		require.NoError(t, err)
		require.NotNil(t, state.Position)
		assert.Equal(t, next, *state.Position)
		assert.Equal(t, location.SourceMove, state.Source)
		assert.Equal(t, uint64(2), state.Revision)
		assert.Equal(t, models.LastMove{Direction: models.DirectionN, Revision: 1}, state.LastMove)
		assert.Equal(t, 2, state.Stats.Points)

		published, ok := f.publisher.lastState()
		require.True(t, ok)
		assert.Equal(t, next, *published.Position)
	})

	t.Run("same direction twice is two moves", func(t *testing.T) {
		f := newFixture(t, false)
		f.idleAutopilot()
		require.NoError(t, f.ctrl.DeviceFix(ctx, berlin))

		_, err := f.ctrl.Move(ctx, models.DirectionE)
		require.NoError(t, err)
		_, err = f.ctrl.Move(ctx, models.DirectionE)
		require.NoError(t, err)

		state, err := f.ctrl.State(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.LastMove{Direction: models.DirectionE, Revision: 2}, state.LastMove)
	})
}

func TestKey(t *testing.T) {
	ctx := t.Context()

	t.Run("arrow moves", func(t *testing.T) {
		f := newFixture(t, false)
		f.idleAutopilot()
		require.NoError(t, f.ctrl.DeviceFix(ctx, berlin))

		require.NoError(t, f.ctrl.Key(ctx, 37))

		state, err := f.ctrl.State(ctx)
		require.NoError(t, err)
		assert.Less(t, state.Position.Longitude, berlin.Longitude)
		assert.Equal(t, models.DirectionW, state.LastMove.Direction)
	})

	t.Run("unmapped key does nothing", func(t *testing.T) {
		f := newFixture(t, false)
		f.idleAutopilot()
		require.NoError(t, f.ctrl.DeviceFix(ctx, berlin))
		published := len(f.publisher.states)

		require.NoError(t, f.ctrl.Key(ctx, 13))

		state, err := f.ctrl.State(ctx)
		require.NoError(t, err)
		assert.Equal(t, berlin, *state.Position)
		assert.Len(t, f.publisher.states, published)
	})

	t.Run("space starts a paused autopilot", func(t *testing.T) {
		f := newFixture(t, false)
		running := false
		f.autopilot.On("Running").Return(func() bool { return running })
		f.autopilot.On("Start", mock.Anything).Run(func(mock.Arguments) { running = true }).Return(nil).Once()

		require.NoError(t, f.ctrl.Key(ctx, input.KeyToggleAutopilot))

		state, err := f.ctrl.State(ctx)
		require.NoError(t, err)
		assert.True(t, state.Autopilot)
		assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.AutopilotCommands.WithLabelValues("start", "success")), 0)
	})

	t.Run("space pauses a running autopilot", func(t *testing.T) {
		f := newFixture(t, false)
		f.autopilot.On("Running").Return(true)
		f.autopilot.On("Pause", mock.Anything).Return(assert.AnError).Once()

		running, err := f.ctrl.ToggleAutopilot(ctx)

		require.ErrorIs(t, err, assert.AnError)
		assert.False(t, running)
		assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.AutopilotCommands.WithLabelValues("pause", "failure")), 0)
	})
}

func TestTap(t *testing.T) {
	ctx := t.Context()

	t.Run("destination outside waypoint mode", func(t *testing.T) {
		f := newFixture(t, false)
		f.idleAutopilot()
		want := models.NewSuggestion(models.Coordinates{Latitude: 52.1, Longitude: 13.123457})
		f.autopilot.On("Suggest", mock.Anything, want).Return(nil).Once()

		outcome, err := f.ctrl.Tap(ctx, models.Coordinates{Latitude: 52.1000001, Longitude: 13.1234567}, "")

		require.NoError(t, err)
		assert.Equal(t, waypoint.TapDestination, outcome)
		assert.Equal(t, []models.Coordinates{{Latitude: 52.1, Longitude: 13.123457}}, f.publisher.destinations)
	})

	t.Run("destination hand-off failure", func(t *testing.T) {
		f := newFixture(t, false)
		f.autopilot.On("Suggest", mock.Anything, mock.Anything).Return(assert.AnError).Once()

		_, err := f.ctrl.Tap(ctx, berlin, "")

		require.ErrorIs(t, err, assert.AnError)
		assert.Empty(t, f.publisher.destinations)
	})

	t.Run("waypoint mode adds and removes", func(t *testing.T) {
		f := newFixture(t, false)
		f.idleAutopilot()

		enabled, err := f.ctrl.ToggleWaypointMode(ctx)
		require.NoError(t, err)
		require.True(t, enabled)

		outcome, err := f.ctrl.Tap(ctx, berlin, "")
		require.NoError(t, err)
		assert.Equal(t, waypoint.TapAdded, outcome)

		state, err := f.ctrl.State(ctx)
		require.NoError(t, err)
		require.Len(t, state.Waypoints, 1)
		assert.True(t, state.WaypointMode)

		outcome, err = f.ctrl.Tap(ctx, berlin, state.Waypoints[0].ID)
		require.NoError(t, err)
		assert.Equal(t, waypoint.TapRemoved, outcome)

		state, err = f.ctrl.State(ctx)
		require.NoError(t, err)
		assert.Empty(t, state.Waypoints)
	})

	t.Run("unknown marker is ignored", func(t *testing.T) {
		f := newFixture(t, false)
		f.idleAutopilot()

		_, err := f.ctrl.ToggleWaypointMode(ctx)
		require.NoError(t, err)
		_, err = f.ctrl.Tap(ctx, berlin, "")
		require.NoError(t, err)
		published := len(f.publisher.states)

		outcome, err := f.ctrl.Tap(ctx, berlin, "stale-marker")

		require.NoError(t, err)
		assert.Equal(t, waypoint.TapIgnored, outcome)
		assert.Len(t, f.publisher.states, published, "nothing changed, nothing published")
		state, err := f.ctrl.State(ctx)
		require.NoError(t, err)
		assert.Len(t, state.Waypoints, 1)
		f.autopilot.AssertNotCalled(t, "Suggest", mock.Anything, mock.Anything)
	})
}

func TestStartRoute(t *testing.T) {
	ctx := t.Context()

	t.Run("no waypoints does not reach the autopilot", func(t *testing.T) {
		f := newFixture(t, true)

		require.NoError(t, f.ctrl.StartRoute(ctx))

		f.autopilot.AssertNotCalled(t, "Route", mock.Anything, mock.Anything)
	})

	t.Run("route is handed off in order and cleared", func(t *testing.T) {
		f := newFixture(t, true)
		f.idleAutopilot()
		second := models.Coordinates{Latitude: 52.53, Longitude: 13.41}

		_, err := f.ctrl.ToggleWaypointMode(ctx)
		require.NoError(t, err)
		_, err = f.ctrl.Tap(ctx, berlin, "")
		require.NoError(t, err)
		_, err = f.ctrl.Tap(ctx, second, "")
		require.NoError(t, err)

		f.autopilot.On("Route", mock.Anything, []models.Suggestion{
			models.NewSuggestion(berlin),
			models.NewSuggestion(second),
		}).Return(nil).Once()

		require.NoError(t, f.ctrl.StartRoute(ctx))

		state, err := f.ctrl.State(ctx)
		require.NoError(t, err)
		assert.Empty(t, state.Waypoints)
	})

	t.Run("failed hand-off keeps waypoints", func(t *testing.T) {
		f := newFixture(t, true)
		f.idleAutopilot()
		_, err := f.ctrl.ToggleWaypointMode(ctx)
		require.NoError(t, err)
		_, err = f.ctrl.Tap(ctx, berlin, "")
		require.NoError(t, err)
		f.autopilot.On("Route", mock.Anything, mock.Anything).Return(assert.AnError).Once()

		err = f.ctrl.StartRoute(ctx)

		require.ErrorIs(t, err, assert.AnError)
		state, err := f.ctrl.State(ctx)
		require.NoError(t, err)
		assert.Len(t, state.Waypoints, 1)
	})
}

func TestSearch(t *testing.T) {
	ctx := t.Context()

	t.Run("found destination is submitted", func(t *testing.T) {
		f := newFixture(t, false)
		found := models.Coordinates{Latitude: 52.5163, Longitude: 13.3777}
		f.search.On("Geocode", ctx, "Brandenburger Tor").Return(&found, nil).Once()
		f.autopilot.On("Suggest", mock.Anything, models.NewSuggestion(found)).Return(nil).Once()

		got, err := f.ctrl.Search(ctx, "Brandenburger Tor")

		require.NoError(t, err)
		assert.Equal(t, found, got)
		assert.Equal(t, []models.Coordinates{found}, f.publisher.destinations)
	})

	t.Run("lookup failure", func(t *testing.T) {
		f := newFixture(t, false)
		f.search.On("Geocode", ctx, "nowhere").Return(nil, assert.AnError).Once()

		_, err := f.ctrl.Search(ctx, "nowhere")

		require.ErrorIs(t, err, assert.AnError)
		f.autopilot.AssertNotCalled(t, "Suggest", mock.Anything, mock.Anything)
	})

	t.Run("disabled", func(t *testing.T) {
		ctrl := controller.New(controller.Options{
			Log:       slog.Default(),
			Engine:    movement.NewSeededEngine(1),
			Autopilot: mocks.NewAutopilot(t),
			Publisher: &fakePublisher{},
		})

		_, err := ctrl.Search(ctx, "Berlin")

		require.ErrorIs(t, err, controller.ErrSearchDisabled)
	})
}

func TestSettings(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t, false)
	f.idleAutopilot()

	state, err := f.ctrl.State(ctx)
	require.NoError(t, err)
	assert.InDelta(t, controller.DefaultSpeedLimit, state.SpeedLimit, 0)
	assert.True(t, state.Draggable)
	assert.Nil(t, state.Position)

	for _, invalid := range []float64{0, -1} {
		require.ErrorIs(t, f.ctrl.SetSpeedLimit(ctx, invalid), controller.ErrInvalidSpeedLimit)
	}
	require.NoError(t, f.ctrl.SetSpeedLimit(ctx, 2.5))

	draggable, err := f.ctrl.ToggleDrag(ctx)
	require.NoError(t, err)
	assert.False(t, draggable)

	state, err = f.ctrl.State(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, state.SpeedLimit, 0)
	assert.False(t, state.Draggable)
}

func TestSpeedLimitShortensSteps(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t, false)
	f.idleAutopilot()
	require.NoError(t, f.ctrl.DeviceFix(ctx, berlin))
	require.NoError(t, f.ctrl.SetSpeedLimit(ctx, 10))

	next, err := f.ctrl.Move(ctx, models.DirectionE)

	require.NoError(t, err)
	assert.LessOrEqual(t, next.Longitude-berlin.Longitude, movement.WEStepMax/10+1e-12)
}

func TestBootstrap(t *testing.T) {
	f := newFixture(t, false)
	f.idleAutopilot()
	paris := models.Coordinates{Latitude: 48.8566, Longitude: 2.3522}
	f.device.On("Locate", mock.Anything).Return(models.Coordinates{}, geolocation.ErrNoDeviceFix).Once()
	f.notifier.On("Warning", mock.Anything, mock.Anything).Once()
	f.fallback.On("Locate", mock.Anything).Return(paris, nil).Once()

	f.ctrl.Bootstrap(t.Context())

	require.Eventually(t, func() bool {
		state, err := f.ctrl.State(t.Context())
		return err == nil && state.Position != nil
	}, time.Second, 10*time.Millisecond)

	state, err := f.ctrl.State(t.Context())
	require.NoError(t, err)
	assert.Equal(t, paris, *state.Position)
	assert.Equal(t, location.SourceIP, state.Source)
}

func TestDeviceError(t *testing.T) {
	f := newFixture(t, false)
	f.idleAutopilot()
	done := make(chan struct{})
	f.notifier.On("Warning", mock.Anything, "Error getting your geolocation, using IP location: User denied Geolocation").Once()
	f.fallback.On("Locate", mock.Anything).Return(models.Coordinates{}, errors.New("offline")).Once()
	f.notifier.On("Error", mock.Anything, mock.Anything).Run(func(mock.Arguments) { close(done) }).Once()

	f.ctrl.DeviceError(t.Context(), "User denied Geolocation")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fallback failure was not reported")
	}
	f.device.AssertNotCalled(t, "Locate", mock.Anything)
}

func TestResetTrack(t *testing.T) {
	f := newFixture(t, false)
	f.idleAutopilot()

	require.NoError(t, f.ctrl.ResetTrack(t.Context()))

	assert.Equal(t, 1, f.tracker.resets)
}

func TestStopped(t *testing.T) {
	ctrl := controller.New(controller.Options{
		Log:       slog.Default(),
		Engine:    movement.NewSeededEngine(1),
		Autopilot: mocks.NewAutopilot(t),
		Publisher: &fakePublisher{},
	})
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		ctrl.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	_, err := ctrl.State(t.Context())

	require.ErrorIs(t, err, controller.ErrStopped)
}
