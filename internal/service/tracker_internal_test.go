package service

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/UnknownOlympus/strider/internal/location"
	"github.com/UnknownOlympus/strider/internal/metrics"
	"github.com/UnknownOlympus/strider/internal/models"
	"github.com/UnknownOlympus/strider/test/mocks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	walkStart = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	berlin    = models.Coordinates{Latitude: 52.5200, Longitude: 13.4050}
	// roughly 5.56 m north of berlin
	stepNorth = models.Coordinates{Latitude: 52.52005, Longitude: 13.4050}
)

func newTestTracker(t *testing.T, withRepo bool) (*Tracker, *mocks.Repository, *metrics.Metrics) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	appMetrics := metrics.NewMetrics(prometheus.NewRegistry())

	if !withRepo {
		return NewTracker(logger, nil, appMetrics, 4), nil, appMetrics
	}
	repo := mocks.NewRepository(t)
	return NewTracker(logger, repo, appMetrics, 4), repo, appMetrics
}

func TestProcess(t *testing.T) {
	ctx := t.Context()

	t.Run("moves accumulate distance and speed", func(t *testing.T) {
		tracker, _, appMetrics := newTestTracker(t, false)

		tracker.process(ctx, queued{snap: location.Snapshot{
			Position: berlin, Source: location.SourceDevice, Revision: 1, At: walkStart,
		}})
		tracker.process(ctx, queued{snap: location.Snapshot{
			Position: stepNorth, Source: location.SourceMove, Revision: 2, At: walkStart.Add(time.Second),
		}})

		stats := tracker.Stats()
		assert.Equal(t, 2, stats.Points)
		assert.InDelta(t, 5.56, stats.TotalDistance, 0.01)
		// 5.56 m in one second
		assert.InDelta(t, 20.0, stats.Speed, 0.1)
		assert.InDelta(t, 5.56, testutil.ToFloat64(appMetrics.TotalDistance), 0.01)
	})

	t.Run("teleports do not add distance", func(t *testing.T) {
		tracker, _, _ := newTestTracker(t, false)

		tracker.process(ctx, queued{snap: location.Snapshot{Position: berlin, Source: location.SourceDevice, At: walkStart}})
		tracker.process(ctx, queued{snap: location.Snapshot{
			Position: models.Coordinates{Latitude: 48.8566, Longitude: 2.3522},
			Source:   location.SourceIP,
			At:       walkStart.Add(time.Second),
		}})

		stats := tracker.Stats()
		assert.Zero(t, stats.TotalDistance)
		assert.Zero(t, stats.Speed)
	})

	t.Run("position is recorded", func(t *testing.T) {
		tracker, repo, appMetrics := newTestTracker(t, true)
		snap := location.Snapshot{Position: berlin, Source: location.SourceMove, Revision: 7, At: walkStart}

		repo.On("InsertPosition", ctx, models.Position{
			Coordinates: berlin,
			Source:      "move",
			RecordedAt:  walkStart,
		}).Return(int64(1), nil).Once()

		tracker.process(ctx, queued{snap: snap})

		assert.InDelta(t, 1, testutil.ToFloat64(appMetrics.PositionsRecorded.WithLabelValues("success")), 0)
	})

	t.Run("record failure keeps stats", func(t *testing.T) {
		tracker, repo, appMetrics := newTestTracker(t, true)

		repo.On("InsertPosition", ctx, mock.Anything).Return(int64(0), assert.AnError).Once()

		tracker.process(ctx, queued{snap: location.Snapshot{Position: berlin, Source: location.SourceMove, At: walkStart}})

		assert.Equal(t, 1, tracker.Stats().Points)
		assert.InDelta(t, 1, testutil.ToFloat64(appMetrics.PositionsRecorded.WithLabelValues("failure")), 0)
	})
}

func TestObserve_DropsWhenFull(t *testing.T) {
	tracker, _, appMetrics := newTestTracker(t, false)

	for i := range 6 {
		tracker.Observe(location.Snapshot{Revision: uint64(i + 1)})
	}

	assert.Len(t, tracker.queue, 4)
	assert.InDelta(t, 2, testutil.ToFloat64(appMetrics.PositionsRecorded.WithLabelValues("dropped")), 0)
}

func TestRun(t *testing.T) {
	tracker, _, _ := newTestTracker(t, false)
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})

	go func() {
		tracker.Run(ctx)
		close(done)
	}()

	tracker.Observe(location.Snapshot{Position: berlin, Source: location.SourceDevice, At: walkStart})
	tracker.Observe(location.Snapshot{Position: stepNorth, Source: location.SourceMove, At: walkStart.Add(time.Second)})

	require.Eventually(t, func() bool { return tracker.Stats().Points == 2 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tracker did not stop after cancel")
	}
}

func TestReset(t *testing.T) {
	ctx := t.Context()

	t.Run("without persistence", func(t *testing.T) {
		tracker, _, _ := newTestTracker(t, false)
		tracker.process(ctx, queued{snap: location.Snapshot{Position: berlin, Source: location.SourceMove, At: walkStart}})

		require.NoError(t, tracker.Reset(ctx))
		assert.Equal(t, Stats{}, tracker.Stats())
	})

	t.Run("deletes recorded track", func(t *testing.T) {
		tracker, repo, _ := newTestTracker(t, true)
		repo.On("DeleteTrack", ctx).Return(assert.AnError).Once()

		err := tracker.Reset(ctx)

		require.ErrorIs(t, err, assert.AnError)
		assert.Equal(t, Stats{}, tracker.Stats())
	})

	t.Run("queued positions do not survive a reset", func(t *testing.T) {
		tracker, repo, appMetrics := newTestTracker(t, true)
		repo.On("DeleteTrack", ctx).Return(nil).Once()

		tracker.Observe(location.Snapshot{Position: berlin, Source: location.SourceDevice, Revision: 1, At: walkStart})
		tracker.Observe(location.Snapshot{
			Position: stepNorth, Source: location.SourceMove, Revision: 2, At: walkStart.Add(time.Second),
		})
		tracker.Observe(location.Snapshot{
			Position: berlin, Source: location.SourceMove, Revision: 3, At: walkStart.Add(2 * time.Second),
		})
		require.NoError(t, tracker.Reset(ctx))

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go tracker.Run(runCtx)

		require.Eventually(t, func() bool { return len(tracker.queue) == 0 }, time.Second, 10*time.Millisecond)
		// the worker may still be holding the last item; a fresh position shows it is done
		repo.On("InsertPosition", mock.Anything, mock.MatchedBy(func(p models.Position) bool {
			return p.Source == "device"
		})).Return(int64(1), nil).Once()
		tracker.Observe(location.Snapshot{Position: stepNorth, Source: location.SourceDevice, Revision: 4, At: walkStart})

		require.Eventually(t, func() bool {
			return testutil.ToFloat64(appMetrics.PositionsRecorded.WithLabelValues("success")) == 1
		}, time.Second, 10*time.Millisecond)
		assert.Equal(t, Stats{Points: 1}, tracker.Stats())
		assert.Zero(t, testutil.ToFloat64(appMetrics.TotalDistance))
		repo.AssertNumberOfCalls(t, "InsertPosition", 1)
	})
}

func TestTracker_WithoutMetrics(t *testing.T) {
	ctx := t.Context()
	tracker := NewTracker(slog.Default(), nil, nil, 1)

	assert.NotPanics(t, func() {
		tracker.Observe(location.Snapshot{Position: berlin, Source: location.SourceDevice, At: walkStart})
		tracker.Observe(location.Snapshot{Position: stepNorth, Source: location.SourceMove, At: walkStart})
		tracker.process(ctx, <-tracker.queue)
		require.NoError(t, tracker.Reset(ctx))
	})
	assert.Equal(t, Stats{}, tracker.Stats())
}

func TestTrack(t *testing.T) {
	t.Run("persistence disabled", func(t *testing.T) {
		tracker, _, _ := newTestTracker(t, false)

		_, err := tracker.Track(t.Context(), 10)

		require.ErrorIs(t, err, ErrNoTrackStore)
	})

	t.Run("fetches from repository", func(t *testing.T) {
		tracker, repo, _ := newTestTracker(t, true)
		want := []models.Position{{ID: 1, Coordinates: berlin, Source: "move", RecordedAt: walkStart}}
		repo.On("FetchTrack", mock.Anything, 10).Return(want, nil).Once()

		got, err := tracker.Track(t.Context(), 10)

		require.NoError(t, err)
		assert.Equal(t, want, got)
	})
}
