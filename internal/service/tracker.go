package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/UnknownOlympus/strider/internal/location"
	"github.com/UnknownOlympus/strider/internal/metrics"
	"github.com/UnknownOlympus/strider/internal/models"
	"github.com/UnknownOlympus/strider/internal/repository"
)

// ErrNoTrackStore is returned by track queries when persistence is disabled.
var ErrNoTrackStore = errors.New("track persistence is disabled")

// Stats summarises the walk since start (or since the last reset).
type Stats struct {
	TotalDistance float64 `json:"total_distance"` // meters
	Speed         float64 `json:"speed"`          // km/h between the two most recent moves
	Points        int     `json:"points"`
}

// queued is a snapshot waiting for the worker, tagged with the reset generation it was
// observed in.
type queued struct {
	snap       location.Snapshot
	generation uint64
}

// Tracker follows committed positions: it keeps the walked distance and the current speed,
// and records every position through the repository when one is configured.
type Tracker struct {
	log     *slog.Logger         // Logger for tracker activities
	repo    repository.Interface // Track store, nil disables persistence
	metrics *metrics.Metrics     // Metrics for distance, speed and recorded positions, optional
	queue   chan queued

	mu         sync.Mutex
	stats      Stats
	last       *location.Snapshot
	generation uint64 // bumped by Reset; older snapshots are discarded

	// persist orders position inserts against track deletion.
	persist sync.Mutex
}

// NewTracker creates a tracker with a queue of queueSize pending snapshots.
func NewTracker(
	log *slog.Logger,
	repo repository.Interface,
	metrics *metrics.Metrics,
	queueSize int,
) *Tracker {
	return &Tracker{
		log:     log,
		repo:    repo,
		metrics: metrics,
		queue:   make(chan queued, queueSize),
	}
}

// Observe queues a snapshot for the worker. It never blocks: the movement loop calls it from a
// store subscription, so a full queue drops the snapshot instead.
func (t *Tracker) Observe(snap location.Snapshot) {
	t.mu.Lock()
	item := queued{snap: snap, generation: t.generation}
	t.mu.Unlock()

	select {
	case t.queue <- item:
	default:
		t.log.Warn("Tracker queue is full, dropping position", "revision", snap.Revision)
		t.count("dropped")
	}
}

// Run processes queued snapshots until the context is canceled.
func (t *Tracker) Run(ctx context.Context) {
	t.log.InfoContext(ctx, "Tracker started...", "persistence", t.repo != nil)

	for {
		select {
		case <-ctx.Done():
			t.log.InfoContext(ctx, "Tracker stopped.")
			return
		case item := <-t.queue:
			t.process(ctx, item)
		}
	}
}

// process applies a snapshot to the stats and records it. Snapshots observed before the last
// Reset are discarded.
func (t *Tracker) process(ctx context.Context, item queued) {
	snap := item.snap

	t.mu.Lock()
	if item.generation != t.generation {
		t.mu.Unlock()
		t.log.DebugContext(ctx, "Discarding position observed before reset", "revision", snap.Revision)
		return
	}
	if t.last != nil && snap.Source == location.SourceMove {
		meters := t.last.Position.DistanceTo(snap.Position)
		t.stats.TotalDistance += meters
		if elapsed := snap.At.Sub(t.last.At); elapsed > 0 {
			const msToKmh = 3.6
			t.stats.Speed = meters / elapsed.Seconds() * msToKmh
		}
	} else {
		t.stats.Speed = 0
	}
	t.stats.Points++
	t.last = &snap
	stats := t.stats
	t.mu.Unlock()

	t.observe(stats)

	if t.repo == nil {
		return
	}

	t.persist.Lock()
	defer t.persist.Unlock()

	// A reset may have run while the stats were updated; its deletion must win.
	t.mu.Lock()
	stale := item.generation != t.generation
	t.mu.Unlock()
	if stale {
		return
	}

	_, err := t.repo.InsertPosition(ctx, models.Position{
		Coordinates: snap.Position,
		Source:      string(snap.Source),
		RecordedAt:  snap.At,
	})
	if err != nil {
		t.log.ErrorContext(ctx, "Failed to record position", "revision", snap.Revision, "error", err)
		t.count("failure")
		return
	}
	t.count("success")
}

// Stats returns the current walk statistics.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.stats
}

// Reset zeroes the statistics and deletes the recorded track. Snapshots still queued from
// before the reset are discarded by the worker, so they neither count nor get recorded.
func (t *Tracker) Reset(ctx context.Context) error {
	t.persist.Lock()
	defer t.persist.Unlock()

	t.mu.Lock()
	t.generation++
	t.stats = Stats{}
	t.last = nil
	t.mu.Unlock()

	t.observe(Stats{})

	if t.repo == nil {
		return nil
	}
	return t.repo.DeleteTrack(ctx)
}

// Track returns up to limit of the most recently recorded positions, oldest first.
func (t *Tracker) Track(ctx context.Context, limit int) ([]models.Position, error) {
	if t.repo == nil {
		return nil, ErrNoTrackStore
	}

	const lookupTimeout = 5 * time.Second
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	return t.repo.FetchTrack(ctx, limit)
}

func (t *Tracker) observe(stats Stats) {
	if t.metrics == nil {
		return
	}
	t.metrics.TotalDistance.Set(stats.TotalDistance)
	t.metrics.Speed.Set(stats.Speed)
}

func (t *Tracker) count(status string) {
	if t.metrics != nil {
		t.metrics.PositionsRecorded.WithLabelValues(status).Inc()
	}
}
