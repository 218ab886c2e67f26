package mapview

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/UnknownOlympus/strider/internal/models"
	"github.com/UnknownOlympus/strider/internal/service"
)

const (
	defaultTrackLimit = 500
	maxTrackLimit     = 10000
)

// TrackSource returns recorded positions.
type TrackSource interface {
	Track(ctx context.Context, limit int) ([]models.Position, error)
}

type trackPoint struct {
	models.Coordinates
	Source     string    `json:"source"`
	RecordedAt time.Time `json:"recorded_at"`
}

// TrackHandler serves the recorded track as JSON, oldest point first. The optional limit query
// parameter caps the number of points.
func TrackHandler(source TrackSource, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultTrackLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 || parsed > maxTrackLimit {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		track, err := source.Track(r.Context(), limit)
		if errors.Is(err, service.ErrNoTrackStore) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			log.ErrorContext(r.Context(), "Failed to load track", "error", err)
			http.Error(w, "failed to load track", http.StatusInternalServerError)
			return
		}

		points := make([]trackPoint, 0, len(track))
		for _, p := range track {
			points = append(points, trackPoint{
				Coordinates: p.Coordinates,
				Source:      p.Source,
				RecordedAt:  p.RecordedAt.UTC(),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		if err = json.NewEncoder(w).Encode(points); err != nil {
			log.ErrorContext(r.Context(), "Failed to write track", "error", err)
		}
	}
}
