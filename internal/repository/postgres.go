package repository

import (
	"context"
	"fmt"
	"slices"

	"github.com/UnknownOlympus/strider/internal/models"
)

const (
	migrateQuery = `
		CREATE TABLE IF NOT EXISTS positions (
			id          BIGSERIAL PRIMARY KEY,
			latitude    DOUBLE PRECISION NOT NULL,
			longitude   DOUBLE PRECISION NOT NULL,
			source      TEXT NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`

	insertPositionQuery = `
		INSERT INTO positions (latitude, longitude, source, recorded_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id;
	`

	fetchTrackQuery = `
		SELECT id, latitude, longitude, source, recorded_at
		FROM positions
		ORDER BY id DESC
		LIMIT $1;
	`

	deleteTrackQuery = `DELETE FROM positions;`
)

// Migrate creates the positions table when it does not exist yet.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, migrateQuery); err != nil {
		return fmt.Errorf("failed to create positions table: %w", err)
	}

	return nil
}

// InsertPosition stores a walked position and returns its generated id.
func (r *Repository) InsertPosition(ctx context.Context, pos models.Position) (int64, error) {
	var id int64
	err := r.db.QueryRow(
		ctx,
		insertPositionQuery,
		pos.Coordinates.Latitude,
		pos.Coordinates.Longitude,
		pos.Source,
		pos.RecordedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert position: %w", err)
	}

	r.log.DebugContext(ctx, "Position recorded", "id", id, "source", pos.Source)
	return id, nil
}

// FetchTrack returns up to limit of the most recent positions, oldest first.
func (r *Repository) FetchTrack(ctx context.Context, limit int) ([]models.Position, error) {
	rows, err := r.db.Query(ctx, fetchTrackQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query track: %w", err)
	}
	defer rows.Close()

	var track []models.Position
	for rows.Next() {
		var pos models.Position
		errScan := rows.Scan(
			&pos.ID,
			&pos.Coordinates.Latitude,
			&pos.Coordinates.Longitude,
			&pos.Source,
			&pos.RecordedAt,
		)
		if errScan != nil {
			return nil, fmt.Errorf("failed to scan position: %w", errScan)
		}
		track = append(track, pos)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read row: %w", err)
	}

	slices.Reverse(track)
	return track, nil
}

// DeleteTrack removes every recorded position.
func (r *Repository) DeleteTrack(ctx context.Context) error {
	tag, err := r.db.Exec(ctx, deleteTrackQuery)
	if err != nil {
		return fmt.Errorf("failed to delete track: %w", err)
	}

	r.log.InfoContext(ctx, "Track deleted", "rows", tag.RowsAffected())
	return nil
}
