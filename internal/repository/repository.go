package repository

import (
	"context"
	"log/slog"

	"github.com/UnknownOlympus/strider/internal/models"
)

type Repository struct {
	db  Database
	log *slog.Logger
}

type Interface interface {
	InsertPosition(ctx context.Context, pos models.Position) (int64, error)
	FetchTrack(ctx context.Context, limit int) ([]models.Position, error)
	DeleteTrack(ctx context.Context) error
}

// NewRepository creates a new instance of Repository with the provided Database.
func NewRepository(db Database, log *slog.Logger) *Repository {
	return &Repository{db: db, log: log}
}
