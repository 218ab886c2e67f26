package geocoding

import (
	"context"

	"github.com/UnknownOlympus/strider/internal/models"
)

// Provider resolves a free-text destination query (a place name or an address) to coordinates.
// It backs the destination search box of the map view.
type Provider interface {
	Geocode(ctx context.Context, query string) (*models.Coordinates, error)
}
