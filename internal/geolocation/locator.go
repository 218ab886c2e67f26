package geolocation

import (
	"context"
	"errors"

	"github.com/UnknownOlympus/strider/internal/models"
)

// Locator resolves the user's real position.
type Locator interface {
	Locate(ctx context.Context) (models.Coordinates, error)
}

// ErrNoDeviceFix is returned when no device position is available.
var ErrNoDeviceFix = errors.New("device geolocation is unavailable")

// DeviceLocator returns a device fix supplied from configuration, for hosts that have a GPS
// receiver or a known fixed position. Without one it always fails, which sends the bootstrap
// straight to the IP fallback.
type DeviceLocator struct {
	fix *models.Coordinates
}

// NewDeviceLocator creates a locator for fix. A nil fix means the device has no position.
func NewDeviceLocator(fix *models.Coordinates) *DeviceLocator {
	return &DeviceLocator{fix: fix}
}

func (d *DeviceLocator) Locate(ctx context.Context) (models.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return models.Coordinates{}, err
	}
	if d.fix == nil {
		return models.Coordinates{}, ErrNoDeviceFix
	}
	return *d.fix, nil
}
