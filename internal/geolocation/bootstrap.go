package geolocation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/UnknownOlympus/strider/internal/location"
	"github.com/UnknownOlympus/strider/internal/metrics"
	"github.com/UnknownOlympus/strider/internal/models"
)

// Notifier shows messages to the user.
type Notifier interface {
	Warning(ctx context.Context, message string)
	Error(ctx context.Context, message string)
}

// CommitFunc stores a resolved position. Both the device and the IP path end here.
type CommitFunc func(ctx context.Context, position models.Coordinates, source location.Source) error

// Bootstrap resolves the initial position: device first, then IP geolocation.
type Bootstrap struct {
	log      *slog.Logger
	device   Locator
	fallback Locator
	notifier Notifier
	commit   CommitFunc
	metrics  *metrics.Metrics
}

// NewBootstrap creates the device-then-IP fallback chain.
func NewBootstrap(
	log *slog.Logger,
	device Locator,
	fallback Locator,
	notifier Notifier,
	commit CommitFunc,
	metrics *metrics.Metrics,
) *Bootstrap {
	return &Bootstrap{
		log:      log,
		device:   device,
		fallback: fallback,
		notifier: notifier,
		commit:   commit,
		metrics:  metrics,
	}
}

// Run resolves and commits the position. A device failure is only a warning and always tries
// the IP fallback. If that fails too the user is told and the position stays unset; there is
// no automatic retry.
func (b *Bootstrap) Run(ctx context.Context) error {
	position, err := b.lookup(ctx, b.device, location.SourceDevice)
	if err == nil {
		return b.commit(ctx, position, location.SourceDevice)
	}

	return b.DeviceFailed(ctx, err)
}

// DeviceFailed reports a failed device lookup to the user and falls back to IP geolocation.
// Browsers that run their own geolocation land here when it fails.
func (b *Bootstrap) DeviceFailed(ctx context.Context, cause error) error {
	b.log.WarnContext(ctx, "Device geolocation failed, using IP location", "error", cause)
	b.notifier.Warning(ctx, fmt.Sprintf("Error getting your geolocation, using IP location: %v", cause))

	return b.RunFallback(ctx)
}

// RunFallback skips the device and resolves the position from the IP address.
func (b *Bootstrap) RunFallback(ctx context.Context) error {
	position, err := b.lookup(ctx, b.fallback, location.SourceIP)
	if err != nil {
		b.log.ErrorContext(ctx, "IP geolocation failed", "error", err)
		b.notifier.Error(ctx, fmt.Sprintf("Could not use IP location, try to restart: %v", err))
		return fmt.Errorf("failed to resolve user location: %w", err)
	}

	return b.commit(ctx, position, location.SourceIP)
}

func (b *Bootstrap) lookup(ctx context.Context, loc Locator, source location.Source) (models.Coordinates, error) {
	startTime := time.Now()
	position, err := loc.Locate(ctx)
	duration := time.Since(startTime).Seconds()

	if b.metrics != nil {
		status := "success"
		if err != nil {
			status = "failure"
		}
		b.metrics.GeolocationLookups.WithLabelValues(string(source), status).Inc()
		b.metrics.LookupSeconds.WithLabelValues("geolocation_" + string(source)).Observe(duration)
	}

	return position, err
}
