package geolocation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/UnknownOlympus/strider/internal/models"
	"golang.org/x/time/rate"
)

// IPInfoURL is the default IP geolocation endpoint.
const IPInfoURL = "https://ipinfo.io/json"

// HTTPClient defines the interface for making HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Common errors for the IP locator.
var (
	ErrIPEmptyLocation   = errors.New("ip geolocation returned no location")
	ErrIPInvalidLocation = errors.New("ip geolocation returned an invalid location")
)

// ipInfoResponse is the subset of the ipinfo.io reply we use. Loc is "lat,lng".
type ipInfoResponse struct {
	Loc string `json:"loc"`
}

// IPLocator estimates the position from the public IP address.
type IPLocator struct {
	client  HTTPClient
	url     string
	log     *slog.Logger
	limiter *rate.Limiter
}

// NewIPLocator creates an IP locator with its own HTTP client. The timeout bounds every lookup;
// rateLimit caps lookups per second so manual retries cannot hammer the service.
func NewIPLocator(url string, timeout time.Duration, rateLimit int, log *slog.Logger) *IPLocator {
	if rateLimit <= 0 {
		rateLimit = 1
	}
	return &IPLocator{
		client:  &http.Client{Timeout: timeout},
		url:     url,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(rateLimit), rateLimit),
	}
}

// NewIPLocatorWithClient allows injecting a custom HTTP client and limiter.
func NewIPLocatorWithClient(client HTTPClient, url string, limiter *rate.Limiter, log *slog.Logger) *IPLocator {
	return &IPLocator{client: client, url: url, log: log, limiter: limiter}
}

// Locate queries the IP geolocation service.
func (l *IPLocator) Locate(ctx context.Context) (models.Coordinates, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return models.Coordinates{}, fmt.Errorf("rate limit exceeded: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("failed to execute ip geolocation request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		l.log.ErrorContext(ctx, "IP geolocation error", "status", resp.StatusCode, "body", string(body))
		return models.Coordinates{}, fmt.Errorf("ip geolocation returned status %d: %s", resp.StatusCode, string(body))
	}

	var result ipInfoResponse
	if err = json.Unmarshal(body, &result); err != nil {
		return models.Coordinates{}, fmt.Errorf("failed to decode ip geolocation response: %w", err)
	}

	coords, err := ParseLoc(result.Loc)
	if err != nil {
		return models.Coordinates{}, err
	}
	l.log.DebugContext(ctx, "IP geolocation found", "lat", coords.Latitude, "lng", coords.Longitude)

	return coords, nil
}

// ParseLoc parses a comma-separated "lat,lng" pair.
func ParseLoc(loc string) (models.Coordinates, error) {
	const parts = 2

	if strings.TrimSpace(loc) == "" {
		return models.Coordinates{}, ErrIPEmptyLocation
	}

	fields := strings.Split(loc, ",")
	if len(fields) != parts {
		return models.Coordinates{}, fmt.Errorf("%w: %q", ErrIPInvalidLocation, loc)
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("%w: invalid latitude: %s", ErrIPInvalidLocation, fields[0])
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("%w: invalid longitude: %s", ErrIPInvalidLocation, fields[1])
	}

	return models.Coordinates{Latitude: lat, Longitude: lng}, nil
}
