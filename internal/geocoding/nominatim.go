package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/UnknownOlympus/strider/internal/models"
	"golang.org/x/time/rate"
)

// NominatimURL is the public Nominatim search endpoint.
const NominatimURL = "https://nominatim.openstreetmap.org/search"

// nominatimUserAgent identifies us as required by the Nominatim usage policy:
// https://operations.osmfoundation.org/policies/nominatim/
const nominatimUserAgent = "strider/1.0 (https://github.com/UnknownOlympus/strider)"

// NominatimProvider searches destinations with OpenStreetMap's Nominatim API.
type NominatimProvider struct {
	client   HTTPClient
	baseURL  string
	language string
	log      *slog.Logger
	limiter  *rate.Limiter
}

// HTTPClient defines the interface for making HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type nominatimResponse struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Common errors for Nominatim provider.
var (
	ErrNominatimEmptyResponse = errors.New("nominatim API returned empty response")
	ErrNominatimInvalidCoords = errors.New("nominatim API returned invalid coordinates")
	ErrEmptyQuery             = errors.New("destination query is empty")
)

// NewNominatimProvider creates a provider for the public Nominatim endpoint.
func NewNominatimProvider(language string, rateLimit int, log *slog.Logger) *NominatimProvider {
	const timeout = 10
	return &NominatimProvider{
		client:   &http.Client{Timeout: timeout * time.Second},
		baseURL:  NominatimURL,
		language: language,
		log:      log,
		limiter:  rate.NewLimiter(rate.Limit(rateLimit), 1),
	}
}

// NewNominatimProviderWithClient creates a provider with a custom HTTP client, endpoint and limiter.
func NewNominatimProviderWithClient(
	client HTTPClient,
	baseURL string,
	language string,
	limiter *rate.Limiter,
	log *slog.Logger,
) *NominatimProvider {
	return &NominatimProvider{client: client, baseURL: baseURL, language: language, log: log, limiter: limiter}
}

// Geocode resolves query to coordinates. When the full query finds nothing it retries with the
// most specific comma-separated component dropped ("Pariser Platz 1, Berlin, Germany" then
// "Berlin, Germany"), stopping before a single component is left.
func (np *NominatimProvider) Geocode(ctx context.Context, query string) (*models.Coordinates, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	variations := queryFallbacks(query)
	for idx, variation := range variations {
		coords, err := np.search(ctx, variation)
		if err == nil {
			if idx > 0 {
				np.log.InfoContext(ctx, "Destination found using broader query",
					"original", query, "fallback", variation, "fallback_level", idx)
			}
			return coords, nil
		}

		if !errors.Is(err, ErrNominatimEmptyResponse) {
			return nil, err
		}
		np.log.DebugContext(ctx, "Query returned no results", "query", variation, "fallback_level", idx)
	}

	np.log.WarnContext(ctx, "No destination found", "query", query, "variations_tried", len(variations))
	return nil, ErrNominatimEmptyResponse
}

// queryFallbacks lists the query followed by progressively broader variants.
func queryFallbacks(query string) []string {
	parts := strings.Split(query, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	variations := []string{query}
	seen := map[string]bool{query: true}
	const minComponents = 2
	for start := 1; len(parts)-start >= minComponents; start++ {
		v := strings.Join(parts[start:], ", ")
		if v != "" && !seen[v] {
			seen[v] = true
			variations = append(variations, v)
		}
	}

	return variations
}

func (np *NominatimProvider) search(ctx context.Context, query string) (*models.Coordinates, error) {
	if err := np.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit exceeded: %w", err)
	}

	reqURL, err := url.Parse(np.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	params := reqURL.Query()
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")
	reqURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", nominatimUserAgent)
	if np.language != "" {
		req.Header.Set("Accept-Language", np.language)
	}

	resp, err := np.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		np.log.ErrorContext(ctx, "Nominatim API error", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("nominatim API returned status %d: %s", resp.StatusCode, string(body))
	}

	var results []nominatimResponse
	if err = json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to decode nominatim response: %w", err)
	}
	if len(results) == 0 {
		return nil, ErrNominatimEmptyResponse
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid latitude: %s", ErrNominatimInvalidCoords, results[0].Lat)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid longitude: %s", ErrNominatimInvalidCoords, results[0].Lon)
	}
	np.log.DebugContext(ctx, "Nominatim found destination", "name", results[0].DisplayName, "lat", lat, "lon", lon)

	return &models.Coordinates{Latitude: lat, Longitude: lon}, nil
}
