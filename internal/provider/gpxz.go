package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

// gpxzProvider queries the GPXZ point-elevation API. Primary paid
// fallback: 1 m data over AU/NZ.
type gpxzProvider struct {
	endpoint string
	apiKey   string
	client   *http.Client
	limits   limits
}

func newGPXZ(cfg Config, lim limits) *gpxzProvider {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://api.gpxz.io/v1/elevation/point"
	}
	return &gpxzProvider{endpoint: endpoint, apiKey: cfg.APIKey, client: defaultHTTPClient, limits: lim}
}

func (p *gpxzProvider) Name() string { return "gpxz" }

func (p *gpxzProvider) CheckRateLimit(ctx context.Context) error {
	return p.limits.check(ctx)
}

type gpxzResponse struct {
	Result struct {
		Elevation *float64 `json:"elevation"`
		Lat       float64  `json:"lat"`
		Lon       float64  `json:"lon"`
	} `json:"result"`
}

func (p *gpxzProvider) FetchElevation(ctx context.Context, lat, lon float64) (float64, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("build gpxz request: %w", err)
	}
	req.Header.Set("x-api-key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("gpxz request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return 0, fmt.Errorf("%w: gpxz returned 429", ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("gpxz returned status %d", resp.StatusCode)
	}

	var body gpxzResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode gpxz response: %w", err)
	}
	if body.Result.Elevation == nil {
		return 0, ErrNoElevation
	}
	slog.Debug("gpxz elevation", "lat", lat, "lon", lon, "elevation", *body.Result.Elevation)
	return *body.Result.Elevation, nil
}
