package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// googleProvider queries the Google Elevation API. Last-resort fallback:
// global coverage, highest per-query cost.
type googleProvider struct {
	endpoint string
	apiKey   string
	client   *http.Client
	limits   limits
}

func newGoogle(cfg Config, lim limits) *googleProvider {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://maps.googleapis.com/maps/api/elevation/json"
	}
	return &googleProvider{endpoint: endpoint, apiKey: cfg.APIKey, client: defaultHTTPClient, limits: lim}
}

func (p *googleProvider) Name() string { return "google" }

func (p *googleProvider) CheckRateLimit(ctx context.Context) error {
	return p.limits.check(ctx)
}

type googleResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Elevation float64 `json:"elevation"`
	} `json:"results"`
}

func (p *googleProvider) FetchElevation(ctx context.Context, lat, lon float64) (float64, error) {
	q := url.Values{}
	q.Set("locations", strconv.FormatFloat(lat, 'f', 6, 64)+","+strconv.FormatFloat(lon, 'f', 6, 64))
	q.Set("key", p.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("build google elevation request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("google elevation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("google elevation returned status %d", resp.StatusCode)
	}

	var body googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode google elevation response: %w", err)
	}
	switch body.Status {
	case "OK":
	case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT":
		return 0, fmt.Errorf("%w: google status %s", ErrRateLimited, body.Status)
	default:
		return 0, fmt.Errorf("google elevation status %s", body.Status)
	}
	if len(body.Results) == 0 {
		return 0, ErrNoElevation
	}
	return body.Results[0].Elevation, nil
}
