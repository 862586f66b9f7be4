package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// openTopoDataProvider queries the free Open Topo Data API. Free-tier
// fallback behind GPXZ.
type openTopoDataProvider struct {
	endpoint string
	client   *http.Client
	limits   limits
}

func newOpenTopoData(cfg Config, lim limits) *openTopoDataProvider {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://api.opentopodata.org/v1/srtm30m"
	}
	return &openTopoDataProvider{endpoint: endpoint, client: defaultHTTPClient, limits: lim}
}

func (p *openTopoDataProvider) Name() string { return "opentopodata" }

func (p *openTopoDataProvider) CheckRateLimit(ctx context.Context) error {
	return p.limits.check(ctx)
}

type openTopoResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Elevation *float64 `json:"elevation"`
	} `json:"results"`
}

func (p *openTopoDataProvider) FetchElevation(ctx context.Context, lat, lon float64) (float64, error) {
	locations := strconv.FormatFloat(lat, 'f', 6, 64) + "," + strconv.FormatFloat(lon, 'f', 6, 64)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?locations="+locations, nil)
	if err != nil {
		return 0, fmt.Errorf("build opentopodata request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("opentopodata request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return 0, fmt.Errorf("%w: opentopodata returned 429", ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("opentopodata returned status %d", resp.StatusCode)
	}

	var body openTopoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode opentopodata response: %w", err)
	}
	if body.Status != "OK" || len(body.Results) == 0 || body.Results[0].Elevation == nil {
		return 0, ErrNoElevation
	}
	return *body.Results[0].Elevation, nil
}
