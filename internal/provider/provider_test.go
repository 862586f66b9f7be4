package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/road-engineering/dem-elevation/internal/ratelimit"
)

func TestBuildChain(t *testing.T) {
	chain, err := BuildChain([]Config{
		{Name: "gpxz", APIKey: "k"},
		{Name: "opentopodata"},
		{Name: "google", APIKey: "k"},
	}, nil)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, "gpxz", chain[0].Name())
	assert.Equal(t, "opentopodata", chain[1].Name())
	assert.Equal(t, "google", chain[2].Name())

	_, err = BuildChain([]Config{{Name: "mystery"}}, nil)
	assert.Error(t, err)
}

func TestGPXZ_FetchElevation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, "-26.000000", r.URL.Query().Get("lat"))
		w.Write([]byte(`{"result": {"elevation": 302.4, "lat": -26, "lon": 134}}`))
	}))
	defer srv.Close()

	p := newGPXZ(Config{Endpoint: srv.URL, APIKey: "secret"}, limits{})
	elev, err := p.FetchElevation(context.Background(), -26.0, 134.0)
	require.NoError(t, err)
	assert.Equal(t, 302.4, elev)
}

func TestGPXZ_RateLimitSignal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := newGPXZ(Config{Endpoint: srv.URL}, limits{})
	_, err := p.FetchElevation(context.Background(), -26.0, 134.0)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestGPXZ_NullElevation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result": {"elevation": null}}`))
	}))
	defer srv.Close()

	p := newGPXZ(Config{Endpoint: srv.URL}, limits{})
	_, err := p.FetchElevation(context.Background(), -26.0, 134.0)
	assert.ErrorIs(t, err, ErrNoElevation)
}

func TestOpenTopoData_FetchElevation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "-26.000000,134.000000", r.URL.Query().Get("locations"))
		w.Write([]byte(`{"status": "OK", "results": [{"elevation": 298.0}]}`))
	}))
	defer srv.Close()

	p := newOpenTopoData(Config{Endpoint: srv.URL}, limits{})
	elev, err := p.FetchElevation(context.Background(), -26.0, 134.0)
	require.NoError(t, err)
	assert.Equal(t, 298.0, elev)
}

func TestGoogle_StatusHandling(t *testing.T) {
	t.Run("over query limit maps to rate limited", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status": "OVER_QUERY_LIMIT", "results": []}`))
		}))
		defer srv.Close()

		p := newGoogle(Config{Endpoint: srv.URL, APIKey: "k"}, limits{})
		_, err := p.FetchElevation(context.Background(), -26.0, 134.0)
		assert.ErrorIs(t, err, ErrRateLimited)
	})

	t.Run("ok", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status": "OK", "results": [{"elevation": 155.2}]}`))
		}))
		defer srv.Close()

		p := newGoogle(Config{Endpoint: srv.URL, APIKey: "k"}, limits{})
		elev, err := p.FetchElevation(context.Background(), -26.0, 134.0)
		require.NoError(t, err)
		assert.Equal(t, 155.2, elev)
	})
}

func TestLimits_QuotaExhaustion(t *testing.T) {
	// Local-mode limiter: no Redis needed, same inclusive semantics.
	limiter := ratelimit.New(nil, ratelimit.ModeLocal)
	lim := limits{name: "gpxz", limiter: limiter, daily: 2}
	ctx := context.Background()

	require.NoError(t, lim.check(ctx))
	require.NoError(t, lim.check(ctx))
	assert.ErrorIs(t, lim.check(ctx), ErrRateLimited)
}

func TestLimits_NoLimiterAllows(t *testing.T) {
	assert.NoError(t, limits{}.check(context.Background()))
}
