package openmeteo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"envi/app/client/httpc"
	"envi/app/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(srvURL string) *Client {
	return &Client{
		cfg: &config.Config{
			Weather: config.Weather{BaseURL: srvURL},
		},
		httpClient: &http.Client{Timeout: 5 * time.Second},
		circuit:    httpc.NewBreaker("openmeteo-test"),
		backoff: httpc.Backoff{
			MaxRetries:      1,
			InitialInterval: time.Millisecond,
		},
	}
}

func TestFetchSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "19.430000", r.URL.Query().Get("latitude"))
		assert.Contains(t, r.URL.Query().Get("current"), "temperature_2m")

		_ = json.NewEncoder(w).Encode(map[string]any{
			"current": map[string]any{
				"temperature_2m":       21.5,
				"apparent_temperature": 23.0,
				"relative_humidity_2m": 40.0,
				"wind_speed_10m":       3.2,
			},
			"hourly": map[string]any{
				"pm10":  []float64{12.0, 14.0},
				"pm2_5": []float64{7.0, 8.0},
			},
		})
	}))
	defer srv.Close()

	snapshot, err := newTestClient(srv.URL).FetchSnapshot(context.Background(), 19.43, -99.13)
	require.NoError(t, err)

	location := snapshot["location"].(map[string]any)
	assert.Equal(t, 19.43, location["latitude"])
	assert.Equal(t, -99.13, location["longitude"])

	current := snapshot["current"].(map[string]any)
	assert.Equal(t, 21.5, current["temperature_c"])
	assert.Equal(t, 23.0, current["apparent_temperature_c"])
	assert.Equal(t, 40.0, current["relative_humidity_percent"])
	assert.Equal(t, 3.2, current["wind_speed_10m_ms"])

	hourly := snapshot["hourly"].(map[string]any)
	assert.Len(t, hourly["pm10"], 2)
}

func TestFetchSnapshotNullReadings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"current": map[string]any{
				"temperature_2m": nil,
				"wind_speed_10m": 5.0,
			},
		})
	}))
	defer srv.Close()

	snapshot, err := newTestClient(srv.URL).FetchSnapshot(context.Background(), 0, 0)
	require.NoError(t, err)

	current := snapshot["current"].(map[string]any)
	assert.Nil(t, current["temperature_c"])
	assert.Equal(t, 5.0, current["wind_speed_10m_ms"])
}

func TestFetchSnapshotServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchSnapshot(context.Background(), 0, 0)
	assert.Error(t, err)
}
