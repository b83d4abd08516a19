package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"envi/app/client/httpc"
	"envi/app/config"

	"github.com/samber/do"
	"github.com/sony/gobreaker"
)

// Client fetches normalized environmental snapshots from the Open-Meteo
// forecast API: current conditions plus the hourly particulate series.
type Client struct {
	cfg        *config.Config
	httpClient *http.Client
	circuit    *gobreaker.CircuitBreaker
	backoff    httpc.Backoff
}

func NewClient(di *do.Injector) (*Client, error) {
	return &Client{
		cfg: do.MustInvoke[*config.Config](di),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		circuit: httpc.NewBreaker("openmeteo"),
		backoff: httpc.Backoff{
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
	}, nil
}

// FetchSnapshot returns the snapshot as a loosely typed map, the same
// shape the pipeline state carries end to end:
//
//	{location: {latitude, longitude}, current: {...}, hourly: {pm10, pm2_5}}
func (c *Client) FetchSnapshot(ctx context.Context, latitude, longitude float64) (map[string]any, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", latitude))
		values.Set("longitude", fmt.Sprintf("%f", longitude))
		values.Set("current", "temperature_2m,apparent_temperature,relative_humidity_2m,wind_speed_10m")
		values.Set("hourly", "pm10,pm2_5")
		values.Set("timezone", "auto")

		u := fmt.Sprintf("%s?%s", c.cfg.Weather.BaseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := httpc.Do(ctx, c.httpClient, c.circuit, c.backoff, buildRequest)
	if err != nil {
		return nil, fmt.Errorf("open-meteo request failed: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Current struct {
			Temperature2m       *float64 `json:"temperature_2m"`
			ApparentTemperature *float64 `json:"apparent_temperature"`
			RelativeHumidity2m  *float64 `json:"relative_humidity_2m"`
			WindSpeed10m        *float64 `json:"wind_speed_10m"`
		} `json:"current"`
		Hourly struct {
			PM10 []float64 `json:"pm10"`
			PM25 []float64 `json:"pm2_5"`
		} `json:"hourly"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("open-meteo decode failed: %w", err)
	}

	snapshot := map[string]any{
		"location": map[string]any{
			"latitude":  latitude,
			"longitude": longitude,
		},
		"current": map[string]any{
			"temperature_c":             floatOrNil(payload.Current.Temperature2m),
			"apparent_temperature_c":    floatOrNil(payload.Current.ApparentTemperature),
			"relative_humidity_percent": floatOrNil(payload.Current.RelativeHumidity2m),
			"wind_speed_10m_ms":         floatOrNil(payload.Current.WindSpeed10m),
		},
		"hourly": map[string]any{
			"pm10":  floatList(payload.Hourly.PM10),
			"pm2_5": floatList(payload.Hourly.PM25),
		},
	}

	return snapshot, nil
}

func floatOrNil(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func floatList(values []float64) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return out
}
