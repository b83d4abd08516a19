package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"envi/app/client/httpc"
	"envi/app/config"

	"github.com/elliotchance/pie/v2"
	"github.com/samber/do"
	"github.com/sony/gobreaker"
)

// Place is one geocoder candidate.
type Place struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Country   string  `json:"country,omitempty"`
	Admin1    string  `json:"admin1,omitempty"`
}

// Client resolves place names to coordinates via the Open-Meteo
// geocoding API.
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
		circuit: httpc.NewBreaker("geocode"),
		backoff: httpc.Backoff{
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
	}, nil
}

// Search resolves a place name, trying query variants until one of them
// returns results. Returns an empty slice when every variant fails.
func (c *Client) Search(ctx context.Context, placeName, regionHint string) ([]Place, error) {
	variants := QueryVariants(placeName, regionHint)

	var lastErr error
	for _, query := range variants {
		places, err := c.search(ctx, query)
		if err != nil {
			lastErr = err
			continue
		}

		if len(places) > 0 {
			return places, nil
		}

		slog.Debug("Geocode query returned no results, trying next variant", "query", query)
	}

	if lastErr != nil {
		return nil, lastErr
	}

	return []Place{}, nil
}

func (c *Client) search(ctx context.Context, query string) ([]Place, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("name", query)
		values.Set("count", strconv.Itoa(c.cfg.Geocode.MaxResults))
		values.Set("language", "en")
		values.Set("format", "json")

		u := fmt.Sprintf("%s?%s", c.cfg.Geocode.BaseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := httpc.Do(ctx, c.httpClient, c.circuit, c.backoff, buildRequest)
	if err != nil {
		return nil, fmt.Errorf("geocode request failed: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Results []Place `json:"results"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("geocode decode failed: %w", err)
	}

	return payload.Results, nil
}

// suffixes the geocoder frequently fails to match verbatim
var strippableSuffixes = []string{
	"national park",
	"state park",
	"nature reserve",
	"reserve",
	"park",
}

// QueryVariants returns the ordered queries to attempt for a place
// name: the name itself (with region hint if given), the name with a
// known suffix stripped, and finally the name truncated to its first
// two words.
func QueryVariants(placeName, regionHint string) []string {
	placeName = strings.TrimSpace(placeName)

	var variants []string
	add := func(q string) {
		q = strings.TrimSpace(q)
		if q == "" || pie.Contains(variants, q) {
			return
		}
		variants = append(variants, q)
	}

	if regionHint != "" {
		add(placeName + ", " + regionHint)
	}
	add(placeName)

	lower := strings.ToLower(placeName)
	for _, suffix := range strippableSuffixes {
		if strings.HasSuffix(lower, suffix) {
			stripped := strings.TrimSpace(placeName[:len(placeName)-len(suffix)])
			stripped = strings.TrimRight(stripped, ",")
			add(stripped)
			if regionHint != "" {
				add(stripped + ", " + regionHint)
			}
			break
		}
	}

	words := strings.Fields(placeName)
	if len(words) > 2 {
		add(strings.Join(words[:2], " "))
	}

	return variants
}
