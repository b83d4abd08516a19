package stages

import (
	"context"
	"fmt"
	"log/slog"

	"envi/app/service/session"
	"envi/app/util/jsonx"

	_ "embed"
)

//go:embed location_prompt.txt
var locationPromptTemplate string

const maxLocationCandidates = 5

// LocationStage proposes candidate places for a discovery-style query
// and geocodes each one. Writes env_location_options; the location
// checker cleans what it wrote.
type LocationStage struct {
	svc *Service
}

func (st *LocationStage) Name() string {
	return "atlas_location"
}

func (st *LocationStage) OutputKey() string {
	return session.KeyLocationOptions
}

func (st *LocationStage) Run(ctx context.Context, state *session.State) error {
	message, _ := state.GetString(session.KeyUserMessage)
	userID, _ := state.GetString(session.KeyUserID)

	prompt := renderTemplate(locationPromptTemplate, map[string]any{
		"message":        message,
		"insights":       st.svc.memorySvc.Insights(userID),
		"max_candidates": maxLocationCandidates,
	})

	result, err := st.svc.worker.Complete(ctx, prompt, true)
	if err != nil {
		return fmt.Errorf("location completion failed: %w", err)
	}

	parsed, ok := jsonx.Coerce(result)
	if !ok {
		return fmt.Errorf("location output is not valid JSON")
	}

	candidates, ok := jsonx.UnwrapList(parsed, "locations")
	if !ok {
		return fmt.Errorf("location output is not a list")
	}

	options := make([]any, 0, len(candidates))

	for _, entry := range candidates {
		if len(options) >= maxLocationCandidates {
			break
		}

		candidate, ok := entry.(map[string]any)
		if !ok {
			continue
		}

		name, _ := candidate["name"].(string)
		if name == "" {
			continue
		}
		regionHint, _ := candidate["region_hint"].(string)
		activity, _ := candidate["activity"].(string)

		places, err := st.svc.geocodeClient.Search(ctx, name, regionHint)
		if err != nil {
			slog.Warn("Geocode failed for candidate", "name", name, "error", err)
			continue
		}
		if len(places) == 0 {
			slog.Debug("No geocode results for candidate", "name", name)
			continue
		}

		place := places[0]
		options = append(options, map[string]any{
			"name":      place.Name,
			"latitude":  place.Latitude,
			"longitude": place.Longitude,
			"country":   place.Country,
			"admin1":    place.Admin1,
			"activity":  activity,
			"source":    "discovery+geocode",
		})
	}

	state.Set(session.KeyLocationOptions, options)

	slog.Info("Location discovery produced candidates", "count", len(options))

	return nil
}
