package stages

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"envi/app/service/memory"
	"envi/app/service/session"
	"envi/app/util/jsonx"

	_ "embed"

	"github.com/elliotchance/pie/v2"
	"golang.org/x/sync/errgroup"
)

//go:embed place_prompt.txt
var placePromptTemplate string

const maxConcurrentFetches = 4

// fetchTarget is one coordinate pair the data stage resolves a
// snapshot for.
type fetchTarget struct {
	name      string
	latitude  float64
	longitude float64
	activity  string
}

// DataStage resolves coordinates and fetches environmental snapshots.
// When location candidates exist it fetches one snapshot per candidate;
// otherwise it resolves a single place from the user message (falling
// back to session memory, favorites, then the configured default) and
// fetches one. Writes env_snapshot.
type DataStage struct {
	svc *Service
}

func (st *DataStage) Name() string {
	return "zephyr_data"
}

func (st *DataStage) OutputKey() string {
	return session.KeySnapshot
}

func (st *DataStage) Run(ctx context.Context, state *session.State) error {
	targets := st.targetsFromOptions(state)

	if len(targets) == 0 {
		target, err := st.resolveSingle(ctx, state)
		if err != nil {
			return err
		}
		targets = []fetchTarget{target}
	}

	snapshots, err := st.fetchAll(ctx, targets)
	if err != nil {
		return err
	}

	if len(snapshots) == 1 {
		state.Set(session.KeySnapshot, snapshots[0])
	} else {
		state.Set(session.KeySnapshot, snapshots)
	}

	// remember what was resolved for history bookkeeping
	state.Set(session.KeyResolvedLocation, map[string]any{
		"name":      targets[0].name,
		"latitude":  targets[0].latitude,
		"longitude": targets[0].longitude,
		"activity":  targets[0].activity,
	})

	slog.Info("Fetched environmental snapshots", "count", len(snapshots))

	return nil
}

func (st *DataStage) targetsFromOptions(state *session.State) []fetchTarget {
	value, ok := state.Get(session.KeyLocationOptions)
	if !ok {
		return nil
	}

	list, ok := value.([]any)
	if !ok {
		return nil
	}

	var targets []fetchTarget
	for _, entry := range list {
		loc, ok := entry.(map[string]any)
		if !ok {
			continue
		}

		lat, latOK := jsonx.AsFloat(loc["latitude"])
		lon, lonOK := jsonx.AsFloat(loc["longitude"])
		if !latOK || !lonOK {
			continue
		}

		name, _ := loc["name"].(string)
		activity, _ := loc["activity"].(string)

		targets = append(targets, fetchTarget{
			name:      name,
			latitude:  lat,
			longitude: lon,
			activity:  activity,
		})
	}

	return targets
}

func (st *DataStage) resolveSingle(ctx context.Context, state *session.State) (fetchTarget, error) {
	message, _ := state.GetString(session.KeyUserMessage)
	userID, _ := state.GetString(session.KeyUserID)

	var sessionLocation string
	if resolved, ok := state.Get(session.KeyResolvedLocation); ok {
		if m, isMap := resolved.(map[string]any); isMap {
			sessionLocation, _ = m["name"].(string)
		}
	}

	var favorites []string
	if pref := st.svc.memorySvc.Preference(userID); pref != nil {
		favorites = pie.Map(pref.FavoriteLocations, func(l memory.FavoriteLocation) string {
			return l.Name
		})
	}

	prompt := renderTemplate(placePromptTemplate, map[string]any{
		"message":          message,
		"session_location": orNone(sessionLocation),
		"favorites":        orNone(strings.Join(favorites, ", ")),
		"default_location": st.svc.cfg.Pipeline.DefaultLocation,
	})

	placeName := st.svc.cfg.Pipeline.DefaultLocation
	regionHint := ""

	result, err := st.svc.worker.Complete(ctx, prompt, true)
	if err != nil {
		slog.Warn("Place extraction failed, using fallback location", "error", err)
	} else if parsed, ok := jsonx.Coerce(result); ok {
		if extraction, isMap := parsed.(map[string]any); isMap {
			if name, _ := extraction["place_name"].(string); name != "" {
				placeName = name
			}
			regionHint, _ = extraction["region_hint"].(string)
		}
	}

	places, err := st.svc.geocodeClient.Search(ctx, placeName, regionHint)
	if err != nil {
		return fetchTarget{}, fmt.Errorf("geocode failed for %q: %w", placeName, err)
	}
	if len(places) == 0 {
		return fetchTarget{}, fmt.Errorf("no geocode results for %q", placeName)
	}

	place := places[0]

	return fetchTarget{
		name:      place.Name,
		latitude:  place.Latitude,
		longitude: place.Longitude,
	}, nil
}

func (st *DataStage) fetchAll(ctx context.Context, targets []fetchTarget) ([]any, error) {
	snapshots := make([]any, len(targets))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentFetches)

	for i, target := range targets {
		group.Go(func() error {
			snapshot, err := st.svc.weatherClient.FetchSnapshot(groupCtx, target.latitude, target.longitude)
			if err != nil {
				return fmt.Errorf("snapshot fetch failed for %q: %w", target.name, err)
			}

			snapshot["location_name"] = target.name
			if target.activity != "" {
				snapshot["activity"] = target.activity
			}

			snapshots[i] = snapshot
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return snapshots, nil
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
