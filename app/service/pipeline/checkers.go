package pipeline

import (
	"context"
	"log/slog"
	"math"

	"envi/app/service/session"
	"envi/app/util/jsonx"
)

// SnapshotChecker accepts a snapshot (or list of snapshots) when at
// least one entry carries at least one non-null numeric reading.
type SnapshotChecker struct{}

func (SnapshotChecker) Name() string {
	return "env_snapshot_checker"
}

func (SnapshotChecker) Check(_ context.Context, st *session.State) bool {
	if !st.CoerceJSON(session.KeySnapshot) {
		slog.Warn("Snapshot is a string that does not parse as JSON")
		return false
	}

	value, ok := st.Get(session.KeySnapshot)
	if !ok || value == nil {
		return false
	}

	switch snap := value.(type) {
	case map[string]any:
		return validSnapshot(snap)
	case []any:
		for _, entry := range snap {
			m, ok := entry.(map[string]any)
			if ok && validSnapshot(m) {
				return true
			}
		}
		return false
	default:
		slog.Warn("Unexpected snapshot type", "value", value)
		return false
	}
}

var snapshotFields = []string{
	"temperature_c",
	"apparent_temperature_c",
	"wind_speed_10m_ms",
	"relative_humidity_percent",
}

func validSnapshot(snap map[string]any) bool {
	current, ok := snap["current"].(map[string]any)
	if !ok {
		return false
	}

	for _, field := range snapshotFields {
		if v, ok := current[field]; ok && v != nil {
			return true
		}
	}

	return false
}

// riskLevels is the closed label set; anything else fails validation.
var riskLevels = map[string]bool{
	"low":      true,
	"moderate": true,
	"medium":   true,
	"high":     true,
	"unknown":  true,
}

// RiskChecker accepts a risk report whose overall_risk is a recognized
// label. Rationale text is not validated. A string report that does not
// parse as JSON fails immediately.
type RiskChecker struct{}

func (RiskChecker) Name() string {
	return "env_risk_checker"
}

func (RiskChecker) Check(_ context.Context, st *session.State) bool {
	value, ok := st.Get(session.KeyRiskReport)
	if !ok || value == nil {
		return false
	}

	if !st.CoerceJSON(session.KeyRiskReport) {
		slog.Warn("Risk report is a string that does not parse as JSON")
		return false
	}

	value, _ = st.Get(session.KeyRiskReport)
	report, ok := value.(map[string]any)
	if !ok {
		return false
	}

	overall, ok := report["overall_risk"].(string)
	if !ok || !riskLevels[overall] {
		slog.Warn("Risk report has missing or unrecognized overall_risk", "overall_risk", report["overall_risk"])
		return false
	}

	return true
}

// LocationChecker range-checks and deduplicates candidate locations and
// OVERWRITES env_location_options with the cleaned list. An absent or
// empty input passes: it signals "no location search needed", not a
// failure.
type LocationChecker struct{}

func (LocationChecker) Name() string {
	return "env_location_checker"
}

func (LocationChecker) Check(_ context.Context, st *session.State) bool {
	value, ok := st.Get(session.KeyLocationOptions)
	if !ok || value == nil {
		return true
	}

	_ = st.CoerceJSON(session.KeyLocationOptions)
	value, _ = st.Get(session.KeyLocationOptions)

	// models occasionally wrap the array in {"locations": [...]}
	list, ok := jsonx.UnwrapList(value, "locations")
	if !ok {
		slog.Warn("Location options is not a list, coercing to empty")
		list = []any{}
	}

	if len(list) == 0 {
		st.Set(session.KeyLocationOptions, []any{})
		return true
	}

	cleaned := CleanLocations(list)
	st.Set(session.KeyLocationOptions, cleaned)

	return len(cleaned) > 0
}

// CleanLocations drops entries without parseable in-range coordinates
// and collapses duplicates by coordinate rounded to 4 decimal places,
// keeping the first occurrence. Idempotent on its own output.
func CleanLocations(list []any) []any {
	type coordKey struct {
		lat, lon float64
	}

	seen := make(map[coordKey]bool)
	cleaned := make([]any, 0, len(list))

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

		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			slog.Debug("Dropping location with out-of-range coordinates",
				"name", loc["name"],
				"latitude", lat,
				"longitude", lon,
			)
			continue
		}

		key := coordKey{round4(lat), round4(lon)}
		if seen[key] {
			continue
		}
		seen[key] = true

		name, _ := loc["name"].(string)
		if name == "" {
			name = "unknown"
		}

		source, _ := loc["source"].(string)
		if source == "" {
			source = "discovery+geocode"
		}

		cleaned = append(cleaned, map[string]any{
			"name":      name,
			"latitude":  lat,
			"longitude": lon,
			"country":   loc["country"],
			"admin1":    loc["admin1"],
			"activity":  loc["activity"],
			"source":    source,
		})
	}

	return cleaned
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// AdviceChecker requires a substantial advice text; short or empty
// output sends the writer back for another attempt.
type AdviceChecker struct{}

const minAdviceLength = 50

func (AdviceChecker) Name() string {
	return "env_advice_checker"
}

func (AdviceChecker) Check(_ context.Context, st *session.State) bool {
	advice, ok := st.GetString(session.KeyAdviceMarkdown)
	if !ok {
		return false
	}

	return len(jsonx.StripFences(advice)) > minAdviceLength
}
