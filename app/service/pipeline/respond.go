package pipeline

import (
	"fmt"
	"log/slog"
	"strings"

	"envi/app/service/session"
	"envi/app/util/jsonx"
)

// Respond selects the literal reply after the stage sequence finishes.
// Priority: advice markdown, then a templated risk summary, then a
// weather summary, then a location list, then nothing (the empty string
// tells the caller the conversation should continue). Machine-readable
// structures never reach the output; every branch renders text.
func Respond(st *session.State) string {
	if advice, ok := st.GetString(session.KeyAdviceMarkdown); ok {
		cleaned := jsonx.StripFences(advice)
		// a writer that produced raw JSON falls through to the templates
		if len(cleaned) > minAdviceLength && !strings.HasPrefix(cleaned, "{") && !strings.HasPrefix(cleaned, "[") {
			return cleaned
		}
	}

	snapshot, _ := st.Get(session.KeySnapshot)

	if risk, ok := st.Get(session.KeyRiskReport); ok {
		if report, isMap := risk.(map[string]any); isMap {
			slog.Warn("Responding with templated risk summary, advice markdown missing")
			return formatRiskSummary(report, snapshot)
		}
	}

	if snapshot != nil {
		slog.Warn("Responding with weather summary, advice markdown missing")
		return formatWeatherSummary(snapshot)
	}

	if value, ok := st.Get(session.KeyLocationOptions); ok {
		if list, isList := value.([]any); isList && len(list) > 0 {
			return formatLocationList(list)
		}
	}

	return ""
}

var riskFactorLabels = []struct {
	key   string
	label string
}{
	{"heat_risk", "Heat Risk"},
	{"cold_risk", "Cold Risk"},
	{"wind_risk", "Wind Risk"},
	{"air_quality_risk", "Air Quality Risk"},
}

func formatRiskSummary(risk map[string]any, snapshot any) string {
	overall, _ := risk["overall_risk"].(string)
	if overall == "" {
		overall = "unknown"
	}
	rationale, _ := risk["rationale"].(string)

	var b strings.Builder
	b.WriteString("## Weather & Safety Assessment\n\n")
	b.WriteString(fmt.Sprintf("**Overall Risk Level:** %s\n", strings.ToUpper(overall)))

	var factors []string
	for _, rf := range riskFactorLabels {
		level, _ := risk[rf.key].(string)
		if level == "" || level == "low" || level == "unknown" {
			continue
		}
		factors = append(factors, fmt.Sprintf("- **%s:** %s", rf.label, capitalize(level)))
	}

	if len(factors) > 0 {
		b.WriteString("\n**Risk Factors:**\n")
		b.WriteString(strings.Join(factors, "\n"))
		b.WriteString("\n")
	}

	if rationale != "" {
		b.WriteString(fmt.Sprintf("\n**Analysis:** %s\n", rationale))
	}

	if snapshot != nil {
		b.WriteString(formatSnapshotSection(snapshot))
	}

	return strings.TrimRight(b.String(), "\n")
}

func formatSnapshotSection(snapshot any) string {
	var b strings.Builder

	switch snap := snapshot.(type) {
	case map[string]any:
		b.WriteString("\n**Current Weather:**\n")
		b.WriteString(formatSnapshotLines(snap, "- "))
	case []any:
		b.WriteString("\n**Weather by Location:**\n")
		for _, entry := range snap {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			if name, _ := m["location_name"].(string); name != "" {
				b.WriteString(fmt.Sprintf("\n**%s**\n", name))
			}
			b.WriteString(formatSnapshotLines(m, "  - "))
		}
	}

	return b.String()
}

func formatSnapshotLines(snap map[string]any, bullet string) string {
	current, _ := snap["current"].(map[string]any)
	if current == nil {
		return ""
	}

	var b strings.Builder

	if temp, ok := jsonx.AsFloat(current["temperature_c"]); ok {
		if feels, feelsOK := jsonx.AsFloat(current["apparent_temperature_c"]); feelsOK && feels != temp {
			b.WriteString(fmt.Sprintf("%s**Temperature:** %.1f°C (feels like %.1f°C)\n", bullet, temp, feels))
		} else {
			b.WriteString(fmt.Sprintf("%s**Temperature:** %.1f°C\n", bullet, temp))
		}
	}
	if wind, ok := jsonx.AsFloat(current["wind_speed_10m_ms"]); ok {
		b.WriteString(fmt.Sprintf("%s**Wind:** %.1f m/s\n", bullet, wind))
	}
	if humidity, ok := jsonx.AsFloat(current["relative_humidity_percent"]); ok {
		b.WriteString(fmt.Sprintf("%s**Humidity:** %.0f%%\n", bullet, humidity))
	}

	return b.String()
}

func formatWeatherSummary(snapshot any) string {
	switch snap := snapshot.(type) {
	case map[string]any:
		var b strings.Builder
		b.WriteString("Current weather")
		if name, _ := snap["location_name"].(string); name != "" {
			b.WriteString(" in " + name)
		}
		b.WriteString(":\n\n")
		b.WriteString(formatSnapshotLines(snap, "- "))
		return strings.TrimRight(b.String(), "\n")
	case []any:
		var b strings.Builder
		b.WriteString("Current weather across your locations:\n")
		b.WriteString(formatSnapshotSection(snap))
		return strings.TrimRight(b.String(), "\n")
	default:
		return "Weather data is not available right now."
	}
}

func formatLocationList(list []any) string {
	lines := []string{"Here are some options you might consider:"}

	for _, entry := range list {
		loc, ok := entry.(map[string]any)
		if !ok {
			continue
		}

		name, _ := loc["name"].(string)
		if name == "" {
			name = "Unknown"
		}

		var region []string
		if admin1, _ := loc["admin1"].(string); admin1 != "" {
			region = append(region, admin1)
		}
		if country, _ := loc["country"].(string); country != "" {
			region = append(region, country)
		}

		if len(region) > 0 {
			lines = append(lines, fmt.Sprintf("- %s — %s", name, strings.Join(region, ", ")))
		} else {
			lines = append(lines, "- "+name)
		}
	}

	return strings.Join(lines, "\n")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
