package pipeline

import (
	"context"
	"strings"

	"envi/app/service/session"

	"github.com/elliotchance/pie/v2"
)

// Canonical stage names, in pipeline order.
const (
	StageLocation = "location"
	StageData     = "data"
	StageRisk     = "risk"
	StageAdvice   = "advice"
)

var discoveryKeywords = []string{
	"where",
	"find",
	"suggest",
	"recommend",
	"options",
	"good place",
	"good spot",
	"locations",
}

var weatherKeywords = []string{
	"weather",
	"temperature",
	"forecast",
	"conditions",
	"wind",
	"rain",
	"humidity",
	"air quality",
	"hot",
	"cold",
	"risk",
	"safe",
	"report",
	"recommendation",
	"hike",
	"hiking",
	"run",
	"running",
	"cycling",
	"outdoor",
	"picnic",
	"camping",
}

// PlanTurn decides which stages run for this turn, in order. A stage
// whose output is already present and valid is skipped. Location
// discovery only runs for discovery-style queries; a direct place name
// is resolved inside the data stage.
func PlanTurn(ctx context.Context, st *session.State, message string) []string {
	if !IsEnvironmentalQuery(message) {
		// still finish an interrupted pipeline from a prior turn
		if riskDone(ctx, st) && !adviceDone(ctx, st) {
			return []string{StageAdvice}
		}
		return nil
	}

	var plan []string

	if WantsDiscovery(message) && !locationsPresent(st) {
		plan = append(plan, StageLocation)
	}

	if !snapshotDone(ctx, st) {
		plan = append(plan, StageData)
	}

	if !riskDone(ctx, st) {
		plan = append(plan, StageRisk)
	}

	if !adviceDone(ctx, st) {
		plan = append(plan, StageAdvice)
	}

	return plan
}

// IsEnvironmentalQuery reports whether the message asks about weather,
// conditions, risk or outdoor activity.
func IsEnvironmentalQuery(message string) bool {
	lower := strings.ToLower(message)

	return pie.Any(weatherKeywords, func(kw string) bool {
		return strings.Contains(lower, kw)
	}) || WantsDiscovery(message)
}

// WantsDiscovery reports whether the query implies activity/location
// discovery ("where to go") rather than a direct place name.
func WantsDiscovery(message string) bool {
	lower := strings.ToLower(message)

	return pie.Any(discoveryKeywords, func(kw string) bool {
		return strings.Contains(lower, kw)
	})
}

func snapshotDone(ctx context.Context, st *session.State) bool {
	return st.Has(session.KeySnapshot) && (SnapshotChecker{}).Check(ctx, st)
}

func riskDone(ctx context.Context, st *session.State) bool {
	return st.Has(session.KeyRiskReport) && (RiskChecker{}).Check(ctx, st)
}

func adviceDone(ctx context.Context, st *session.State) bool {
	return (AdviceChecker{}).Check(ctx, st)
}

func locationsPresent(st *session.State) bool {
	value, ok := st.Get(session.KeyLocationOptions)
	if !ok {
		return false
	}

	list, isList := value.([]any)
	return isList && len(list) > 0
}
