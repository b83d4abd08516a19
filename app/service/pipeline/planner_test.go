package pipeline

import (
	"context"
	"testing"

	"envi/app/service/session"

	"github.com/stretchr/testify/assert"
)

const longAdvice = "## Recommendation\n\nConditions are mild, a morning hike is a good idea. Bring water."

func validRisk() map[string]any {
	return map[string]any{"overall_risk": "low", "rationale": "calm"}
}

func TestPlanTurnFreshQuery(t *testing.T) {
	plan := PlanTurn(context.Background(), session.New(), "What's the weather in Toluca?")

	assert.Equal(t, []string{StageData, StageRisk, StageAdvice}, plan)
}

func TestPlanTurnDiscoveryQuery(t *testing.T) {
	plan := PlanTurn(context.Background(), session.New(), "Where can I go hiking this weekend?")

	assert.Equal(t, []string{StageLocation, StageData, StageRisk, StageAdvice}, plan)
}

func TestPlanTurnSkipsCompletedStages(t *testing.T) {
	st := session.New()
	st.Set(session.KeySnapshot, snapshotWith(map[string]any{"temperature_c": 18.0}))

	plan := PlanTurn(context.Background(), st, "Is it safe to run outside?")

	assert.Equal(t, []string{StageRisk, StageAdvice}, plan)
}

func TestPlanTurnSkipsDiscoveryWhenLocationsPresent(t *testing.T) {
	st := session.New()
	st.Set(session.KeyLocationOptions, []any{loc("Ajusco", 19.2, -99.25)})

	plan := PlanTurn(context.Background(), st, "Which of those options has the best weather?")

	assert.Equal(t, []string{StageData, StageRisk, StageAdvice}, plan)
}

func TestPlanTurnNonEnvironmentalQuery(t *testing.T) {
	plan := PlanTurn(context.Background(), session.New(), "Tell me a joke")

	assert.Empty(t, plan)
}

func TestPlanTurnFinishesInterruptedPipeline(t *testing.T) {
	st := session.New()
	st.Set(session.KeyRiskReport, validRisk())

	plan := PlanTurn(context.Background(), st, "Tell me a joke")

	assert.Equal(t, []string{StageAdvice}, plan)
}

func TestPlanTurnNothingLeftToDo(t *testing.T) {
	st := session.New()
	st.Set(session.KeyRiskReport, validRisk())
	st.Set(session.KeyAdviceMarkdown, longAdvice)

	plan := PlanTurn(context.Background(), st, "Tell me a joke")

	assert.Empty(t, plan)
}

func TestIsEnvironmentalQuery(t *testing.T) {
	tests := []struct {
		message string
		want    bool
	}{
		{"What's the weather like?", true},
		{"Is the air quality bad today?", true},
		{"Where should I go camping?", true},
		{"Good morning", false},
		{"HOW HOT IS IT", true},
		{"Tell me about yourself", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsEnvironmentalQuery(tt.message), tt.message)
	}
}

func TestWantsDiscovery(t *testing.T) {
	assert.True(t, WantsDiscovery("Suggest a good spot near me"))
	assert.True(t, WantsDiscovery("where to go?"))
	assert.False(t, WantsDiscovery("Weather in Puebla please"))
}
