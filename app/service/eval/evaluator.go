package eval

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"envi/app/service/session"
	"envi/app/util/jsonx"

	"github.com/samber/do"
)

const evaluationHistoryCap = 50

// Result is the score of one evaluation category.
type Result struct {
	Category string  `json:"category"`
	Score    float64 `json:"score"`
	Details  string  `json:"details"`
	Passed   bool    `json:"passed"`
}

// TurnEvaluation bundles the per-category results of one turn.
type TurnEvaluation struct {
	Timestamp time.Time `json:"timestamp"`
	Results   []Result  `json:"results"`
}

// Evaluator scores pipeline output quality after each turn. Scores are
// diagnostics only; they never gate the pipeline.
type Evaluator struct {
	mu      sync.Mutex
	history []TurnEvaluation
}

func New(_ *do.Injector) (*Evaluator, error) {
	return &Evaluator{}, nil
}

// EvaluateTurn scores the stage keys of a finished turn.
func (e *Evaluator) EvaluateTurn(state map[string]any) []Result {
	results := []Result{
		evaluateDataCompleteness(state[session.KeySnapshot]),
		evaluateRiskAssessment(state[session.KeyRiskReport]),
		evaluateAdviceQuality(state[session.KeyAdviceMarkdown]),
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, TurnEvaluation{
		Timestamp: time.Now(),
		Results:   results,
	})
	if len(e.history) > evaluationHistoryCap {
		e.history = e.history[len(e.history)-evaluationHistoryCap:]
	}

	return results
}

// History returns recorded evaluations, newest last.
func (e *Evaluator) History() []TurnEvaluation {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]TurnEvaluation, len(e.history))
	copy(out, e.history)
	return out
}

var completenessFields = []string{
	"temperature_c",
	"wind_speed_10m_ms",
	"relative_humidity_percent",
}

func evaluateDataCompleteness(snapshot any) Result {
	if snapshot == nil {
		return Result{
			Category: "data_completeness",
			Details:  "no environmental snapshot found",
		}
	}

	entry, ok := snapshot.(map[string]any)
	if !ok {
		if list, isList := snapshot.([]any); isList && len(list) > 0 {
			entry, ok = list[0].(map[string]any)
		}
	}
	if !ok {
		return Result{
			Category: "data_completeness",
			Score:    0.5,
			Details:  "unexpected snapshot format",
		}
	}

	current, _ := entry["current"].(map[string]any)

	present := 0
	for _, field := range completenessFields {
		if v, ok := current[field]; ok && v != nil {
			present++
		}
	}

	score := float64(present) / float64(len(completenessFields))

	return Result{
		Category: "data_completeness",
		Score:    score,
		Details:  fmt.Sprintf("%d/%d required fields present", present, len(completenessFields)),
		Passed:   score >= 0.8,
	}
}

var validRiskLevels = map[string]bool{
	"low":      true,
	"moderate": true,
	"medium":   true,
	"high":     true,
	"unknown":  true,
}

func evaluateRiskAssessment(report any) Result {
	if report == nil {
		return Result{
			Category: "risk_assessment",
			Details:  "no risk report generated",
		}
	}

	m, ok := report.(map[string]any)
	if !ok {
		return Result{
			Category: "risk_assessment",
			Details:  "risk report is not structured",
		}
	}

	overall, _ := m["overall_risk"].(string)
	if !validRiskLevels[overall] {
		return Result{
			Category: "risk_assessment",
			Score:    0.25,
			Details:  fmt.Sprintf("unrecognized overall_risk %q", overall),
		}
	}

	score := 0.75
	details := "valid overall_risk"

	if rationale, _ := m["rationale"].(string); rationale != "" {
		score = 1.0
		details = "valid overall_risk with rationale"
	}

	return Result{
		Category: "risk_assessment",
		Score:    score,
		Details:  details,
		Passed:   true,
	}
}

func evaluateAdviceQuality(advice any) Result {
	text, _ := advice.(string)
	text = jsonx.StripFences(text)

	if len(text) < 100 {
		return Result{
			Category: "advice_quality",
			Details:  fmt.Sprintf("report too short (%d chars)", len(text)),
		}
	}

	score := 0.7
	details := "substantial report"

	if strings.Contains(text, "#") || strings.Contains(text, "- ") {
		score = 1.0
		details = "substantial report with structure"
	}

	return Result{
		Category: "advice_quality",
		Score:    score,
		Details:  details,
		Passed:   true,
	}
}
