package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"envi/app/service/session"

	_ "embed"
)

//go:embed risk_prompt.txt
var riskPromptTemplate string

// RiskStage classifies the fetched snapshot into the closed risk label
// set. Writes env_risk_report; the output is stored as returned and
// coerced/validated by the risk checker.
type RiskStage struct {
	svc *Service
}

func (st *RiskStage) Name() string {
	return "aether_risk"
}

func (st *RiskStage) OutputKey() string {
	return session.KeyRiskReport
}

func (st *RiskStage) Run(ctx context.Context, state *session.State) error {
	snapshot, ok := state.Get(session.KeySnapshot)
	if !ok || snapshot == nil {
		return fmt.Errorf("no snapshot to assess")
	}

	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	riskTolerance := "medium"
	if userID, ok := state.GetString(session.KeyUserID); ok {
		if pref := st.svc.memorySvc.Preference(userID); pref != nil && pref.RiskTolerance != "" {
			riskTolerance = pref.RiskTolerance
		}
	}

	prompt := renderTemplate(riskPromptTemplate, map[string]any{
		"snapshot":       string(snapshotJSON),
		"risk_tolerance": riskTolerance,
	})

	result, err := st.svc.worker.Complete(ctx, prompt, true)
	if err != nil {
		return fmt.Errorf("risk completion failed: %w", err)
	}

	state.Set(session.KeyRiskReport, result)

	slog.Debug("Risk stage produced a report", "length", len(result))

	return nil
}
