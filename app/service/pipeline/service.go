package pipeline

import (
	"context"
	"log/slog"
	"time"

	"envi/app/config"
	"envi/app/service/session"
	"envi/app/service/stages"

	"github.com/samber/do"
)

// locationMaxIterations is higher than the shared bound: geocoding
// flakiness is the most common transient failure in the pipeline.
const locationMaxIterations = 3

// Service is the orchestrator: per turn it selects the stage sequence,
// runs each stage inside its retry loop, enforces the mandatory advice
// edge and produces the final reply text.
type Service struct {
	loops map[string]*Loop
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)
	stagesSvc := do.MustInvoke[*stages.Service](di)

	maxIterations := cfg.Pipeline.MaxIterations

	return &Service{
		loops: map[string]*Loop{
			StageLocation: NewLoop(stagesSvc.Location(), LocationChecker{}, locationMaxIterations),
			StageData:     NewLoop(stagesSvc.Data(), SnapshotChecker{}, maxIterations),
			StageRisk:     NewLoop(stagesSvc.Risk(), RiskChecker{}, maxIterations),
			StageAdvice:   NewLoop(stagesSvc.Advice(), AdviceChecker{}, maxIterations),
		},
	}, nil
}

// RunTurn executes one conversation turn against the session state and
// returns the reply text, or "" when there is nothing to say yet.
func (s *Service) RunTurn(ctx context.Context, st *session.State) string {
	message, _ := st.GetString(session.KeyUserMessage)

	// a fresh environmental query invalidates the previous pipeline run
	if adviceDone(ctx, st) && IsEnvironmentalQuery(message) {
		st.ClearPipeline()
	}

	plan := PlanTurn(ctx, st, message)
	slog.Info("Planned stage sequence", "plan", plan)

	start := time.Now()
	for _, name := range plan {
		s.loops[name].Run(ctx, st)
	}

	// mandatory edge: a risk report must never sit in state without a
	// report writer run following it
	if riskDone(ctx, st) && !adviceDone(ctx, st) {
		st.Set(session.KeyAdviceRequired, true)
		s.loops[StageAdvice].Run(ctx, st)
		st.Set(session.KeyAdviceRequired, false)
	}

	if len(plan) > 0 {
		slog.Info("Pipeline turn finished",
			"stages", len(plan),
			"duration", time.Since(start),
		)
		s.storeAudit(st)
	}

	return Respond(st)
}

// storeAudit snapshots the stage keys for diagnostics and evaluation.
func (s *Service) storeAudit(st *session.State) {
	audit := make(map[string]any, 4)

	for _, key := range []string{
		session.KeySnapshot,
		session.KeyLocationOptions,
		session.KeyRiskReport,
		session.KeyAdviceMarkdown,
	} {
		if v, ok := st.Get(key); ok {
			audit[key] = v
		}
	}

	st.Set(session.KeyAudit, audit)
}
