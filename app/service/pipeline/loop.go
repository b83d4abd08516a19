package pipeline

import (
	"context"
	"log/slog"
	"time"

	"envi/app/service/session"
)

// Loop runs a stage and its checker up to maxIterations times.
// Exhausting the bound is not an error: whatever value the last attempt
// left in the output key stays there, and downstream consumers degrade.
type Loop struct {
	stage         Stage
	checker       Checker
	maxIterations int
}

func NewLoop(stage Stage, checker Checker, maxIterations int) *Loop {
	if maxIterations < 1 {
		maxIterations = 1
	}

	return &Loop{
		stage:         stage,
		checker:       checker,
		maxIterations: maxIterations,
	}
}

// Run returns true when the checker accepted the stage output.
func (l *Loop) Run(ctx context.Context, st *session.State) bool {
	for i := 0; i < l.maxIterations; i++ {
		start := time.Now()

		if err := l.stage.Run(ctx, st); err != nil {
			slog.Warn("Stage attempt failed",
				"stage", l.stage.Name(),
				"attempt", i+1,
				"error", err,
			)
		}

		stageRuns.WithLabelValues(l.stage.Name()).Inc()
		stageDuration.WithLabelValues(l.stage.Name()).Observe(time.Since(start).Seconds())

		passed := l.checker.Check(ctx, st)
		validationChecks.WithLabelValues(l.checker.Name(), resultLabel(passed)).Inc()

		if passed {
			return true
		}

		slog.Debug("Validation rejected stage output",
			"stage", l.stage.Name(),
			"checker", l.checker.Name(),
			"attempt", i+1,
		)
	}

	retriesExhausted.WithLabelValues(l.stage.Name()).Inc()
	slog.Warn("Retry loop exhausted, proceeding with partial data",
		"stage", l.stage.Name(),
		"max_iterations", l.maxIterations,
	)

	return false
}

func resultLabel(passed bool) string {
	if passed {
		return "pass"
	}
	return "fail"
}
