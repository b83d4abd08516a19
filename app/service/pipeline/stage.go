package pipeline

import (
	"context"

	"envi/app/service/session"
)

// Stage is one step of the pipeline. A stage writes a single designated
// key into session state; whether that write is usable is decided by
// the checker paired with it, not by the stage itself.
type Stage interface {
	Name() string
	OutputKey() string
	Run(ctx context.Context, st *session.State) error
}

// Checker gates a stage's output. Check returns true to escalate (stop
// the retry loop) and false to request another attempt. Checkers are
// read-mostly; the location checker is the one exception with a real
// mutation contract (it rewrites the cleaned list).
type Checker interface {
	Name() string
	Check(ctx context.Context, st *session.State) bool
}
