package pipeline

import (
	"context"
	"errors"
	"testing"

	"envi/app/service/session"

	"github.com/stretchr/testify/assert"
)

type fakeStage struct {
	runs int
	fn   func(attempt int, st *session.State) error
}

func (f *fakeStage) Name() string      { return "fake_stage" }
func (f *fakeStage) OutputKey() string { return "fake_output" }

func (f *fakeStage) Run(_ context.Context, st *session.State) error {
	f.runs++
	if f.fn != nil {
		return f.fn(f.runs, st)
	}
	return nil
}

type fakeChecker struct {
	fn func(st *session.State) bool
}

func (fakeChecker) Name() string { return "fake_checker" }

func (f fakeChecker) Check(_ context.Context, st *session.State) bool {
	if f.fn != nil {
		return f.fn(st)
	}
	return true
}

func TestLoopStopsOnFirstPass(t *testing.T) {
	stage := &fakeStage{}
	loop := NewLoop(stage, fakeChecker{}, 5)

	ok := loop.Run(context.Background(), session.New())

	assert.True(t, ok)
	assert.Equal(t, 1, stage.runs)
}

func TestLoopNeverExceedsMaxIterations(t *testing.T) {
	stage := &fakeStage{}
	reject := fakeChecker{fn: func(*session.State) bool { return false }}
	loop := NewLoop(stage, reject, 3)

	ok := loop.Run(context.Background(), session.New())

	assert.False(t, ok)
	assert.Equal(t, 3, stage.runs)
}

func TestLoopRetriesUntilCheckerAccepts(t *testing.T) {
	stage := &fakeStage{
		fn: func(attempt int, st *session.State) error {
			if attempt >= 2 {
				st.Set("fake_output", "good")
			}
			return nil
		},
	}
	checker := fakeChecker{fn: func(st *session.State) bool {
		return st.Has("fake_output")
	}}
	loop := NewLoop(stage, checker, 4)

	ok := loop.Run(context.Background(), session.New())

	assert.True(t, ok)
	assert.Equal(t, 2, stage.runs)
}

func TestLoopStageErrorCountsAsAttempt(t *testing.T) {
	stage := &fakeStage{
		fn: func(int, *session.State) error {
			return errors.New("backend unavailable")
		},
	}
	loop := NewLoop(stage, fakeChecker{fn: func(*session.State) bool { return false }}, 2)

	ok := loop.Run(context.Background(), session.New())

	assert.False(t, ok)
	assert.Equal(t, 2, stage.runs)
}

func TestLoopExhaustionKeepsLastValue(t *testing.T) {
	stage := &fakeStage{
		fn: func(attempt int, st *session.State) error {
			st.Set("fake_output", attempt)
			return nil
		},
	}
	loop := NewLoop(stage, fakeChecker{fn: func(*session.State) bool { return false }}, 2)

	st := session.New()
	loop.Run(context.Background(), st)

	// exhaustion is lenient: downstream still sees the last attempt
	v, ok := st.Get("fake_output")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestNewLoopClampsIterations(t *testing.T) {
	stage := &fakeStage{}
	loop := NewLoop(stage, fakeChecker{fn: func(*session.State) bool { return false }}, 0)

	loop.Run(context.Background(), session.New())

	assert.Equal(t, 1, stage.runs)
}
