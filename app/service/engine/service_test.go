package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"envi/app/client/geocode"
	"envi/app/client/mcptools"
	"envi/app/client/openmeteo"
	"envi/app/config"
	"envi/app/service/eval"
	"envi/app/service/memory"
	"envi/app/service/pipeline"
	"envi/app/service/report"
	"envi/app/service/session"
	"envi/app/service/stages"

	"github.com/samber/do"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const longAdvice = "## Recommendation\n\nConditions are mild, a morning hike is a good idea. Bring water."

func newTestEngine(t *testing.T) *Service {
	t.Helper()

	cfg := &config.Config{
		OpenAI: config.OpenAI{
			Worker: config.ModelConfig{BaseURL: "http://127.0.0.1:0", Token: "test", Model: "test"},
			Writer: config.ModelConfig{BaseURL: "http://127.0.0.1:0", Token: "test", Model: "test"},
		},
		Pipeline: config.Pipeline{MaxIterations: 2, DefaultLocation: "Ciudad de México, México"},
		Weather:  config.Weather{BaseURL: "http://127.0.0.1:0"},
		Geocode:  config.Geocode{BaseURL: "http://127.0.0.1:0", MaxResults: 3},
		Memory:   config.Memory{Path: filepath.Join(t.TempDir(), "memory.json")},
		Reports:  config.Reports{Dir: filepath.Join(t.TempDir(), "reports")},
	}

	di := do.New()
	t.Cleanup(func() { _ = di.Shutdown() })

	do.ProvideValue(di, cfg)
	do.Provide(di, openmeteo.NewClient)
	do.Provide(di, geocode.NewClient)
	do.Provide(di, memory.New)
	do.Provide(di, mcptools.New)
	do.Provide(di, stages.New)
	do.Provide(di, pipeline.New)
	do.Provide(di, report.New)
	do.Provide(di, eval.New)

	svc, err := New(di)
	require.NoError(t, err)

	return svc
}

// seedServedQuery leaves the session the way a completed weather turn
// would: resolved location, snapshot, risk report and advice.
func seedServedQuery(sess *userSession) {
	sess.st.Set(session.KeyResolvedLocation, map[string]any{
		"name":      "Toluca",
		"latitude":  19.28,
		"longitude": -99.65,
	})
	sess.st.Set(session.KeySnapshot, map[string]any{
		"current": map[string]any{"temperature_c": 18.0},
	})
	sess.st.Set(session.KeyRiskReport, map[string]any{
		"overall_risk": "low",
		"rationale":    "calm",
	})
	sess.st.Set(session.KeyAdviceMarkdown, longAdvice)
}

func TestProcessTurnSmallTalkDoesNotRecord(t *testing.T) {
	svc := newTestEngine(t)
	seedServedQuery(svc.sessionFor("alice"))

	svc.ProcessTurn(context.Background(), "alice", "thanks!")
	svc.ProcessTurn(context.Background(), "alice", "great, see you tomorrow")

	// no pipeline stage ran, so nothing may reach the memory bank
	assert.Empty(t, svc.memorySvc.History("alice", 0))
	assert.Nil(t, svc.memorySvc.Location("Toluca"))
}

func TestRecordTurnFeedsMemory(t *testing.T) {
	svc := newTestEngine(t)

	st := session.New()
	st.Set(session.KeyResolvedLocation, map[string]any{
		"name":      "Toluca",
		"latitude":  19.28,
		"longitude": -99.65,
		"activity":  "hiking",
	})
	st.Set(session.KeySnapshot, map[string]any{
		"current": map[string]any{
			"temperature_c":     18.0,
			"wind_speed_10m_ms": nil,
		},
	})

	svc.recordTurn("alice", st)

	history := svc.memorySvc.History("alice", 0)
	require.Len(t, history, 1)
	assert.Equal(t, "Toluca", history[0].Location)
	assert.Equal(t, "hiking", history[0].Activity)

	rec := svc.memorySvc.Location("Toluca")
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.QueryCount)
	assert.Equal(t, 18.0, rec.TypicalConditions["temperature_c"])
}

func TestProcessTurnSerializesPerUser(t *testing.T) {
	svc := newTestEngine(t)
	seedServedQuery(svc.sessionFor("alice"))

	sess := svc.sessionFor("alice")
	sess.mu.Lock()

	done := make(chan struct{})
	go func() {
		svc.ProcessTurn(context.Background(), "alice", "thanks!")
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("turn ran while another turn held the session")
	case <-time.After(50 * time.Millisecond):
	}

	sess.mu.Unlock()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("turn never ran after the session was released")
	}
}

func TestSessionForReusesSessions(t *testing.T) {
	svc := newTestEngine(t)

	assert.Same(t, svc.sessionFor("alice"), svc.sessionFor("alice"))
	assert.NotSame(t, svc.sessionFor("alice"), svc.sessionFor("bob"))
}

func TestProcessTurnExportsNamedReport(t *testing.T) {
	svc := newTestEngine(t)
	seedServedQuery(svc.sessionFor("alice"))

	reply := svc.ProcessTurn(context.Background(), "alice", "Please save the report to trip.md")

	assert.Contains(t, reply, "trip.md")

	data, err := os.ReadFile(filepath.Join(svc.cfg.Reports.Dir, "trip.md"))
	require.NoError(t, err)
	assert.Equal(t, longAdvice, string(data))
}

func TestExportFilename(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"Please save the report to trip.md", "trip.md"},
		{"save the report as 'weekend.md'.", "weekend.md"},
		{"export report to notes.txt", "notes.txt"},
		{"save the report", ""},
		{"save the report, thanks!", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, exportFilename(tt.message), tt.message)
	}
}

func TestIsRememberIntent(t *testing.T) {
	tests := []struct {
		message string
		want    bool
	}{
		{"Remember that I like hiking", true},
		{"my favorite spot is Ajusco", true},
		{"I prefer calm weather", true},
		{"What's the weather today?", false},
		{"Where should I go?", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, isRememberIntent(tt.message), tt.message)
	}
}

func TestIsExportIntent(t *testing.T) {
	assert.True(t, isExportIntent("Please save the report"))
	assert.True(t, isExportIntent("export report to a file"))
	assert.False(t, isExportIntent("report on the weather in Toluca"))
}

func TestSnapshotConditions(t *testing.T) {
	t.Run("single snapshot", func(t *testing.T) {
		st := session.New()
		st.Set(session.KeySnapshot, map[string]any{
			"current": map[string]any{
				"temperature_c":     21.5,
				"wind_speed_10m_ms": nil,
			},
		})

		conditions := snapshotConditions(st)
		require.NotNil(t, conditions)
		assert.Equal(t, 21.5, conditions["temperature_c"])

		// null readings are dropped
		_, ok := conditions["wind_speed_10m_ms"]
		assert.False(t, ok)
	})

	t.Run("list snapshot uses first entry", func(t *testing.T) {
		st := session.New()
		st.Set(session.KeySnapshot, []any{
			map[string]any{"current": map[string]any{"temperature_c": 15.0}},
			map[string]any{"current": map[string]any{"temperature_c": 22.0}},
		})

		conditions := snapshotConditions(st)
		require.NotNil(t, conditions)
		assert.Equal(t, 15.0, conditions["temperature_c"])
	})

	t.Run("absent snapshot", func(t *testing.T) {
		assert.Nil(t, snapshotConditions(session.New()))
	})

	t.Run("empty current", func(t *testing.T) {
		st := session.New()
		st.Set(session.KeySnapshot, map[string]any{"current": map[string]any{}})

		assert.Nil(t, snapshotConditions(st))
	})
}
