package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"envi/app/service/session"
	"envi/app/util/jsonx"

	_ "embed"
)

//go:embed advice_prompt.txt
var advicePromptTemplate string

const contextToolTimeout = 10 * time.Second

// AdviceStage is the report writer: it turns whatever the pipeline left
// in state into the final Markdown reply. Context tools (memory
// insights, external MCP tools) contribute extra prompt context.
// Writes env_advice_markdown.
type AdviceStage struct {
	svc *Service
}

func (st *AdviceStage) Name() string {
	return "aurora_advice"
}

func (st *AdviceStage) OutputKey() string {
	return session.KeyAdviceMarkdown
}

func (st *AdviceStage) Run(ctx context.Context, state *session.State) error {
	message, _ := state.GetString(session.KeyUserMessage)
	userID, _ := state.GetString(session.KeyUserID)

	prompt := renderTemplate(advicePromptTemplate, map[string]any{
		"message":     message,
		"snapshot":    stateJSON(state, session.KeySnapshot),
		"risk_report": stateJSON(state, session.KeyRiskReport),
		"locations":   stateJSON(state, session.KeyLocationOptions),
		"insights":    st.svc.memorySvc.Insights(userID),
		"context":     st.gatherContext(ctx, userID, message),
	})

	result, err := st.svc.writer.Complete(ctx, prompt, false)
	if err != nil {
		return fmt.Errorf("advice completion failed: %w", err)
	}

	state.Set(session.KeyAdviceMarkdown, jsonx.StripFences(result))

	slog.Info("Generated advice report", "length", len(result))

	return nil
}

// gatherContext calls every registered context tool and concatenates
// their text output. A failing tool is logged and skipped.
func (st *AdviceStage) gatherContext(ctx context.Context, userID, message string) string {
	if len(st.svc.contextTools) == 0 {
		return "none"
	}

	input, _ := json.Marshal(map[string]string{
		"user_id": userID,
		"message": message,
	})

	var b strings.Builder

	for _, tool := range st.svc.contextTools {
		toolCtx, cancel := context.WithTimeout(ctx, contextToolTimeout)
		output, err := tool.Call(toolCtx, string(input))
		cancel()

		if err != nil {
			slog.Warn("Context tool failed", "tool", tool.Name(), "error", err)
			continue
		}

		if output == "" {
			continue
		}

		b.WriteString(tool.Name() + ":\n")
		b.WriteString(output + "\n\n")
	}

	if b.Len() == 0 {
		return "none"
	}

	return strings.TrimSpace(b.String())
}

func stateJSON(state *session.State, key string) string {
	value, ok := state.Get(key)
	if !ok || value == nil {
		return "not available"
	}

	data, err := json.Marshal(value)
	if err != nil {
		return "not available"
	}

	return string(data)
}
