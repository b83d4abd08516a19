package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"envi/app/service/memory"
	"envi/app/util/jsonx"

	_ "embed"
)

//go:embed prefs_prompt.txt
var prefsPromptTemplate string

// ExtractPreferences asks the worker model to pull a preference update
// out of a "remember this" style message. Not a pipeline stage: the
// engine calls it directly before running the pipeline.
func (s *Service) ExtractPreferences(ctx context.Context, message string) (*memory.PreferenceUpdate, error) {
	prompt := renderTemplate(prefsPromptTemplate, map[string]any{
		"message": message,
	})

	result, err := s.worker.Complete(ctx, prompt, true)
	if err != nil {
		return nil, fmt.Errorf("preference completion failed: %w", err)
	}

	var update memory.PreferenceUpdate
	if err = json.Unmarshal([]byte(jsonx.StripFences(result)), &update); err != nil {
		return nil, fmt.Errorf("failed to unmarshal preference update: %w", err)
	}

	return &update, nil
}
