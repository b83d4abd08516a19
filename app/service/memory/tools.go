package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/tools"
)

type memoryTool struct {
	name        string
	description string
	call        func(ctx context.Context, input string) (string, error)
}

func (m *memoryTool) Name() string {
	return m.name
}

func (m *memoryTool) Description() string {
	return m.description
}

func (m *memoryTool) Call(ctx context.Context, input string) (string, error) {
	return m.call(ctx, input)
}

type toolInput struct {
	UserID string `json:"user_id"`
}

func parseUserID(input string) string {
	trimmed := strings.TrimSpace(input)

	if strings.HasPrefix(trimmed, "{") {
		var parsed toolInput
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.UserID != "" {
			return parsed.UserID
		}
	}

	return trimmed
}

// Tools exposes the memory bank as context tools for the report writer.
func (s *Service) Tools() []tools.Tool {
	return []tools.Tool{
		&memoryTool{
			name:        "user_insights",
			description: "What is known about the user: preferred activities, risk tolerance, favorite and recent locations. Input is the user id, or JSON with a user_id field.",
			call: func(_ context.Context, input string) (string, error) {
				return s.Insights(parseUserID(input)), nil
			},
		},
		&memoryTool{
			name:        "frequent_locations",
			description: "The most frequently queried locations across all users, with typical conditions.",
			call: func(_ context.Context, _ string) (string, error) {
				records := s.FrequentLocations(5)
				if len(records) == 0 {
					return "No locations queried yet.", nil
				}

				var b strings.Builder
				for _, rec := range records {
					b.WriteString(fmt.Sprintf("%s (queried %d times)", rec.Name, rec.QueryCount))
					if len(rec.TypicalConditions) > 0 {
						parts := make([]string, 0, len(rec.TypicalConditions))
						for key, value := range rec.TypicalConditions {
							parts = append(parts, fmt.Sprintf("%s=%v", key, value))
						}
						b.WriteString(": " + strings.Join(parts, ", "))
					}
					b.WriteString("\n")
				}

				return strings.TrimRight(b.String(), "\n"), nil
			},
		},
	}
}
