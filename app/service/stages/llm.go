package stages

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"envi/app/config"

	"github.com/sashabaranov/go-openai"
)

const maxReasonDuration = 30 * time.Second

// Completer is the pluggable inference client behind every stage. Tests
// substitute a scripted implementation; production uses OpenAI-style
// chat completions.
type Completer interface {
	Complete(ctx context.Context, prompt string, jsonResponse bool) (string, error)
}

type chatClient struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

func newChatClient(cfg config.ModelConfig) *chatClient {
	clientConfig := openai.DefaultConfig(cfg.Token)

	clientConfig.BaseURL = cfg.BaseURL
	clientConfig.HTTPClient = &http.Client{
		Timeout: 30 * time.Second,
	}

	return &chatClient{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		temperature: 0.2,
		maxTokens:   2048,
	}
}

func (c *chatClient) Complete(ctx context.Context, prompt string, jsonResponse bool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, maxReasonDuration)
	defer cancel()

	request := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature:         c.temperature,
		MaxCompletionTokens: c.maxTokens,
	}

	if jsonResponse {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	response, err := c.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no chat completion found")
	}

	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

// renderTemplate substitutes {key} placeholders in a prompt template.
func renderTemplate(template string, values map[string]any) string {
	for key, value := range values {
		template = strings.ReplaceAll(template, "{"+key+"}", fmt.Sprint(value))
	}

	return template
}
