// Package llm completes prompts with an OpenAI model instead of the
// backend's /chat endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const systemPrompt = `You are Buddy, a friendly conversational assistant.
Answer clearly and concisely. Use Markdown only when it helps readability.
Replies may be read aloud, so avoid long tables and code unless asked.`

type Config struct {
	APIKey  string
	Model   string
	BaseURL string // empty = api.openai.com
	HTTP    *http.Client
}

type Completer struct {
	client openai.Client
	model  string
}

func New(cfg Config) (*Completer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is empty")
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.ChatModelGPT5Nano)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTP != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTP))
	}

	return &Completer{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}, nil
}

// Complete sends prompt as a single user turn.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModel(c.model),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", errors.New("empty message content")
	}

	log.Debug("Completed", "model", resp.Model, "tokens", resp.Usage.TotalTokens)
	return content, nil
}
