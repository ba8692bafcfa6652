// Package openai provides a ports.TextGenerator backed by the OpenAI
// chat completions API (or any OpenAI-compatible endpoint).
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/himawari-bot/himawari/domain/usage"
	"github.com/himawari-bot/himawari/ports"
)

// Generator calls the chat completions API and reports the provider's
// raw token accounting alongside the generated text.
type Generator struct {
	client *openai.Client
}

// Config holds the provider settings.
type Config struct {
	APIKey  string
	BaseURL string // optional, for OpenAI-compatible providers
	Timeout time.Duration
}

// NewGenerator creates an OpenAI-compatible text generator.
func NewGenerator(cfg Config) *Generator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Generator{client: openai.NewClientWithConfig(clientCfg)}
}

// Generate implements ports.TextGenerator.
func (g *Generator) Generate(ctx context.Context, req ports.GenerateRequest) (ports.GenerateResult, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, turn := range req.History {
		role := openai.ChatMessageRoleUser
		if turn.FromBot {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: turn.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature != nil {
		chatReq.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		chatReq.TopP = *req.TopP
	}

	resp, err := g.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return ports.GenerateResult{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ports.GenerateResult{}, fmt.Errorf("chat completion: empty response")
	}

	// The raw usage is passed through as reported; the caller validates
	// and recomputes the total.
	return ports.GenerateResult{
		Text: resp.Choices[0].Message.Content,
		Usage: usage.RawFromInts(
			int64(resp.Usage.PromptTokens),
			int64(resp.Usage.CompletionTokens),
			int64(resp.Usage.TotalTokens),
		),
	}, nil
}

// Ensure interface compliance.
var _ ports.TextGenerator = (*Generator)(nil)
