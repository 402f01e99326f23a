package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const DefaultModel = openai.GPT4oMini

// ChatClient answers prompts with a streamed chat completion. OpenAI
// compatible servers work through BaseURL.
type ChatClient struct {
	client       *openai.Client
	model        string
	systemPrompt string
	logger       *slog.Logger
}

func NewChatClient(apiKey, model, baseURL, systemPrompt string, logger *slog.Logger) *ChatClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	if model == "" {
		model = DefaultModel
	}
	return &ChatClient{
		client:       openai.NewClientWithConfig(cfg),
		model:        model,
		systemPrompt: systemPrompt,
		logger:       logger,
	}
}

func (c *ChatClient) Name() string {
	return "openai"
}

// Generate accumulates content deltas until a chunk reports a finish reason.
// A stream that ends before that is a failure.
func (c *ChatClient) Generate(ctx context.Context, prompt string) (string, error) {
	var messages []openai.ChatCompletionMessage
	if c.systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: c.systemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return "", fmt.Errorf("creating chat completion stream: %w", err)
	}
	defer stream.Close()

	var text strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("chat completion stream ended without a finish reason (%d bytes received)", text.Len())
		}
		if err != nil {
			return "", fmt.Errorf("receiving chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}

		choice := resp.Choices[0]
		text.WriteString(choice.Delta.Content)

		if choice.FinishReason != "" {
			c.logger.Debug("chat completion finished",
				"model", resp.Model,
				"finishReason", choice.FinishReason,
				"chars", text.Len(),
			)
			return strings.TrimSpace(text.String()), nil
		}
	}
}
