package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const DefaultModel = "gemini-2.0-flash"

type responseIterator interface {
	Next() (*genai.GenerateContentResponse, error)
}

type streamFunc func(ctx context.Context, prompt string) responseIterator

type Client struct {
	client *genai.Client
	stream streamFunc
	model  string
	logger *slog.Logger
}

func NewClient(ctx context.Context, apiKey, model, systemPrompt string, logger *slog.Logger) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	if model == "" {
		model = DefaultModel
	}
	gm := client.GenerativeModel(model)
	gm.SetTemperature(0.7)
	if systemPrompt != "" {
		gm.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}

	c := &Client{
		client: client,
		model:  model,
		logger: logger,
		stream: func(ctx context.Context, prompt string) responseIterator {
			return gm.GenerateContentStream(ctx, genai.Text(prompt))
		},
	}
	return c, nil
}

func (c *Client) Name() string {
	return "gemini"
}

func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Generate drains the response stream. A stream that yields no text is a
// failure.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	iter := c.stream(ctx, prompt)

	var text strings.Builder
	chunks := 0
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("streaming gemini response: %w", err)
		}
		chunks++
		text.WriteString(responseText(resp))
	}

	out := strings.TrimSpace(text.String())
	if out == "" {
		return "", fmt.Errorf("empty response from gemini after %d chunks", chunks)
	}

	c.logger.Debug("gemini response complete", "model", c.model, "chunks", chunks)
	return out, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var text strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
	}
	return text.String()
}
