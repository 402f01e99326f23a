package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"voice-chat/internal/infra"
)

const (
	DefaultModel   = "claude-sonnet-4-20250514"
	defaultBaseURL = "https://api.anthropic.com/v1"
	maxTokens      = 1024
)

type ClaudeClient struct {
	apiKey       string
	httpClient   *http.Client
	baseURL      string
	model        string
	systemPrompt string
	retry        infra.RetryConfig
}

func NewClaudeClient(apiKey, model, systemPrompt string) *ClaudeClient {
	return NewClaudeClientWithURL(apiKey, model, systemPrompt, defaultBaseURL)
}

func NewClaudeClientWithURL(apiKey, model, systemPrompt, baseURL string) *ClaudeClient {
	if model == "" {
		model = DefaultModel
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &ClaudeClient{
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		model:        model,
		systemPrompt: systemPrompt,
		retry:        infra.DefaultRetryConfig(),
	}
}

func (c *ClaudeClient) Name() string {
	return "anthropic"
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type response struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (c *ClaudeClient) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := request{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    c.systemPrompt,
		Messages: []message{
			{Role: "user", Content: prompt},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	// Only connection failures are retried: once the request reaches the API
	// it counts as the utterance's single response call.
	var result response
	retryErr := infra.WithRetry(ctx, c.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(bodyBytes))
		if err != nil {
			return infra.Permanent(fmt.Errorf("creating request: %w", err))
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if isDialError(err) {
				return fmt.Errorf("sending request: %w", err)
			}
			return infra.Permanent(fmt.Errorf("sending request: %w", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return infra.Permanent(fmt.Errorf("claude API error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
		}

		if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return infra.Permanent(fmt.Errorf("decoding response: %w", err))
		}

		return nil
	})

	if retryErr != nil {
		return "", retryErr
	}

	var text strings.Builder
	for _, block := range result.Content {
		if block.Type == "" || block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("empty response from claude (stop reason %q)", result.StopReason)
	}

	return strings.TrimSpace(text.String()), nil
}

func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
