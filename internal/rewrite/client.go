package rewrite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var ErrMisconfigured = errors.New("chat client misconfigured")

type (
	// ChatClient sends single-prompt chat completions to an OpenAI-compatible API.
	ChatClient struct {
		endpoint     string
		model        string
		apiKey       string
		systemPrompt string
		attempts     int
		http         *http.Client
	}

	chatMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	chatRequest struct {
		Model       string        `json:"model"`
		Messages    []chatMessage `json:"messages"`
		MaxTokens   int           `json:"max_tokens,omitempty"`
		Temperature float64       `json:"temperature"`
	}

	chatResponse struct {
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
)

func NewChatClient(config Config) *ChatClient {
	return &ChatClient{
		endpoint:     config.Endpoint,
		model:        config.Model,
		apiKey:       config.APIKey,
		systemPrompt: config.SystemPrompt,
		attempts:     config.attempts(),
		http:         &http.Client{Timeout: config.timeout()},
	}
}

// Complete sends the prompt and returns the content of the first choice,
// trimmed of surrounding whitespace. Rate limiting and server errors are
// retried; any other failure is returned immediately.
func (c *ChatClient) Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", ErrMisconfigured
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: c.systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	var content string
	op := func() error {
		out, err := c.send(ctx, body)
		if err != nil {
			return err
		}

		content = out
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), uint64(c.attempts-1)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return "", err
	}

	return content, nil
}

func (c *ChatClient) send(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("chat error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return "", err
		}

		return "", backoff.Permanent(err)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", backoff.Permanent(fmt.Errorf("decode chat response: %w", err))
	}
	if decoded.Error != nil {
		return "", backoff.Permanent(fmt.Errorf("chat error: %s", decoded.Error.Message))
	}
	if len(decoded.Choices) == 0 {
		return "", backoff.Permanent(errors.New("chat response contained no choices"))
	}

	return strings.TrimSpace(decoded.Choices[0].Message.Content), nil
}
