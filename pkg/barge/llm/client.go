// Package llm implements the chat model client used for decision calls.
// It speaks the OpenAI-compatible chat completions format, which covers
// OpenAI, Anthropic proxies, OpenRouter, Ollama and similar endpoints.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jholhewres/barge/pkg/barge/attention"
)

// Config configures the client.
type Config struct {
	// BaseURL is the API root (default https://api.openai.com/v1).
	BaseURL string `yaml:"base_url"`

	// Model is the model identifier sent with every request.
	Model string `yaml:"model"`

	// APIKey is the bearer token. Resolved by the config package from the
	// keyring, environment or config file.
	APIKey string `yaml:"api_key"`
}

// Client calls an OpenAI-compatible chat completions endpoint. It
// implements attention.ChatModel.
type Client struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a client from config.
func New(cfg Config, logger *slog.Logger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: baseURL,
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			// No global timeout — callers bound each call with
			// context.WithTimeout.
			Transport: &http.Transport{
				MaxIdleConns:          10,
				MaxIdleConnsPerHost:   5,
				IdleConnTimeout:       120 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 120 * time.Second,
			},
		},
		logger: logger.With("component", "llm"),
	}
}

// ---------- Wire types ----------

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// TextChat sends one chat completion request. Prior history is replayed as
// alternating user/assistant messages ahead of the prompt.
func (c *Client) TextChat(ctx context.Context, prompt string, history []attention.Turn, systemPrompt string) (attention.Completion, error) {
	messages := make([]chatMessage, 0, len(history)*2+2)
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	for _, turn := range history {
		if turn.User != "" {
			messages = append(messages, chatMessage{Role: "user", Content: turn.User})
		}
		if turn.Assistant != "" {
			messages = append(messages, chatMessage{Role: "assistant", Content: turn.Assistant})
		}
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(chatRequest{Model: c.model, Messages: messages})
	if err != nil {
		return attention.Completion{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return attention.Completion{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return attention.Completion{}, fmt.Errorf("chat completion: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return attention.Completion{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return attention.Completion{}, fmt.Errorf("chat completion: status %d: %s",
			resp.StatusCode, truncate(string(raw), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return attention.Completion{}, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return attention.Completion{}, fmt.Errorf("chat completion: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return attention.Completion{}, fmt.Errorf("chat completion: empty choices")
	}

	c.logger.Debug("chat completion",
		"model", c.model,
		"messages", len(messages),
		"duration", time.Since(start))

	choice := parsed.Choices[0].Message
	return attention.Completion{Role: choice.Role, Text: choice.Content}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
