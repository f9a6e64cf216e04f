package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
}

// OpenAICompatibleClient talks to any endpoint exposing the OpenAI
// /embeddings and /chat/completions routes. It holds no per-request state and
// is shared by all requests.
type OpenAICompatibleClient struct {
	httpClient *http.Client
}

func NewOpenAICompatibleClient(timeout time.Duration) *OpenAICompatibleClient {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &OpenAICompatibleClient{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Complete returns the content of the first choice. A response without
// choices, or with a null content, yields an empty string.
func (c *OpenAICompatibleClient) Complete(ctx context.Context, cfg ChatConfig, messages []ChatMessage) (string, error) {
	reqBody := map[string]interface{}{
		"model":       cfg.Model,
		"temperature": cfg.Temperature,
		"messages":    messages,
		"stream":      false,
	}

	raw, err := c.postJSON(ctx, cfg.BaseURL, cfg.APIKey, "/chat/completions", reqBody)
	if err != nil {
		return "", fmt.Errorf("llm %w", err)
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content *string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse llm json failed: %w", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == nil {
		return "", nil
	}
	return *parsed.Choices[0].Message.Content, nil
}

func (c *OpenAICompatibleClient) postJSON(ctx context.Context, baseURL, apiKey, path string, body interface{}) ([]byte, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request failed: %w", err)
	}

	url := strings.TrimRight(baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("response status %d: %s", resp.StatusCode, string(raw))
	}
	return raw, nil
}
