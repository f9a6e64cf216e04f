package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// EmbeddingConfig holds API settings for text-embedding (OpenAI-compatible).
type EmbeddingConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Embed requests a single embedding and returns the first vector.
func (c *OpenAICompatibleClient) Embed(ctx context.Context, cfg EmbeddingConfig, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("embedding input is empty")
	}

	reqBody := map[string]interface{}{
		"model": cfg.Model,
		"input": text,
	}
	raw, err := c.postJSON(ctx, cfg.BaseURL, cfg.APIKey, "/embeddings", reqBody)
	if err != nil {
		return nil, fmt.Errorf("embedding %w", err)
	}

	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse embedding json failed: %w", err)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding in response")
	}
	return parsed.Data[0].Embedding, nil
}
