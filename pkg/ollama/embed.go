// Package ollama provides HTTP clients for an Ollama server, implementing
// the engine's embedding and generation collaborator interfaces.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// EmbedClient computes embeddings via Ollama's embeddings API.
type EmbedClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewEmbedClient creates an embedding client for the given model.
func NewEmbedClient(baseURL, model string) *EmbedClient {
	return &EmbedClient{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

// Model returns the embedding model id this client calls.
func (c *EmbedClient) Model() string { return c.model }

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed returns the embedding vector for one text.
func (c *EmbedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	body, _ := json.Marshal(embedRequest{Model: c.model, Prompt: text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embed: status %d", resp.StatusCode)
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama embed decode: %w", err)
	}

	out := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

// EmbedBatch embeds each text in order. A failure reports the index of
// the text that failed.
func (c *EmbedClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := c.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d]: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}
