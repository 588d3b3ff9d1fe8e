package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ChatClient produces completions via Ollama's chat API, non-streaming.
type ChatClient struct {
	baseURL     string
	model       string
	temperature float32
	client      *http.Client
}

// NewChatClient creates a generation client for the given model.
func NewChatClient(baseURL, model string) *ChatClient {
	return &ChatClient{
		baseURL:     baseURL,
		model:       model,
		temperature: 0.3,
		client:      &http.Client{Timeout: 5 * time.Minute},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// Generate returns the model's response to an assembled prompt.
func (c *ChatClient) Generate(ctx context.Context, prompt string) (string, error) {
	body, _ := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Stream:   false,
		Options:  map[string]any{"temperature": c.temperature},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama chat: status %d", resp.StatusCode)
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("ollama chat decode: %w", err)
	}
	return result.Message.Content, nil
}
