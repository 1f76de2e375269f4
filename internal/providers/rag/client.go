package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sandevgo/threadbot/internal/config"
)

const clientTimeout = 60 * time.Second

// Client talks to an OpenAI-compatible /embeddings endpoint serving a
// bge-m3 class model.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	dims       int
}

func NewClient(cfg *config.EmbeddingConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: clientTimeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dims:       cfg.Dims,
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Embed returns one vector for the given text, already carrying whatever
// encoding prefix the caller chose.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	data, err := json.Marshal(embeddingRequest{Model: c.model, Input: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var result embeddingResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("embedding api error: %s", result.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding api returned status %d: %s", resp.StatusCode, string(body))
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("embedding api returned no data")
	}

	vec := result.Data[0].Embedding
	if c.dims > 0 && len(vec) != c.dims {
		return nil, fmt.Errorf("embedding has %d dims, expected %d", len(vec), c.dims)
	}
	return vec, nil
}

func (c *Client) Dims() int {
	return c.dims
}
