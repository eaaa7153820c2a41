// Package ollama provides HTTP clients for the Ollama endpoints Deskmate
// uses: embeddings, streaming generation, and image description.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/DeskmateAI/deskmate-mvp/engine/domain"
)

// EmbedClient calls Ollama's /api/embeddings endpoint.
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
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Model returns the embedding model name.
func (c *EmbedClient) Model() string { return c.model }

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed returns the embedding vector for text. A transport failure maps to
// domain.ErrServiceUnavailable, a non-2xx response to UpstreamStatusError,
// and a zero-length vector to domain.ErrEmptyEmbedding. Callers own the
// degrade-or-propagate decision.
func (c *EmbedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	endpoint := c.baseURL + "/api/embeddings"
	body, _ := json.Marshal(embedRequest{Model: c.model, Prompt: text})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding endpoint %s: %v", domain.ErrServiceUnavailable, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &domain.UpstreamStatusError{Endpoint: endpoint, Status: resp.StatusCode, Body: string(b)}
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama embed decode: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("ollama embed %s: %w", c.model, domain.ErrEmptyEmbedding)
	}
	return result.Embedding, nil
}
