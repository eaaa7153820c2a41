package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/DeskmateAI/deskmate-mvp/engine/domain"
)

// describePrompt asks the vision model for a text rendering of an image so
// it can be chunked and embedded like any other document.
const describePrompt = "Describe this image in detail, focusing on any text, diagrams, or important visual elements. Be thorough and specific."

// VisionClient describes images via an Ollama vision model.
type VisionClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewVisionClient creates a vision client for the given model.
func NewVisionClient(baseURL, model string) *VisionClient {
	return &VisionClient{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type visionRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
	Stream bool     `json:"stream"`
}

type visionResponse struct {
	Response string `json:"response"`
}

// Describe returns a textual description of the image bytes.
func (c *VisionClient) Describe(ctx context.Context, image []byte) (string, error) {
	endpoint := c.baseURL + "/api/generate"
	body, _ := json.Marshal(visionRequest{
		Model:  c.model,
		Prompt: describePrompt,
		Images: []string{base64.StdEncoding.EncodeToString(image)},
		Stream: false,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ollama describe: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: vision endpoint %s: %v", domain.ErrServiceUnavailable, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &domain.UpstreamStatusError{Endpoint: endpoint, Status: resp.StatusCode, Body: string(b)}
	}

	var result visionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("ollama describe decode: %w", err)
	}
	if result.Response == "" {
		return "Image description unavailable", nil
	}
	return result.Response, nil
}
