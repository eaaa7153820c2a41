package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/DeskmateAI/deskmate-mvp/engine/domain"
)

// GenerateClient streams completions from Ollama's /api/generate endpoint.
type GenerateClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewGenerateClient creates a streaming generation client.
func NewGenerateClient(baseURL, model string) *GenerateClient {
	return &GenerateClient{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

// Model returns the generation model name.
func (c *GenerateClient) Model() string { return c.model }

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// Response is a pointer so a line that carries the key with an empty
// string is still forwarded, while a line without the key emits nothing.
type generateLine struct {
	Response *string `json:"response"`
	Done     bool    `json:"done"`
}

// Stream opens a streaming generation request and re-emits Ollama's
// newline-delimited JSON as StreamEvents. The channel carries zero or more
// chunk events followed by at most one terminal event, then closes. All
// transport and model failures surface as a terminal error event; nothing
// escapes the channel. Cancelling ctx stops delivery.
func (c *GenerateClient) Stream(ctx context.Context, prompt string) <-chan domain.StreamEvent {
	out := make(chan domain.StreamEvent)
	go func() {
		defer close(out)

		endpoint := c.baseURL + "/api/generate"
		body, _ := json.Marshal(generateRequest{Model: c.model, Prompt: prompt, Stream: true})

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			emit(ctx, out, domain.StreamEvent{Err: fmt.Sprintf("building generation request: %v", err)})
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			msg := fmt.Sprintf("cannot reach Ollama at %s; make sure it is running and the model %q is installed", c.baseURL, c.model)
			emit(ctx, out, domain.StreamEvent{Err: msg})
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			emit(ctx, out, domain.StreamEvent{Err: fmt.Sprintf("Ollama API error (%d): %s", resp.StatusCode, b)})
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var chunk generateLine
			if err := json.Unmarshal(line, &chunk); err != nil {
				continue // skip malformed lines
			}
			if chunk.Response != nil {
				if !emit(ctx, out, domain.StreamEvent{Chunk: *chunk.Response}) {
					return
				}
			}
			if chunk.Done {
				emit(ctx, out, domain.StreamEvent{Done: true})
				return
			}
		}
		if err := scanner.Err(); err != nil {
			emit(ctx, out, domain.StreamEvent{Err: fmt.Sprintf("reading generation stream: %v", err)})
		}
	}()
	return out
}

// emit sends ev unless ctx is cancelled first.
func emit(ctx context.Context, out chan<- domain.StreamEvent, ev domain.StreamEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
