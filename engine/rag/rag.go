// Package rag orchestrates the retrieval-augmented chat pipeline: it checks
// whether anything has been ingested, embeds the query, fetches the nearest
// chunks, composes the prompt, and hands off to the generation stream.
package rag

import (
	"context"
	"log/slog"

	"github.com/DeskmateAI/deskmate-mvp/engine/domain"
	"github.com/DeskmateAI/deskmate-mvp/engine/semantic"
	"github.com/DeskmateAI/deskmate-mvp/pkg/metrics"
)

// Embedder turns a query into a vector. On this path failures never
// propagate; see embedQuery.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher is the slice of the vector store the chat path reads from.
type Searcher interface {
	Count(ctx context.Context) (uint64, error)
	Search(ctx context.Context, embedding []float32, topK int) ([]semantic.SearchResult, error)
}

// Generator streams a completion for a finished prompt.
type Generator interface {
	Stream(ctx context.Context, prompt string) <-chan domain.StreamEvent
}

// Options configures the retrieval behaviour.
type Options struct {
	// TopK is how many nearest chunks a turn retrieves.
	TopK int
	// Dimensions is the embedding width, used for the zero-vector fallback.
	Dimensions int
}

// DefaultOptions returns the defaults for the stock embedding model.
func DefaultOptions() Options {
	return Options{TopK: 5, Dimensions: 768}
}

// Service runs chat turns.
type Service struct {
	embed  Embedder
	store  Searcher
	gen    Generator
	opts   Options
	logger *slog.Logger

	turnsTotal    *metrics.Counter
	ragTurns      *metrics.Counter
	degradedTotal *metrics.Counter
}

// New creates a chat Service. logger and reg may be nil.
func New(embed Embedder, store Searcher, gen Generator, opts Options, logger *slog.Logger, reg *metrics.Registry) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = metrics.New()
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}
	if opts.Dimensions <= 0 {
		opts.Dimensions = DefaultOptions().Dimensions
	}
	return &Service{
		embed:  embed,
		store:  store,
		gen:    gen,
		opts:   opts,
		logger: logger,

		turnsTotal:    reg.Counter("deskmate_chat_turns_total", "Chat turns handled"),
		ragTurns:      reg.Counter("deskmate_chat_rag_turns_total", "Chat turns answered with retrieved context"),
		degradedTotal: reg.Counter("deskmate_retrieval_degraded_total", "Query embeddings replaced by the zero-vector fallback"),
	}
}

// Retrieve returns the topK nearest chunk texts for the query, nearest
// first. It short-circuits to nil without an embedding call when the store
// is empty, and absorbs every failure into nil: a broken retrieval path
// downgrades the turn to direct mode, it never aborts it.
func (s *Service) Retrieve(ctx context.Context, query string, topK int) []string {
	if topK <= 0 {
		topK = s.opts.TopK
	}

	count, err := s.store.Count(ctx)
	if err != nil {
		s.logger.Warn("retrieval: count failed, continuing without context", "error", err)
		return nil
	}
	if count == 0 {
		return nil
	}

	results, err := s.store.Search(ctx, s.embedQuery(ctx, query), topK)
	if err != nil {
		s.logger.Warn("retrieval: search failed, continuing without context", "error", err)
		return nil
	}

	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Content
	}
	return texts
}

// embedQuery embeds the query, substituting an all-zero vector on any
// failure. The zero vector produces low-quality matches but keeps the turn
// alive; the counter makes the silent degrade visible in /metrics.
func (s *Service) embedQuery(ctx context.Context, query string) []float32 {
	vec, err := s.embed.Embed(ctx, query)
	if err != nil {
		s.logger.Warn("retrieval: query embedding failed, using zero vector", "error", err)
		s.degradedTotal.Inc()
		return make([]float32, s.opts.Dimensions)
	}
	return vec
}

// HandleChatTurn runs one full chat turn and returns the generation event
// stream. The turn never hard-fails: retrieval problems fall back to direct
// mode and generation problems arrive as a terminal error event.
func (s *Service) HandleChatTurn(ctx context.Context, query string, action Action) <-chan domain.StreamEvent {
	s.turnsTotal.Inc()

	chunks := s.Retrieve(ctx, query, s.opts.TopK)
	ragEnabled := len(chunks) > 0
	if ragEnabled {
		s.ragTurns.Inc()
	}

	prompt := ComposePrompt(query, chunks, action, ragEnabled)
	s.logger.Info("chat turn",
		"action", string(action),
		"rag", ragEnabled,
		"context_chunks", len(chunks),
		"prompt_len", len(prompt),
	)
	return s.gen.Stream(ctx, prompt)
}
