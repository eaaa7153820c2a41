// Command ingest consumes document jobs from NATS and runs them through the
// chunk/embed/store pipeline into Qdrant.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/DeskmateAI/deskmate-mvp/engine/ingest"
	"github.com/DeskmateAI/deskmate-mvp/engine/semantic"
	"github.com/DeskmateAI/deskmate-mvp/pkg/config"
	"github.com/DeskmateAI/deskmate-mvp/pkg/metrics"
	"github.com/DeskmateAI/deskmate-mvp/pkg/ollama"
	"github.com/DeskmateAI/deskmate-mvp/pkg/resilience"
)

var met = metrics.New()

var (
	mEmbeddingsTotal = met.Counter("deskmate_ingest_embeddings_total", "Embedding calls made")
	mEmbedErrors     = met.Counter("deskmate_ingest_embed_errors_total", "Embedding calls failed")
	mUpsertsTotal    = met.Counter("deskmate_ingest_upserts_total", "Vector store writes")
	mChunksStored    = met.Counter("deskmate_ingest_chunks_stored_total", "Chunks written to the vector store")
	mEmbedDur        = met.Histogram("deskmate_ingest_embed_duration_seconds", "Ollama embed call time", nil)
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	met.ServeAsync(cfg.MetricsPort)

	// Connect Qdrant
	vs, err := semantic.New(cfg.Qdrant.Addr, cfg.Qdrant.Collection)
	if err != nil {
		logger.Error("qdrant connect failed", "error", err)
		os.Exit(1)
	}
	defer vs.Close()
	if err := vs.EnsureCollection(ctx, cfg.Ollama.Dimensions); err != nil {
		logger.Error("qdrant ensure collection failed", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to Qdrant", "collection", cfg.Qdrant.Collection, "dims", cfg.Ollama.Dimensions)

	// Connect NATS
	nc, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		logger.Error("nats connect failed", "error", err)
		os.Exit(1)
	}
	defer nc.Close()
	logger.Info("connected to NATS", "url", cfg.NATS.URL)

	embedder := ollama.NewEmbedClient(cfg.Ollama.BaseURL, cfg.Ollama.EmbedModel)
	logger.Info("using Ollama embeddings", "model", cfg.Ollama.EmbedModel)

	// Pace embedding calls so a burst of documents does not starve
	// interactive query embeddings on the same Ollama instance.
	pacer := resilience.NewLimiter(resilience.LimiterOpts{Rate: 10, Burst: 10})

	pipeline := ingest.NewPipeline(ingest.Deps{
		Embedder: &meteredEmbedder{inner: embedder},
		Store:    &meteredStore{inner: vs},
		Pacer:    pacer,
		Logger:   logger,
	}, cfg.Chunking.Size, cfg.Chunking.Overlap)

	sub, err := ingest.StartConsumer(nc, pipeline)
	if err != nil {
		logger.Error("subscribe failed", "error", err)
		os.Exit(1)
	}
	defer sub.Unsubscribe()
	logger.Info("ingest worker started", "subject", ingest.JobSubject)

	<-ctx.Done()
	logger.Info("shutdown signal received")
}

type meteredEmbedder struct {
	inner *ollama.EmbedClient
}

func (m *meteredEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vec, err := m.inner.Embed(ctx, text)
	mEmbedDur.Since(start)
	mEmbeddingsTotal.Inc()
	if err != nil {
		mEmbedErrors.Inc()
	}
	return vec, err
}

type meteredStore struct {
	inner *semantic.VectorStore
}

func (m *meteredStore) Upsert(ctx context.Context, records []semantic.Record) error {
	if err := m.inner.Upsert(ctx, records); err != nil {
		return err
	}
	mUpsertsTotal.Inc()
	mChunksStored.Add(int64(len(records)))
	return nil
}
