// Package ingest provides the document ingestion pipeline: chunking,
// per-chunk embedding, and a single all-or-nothing vector store submission,
// plus the NATS consumer that feeds it.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/DeskmateAI/deskmate-mvp/engine/domain"
	"github.com/DeskmateAI/deskmate-mvp/engine/semantic"
	"github.com/DeskmateAI/deskmate-mvp/pkg/fn"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	// JobSubject carries ingest jobs from the API to the worker.
	JobSubject = "deskmate.ingest"
	// DLQSubject receives jobs that exhausted their retries.
	DLQSubject = "deskmate.ingest.dlq"
	// FailedSubject notifies the API of a permanently failed document.
	FailedSubject = "deskmate.ingest.failed"
	// MaxRetries before a job goes to the DLQ.
	MaxRetries = 3

	retryHeader = "X-Retry-Count"
)

// Embedder turns text into a vector. Errors on this path propagate: a
// document whose chunks cannot all be embedded is rejected whole.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store is the slice of the vector store the pipeline writes to.
type Store interface {
	Upsert(ctx context.Context, records []semantic.Record) error
}

// Pacer spaces out embedding calls. resilience.Limiter satisfies it.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Deps holds the pipeline's external dependencies.
type Deps struct {
	Embedder Embedder
	Store    Store
	Pacer    Pacer // optional
	Logger   *slog.Logger
}

// Pipeline runs documents through chunk, embed, and store stages.
type Pipeline struct {
	run    fn.Stage[domain.Document, string]
	logger *slog.Logger
}

// NewPipeline wires the stages with the given chunking parameters.
func NewPipeline(deps Deps, chunkSize, overlap int) *Pipeline {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	chunk := fn.Traced("ingest.chunk", newChunkStage(chunkSize, overlap))
	embed := fn.Traced("ingest.embed", newEmbedStage(deps))
	store := fn.Traced("ingest.store", newStoreStage(deps.Store))

	return &Pipeline{
		run:    fn.Then(fn.Then(chunk, embed), store),
		logger: log,
	}
}

// Ingest chunks text, embeds every chunk sequentially, and submits all
// records in one store call. An empty document is a no-op. Any embedding
// failure aborts before anything is written.
func (p *Pipeline) Ingest(ctx context.Context, docID, text, filename string) error {
	if err := domain.ValidateIngest(docID, filename); err != nil {
		return err
	}
	doc := domain.Document{ID: docID, Filename: filename, Text: text}
	start := time.Now()
	_, err := p.run(ctx, doc).Unwrap()
	if err != nil {
		return fmt.Errorf("ingest %s: %w", docID, err)
	}
	p.logger.Info("ingest done", "doc_id", docID, "filename", filename, "duration", time.Since(start))
	return nil
}

func newChunkStage(size, overlap int) fn.Stage[domain.Document, chunkedDoc] {
	return fn.MapStage(func(doc domain.Document) chunkedDoc {
		return chunkedDoc{doc: doc, chunks: ChunkText(doc.Text, size, overlap)}
	})
}

// newEmbedStage embeds chunks one network round-trip at a time. Sequential
// embedding bounds load on the model endpoint at the cost of linear latency.
func newEmbedStage(deps Deps) fn.Stage[chunkedDoc, embeddedDoc] {
	return func(ctx context.Context, cd chunkedDoc) fn.Result[embeddedDoc] {
		vectors := make([][]float32, len(cd.chunks))
		for i, chunk := range cd.chunks {
			if deps.Pacer != nil {
				if err := deps.Pacer.Wait(ctx); err != nil {
					return fn.Err[embeddedDoc](err)
				}
			}
			vec, err := deps.Embedder.Embed(ctx, chunk)
			if err != nil {
				return fn.Errf[embeddedDoc]("embed chunk %d/%d: %w", i, len(cd.chunks), err)
			}
			vectors[i] = vec
		}
		return fn.Ok(embeddedDoc{chunkedDoc: cd, vectors: vectors})
	}
}

func newStoreStage(store Store) fn.Stage[embeddedDoc, string] {
	return func(ctx context.Context, ed embeddedDoc) fn.Result[string] {
		if len(ed.chunks) == 0 {
			return fn.Ok(ed.doc.ID)
		}
		records := make([]semantic.Record, len(ed.chunks))
		for i, chunk := range ed.chunks {
			key := domain.ChunkKey(ed.doc.ID, i)
			records[i] = semantic.Record{
				ID:        uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String(),
				Embedding: ed.vectors[i],
				Payload: map[string]any{
					"content":     chunk,
					"doc_id":      ed.doc.ID,
					"filename":    ed.doc.Filename,
					"chunk_index": i,
				},
			}
		}
		return fn.FromPair(ed.doc.ID, store.Upsert(ctx, records))
	}
}

// dlqMessage is published to the DLQ on repeated failure.
type dlqMessage struct {
	Job     Job    `json:"job"`
	Error   string `json:"error"`
	Retries int    `json:"retries"`
}

// StartConsumer subscribes to the job subject and runs each job through the
// pipeline. Failed jobs are republished with an incremented retry header;
// after MaxRetries they go to the DLQ and a Failure is published so the API
// can delete the raw file.
func StartConsumer(nc *nats.Conn, p *Pipeline) (*nats.Subscription, error) {
	return nc.Subscribe(JobSubject, func(msg *nats.Msg) {
		var job Job
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			p.logger.Error("ingest: unmarshal job failed", "error", err)
			return
		}

		ctx := context.Background()
		err := p.Ingest(ctx, job.DocID, job.Text, job.Filename)
		if err == nil {
			return
		}

		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get(retryHeader); v != "" {
				retries, _ = strconv.Atoi(v)
			}
		}
		retries++
		p.logger.Error("ingest: pipeline failed",
			"error", err,
			"doc_id", job.DocID,
			"retry", retries,
		)

		if retries >= MaxRetries {
			dlq := dlqMessage{Job: job, Error: err.Error(), Retries: retries}
			data, _ := json.Marshal(dlq)
			if perr := nc.Publish(DLQSubject, data); perr != nil {
				p.logger.Error("ingest: DLQ publish failed", "error", perr)
			}
			failure := Failure{DocID: job.DocID, Filename: job.Filename, Error: err.Error()}
			data, _ = json.Marshal(failure)
			if perr := nc.Publish(FailedSubject, data); perr != nil {
				p.logger.Error("ingest: failure publish failed", "error", perr)
			}
			return
		}

		retryMsg := nats.NewMsg(JobSubject)
		retryMsg.Data = msg.Data
		retryMsg.Header = nats.Header{}
		retryMsg.Header.Set(retryHeader, strconv.Itoa(retries))
		if perr := nc.PublishMsg(retryMsg); perr != nil {
			p.logger.Error("ingest: retry publish failed", "error", perr)
		}
	})
}
