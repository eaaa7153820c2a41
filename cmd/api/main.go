// Package main implements the Deskmate API server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"

	"github.com/DeskmateAI/deskmate-mvp/engine/domain"
	"github.com/DeskmateAI/deskmate-mvp/engine/extract"
	"github.com/DeskmateAI/deskmate-mvp/engine/ingest"
	"github.com/DeskmateAI/deskmate-mvp/engine/rag"
	"github.com/DeskmateAI/deskmate-mvp/engine/semantic"
	"github.com/DeskmateAI/deskmate-mvp/pkg/config"
	"github.com/DeskmateAI/deskmate-mvp/pkg/metrics"
	"github.com/DeskmateAI/deskmate-mvp/pkg/mid"
	"github.com/DeskmateAI/deskmate-mvp/pkg/natsutil"
	"github.com/DeskmateAI/deskmate-mvp/pkg/ollama"
	"github.com/DeskmateAI/deskmate-mvp/pkg/resilience"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.Server.UploadDir, 0o755); err != nil {
		return fmt.Errorf("upload dir: %w", err)
	}

	// --- Connect to Qdrant ---
	vectorStore, err := semantic.New(cfg.Qdrant.Addr, cfg.Qdrant.Collection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()

	if err := vectorStore.EnsureCollection(ctx, cfg.Ollama.Dimensions); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	// --- Connect to NATS ---
	nc, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	// --- Ollama clients ---
	embedder := ollama.NewEmbedClient(cfg.Ollama.BaseURL, cfg.Ollama.EmbedModel)
	generator := ollama.NewGenerateClient(cfg.Ollama.BaseURL, cfg.Ollama.ChatModel)
	vision := ollama.NewVisionClient(cfg.Ollama.BaseURL, cfg.Ollama.VisionModel)

	extractor := extract.New(vision, logger)

	reg := metrics.New()
	uploadsTotal := reg.Counter("deskmate_uploads_total", "Files accepted for ingestion")
	uploadRejected := reg.Counter("deskmate_uploads_rejected_total", "Uploads rejected by validation or extraction")
	uploadSeconds := reg.Histogram("deskmate_upload_duration_seconds", "Upload handling latency", nil)
	streamErrors := reg.Counter("deskmate_chat_stream_errors_total", "Chat turns ended by an error event")

	breaker := resilience.NewBreaker(resilience.BreakerOpts{
		FailThreshold: 5,
		Timeout:       30 * time.Second,
	})
	guarded := &guardedGenerator{gen: generator, breaker: breaker}

	ragSvc := rag.New(embedder, vectorStore, guarded,
		rag.Options{TopK: cfg.TopK, Dimensions: cfg.Ollama.Dimensions},
		logger, reg)

	// The worker reports permanently failed documents back so the raw
	// file does not linger in the uploads dir.
	failedSub, err := natsutil.Subscribe(nc, ingest.FailedSubject, func(_ context.Context, f ingest.Failure) {
		path := filepath.Join(cfg.Server.UploadDir, f.DocID+"_"+f.Filename)
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			logger.Error("failed-file cleanup", "path", path, "err", rmErr)
			return
		}
		logger.Warn("ingestion failed, raw file removed", "doc_id", f.DocID, "error", f.Error)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", ingest.FailedSubject, err)
	}
	defer failedSub.Unsubscribe()

	api := &server{
		cfg:            cfg,
		nc:             nc,
		extractor:      extractor,
		rag:            ragSvc,
		logger:         logger,
		uploadsTotal:   uploadsTotal,
		uploadRejected: uploadRejected,
		uploadSeconds:  uploadSeconds,
		streamErrors:   streamErrors,
	}

	uploadLimiter := rate.NewLimiter(rate.Limit(cfg.Server.UploadsPerMin/60), burstFor(cfg.Server.UploadsPerMin))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.Handle("POST /upload", mid.RateLimit(uploadLimiter)(http.HandlerFunc(api.handleUpload)))
	mux.HandleFunc("POST /chat", api.handleChat)
	mux.HandleFunc("GET /files", api.handleFiles)
	mux.Handle("GET /metrics", reg.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.Server.CORSOrigin),
		mid.OTel("deskmate-api"),
	)

	srv := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     handler,
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: /chat streams for as long as generation runs.
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Server.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func burstFor(perMin float64) int {
	if perMin < 1 {
		return 1
	}
	return int(perMin)
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type server struct {
	cfg       config.Config
	nc        *nats.Conn
	extractor *extract.Extractor
	rag       *rag.Service
	logger    *slog.Logger

	uploadsTotal   *metrics.Counter
	uploadRejected *metrics.Counter
	uploadSeconds  *metrics.Histogram
	streamErrors   *metrics.Counter
}

func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { s.uploadSeconds.Since(start) }()

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.uploadRejected.Inc()
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	if err := domain.ValidateUpload(header.Filename); err != nil {
		s.uploadRejected.Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		s.uploadRejected.Inc()
		writeError(w, http.StatusBadRequest, "reading upload failed")
		return
	}

	docID := uuid.NewString()
	path := filepath.Join(s.cfg.Server.UploadDir, docID+"_"+header.Filename)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		s.logger.Error("persist upload", "err", err)
		writeError(w, http.StatusInternalServerError, "could not store file")
		return
	}

	text := s.extractor.Text(r.Context(), header.Filename, content)
	if strings.TrimSpace(text) == "" {
		s.uploadRejected.Inc()
		os.Remove(path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "error",
			"message": "No text content extracted from file",
		})
		return
	}

	job := ingest.Job{DocID: docID, Filename: header.Filename, Text: text}
	if err := natsutil.Publish(r.Context(), s.nc, ingest.JobSubject, job); err != nil {
		s.logger.Error("publish ingest job", "err", err)
		os.Remove(path)
		writeError(w, http.StatusServiceUnavailable, "ingestion queue unavailable")
		return
	}

	s.uploadsTotal.Inc()
	s.logger.Info("upload accepted", "doc_id", docID, "filename", header.Filename, "bytes", len(content))
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":   "success",
		"file_id":  docID,
		"filename": header.Filename,
		"message":  "File uploaded and queued for processing",
	})
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	message := r.PostFormValue("message")
	if err := domain.ValidateQuery(message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	action := rag.Action(r.PostFormValue("action"))

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range s.rag.HandleChatTurn(r.Context(), message, action) {
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("marshal stream event", "err", err)
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
		if ev.Err != "" {
			s.streamErrors.Inc()
		}
		if ev.Terminal() {
			return
		}
	}
}

func (s *server) handleFiles(w http.ResponseWriter, _ *http.Request) {
	type fileEntry struct {
		Filename string `json:"filename"`
		ID       string `json:"id"`
	}
	files := []fileEntry{}

	entries, err := os.ReadDir(s.cfg.Server.UploadDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Error("list uploads", "err", err)
		writeError(w, http.StatusInternalServerError, "could not list files")
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, name, found := strings.Cut(e.Name(), "_")
		if !found {
			continue
		}
		files = append(files, fileEntry{Filename: name, ID: id})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"files": files})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// --- Generation guard ---

// guardedGenerator trips a circuit breaker on failed generations so a dead
// model endpoint fails fast instead of holding connections for the full
// client timeout.
type guardedGenerator struct {
	gen     *ollama.GenerateClient
	breaker *resilience.Breaker
}

func (g *guardedGenerator) Stream(ctx context.Context, prompt string) <-chan domain.StreamEvent {
	out := make(chan domain.StreamEvent, 1)
	go func() {
		defer close(out)
		err := g.breaker.Call(ctx, func(ctx context.Context) error {
			var failure string
			for ev := range g.gen.Stream(ctx, prompt) {
				if ev.Err != "" {
					failure = ev.Err
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if failure != "" {
				return errors.New(failure)
			}
			return nil
		})
		if errors.Is(err, resilience.ErrCircuitOpen) {
			out <- domain.StreamEvent{Err: "The assistant is temporarily unavailable. Please try again in a moment."}
		}
	}()
	return out
}
