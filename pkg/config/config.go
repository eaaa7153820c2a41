// Package config loads Deskmate configuration from an optional YAML file,
// a .env file, and environment variable overrides, in that order.
package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           string  `yaml:"port"`
	CORSOrigin     string  `yaml:"cors_origin"`
	UploadDir      string  `yaml:"upload_dir"`
	UploadsPerMin  float64 `yaml:"uploads_per_min"`
	MaxUploadBytes int64   `yaml:"max_upload_bytes"`
}

// OllamaConfig configures the model-serving endpoint.
type OllamaConfig struct {
	BaseURL     string `yaml:"base_url"`
	EmbedModel  string `yaml:"embed_model"`
	ChatModel   string `yaml:"chat_model"`
	VisionModel string `yaml:"vision_model"`
	Dimensions  int    `yaml:"dimensions"`
}

// QdrantConfig configures the vector store.
type QdrantConfig struct {
	Addr       string `yaml:"addr"`
	Collection string `yaml:"collection"`
}

// NATSConfig configures the ingest job queue.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// ChunkingConfig configures the document chunker.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// Config is the root configuration for both binaries.
type Config struct {
	Server      ServerConfig   `yaml:"server"`
	Ollama      OllamaConfig   `yaml:"ollama"`
	Qdrant      QdrantConfig   `yaml:"qdrant"`
	NATS        NATSConfig     `yaml:"nats"`
	Chunking    ChunkingConfig `yaml:"chunking"`
	TopK        int            `yaml:"top_k"`
	MetricsPort int            `yaml:"metrics_port"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:           "8000",
			CORSOrigin:     "*",
			UploadDir:      "uploads",
			UploadsPerMin:  30,
			MaxUploadBytes: 32 << 20,
		},
		Ollama: OllamaConfig{
			BaseURL:     "http://localhost:11434",
			EmbedModel:  "nomic-embed-text",
			ChatModel:   "tinyllama",
			VisionModel: "llava:7b",
			Dimensions:  768,
		},
		Qdrant: QdrantConfig{
			Addr:       "localhost:6334",
			Collection: "deskmate_documents",
		},
		NATS:        NATSConfig{URL: "nats://localhost:4222"},
		Chunking:    ChunkingConfig{Size: 1000, Overlap: 200},
		TopK:        5,
		MetricsPort: 9091,
	}
}

// Load reads the config at path (missing file is fine), after loading any
// .env file into the environment, then applies environment overrides.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, err
			}
			applyDefaults(&cfg)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

// applyDefaults fills zero values left by a partial YAML file.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Server.Port == "" {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Server.CORSOrigin == "" {
		cfg.Server.CORSOrigin = def.Server.CORSOrigin
	}
	if cfg.Server.UploadDir == "" {
		cfg.Server.UploadDir = def.Server.UploadDir
	}
	if cfg.Server.UploadsPerMin <= 0 {
		cfg.Server.UploadsPerMin = def.Server.UploadsPerMin
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		cfg.Server.MaxUploadBytes = def.Server.MaxUploadBytes
	}
	if cfg.Ollama.BaseURL == "" {
		cfg.Ollama.BaseURL = def.Ollama.BaseURL
	}
	if cfg.Ollama.EmbedModel == "" {
		cfg.Ollama.EmbedModel = def.Ollama.EmbedModel
	}
	if cfg.Ollama.ChatModel == "" {
		cfg.Ollama.ChatModel = def.Ollama.ChatModel
	}
	if cfg.Ollama.VisionModel == "" {
		cfg.Ollama.VisionModel = def.Ollama.VisionModel
	}
	if cfg.Ollama.Dimensions <= 0 {
		cfg.Ollama.Dimensions = def.Ollama.Dimensions
	}
	if cfg.Qdrant.Addr == "" {
		cfg.Qdrant.Addr = def.Qdrant.Addr
	}
	if cfg.Qdrant.Collection == "" {
		cfg.Qdrant.Collection = def.Qdrant.Collection
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = def.NATS.URL
	}
	if cfg.Chunking.Size <= 0 {
		cfg.Chunking.Size = def.Chunking.Size
	}
	if cfg.Chunking.Overlap < 0 {
		cfg.Chunking.Overlap = def.Chunking.Overlap
	}
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.MetricsPort <= 0 {
		cfg.MetricsPort = def.MetricsPort
	}
}

func applyEnv(cfg *Config) {
	setStr(&cfg.Server.Port, "PORT")
	setStr(&cfg.Server.CORSOrigin, "CORS_ORIGIN")
	setStr(&cfg.Server.UploadDir, "UPLOAD_DIR")
	setStr(&cfg.Ollama.BaseURL, "OLLAMA_URL")
	setStr(&cfg.Ollama.EmbedModel, "EMBED_MODEL")
	setStr(&cfg.Ollama.ChatModel, "CHAT_MODEL")
	setStr(&cfg.Ollama.VisionModel, "VISION_MODEL")
	setInt(&cfg.Ollama.Dimensions, "EMBED_DIMENSIONS")
	setStr(&cfg.Qdrant.Addr, "QDRANT_URL")
	setStr(&cfg.Qdrant.Collection, "QDRANT_COLLECTION")
	setStr(&cfg.NATS.URL, "NATS_URL")
	setInt(&cfg.Chunking.Size, "CHUNK_SIZE")
	setInt(&cfg.Chunking.Overlap, "CHUNK_OVERLAP")
	setInt(&cfg.TopK, "TOP_K")
	setInt(&cfg.MetricsPort, "METRICS_PORT")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
