package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/spf13/pflag"

	"github.com/contextd/contextd/internal/ai"
	"github.com/contextd/contextd/internal/api"
	"github.com/contextd/contextd/internal/auth"
	"github.com/contextd/contextd/internal/chunker"
	"github.com/contextd/contextd/internal/config"
	"github.com/contextd/contextd/internal/dialog"
	"github.com/contextd/contextd/internal/embedding"
	"github.com/contextd/contextd/internal/llm"
	"github.com/contextd/contextd/internal/retrieval"
)

const version = "1.0.0"

func main() {
	fs := pflag.NewFlagSet("contextd-api", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	logger.Info().
		Str("embed_provider", cfg.Provider).
		Str("llm_provider", cfg.LLM.Provider).
		Str("log_level", cfg.LogLevel).
		Bool("auth_enabled", cfg.Auth.Enabled).
		Msg("starting contextd api")

	clientConfig, err := embedClientConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to configure embedding provider: %v", err)
	}
	aiClient, err := ai.NewClient(clientConfig)
	if err != nil {
		log.Fatalf("Failed to create embedding client: %v", err)
	}
	logger.Info().Int("embedding_dim", aiClient.Dim()).Str("embed_model", clientConfig.EmbedModel).Msg("embedding client initialized")

	embedSvc, err := embedding.NewService(aiClient, cfg.EmbedCacheSize, cfg.SimilarityThreshold, logger)
	if err != nil {
		log.Fatalf("Failed to create embedding service: %v", err)
	}

	memory := dialog.NewMemory(embedSvc, dialog.Options{
		TTL:         time.Duration(cfg.MemoryTTL) * time.Second,
		MaxHistory:  cfg.MaxDialogHistory,
		MaxSessions: cfg.MaxSessions,
		Logger:      logger,
	})

	retrievalSvc := retrieval.NewService(embedSvc, memory, logger)

	llmClient, err := llm.New(llm.Config{
		Provider:     llm.Provider(cfg.LLM.Provider),
		OllamaURL:    cfg.LLM.OllamaURL,
		OpenAIURL:    cfg.LLM.OpenAIURL,
		APIKey:       cfg.LLM.OpenAIAPIKey,
		DefaultModel: cfg.LLM.DefaultModel,
	})
	if err != nil {
		log.Fatalf("Failed to create LLM client: %v", err)
	}

	codeChunker, err := chunker.New(cfg.MaxChunkSize, cfg.ChunkOverlapRatio)
	if err != nil {
		log.Fatalf("Failed to create chunker: %v", err)
	}

	auth.Initialize(cfg.Auth.JwtSecret, cfg.Auth.Enabled)

	server := api.NewServer(codeChunker, retrievalSvc, memory, llmClient, api.Config{
		Version:             version,
		LLMProvider:         cfg.LLM.Provider,
		DefaultModel:        cfg.LLM.DefaultModel,
		MaxChunkSize:        cfg.MaxChunkSize,
		MaxContextLength:    cfg.MaxContextLength,
		MaxChunksPerRequest: cfg.MaxChunksPerRequest,
		SimilarityThreshold: cfg.SimilarityThreshold,
	}, logger)

	handler := hlog.NewHandler(logger)(
		hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
			logger.Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("size", size).Dur("dur", dur).Msg("http")
		})(server.Routes()),
	)

	address := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	s := &http.Server{Addr: address, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	logger.Info().Str("addr", s.Addr).Msg("api server listening")
	log.Fatal(s.ListenAndServe())
}

func embedClientConfig(cfg config.Specification) (*ai.ClientConfig, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return &ai.ClientConfig{
			APIKey:     cfg.APIKey,
			EmbedModel: cfg.EmbedModel,
			Dim:        cfg.Dim,
			ProjectID:  cfg.ProjectID,
			Provider:   ai.ProviderOpenAI,
		}, nil
	case "ollama":
		return &ai.ClientConfig{
			EmbedModel: cfg.EmbedModel,
			Dim:        cfg.Dim,
			BaseURL:    cfg.LLM.OllamaURL,
			Provider:   ai.ProviderOllama,
		}, nil
	case "vertexai", "google":
		return &ai.ClientConfig{
			APIKey:     cfg.APIKey,
			EmbedModel: cfg.EmbedModel,
			Dim:        cfg.Dim,
			ProjectID:  cfg.ProjectID,
			Location:   cfg.Location,
			Provider:   ai.ProviderVertexAI,
		}, nil
	case "stub":
		return &ai.ClientConfig{
			Dim:      cfg.Dim,
			Provider: ai.ProviderStub,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}
