package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Specification struct {
	Host     string `yaml:"host" split_words:"true"`
	Port     int    `yaml:"port" split_words:"true"`
	LogLevel string `yaml:"logLevel" split_words:"true"`

	LLM LLMSpecification `yaml:"llm"`

	// Embedding provider settings.
	Provider   string `yaml:"provider"`
	APIKey     string `yaml:"providerApiKey" envconfig:"PROVIDER_API_KEY"`
	EmbedModel string `yaml:"providerEmbedModel" envconfig:"PROVIDER_EMBEDDING_MODEL"`
	ProjectID  string `yaml:"providerProjectID" envconfig:"PROVIDER_PROJECT_ID"`
	Location   string `yaml:"providerLocation" envconfig:"PROVIDER_LOCATION"`
	Dim        int    `yaml:"providerDim" envconfig:"EMBED_DIM"`

	// Chunking and ranking tunables.
	MaxChunkSize        int     `yaml:"maxChunkSize" split_words:"true"`
	ChunkOverlapRatio   float64 `yaml:"chunkOverlapRatio" split_words:"true"`
	SimilarityThreshold float64 `yaml:"similarityThreshold" split_words:"true"`
	MaxChunksPerRequest int     `yaml:"maxChunksPerRequest" split_words:"true"`
	MaxContextLength    int     `yaml:"maxContextLength" split_words:"true"`
	EmbedCacheSize      int     `yaml:"embedCacheSize" split_words:"true"`

	// Dialog memory tunables. MemoryTTL is in seconds.
	MaxDialogHistory int `yaml:"maxDialogHistory" split_words:"true"`
	MemoryTTL        int `yaml:"memoryTTL" envconfig:"MEMORY_TTL"`
	MaxSessions      int `yaml:"maxSessions" split_words:"true"`

	Auth AuthSpecification `yaml:"auth"`

	flags *pflag.FlagSet `ignored:"true"`
}

type LLMSpecification struct {
	Provider     string `yaml:"provider"`
	OllamaURL    string `yaml:"ollamaURL" envconfig:"OLLAMA_URL"`
	OpenAIURL    string `yaml:"openaiURL" envconfig:"OPENAI_URL"`
	OpenAIAPIKey string `yaml:"openaiApiKey" envconfig:"OPENAI_API_KEY"`
	DefaultModel string `yaml:"defaultModel" split_words:"true"`
}

type AuthSpecification struct {
	Enabled   bool   `yaml:"enabled"`
	JwtSecret string `yaml:"jwtSecret" split_words:"true"`
}

const envPrefix = "CONTEXTD"

func (s *Specification) Usage() {
	fmt.Fprint(os.Stderr, s.flags.FlagUsages())
}

// Load => defaults < YAML < env < flags.
// configPath may be ""; if so we auto-discover.
func Load(configPath string, fs *pflag.FlagSet) (Specification, error) {
	var cfg Specification

	// A .env file in the working directory seeds the environment; variables
	// already set in the environment win.
	_ = godotenv.Load()

	// set defaults (lowest precedence)
	setDefaults(&cfg)
	bindFlags(fs, &cfg)

	// config file
	path := configPath
	if path == "" {
		if v := os.Getenv(envPrefix + "_CONFIG"); v != "" {
			path = v
		} else {
			for _, cand := range []string{
				"config/contextd.yaml",
				"config/config.yaml",
				"./contextd.yaml",
				"./config.yaml",
			} {
				if fileExists(cand) {
					path = cand
					break
				}
			}
		}
	}

	if path != "" {
		if !fileExists(path) {
			return Specification{}, fmt.Errorf("config file not found: %s", path)
		}
		if err := loadYAML(path, &cfg); err != nil {
			return Specification{}, fmt.Errorf("load yaml %s: %w", path, err)
		}
	}

	// env overrides config file
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Specification{}, fmt.Errorf("env override: %w", err)
	}

	// flags override everything
	if err := fs.Parse(os.Args[1:]); err != nil {
		return Specification{}, err
	}
	applyChangedFlags(fs, &cfg)

	// Minimal sanity
	if cfg.MaxChunkSize <= 0 {
		return Specification{}, fmt.Errorf("max-chunk-size must be positive, got %d", cfg.MaxChunkSize)
	}
	if cfg.ChunkOverlapRatio < 0 || cfg.ChunkOverlapRatio >= 1 {
		return Specification{}, fmt.Errorf("chunk-overlap-ratio must be in [0, 1), got %g", cfg.ChunkOverlapRatio)
	}
	if cfg.SimilarityThreshold < -1 || cfg.SimilarityThreshold > 1 {
		return Specification{}, fmt.Errorf("similarity-threshold must be in [-1, 1], got %g", cfg.SimilarityThreshold)
	}
	if cfg.Auth.Enabled && strings.TrimSpace(cfg.Auth.JwtSecret) == "" {
		return Specification{}, fmt.Errorf("CONTEXTD_AUTH_JWT_SECRET is required when auth is enabled")
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

// ---------- helpers ----------

func loadYAML(path string, into any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, into)
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

func bindFlags(fs *pflag.FlagSet, c *Specification) {
	fs.String("config", "", "Path to config file")

	// If --config is provided on the command line, capture it now so
	// config discovery (which runs before flags.Parse) can use it.
	for i, a := range os.Args {
		if a == "--config" {
			if i+1 < len(os.Args) && !strings.HasPrefix(os.Args[i+1], "-") {
				_ = os.Setenv(envPrefix+"_CONFIG", os.Args[i+1])
			}
		} else if strings.HasPrefix(a, "--config=") {
			parts := strings.SplitN(a, "=", 2)
			if len(parts) == 2 {
				_ = os.Setenv(envPrefix+"_CONFIG", parts[1])
			}
		}
	}

	fs.String("host", c.Host, "API server bind address")
	fs.Int("port", c.Port, "API server port")
	fs.String("log-level", c.LogLevel, "Log level (debug|info|warn|error)")

	fs.String("llm-provider", c.LLM.Provider, "LLM backend (ollama|openai|lm_studio)")
	fs.String("ollama-url", c.LLM.OllamaURL, "Ollama base URL")
	fs.String("openai-url", c.LLM.OpenAIURL, "OpenAI-compatible base URL")
	fs.String("openai-api-key", c.LLM.OpenAIAPIKey, "OpenAI-compatible API key")
	fs.String("default-model", c.LLM.DefaultModel, "Default generation model")

	fs.String("provider", c.Provider, "Embedding provider (stub, openai, ollama, google)")
	fs.String("provider-api-key", c.APIKey, "Embedding provider API key")
	fs.String("provider-embedding-model", c.EmbedModel, "Embedding model")
	fs.String("provider-project-id", c.ProjectID, "Embedding provider project ID")
	fs.String("provider-location", c.Location, "Embedding provider location/region")
	fs.Int("embed-dim", c.Dim, "Embedding dimensionality")

	fs.Int("max-chunk-size", c.MaxChunkSize, "Max chunk size in tokens")
	fs.Float64("chunk-overlap-ratio", c.ChunkOverlapRatio, "Fraction of previous chunk lines to carry over")
	fs.Float64("similarity-threshold", c.SimilarityThreshold, "Minimum cosine similarity for a relevant chunk")
	fs.Int("max-chunks-per-request", c.MaxChunksPerRequest, "Max context chunks returned per request")
	fs.Int("max-context-length", c.MaxContextLength, "Max assembled context length in tokens")
	fs.Int("embed-cache-size", c.EmbedCacheSize, "Embedding cache capacity (entries)")

	fs.Int("max-dialog-history", c.MaxDialogHistory, "Max dialog messages considered per request")
	fs.Int("memory-ttl", c.MemoryTTL, "Dialog message TTL in seconds")
	fs.Int("max-sessions", c.MaxSessions, "Max live sessions before oldest are evicted")

	fs.Bool("auth-enabled", c.Auth.Enabled, "Enable bearer-token authentication")
	fs.String("auth-jwt-secret", c.Auth.JwtSecret, "JWT secret for signing tokens")

	// Used later for usage/help
	// create a shallow copy of fs (so Usage can be called safely without mutating caller)
	copied := pflag.NewFlagSet("temp", pflag.ContinueOnError)
	*copied = *fs
	c.flags = copied
}

func applyChangedFlags(fs *pflag.FlagSet, c *Specification) {
	setStr := func(name string, dst *string) {
		if fs.Changed(name) {
			v, _ := fs.GetString(name)
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if fs.Changed(name) {
			v, _ := fs.GetInt(name)
			*dst = v
		}
	}
	setFloat := func(name string, dst *float64) {
		if fs.Changed(name) {
			v, _ := fs.GetFloat64(name)
			*dst = v
		}
	}
	setBool := func(name string, dst *bool) {
		if fs.Changed(name) {
			v, _ := fs.GetBool(name)
			*dst = v
		}
	}

	// (We ignore --config here; it's for discovery.)
	setStr("host", &c.Host)
	setInt("port", &c.Port)
	setStr("log-level", &c.LogLevel)

	setStr("llm-provider", &c.LLM.Provider)
	setStr("ollama-url", &c.LLM.OllamaURL)
	setStr("openai-url", &c.LLM.OpenAIURL)
	setStr("openai-api-key", &c.LLM.OpenAIAPIKey)
	setStr("default-model", &c.LLM.DefaultModel)

	setStr("provider", &c.Provider)
	setStr("provider-api-key", &c.APIKey)
	setStr("provider-embedding-model", &c.EmbedModel)
	setStr("provider-project-id", &c.ProjectID)
	setStr("provider-location", &c.Location)
	setInt("embed-dim", &c.Dim)

	setInt("max-chunk-size", &c.MaxChunkSize)
	setFloat("chunk-overlap-ratio", &c.ChunkOverlapRatio)
	setFloat("similarity-threshold", &c.SimilarityThreshold)
	setInt("max-chunks-per-request", &c.MaxChunksPerRequest)
	setInt("max-context-length", &c.MaxContextLength)
	setInt("embed-cache-size", &c.EmbedCacheSize)

	setInt("max-dialog-history", &c.MaxDialogHistory)
	setInt("memory-ttl", &c.MemoryTTL)
	setInt("max-sessions", &c.MaxSessions)

	setBool("auth-enabled", &c.Auth.Enabled)
	setStr("auth-jwt-secret", &c.Auth.JwtSecret)
}

func setDefaults(c *Specification) {
	c.Host = "0.0.0.0"
	c.Port = 8000
	c.LogLevel = "info"

	c.LLM.Provider = "ollama"
	c.LLM.OllamaURL = "http://localhost:11434"
	c.LLM.DefaultModel = "codellama"

	c.Provider = "stub"
	c.Location = "us-central1"
	c.Dim = 0

	c.MaxChunkSize = 2000
	c.ChunkOverlapRatio = 0.25
	c.SimilarityThreshold = 0.7
	c.MaxChunksPerRequest = 10
	c.MaxContextLength = 8000
	c.EmbedCacheSize = 4096

	c.MaxDialogHistory = 20
	c.MemoryTTL = 3600
	c.MaxSessions = 1024

	c.Auth.Enabled = false
}
