package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is built once at process start and passed to every component that needs it.
// Nothing mutates it afterwards.
type Config struct {
	HTTPPort          string `yaml:"http_port"`
	DatabaseURL       string `yaml:"database_url"`
	VectorDatabaseURL string `yaml:"vector_database_url"`
	LogMode           string `yaml:"log_mode"`
	FrontendURL       string `yaml:"frontend_url"`

	JWTSecret     string        `yaml:"jwt_secret"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
	AdminUsername string        `yaml:"admin_username"`
	AdminPassword string        `yaml:"admin_password"`

	GeminiAPIKey   string `yaml:"gemini_api_key"`
	ChatModel      string `yaml:"chat_model"`
	EmbeddingModel string `yaml:"embedding_model"`

	ChunkSize           int     `yaml:"chunk_size"`
	ChunkOverlap        int     `yaml:"chunk_overlap"`
	ContextChunks       int     `yaml:"context_chunks"`
	ContextChunkChars   int     `yaml:"context_chunk_chars"`
	RetrievalLimit      int     `yaml:"retrieval_limit"`
	RetrievalMode       string  `yaml:"retrieval_mode"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	EmbedRatePerSecond  float64 `yaml:"embed_rate_per_second"`
	EmbedMaxRetries     int     `yaml:"embed_max_retries"`
	MaxUploadBytes      int64   `yaml:"max_upload_bytes"`
	StreamBuffer        int     `yaml:"stream_buffer"`
}

const (
	RetrievalModeVector = "vector"
	RetrievalModeText   = "text"
)

// Default returns the configuration used when neither a config file nor the environment
// override a value.
func Default() Config {
	return Config{
		HTTPPort:            "8000",
		DatabaseURL:         "insurance_rag.db",
		LogMode:             "development",
		FrontendURL:         "http://localhost:3000",
		TokenTTL:            30 * time.Minute,
		AdminUsername:       "admin",
		AdminPassword:       "admin123",
		ChatModel:           "gemini-1.5-flash-latest",
		EmbeddingModel:      "text-embedding-004",
		ChunkSize:           1000,
		ChunkOverlap:        200,
		ContextChunks:       3,
		ContextChunkChars:   500,
		RetrievalLimit:      5,
		RetrievalMode:       RetrievalModeVector,
		SimilarityThreshold: 0.5,
		EmbedRatePerSecond:  25, // 1500/min free-tier quota
		EmbedMaxRetries:     2,
		MaxUploadBytes:      20 << 20,
		StreamBuffer:        16,
	}
}

// Load resolves the configuration: defaults, then the YAML file named by CONFIG_FILE
// (if any), then .env and the process environment.
func Load() (*Config, error) {
	// A missing .env is normal in containers.
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(&cfg)

	// The vector store shares the metadata database unless told otherwise.
	if cfg.VectorDatabaseURL == "" {
		cfg.VectorDatabaseURL = cfg.DatabaseURL
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.HTTPPort = getEnv("HTTP_PORT", cfg.HTTPPort)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.VectorDatabaseURL = getEnv("VECTOR_DATABASE_URL", cfg.VectorDatabaseURL)
	cfg.LogMode = getEnv("LOG_MODE", cfg.LogMode)
	cfg.FrontendURL = getEnv("FRONTEND_URL", cfg.FrontendURL)

	cfg.JWTSecret = getEnv("JWT_SECRET", getEnv("SECRET_KEY", cfg.JWTSecret))
	cfg.TokenTTL = getEnvAsDuration("TOKEN_TTL", cfg.TokenTTL)
	cfg.AdminUsername = getEnv("ADMIN_USERNAME", cfg.AdminUsername)
	cfg.AdminPassword = getEnv("ADMIN_PASSWORD", cfg.AdminPassword)

	cfg.GeminiAPIKey = getEnv("GEMINI_API_KEY", cfg.GeminiAPIKey)
	cfg.ChatModel = getEnv("CHAT_MODEL", cfg.ChatModel)
	cfg.EmbeddingModel = getEnv("EMBEDDING_MODEL", cfg.EmbeddingModel)

	cfg.ChunkSize = getEnvAsInt("CHUNK_SIZE", cfg.ChunkSize)
	cfg.ChunkOverlap = getEnvAsInt("CHUNK_OVERLAP", cfg.ChunkOverlap)
	cfg.ContextChunks = getEnvAsInt("CONTEXT_CHUNKS", cfg.ContextChunks)
	cfg.ContextChunkChars = getEnvAsInt("CONTEXT_CHUNK_CHARS", cfg.ContextChunkChars)
	cfg.RetrievalLimit = getEnvAsInt("RETRIEVAL_LIMIT", cfg.RetrievalLimit)
	cfg.RetrievalMode = strings.ToLower(getEnv("RETRIEVAL_MODE", cfg.RetrievalMode))
	cfg.SimilarityThreshold = getEnvAsFloat("SIMILARITY_THRESHOLD", cfg.SimilarityThreshold)
	cfg.EmbedRatePerSecond = getEnvAsFloat("EMBED_RATE_PER_SECOND", cfg.EmbedRatePerSecond)
	cfg.EmbedMaxRetries = getEnvAsInt("EMBED_MAX_RETRIES", cfg.EmbedMaxRetries)
	cfg.MaxUploadBytes = int64(getEnvAsInt("MAX_UPLOAD_BYTES", int(cfg.MaxUploadBytes)))
	cfg.StreamBuffer = getEnvAsInt("STREAM_BUFFER", cfg.StreamBuffer)
}

// Validate checks the settings every command needs. Provider credentials are checked
// separately by ValidateProvider since admin commands run without them.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET environment variable is required"))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL must not be empty"))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap))
	}
	if c.ContextChunks <= 0 || c.ContextChunkChars <= 0 {
		errs = append(errs, errors.New("CONTEXT_CHUNKS and CONTEXT_CHUNK_CHARS must be positive"))
	}
	if c.RetrievalMode != RetrievalModeVector && c.RetrievalMode != RetrievalModeText {
		errs = append(errs, fmt.Errorf("RETRIEVAL_MODE must be %q or %q, got %q", RetrievalModeVector, RetrievalModeText, c.RetrievalMode))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) ValidateProvider() error {
	if c.GeminiAPIKey == "" {
		return errors.New("GEMINI_API_KEY environment variable is required")
	}
	return nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	// Plain integers are minutes, matching ACCESS_TOKEN_EXPIRE_MINUTES style settings.
	if minutes, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(minutes) * time.Minute
	}
	return defaultValue
}
