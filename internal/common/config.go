package common

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig
	LLM        LLMConfig
	Render     RenderConfig
	Pipeline   PipelineConfig
	Checkpoint CheckpointConfig
	Output     OutputConfig
	Log        LogConfig
}

// DatabaseConfig holds run-history database configuration. An empty DSN
// selects the embedded SQLite file at SQLitePath.
type DatabaseConfig struct {
	DSN              string
	SQLitePath       string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr       string
	GRPCAddr       string // empty disables the gRPC health server
	UploadDir      string
	AllowedOrigins []string
	Workers        int
	QueueSize      int
	JobTimeout     time.Duration
	MaxUploadBytes int64
}

// LLMConfig holds vision model configuration
type LLMConfig struct {
	Provider    string // "openai" or "vertex"
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	PageTimeout time.Duration
	MaxAttempts int

	VertexProject string
	VertexRegion  string
	VertexModel   string
}

// RenderConfig holds page rasterization configuration
type RenderConfig struct {
	Rasterizer string // "fitz" or "pdftoppm"
	DPI        int
	MaxEdge    int // 0 keeps the rendered size
	Pdftoppm   string
}

// PipelineConfig holds extraction run configuration
type PipelineConfig struct {
	InputDir        string
	OutputDir       string
	CheckpointEvery int
	PaceUnit        time.Duration
}

// CheckpointConfig selects and configures the checkpoint backend
type CheckpointConfig struct {
	Backend       string // "file" or "redis"
	Dir           string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

// OutputConfig holds optional publishing of finished workbooks
type OutputConfig struct {
	Bucket string
	Prefix string
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string
}

// LoadDotEnv loads variables from .env files without overriding the environment.
// Missing files are ignored.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		_ = godotenv.Load(p)
	}
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	outputDir := getEnv("OUTPUT_DIR", "extracted_tables")
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			SQLitePath:       getEnv("RUNS_DB_PATH", "pdftables.db"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 1),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			HTTPAddr:       getEnv("HTTP_ADDR", ":8000"),
			GRPCAddr:       getEnv("GRPC_ADDR", ""),
			UploadDir:      getEnv("UPLOAD_DIR", "uploaded"),
			AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", []string{"*"}),
			Workers:        getEnvAsInt("WORKERS", 2),
			QueueSize:      getEnvAsInt("QUEUE_SIZE", 16),
			JobTimeout:     getEnvAsDuration("JOB_TIMEOUT", 30*time.Minute),
			MaxUploadBytes: int64(getEnvAsInt("MAX_UPLOAD_MB", 100)) << 20,
		},
		LLM: LLMConfig{
			Provider:      strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
			APIKey:        getEnv("OPENAI_API_KEY", ""),
			BaseURL:       getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:         getEnv("OPENAI_MODEL", "gpt-4o"),
			Temperature:   getEnvAsFloat32("OPENAI_TEMPERATURE", 0.05),
			MaxTokens:     getEnvAsInt("OPENAI_MAX_TOKENS", 4000),
			Timeout:       getEnvAsDuration("OPENAI_TIMEOUT", 90*time.Second),
			PageTimeout:   getEnvAsDuration("PAGE_TIMEOUT", 2*time.Minute),
			MaxAttempts:   getEnvAsInt("PAGE_MAX_ATTEMPTS", 3),
			VertexProject: getEnv("VERTEX_PROJECT_ID", ""),
			VertexRegion:  getEnv("VERTEX_REGION", "us-central1"),
			VertexModel:   getEnv("VERTEX_MODEL", "gemini-1.5-pro"),
		},
		Render: RenderConfig{
			Rasterizer: strings.ToLower(getEnv("RASTERIZER", "fitz")),
			DPI:        getEnvAsInt("RENDER_DPI", 200),
			MaxEdge:    getEnvAsInt("RENDER_MAX_EDGE", 0),
			Pdftoppm:   getEnv("PDFTOPPM_PATH", "pdftoppm"),
		},
		Pipeline: PipelineConfig{
			InputDir:        getEnv("INPUT_DIR", "input_pdfs"),
			OutputDir:       outputDir,
			CheckpointEvery: getEnvAsInt("CHECKPOINT_EVERY", 5),
			PaceUnit:        getEnvAsDuration("PACE_UNIT", time.Second),
		},
		Checkpoint: CheckpointConfig{
			Backend:       strings.ToLower(getEnv("CHECKPOINT_BACKEND", "file")),
			Dir:           getEnv("CHECKPOINT_DIR", outputDir),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
			TTL:           getEnvAsDuration("CHECKPOINT_TTL", 0),
		},
		Output: OutputConfig{
			Bucket: getEnv("OUTPUT_BUCKET", ""),
			Prefix: getEnv("OUTPUT_PREFIX", "pdftables"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// HasModelCredentials reports whether the configured provider can be called.
func (c *Config) HasModelCredentials() bool {
	switch c.LLM.Provider {
	case "vertex":
		return c.LLM.VertexProject != ""
	default:
		return c.LLM.APIKey != ""
	}
}

// Validate validates settings shared by every entry point
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai", "vertex":
	default:
		return NewAppError(CodeConfig, "LLM_PROVIDER must be openai or vertex", ErrConfig)
	}
	switch c.Render.Rasterizer {
	case "fitz", "pdftoppm":
	default:
		return NewAppError(CodeConfig, "RASTERIZER must be fitz or pdftoppm", ErrConfig)
	}
	switch c.Checkpoint.Backend {
	case "file", "redis":
	default:
		return NewAppError(CodeConfig, "CHECKPOINT_BACKEND must be file or redis", ErrConfig)
	}
	if c.Render.DPI <= 0 {
		return NewAppError(CodeConfig, "RENDER_DPI must be positive", ErrConfig)
	}
	if c.Pipeline.OutputDir == "" {
		return NewAppError(CodeConfig, "OUTPUT_DIR is required", ErrConfig)
	}
	if c.Checkpoint.Backend == "redis" && c.Checkpoint.RedisAddr == "" {
		return NewAppError(CodeConfig, "REDIS_ADDR is required for the redis checkpoint backend", ErrConfig)
	}
	return nil
}

// ValidateForExtraction also requires model credentials.
func (c *Config) ValidateForExtraction() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if !c.HasModelCredentials() {
		if c.LLM.Provider == "vertex" {
			return NewAppError(CodeConfig, "VERTEX_PROJECT_ID is required", ErrConfig)
		}
		return NewAppError(CodeConfig, "OPENAI_API_KEY is required", ErrConfig)
	}
	return nil
}

// ValidateForServer checks the HTTP edge settings. Model credentials are
// optional here; requests fail individually when they are missing.
func (c *Config) ValidateForServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError(CodeConfig, "HTTP_ADDR is required", ErrConfig)
	}
	if c.Server.Workers <= 0 {
		return NewAppError(CodeConfig, "WORKERS must be positive", ErrConfig)
	}
	if c.Server.UploadDir == "" {
		return NewAppError(CodeConfig, "UPLOAD_DIR is required", ErrConfig)
	}
	return nil
}
