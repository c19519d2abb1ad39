package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Session  SessionConfig  `mapstructure:"session"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Auth     AuthConfig     `mapstructure:"auth"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	PublicURL         string        `mapstructure:"public_url"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	MiddlewareTimeout time.Duration `mapstructure:"middleware_timeout"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
}

// SessionConfig selects the session backend and cookie behaviour
type SessionConfig struct {
	Backend       string        `mapstructure:"backend"`
	TTL           time.Duration `mapstructure:"ttl"`
	CookieName    string        `mapstructure:"cookie_name"`
	CookieSecure  bool          `mapstructure:"cookie_secure"`
	Secret        string        `mapstructure:"secret"`
	PurgeInterval time.Duration `mapstructure:"purge_interval"`
}

type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	SSLMode       string `mapstructure:"ssl_mode"`
	MaxConns      int32  `mapstructure:"max_conns"`
	MinConns      int32  `mapstructure:"min_conns"`
	MigrationsURL string `mapstructure:"migrations_url"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// AuthConfig describes the OIDC identity provider
type AuthConfig struct {
	Issuer            string        `mapstructure:"issuer"`
	JWKSURL           string        `mapstructure:"jwks_url"`
	Domain            string        `mapstructure:"domain"`
	ClientID          string        `mapstructure:"client_id"`
	ClientSecret      string        `mapstructure:"client_secret"`
	RedirectURL       string        `mapstructure:"redirect_url"`
	LogoutRedirectURL string        `mapstructure:"logout_redirect_url"`
	Scopes            []string      `mapstructure:"scopes"`
	KeySetCache       string        `mapstructure:"key_set_cache"`
	KeySetTTL         time.Duration `mapstructure:"key_set_ttl"`
	ClockSkew         time.Duration `mapstructure:"clock_skew"`
	StateTTL          time.Duration `mapstructure:"state_ttl"`
}

// JWKS returns the configured key set URL, falling back to the issuer's well-known path
func (c AuthConfig) JWKS() string {
	if c.JWKSURL != "" {
		return c.JWKSURL
	}
	return c.Issuer + "/.well-known/jwks.json"
}

type LLMConfig struct {
	DefaultProvider string          `mapstructure:"default_provider"`
	Timeout         time.Duration   `mapstructure:"timeout"`
	MaxHistoryTurns int             `mapstructure:"max_history_turns"`
	Bedrock         BedrockConfig   `mapstructure:"bedrock"`
	OpenAI          OpenAIConfig    `mapstructure:"openai"`
	Anthropic       AnthropicConfig `mapstructure:"anthropic"`
	DeepSeek        DeepSeekConfig  `mapstructure:"deepseek"`
	Ollama          OllamaConfig    `mapstructure:"ollama"`
	Gemini          GeminiConfig    `mapstructure:"gemini"`
}

// BedrockConfig binds the knowledge base used for retrieve-and-generate
type BedrockConfig struct {
	Region          string `mapstructure:"region"`
	KnowledgeBaseID string `mapstructure:"knowledge_base_id"`
	ModelARN        string `mapstructure:"model_arn"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type DeepSeekConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type OllamaConfig struct {
	Host         string `mapstructure:"host"`
	DefaultModel string `mapstructure:"default_model"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// StreamConfig controls answer pacing
type StreamConfig struct {
	ChunkSize int           `mapstructure:"chunk_size"`
	Delay     time.Duration `mapstructure:"delay"`
}

// StorageConfig selects the object store for uploads
type StorageConfig struct {
	Backend          string `mapstructure:"backend"`
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	Prefix           string `mapstructure:"prefix"`
	LocalDir         string `mapstructure:"local_dir"`
	CredentialsFile  string `mapstructure:"credentials_file"`
	AllowedExtension string `mapstructure:"allowed_extension"`
	MaxUploadBytes   int64  `mapstructure:"max_upload_bytes"`
}

type NotifyConfig struct {
	TelegramBotToken string        `mapstructure:"telegram_bot_token"`
	TelegramChatID   string        `mapstructure:"telegram_chat_id"`
	TelegramBaseURL  string        `mapstructure:"telegram_base_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

type LoggingConfig struct {
	Level        string        `mapstructure:"level"`
	Format       string        `mapstructure:"format"`
	File         string        `mapstructure:"file"`
	MaxAge       time.Duration `mapstructure:"max_age"`
	RotationTime time.Duration `mapstructure:"rotation_time"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	// Set config file path
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8501)
	v.SetDefault("server.public_url", "http://localhost:8501")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "5m")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.middleware_timeout", "3m")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:8501"})

	// Session
	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.ttl", "744h") // 31 days
	v.SetDefault("session.cookie_name", "kbchat_session")
	v.SetDefault("session.cookie_secure", false)
	v.SetDefault("session.purge_interval", "10m")

	// Database
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "kbchat")
	v.SetDefault("database.database", "kbchat")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.migrations_url", "file://migrations")

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// SQLite
	v.SetDefault("sqlite.path", "./.sessions/sessions.db")

	// Mongo
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "kbchat")
	v.SetDefault("mongo.collection", "sessions")

	// Auth
	v.SetDefault("auth.scopes", []string{"openid", "profile", "email"})
	v.SetDefault("auth.key_set_cache", "memory")
	v.SetDefault("auth.key_set_ttl", "1h")
	v.SetDefault("auth.clock_skew", "30s")
	v.SetDefault("auth.state_ttl", "10m")

	// LLM
	v.SetDefault("llm.default_provider", "bedrock")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_history_turns", 20)
	v.SetDefault("llm.bedrock.region", "us-east-1")
	v.SetDefault("llm.bedrock.model_arn", "arn:aws:bedrock:us-east-1::foundation-model/amazon.titan-text-premier-v1:0")
	v.SetDefault("llm.ollama.default_model", "llama3")

	// Stream
	v.SetDefault("stream.chunk_size", 1)
	v.SetDefault("stream.delay", "20ms")

	// Storage
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.local_dir", "./uploads")
	v.SetDefault("storage.allowed_extension", ".md")
	v.SetDefault("storage.max_upload_bytes", 10<<20)

	// Notify
	v.SetDefault("notify.telegram_base_url", "https://api.telegram.org")
	v.SetDefault("notify.timeout", "5s")

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.max_age", "168h")
	v.SetDefault("logging.rotation_time", "24h")

	// Metrics
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

func bindEnvVars(v *viper.Viper) {
	// Database
	v.BindEnv("database.password", "POSTGRES_PASSWORD")

	// Redis
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Mongo
	v.BindEnv("mongo.uri", "MONGO_URI")

	// Session
	v.BindEnv("session.secret", "SESSION_SECRET")
	v.BindEnv("session.backend", "SESSION_BACKEND")

	// Auth
	v.BindEnv("auth.issuer", "OIDC_ISSUER")
	v.BindEnv("auth.domain", "OIDC_DOMAIN")
	v.BindEnv("auth.client_id", "OIDC_CLIENT_ID")
	v.BindEnv("auth.client_secret", "OIDC_CLIENT_SECRET")

	// LLM
	v.BindEnv("llm.bedrock.knowledge_base_id", "KNOWLEDGE_BASE_ID")
	v.BindEnv("llm.openai.api_key", "OPENAI_API_KEY")
	v.BindEnv("llm.anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("llm.deepseek.api_key", "DEEPSEEK_API_KEY")
	v.BindEnv("llm.gemini.api_key", "GEMINI_API_KEY")
	v.BindEnv("llm.ollama.host", "OLLAMA_HOST")

	// Storage
	v.BindEnv("storage.bucket", "STORAGE_BUCKET")

	// Notify
	v.BindEnv("notify.telegram_bot_token", "TELEGRAM_BOT_TOKEN")
	v.BindEnv("notify.telegram_chat_id", "TELEGRAM_CHAT_ID")
}
