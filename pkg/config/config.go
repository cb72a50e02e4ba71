package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the salesagent service.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, API keys, OAuth tokens) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// MigrationsPath is the directory holding golang-migrate SQL files.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`

	// VocabularyPath optionally replaces the embedded header/unit/category vocabulary.
	VocabularyPath string `yaml:"vocabulary_path" env:"VOCABULARY_PATH" env-default:""`

	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Gmail      GmailConfig      `yaml:"gmail"`
	LLM        LLMConfig        `yaml:"llm"`
	Ingestion  IngestionConfig  `yaml:"ingestion"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"salesagent"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"salesagent"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	MaxIdleConns   int32  `yaml:"max_idle_conns" env:"PGMAX_IDLE_CONNS" env-default:"2"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig configures the optional cross-process run lock.
// Redis is disabled when Host is empty.
type RedisConfig struct {
	Host     string        `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int           `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string        `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	LockKey  string        `yaml:"lock_key" env:"REDIS_LOCK_KEY" env-default:"salesagent:ingestion:run"`
	LockTTL  time.Duration `yaml:"lock_ttl" env:"REDIS_LOCK_TTL" env-default:"30m"`
}

// Enabled reports whether a Redis host is configured.
func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

// GmailConfig holds OAuth client settings for the mailbox being ingested.
type GmailConfig struct {
	ClientID          string  `yaml:"client_id" env:"GMAIL_CLIENT_ID" env-default:""`
	ClientSecret      string  `yaml:"-" env:"GMAIL_CLIENT_SECRET"` // Secret - not in YAML
	RefreshToken      string  `yaml:"-" env:"GMAIL_REFRESH_TOKEN"` // Secret - not in YAML
	User              string  `yaml:"user" env:"GMAIL_USER" env-default:"me"`
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"GMAIL_REQUESTS_PER_SECOND" env-default:"5"`
	Burst             int     `yaml:"burst" env:"GMAIL_BURST" env-default:"5"`
}

// IsConfigured returns true when all OAuth material is present.
func (c *GmailConfig) IsConfigured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
}

// LLMConfig configures the fallback extractor's language model.
type LLMConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or "anthropic".
	Provider string `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	Endpoint string `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:""`
	Model    string `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o-mini"`
	APIKey   string `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML

	// Pricing in USD per million tokens, used for cost estimates only.
	InputCostPerMillion  float64 `yaml:"input_cost_per_million" env:"LLM_INPUT_COST_PER_MILLION" env-default:"0.15"`
	OutputCostPerMillion float64 `yaml:"output_cost_per_million" env:"LLM_OUTPUT_COST_PER_MILLION" env-default:"0.60"`

	MaxTokens         int           `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"4096"`
	CatalogSampleSize int           `yaml:"catalog_sample_size" env:"LLM_CATALOG_SAMPLE_SIZE" env-default:"50"`
	MaxInputChars     int           `yaml:"max_input_chars" env:"LLM_MAX_INPUT_CHARS" env-default:"12000"`
	Timeout           time.Duration `yaml:"timeout" env:"LLM_TIMEOUT" env-default:"60s"`

	CircuitThreshold int           `yaml:"circuit_threshold" env:"LLM_CIRCUIT_THRESHOLD" env-default:"5"`
	CircuitReset     time.Duration `yaml:"circuit_reset" env:"LLM_CIRCUIT_RESET" env-default:"30s"`
}

// IsEnabled returns true when enough is configured to call a model.
// A bare endpoint without a key is allowed for local OpenAI-compatible servers.
func (c *LLMConfig) IsEnabled() bool {
	return c.APIKey != "" || c.Endpoint != ""
}

// IngestionConfig controls which messages a run considers and how backfill paces itself.
type IngestionConfig struct {
	Keywords         []string      `yaml:"keywords" env:"INGEST_KEYWORDS" env-separator:"," env-default:"quotation,quote,offer,price"`
	LookbackDays     int           `yaml:"lookback_days" env:"INGEST_LOOKBACK_DAYS" env-default:"7"`
	MaxMessages      int           `yaml:"max_messages" env:"INGEST_MAX_MESSAGES" env-default:"100"`
	ScheduleInterval time.Duration `yaml:"schedule_interval" env:"INGEST_SCHEDULE_INTERVAL" env-default:"0s"`

	// OwnDomains are the organisation's mail domains. When a message comes from one of
	// these, the client is taken from the recipients instead of the sender.
	OwnDomains []string `yaml:"own_domains" env:"INGEST_OWN_DOMAINS" env-separator:"," env-default:""`

	BackfillBatchDays int           `yaml:"backfill_batch_days" env:"BACKFILL_BATCH_DAYS" env-default:"7"`
	BackfillPause     time.Duration `yaml:"backfill_pause" env:"BACKFILL_PAUSE" env-default:"5s"`
}

// ThresholdsConfig holds the three confidence gates plus the tuning knobs around them.
// Each gate is tuned independently.
type ThresholdsConfig struct {
	// ResolutionCommit is the minimum fuzzy score that commits a resolver match.
	ResolutionCommit float64 `yaml:"resolution_commit" env:"THRESHOLD_RESOLUTION_COMMIT" env-default:"0.85"`
	// ReviewCommit is the minimum extraction confidence persisted without human review.
	ReviewCommit float64 `yaml:"review_commit" env:"THRESHOLD_REVIEW_COMMIT" env-default:"0.90"`
	// FallbackSkip is the structured confidence at or above which the LLM is not called.
	FallbackSkip float64 `yaml:"fallback_skip" env:"THRESHOLD_FALLBACK_SKIP" env-default:"0.95"`
	// FuzzyFloor is the raw similarity below which fuzzy candidates are ignored.
	FuzzyFloor float64 `yaml:"fuzzy_floor" env:"THRESHOLD_FUZZY_FLOOR" env-default:"0.55"`
	// AgreementBonus is added when both extractors agree on the item count.
	AgreementBonus float64 `yaml:"agreement_bonus" env:"THRESHOLD_AGREEMENT_BONUS" env-default:"0.05"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// When config.yaml does not exist, configuration comes from the environment only.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile is Load with an explicit path.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// normalize trims list entries that came from comma-separated env values and
// adjusts loopback hosts when running in a container.
func (c *Config) normalize() {
	c.Ingestion.Keywords = cleanList(c.Ingestion.Keywords)
	own := cleanList(c.Ingestion.OwnDomains)
	for i := range own {
		own[i] = strings.ToLower(own[i])
	}
	c.Ingestion.OwnDomains = own
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))

	c.Database.Host = ResolveHostForDocker(c.Database.Host)
	c.Redis.Host = ResolveHostForDocker(c.Redis.Host)
	c.BindAddr = ResolveBindAddrForDocker(c.BindAddr)
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Validate checks value ranges that cleanenv cannot express.
func (c *Config) Validate() error {
	t := c.Thresholds
	for name, v := range map[string]float64{
		"resolution_commit": t.ResolutionCommit,
		"review_commit":     t.ReviewCommit,
		"fallback_skip":     t.FallbackSkip,
		"fuzzy_floor":       t.FuzzyFloor,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("thresholds.%s must be within [0, 1], got %v", name, v)
		}
	}
	if t.AgreementBonus < 0 || t.AgreementBonus > 0.5 {
		return fmt.Errorf("thresholds.agreement_bonus must be within [0, 0.5], got %v", t.AgreementBonus)
	}
	if c.LLM.Provider != "openai" && c.LLM.Provider != "anthropic" {
		return fmt.Errorf("llm.provider must be openai or anthropic, got %q", c.LLM.Provider)
	}
	if c.Ingestion.MaxMessages <= 0 {
		return fmt.Errorf("ingestion.max_messages must be positive")
	}
	if c.Ingestion.BackfillBatchDays <= 0 {
		return fmt.Errorf("ingestion.backfill_batch_days must be positive")
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Addr returns host:port for the Redis client.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
