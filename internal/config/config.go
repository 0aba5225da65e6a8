package config

import (
	_ "embed"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed assets.yaml
var assetsYAML []byte

type Config struct {
	Agent     AgentConfig
	OpenAI    OpenAIConfig
	Gemini    GeminiConfig
	Embedding EmbeddingConfig
	Database  DatabaseConfig
	Walrus    WalrusConfig
	Gallery   GalleryConfig
	Humanity  HumanityConfig
	Web       WebConfig
	Log       LogConfig
	Assets    AssetsConfig
}

type AgentConfig struct {
	URL      string // defaults to the hosted agent endpoint
	Provider string // http, openai or gemini
	Timeout  time.Duration
}

type OpenAIConfig struct {
	Token string
}

type GeminiConfig struct {
	APIKey string
}

type EmbeddingConfig struct {
	URL string // defaults to http://localhost:8000
}

type DatabaseConfig struct {
	URL          string // postgres:// or mysql:// DSN, empty for an in-memory gallery
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type WalrusConfig struct {
	Enabled       bool
	PublisherURL  string
	AggregatorURL string
	Epochs        int
}

type GalleryConfig struct {
	BlobID           string        // snapshot loaded at startup
	SnapshotInterval time.Duration // 0 disables scheduled snapshots
	MatchThreshold   float64
}

type HumanityConfig struct {
	APIKey    string
	IssuerURL string
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or console
}

type AssetsConfig struct {
	Assets map[string]Asset `yaml:"assets"`
}

// Asset describes a token payments can settle in.
type Asset struct {
	Decimals   int    `yaml:"decimals"`
	FiatPegged bool   `yaml:"fiat_pegged"`
	ChainID    int64  `yaml:"chain_id"`
	Contract   string `yaml:"contract"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a positive float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	if n, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil && n > 0 && !math.IsInf(n, 0) {
		return n
	}
	return defaultVal
}

// envDuration accepts Go duration syntax ("15m"). An explicit "0" disables.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if s == "0" {
		return 0
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func Load() *Config {
	var assets AssetsConfig
	if err := yaml.Unmarshal(assetsYAML, &assets); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded assets.yaml: " + err.Error())
	}

	return &Config{
		Agent: AgentConfig{
			URL:      os.Getenv("FACEBUDDY_AGENT_URL"),
			Provider: strings.ToLower(envString("FACEBUDDY_AGENT_PROVIDER", "http")),
			Timeout:  envDuration("FACEBUDDY_AGENT_TIMEOUT", 60*time.Second),
		},
		OpenAI: OpenAIConfig{
			Token: os.Getenv("OPENAI_TOKEN"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
		},
		Embedding: EmbeddingConfig{
			URL: os.Getenv("EMBEDDING_URL"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Walrus: WalrusConfig{
			Enabled:       envBool("WALRUS_ENABLED", true),
			PublisherURL:  envString("WALRUS_PUBLISHER_URL", "https://publisher.walrus-testnet.walrus.space"),
			AggregatorURL: envString("WALRUS_AGGREGATOR_URL", "https://aggregator.walrus-testnet.walrus.space"),
			Epochs:        envInt("WALRUS_EPOCHS", 5),
		},
		Gallery: GalleryConfig{
			BlobID:           os.Getenv("FACEBUDDY_GALLERY_BLOB"),
			SnapshotInterval: envDuration("FACEBUDDY_SNAPSHOT_INTERVAL", 0),
			MatchThreshold:   envFloat("FACEBUDDY_MATCH_THRESHOLD", 0.6),
		},
		Humanity: HumanityConfig{
			APIKey:    os.Getenv("HUMANITY_API_KEY"),
			IssuerURL: envString("HUMANITY_ISSUER_URL", "https://issuer.humanity.org"),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
		},
		Assets: assets,
	}
}

// Asset looks up a settlement asset by symbol, case-insensitively.
func (c *Config) Asset(symbol string) (Asset, bool) {
	a, ok := c.Assets.Assets[strings.ToUpper(symbol)]
	return a, ok
}
