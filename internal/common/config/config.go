// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	APIs     APIsConfig     `mapstructure:"apis"`
	Zeus     ZeusConfig     `mapstructure:"zeus"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // seconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	URL        string   `mapstructure:"url"`
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// APIsConfig holds settings for external API integrations.
type APIsConfig struct {
	GenAI struct {
		BaseURL string `mapstructure:"base_url"`
		APIKey  string `mapstructure:"api_key"`
		Timeout int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"genai"`

	Gemini struct {
		APIKey string `mapstructure:"api_key"`
		Model  string `mapstructure:"model"`
	} `mapstructure:"gemini"`
}

// ZeusConfig holds the pipeline stage timeouts and retry budgets.
// Each stage's timeout belongs to one of three classes: classification and
// snapshot fetch (~5s), generation (~10s), cache/memory operations (~2s).
type ZeusConfig struct {
	ClassifyTimeout int `mapstructure:"classify_timeout"` // milliseconds
	SnapshotTimeout int `mapstructure:"snapshot_timeout"` // milliseconds
	GenerateTimeout int `mapstructure:"generate_timeout"` // milliseconds
	CacheTimeout    int `mapstructure:"cache_timeout"`    // milliseconds
	MaxRetries      int `mapstructure:"max_retries"`
	MaxTokens       int `mapstructure:"max_tokens"`

	Temperature float64 `mapstructure:"temperature"`
}

func (z ZeusConfig) ClassifyTimeoutDuration() time.Duration {
	return time.Duration(z.ClassifyTimeout) * time.Millisecond
}

func (z ZeusConfig) SnapshotTimeoutDuration() time.Duration {
	return time.Duration(z.SnapshotTimeout) * time.Millisecond
}

func (z ZeusConfig) GenerateTimeoutDuration() time.Duration {
	return time.Duration(z.GenerateTimeout) * time.Millisecond
}

func (z ZeusConfig) CacheTimeoutDuration() time.Duration {
	return time.Duration(z.CacheTimeout) * time.Millisecond
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
