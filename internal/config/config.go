package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	defaultPort        = 4000
	defaultEnv         = "development"
	defaultDBHost      = "127.0.0.1"
	defaultDBPort      = 3306
	defaultDBUser      = "root"
	defaultDBPassword  = "password"
	defaultDBName      = "ctc"
	defaultDBCharset   = "utf8mb4"
	defaultRedisURL    = "redis://localhost:6379/0"
	defaultPresenceTTL = 300 * time.Second
	defaultTypingTTL   = 10 * time.Second
	defaultHeartbeat   = 60 * time.Second
)

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int            `yaml:"port"`
	Env            string         `yaml:"env"` // "development" | "production"
	DSN            string         `yaml:"dsn"` // MySQL DSN; overrides Database
	Database       DatabaseConfig `yaml:"database"`
	RedisURL       string         `yaml:"redis_url"`
	JWTSecret      string         `yaml:"jwt_secret"`
	AllowedOrigins []string       `yaml:"allowed_origins"`
	Media          MediaConfig    `yaml:"media"`
	Realtime       RealtimeConfig `yaml:"realtime"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Charset  string `yaml:"charset"`
}

// MediaConfig configures the external media-routing service (SFU) this
// core issues join credentials for.
type MediaConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	URL       string `yaml:"url"`
}

// RealtimeConfig tunes the ephemeral-state TTLs and the presence
// heartbeat. Zero values fall back to defaults during normalization.
type RealtimeConfig struct {
	PresenceTTL       time.Duration `yaml:"presence_ttl"`
	TypingTTL         time.Duration `yaml:"typing_ttl"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// Load reads and normalizes the YAML config file. A missing file yields
// defaults so a dev instance can boot with zero configuration.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// fall through to defaults
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) normalize() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.Env == "" {
		c.Env = defaultEnv
	}
	if c.Database.Host == "" {
		c.Database.Host = defaultDBHost
	}
	if c.Database.Port == 0 {
		c.Database.Port = defaultDBPort
	}
	if c.Database.User == "" {
		c.Database.User = defaultDBUser
	}
	if c.Database.Password == "" {
		c.Database.Password = defaultDBPassword
	}
	if c.Database.Name == "" {
		c.Database.Name = defaultDBName
	}
	if c.Database.Charset == "" {
		c.Database.Charset = defaultDBCharset
	}
	if c.RedisURL == "" {
		c.RedisURL = defaultRedisURL
	}
	if c.Realtime.PresenceTTL <= 0 {
		c.Realtime.PresenceTTL = defaultPresenceTTL
	}
	if c.Realtime.TypingTTL <= 0 {
		c.Realtime.TypingTTL = defaultTypingTTL
	}
	if c.Realtime.HeartbeatInterval <= 0 {
		c.Realtime.HeartbeatInterval = defaultHeartbeat
	}
}

func (c *AppConfig) validate() error {
	if _, err := url.Parse(c.RedisURL); err != nil {
		return fmt.Errorf("invalid redis_url: %w", err)
	}
	if c.Realtime.HeartbeatInterval >= c.Realtime.PresenceTTL {
		return fmt.Errorf("heartbeat_interval (%s) must be shorter than presence_ttl (%s)",
			c.Realtime.HeartbeatInterval, c.Realtime.PresenceTTL)
	}
	return nil
}

// ResolvedDSN returns the MySQL DSN, built from parts when not given verbatim.
func (c *AppConfig) ResolvedDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port,
		c.Database.Name, c.Database.Charset)
}

// IsDev reports whether the app runs in development mode.
func (c *AppConfig) IsDev() bool {
	return strings.EqualFold(c.Env, "development")
}
