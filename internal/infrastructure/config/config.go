package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Mirror policies
const (
	PolicyRecursive = "recursive"
	PolicySelectors = "selectors"
)

// Cloak modes
const (
	CloakServer = "server"
	CloakClient = "client"
	CloakOff    = "off"
)

// Archive delivery modes
const (
	DeliveryBuffered  = "buffered"
	DeliveryStreaming = "streaming"
)

// Cleanup policies
const (
	CleanupRemove = "remove"
	CleanupRetain = "retain"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Mirror    MirrorConfig
	Cloak     CloakConfig
	Archive   ArchiveConfig
	Fetch     FetchConfig
	Auth      AuthConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"3001"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"10"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"20"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// MirrorConfig controls crawling and the working directory.
type MirrorConfig struct {
	WorkDir           string        `envconfig:"WORK_DIR" default:"./downloads"`
	Policy            string        `envconfig:"MIRROR_POLICY" default:"recursive"`
	MaxDepth          int           `envconfig:"MIRROR_MAX_DEPTH" default:"2"`
	Selectors         []string      `envconfig:"MIRROR_SELECTORS" default:"img:src,link:href,script:src"`
	Exclude           []string      `envconfig:"MIRROR_EXCLUDE"`
	Parallelism       int           `envconfig:"MIRROR_PARALLELISM" default:"4"`
	UserAgent         string        `envconfig:"MIRROR_USER_AGENT"`
	Timeout           time.Duration `envconfig:"MIRROR_TIMEOUT" default:"5m"`
	IgnoreAssetErrors bool          `envconfig:"MIRROR_IGNORE_ASSET_ERRORS" default:"false"`
	CompanionFile     string        `envconfig:"MIRROR_COMPANION_FILE"`
	Cleanup           string        `envconfig:"CLEANUP_POLICY" default:"remove"`
}

// CloakConfig controls the script injected into mirrored HTML.
type CloakConfig struct {
	Mode   string   `envconfig:"CLOAK_MODE" default:"server"`
	Agents []string `envconfig:"CLOAK_AGENTS" default:"Mozilla,Chrome,Safari,Firefox,Edge, YaBrowser"`
}

// ArchiveConfig controls ZIP construction and delivery.
type ArchiveConfig struct {
	Delivery string `envconfig:"ARCHIVE_DELIVERY" default:"buffered"`
	Level    int    `envconfig:"ARCHIVE_LEVEL" default:"9"`
}

// FetchConfig controls the outbound HTTP client.
type FetchConfig struct {
	Timeout           time.Duration `envconfig:"FETCH_TIMEOUT" default:"30s"`
	Retries           int           `envconfig:"FETCH_RETRIES" default:"2"`
	RequestsPerSecond float64       `envconfig:"FETCH_RPS" default:"0"`
}

// AuthConfig controls the optional session gate on /download.
type AuthConfig struct {
	Enabled    bool          `envconfig:"AUTH_ENABLED" default:"false"`
	UsersFile  string        `envconfig:"AUTH_USERS_FILE" default:"users.yaml"`
	SessionTTL time.Duration `envconfig:"AUTH_SESSION_TTL" default:"24h"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "3001",
			Host: "0.0.0.0",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
			Enabled:           true,
		},
		Mirror: MirrorConfig{
			WorkDir:     "./downloads",
			Policy:      PolicyRecursive,
			MaxDepth:    2,
			Selectors:   []string{"img:src", "link:href", "script:src"},
			Parallelism: 4,
			Timeout:     5 * time.Minute,
			Cleanup:     CleanupRemove,
		},
		Cloak: CloakConfig{
			Mode:   CloakServer,
			Agents: []string{"Mozilla", "Chrome", "Safari", "Firefox", "Edge", " YaBrowser"},
		},
		Archive: ArchiveConfig{
			Delivery: DeliveryBuffered,
			Level:    9,
		},
		Fetch: FetchConfig{
			Timeout: 30 * time.Second,
			Retries: 2,
		},
		Auth: AuthConfig{
			UsersFile:  "users.yaml",
			SessionTTL: 24 * time.Hour,
		},
	}
}

// Validate rejects unknown enum values and out-of-range numbers.
func (c *Config) Validate() error {
	if err := oneOf("MIRROR_POLICY", c.Mirror.Policy, PolicyRecursive, PolicySelectors); err != nil {
		return err
	}
	if err := oneOf("CLEANUP_POLICY", c.Mirror.Cleanup, CleanupRemove, CleanupRetain); err != nil {
		return err
	}
	if err := oneOf("CLOAK_MODE", c.Cloak.Mode, CloakServer, CloakClient, CloakOff); err != nil {
		return err
	}
	if err := oneOf("ARCHIVE_DELIVERY", c.Archive.Delivery, DeliveryBuffered, DeliveryStreaming); err != nil {
		return err
	}
	if c.Archive.Level < 0 || c.Archive.Level > 9 {
		return fmt.Errorf("ARCHIVE_LEVEL must be between 0 and 9, got %d", c.Archive.Level)
	}
	if c.Mirror.MaxDepth < 1 {
		return fmt.Errorf("MIRROR_MAX_DEPTH must be at least 1, got %d", c.Mirror.MaxDepth)
	}
	if c.Mirror.Parallelism < 1 {
		return fmt.Errorf("MIRROR_PARALLELISM must be at least 1, got %d", c.Mirror.Parallelism)
	}
	if c.Mirror.WorkDir == "" {
		return fmt.Errorf("WORK_DIR is required")
	}
	for _, sel := range c.Mirror.Selectors {
		if tag, attr, ok := strings.Cut(sel, ":"); !ok || tag == "" || attr == "" {
			return fmt.Errorf("MIRROR_SELECTORS entry %q must be tag:attr", sel)
		}
	}
	if c.Auth.Enabled && c.Auth.UsersFile == "" {
		return fmt.Errorf("AUTH_USERS_FILE is required when AUTH_ENABLED is set")
	}
	return nil
}

func oneOf(name, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", name, strings.Join(allowed, ", "), value)
}
