package redveil

import (
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ServerConfig is the YAML configuration model of the server binary.
type ServerConfig struct {
	// Listen is the HTTP listen address, e.g. ":8080".
	Listen string `yaml:"listen"`

	Upstream struct {
		ClientID  string `yaml:"clientId"`
		UserAgent string `yaml:"userAgent"`
		BaseURL   string `yaml:"baseUrl"`
		AuthURL   string `yaml:"authUrl"`
	} `yaml:"upstream"`

	RateLimit struct {
		RequestsPerMinute float64 `yaml:"requestsPerMinute"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rateLimit"`

	Retry struct {
		MaxRetries  int `yaml:"maxRetries"`
		BaseDelayMS int `yaml:"baseDelayMs"`
	} `yaml:"retry"`

	// Collections is a ";"-separated list of "alias=sub1+sub2" entries
	// served under /c/<alias>.
	Collections string `yaml:"collections"`

	// BlockedAuthors are flagged as filtered in every comment tree.
	BlockedAuthors []string `yaml:"blockedAuthors"`
}

// DefaultServerConfig returns a working default configuration.
func DefaultServerConfig() ServerConfig {
	var cfg ServerConfig
	cfg.Listen = ":8080"
	return cfg
}

// LoadServerConfig reads YAML config from path. A missing file yields the
// defaults without error so the binary runs configless.
func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ResolveEnv fills in config fields from environment variables if not set.
func (c *ServerConfig) ResolveEnv() {
	if v := os.Getenv("REDVEIL_LISTEN"); v != "" {
		c.Listen = v
	}
	if c.Upstream.ClientID == "" {
		c.Upstream.ClientID = os.Getenv("REDVEIL_CLIENT_ID")
	}
	if c.Upstream.UserAgent == "" {
		c.Upstream.UserAgent = os.Getenv("REDVEIL_USER_AGENT")
	}
	if c.Collections == "" {
		c.Collections = os.Getenv("REDVEIL_COLLECTIONS")
	}
	if c.Retry.MaxRetries == 0 {
		if n, err := strconv.Atoi(os.Getenv("REDVEIL_MAX_RETRIES")); err == nil && n > 0 {
			c.Retry.MaxRetries = n
		}
	}
}

// ClientConfig maps the server configuration onto a client Config.
func (c ServerConfig) ClientConfig(logger *zap.Logger) *Config {
	return &Config{
		ClientID:          c.Upstream.ClientID,
		UserAgent:         c.Upstream.UserAgent,
		BaseURL:           c.Upstream.BaseURL,
		AuthURL:           c.Upstream.AuthURL,
		Logger:            logger,
		RequestsPerMinute: c.RateLimit.RequestsPerMinute,
		Burst:             c.RateLimit.Burst,
		MaxRetries:        c.Retry.MaxRetries,
		RetryBaseDelay:    time.Duration(c.Retry.BaseDelayMS) * time.Millisecond,
		BlockedAuthors:    c.BlockedAuthors,
	}
}
