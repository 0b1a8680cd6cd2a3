// Package config holds the process-wide configuration. It is read once at
// startup and must not be modified afterwards; every component receives the
// same *Config.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Base64-encoded symmetric key
	KeyFile string `env:"ZBROKER_KEY_FILE" envDefault:"key.txt"`
	Cipher  string `env:"ZBROKER_CIPHER" envDefault:"aes-cbc"`

	// Client-facing endpoint. Host may be "*" when binding.
	Host string `env:"ZBROKER_HOST" envDefault:"127.0.0.1"`
	Port uint   `env:"ZBROKER_PORT" envDefault:"5555"`
	// Broker-local endpoint the workers connect to
	WorkerEndpoint string `env:"ZBROKER_WORKER_ENDPOINT" envDefault:"inproc://workers"`
	Workers        uint   `env:"ZBROKER_WORKERS" envDefault:"4"`

	// Client side: attempts before giving up, and the wait for each reply
	Retries uint          `env:"ZBROKER_RETRIES" envDefault:"5"`
	Timeout time.Duration `env:"ZBROKER_TIMEOUT" envDefault:"2s"`

	PidFile   string `env:"ZBROKER_PIDFILE"`
	LogLevel  string `env:"ZBROKER_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"ZBROKER_LOG_FORMAT" envDefault:"text"`

	// Request/reply fields whose values are masked in log output
	HiddenKeys []string `env:"ZBROKER_HIDDEN_KEYS" envSeparator:"," envDefault:"password"`
}

// Load reads envFile (if it exists) into the process environment and parses
// the ZBROKER_* variables. Variables already set in the environment win over
// the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.HiddenKeys = trimAll(cfg.HiddenKeys)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration obtained from the built-in defaults only.
func Default() *Config {
	cfg := &Config{}
	// Parsing an empty environment only applies envDefault tags and can't fail.
	_ = env.ParseWithOptions(cfg, env.Options{Environment: map[string]string{}})
	return cfg
}

var validCiphers = []string{"aes-cbc", "xchacha20poly1305"}
var validLogFormats = []string{"text", "json"}

// Validate performs validation on the loaded configuration
func (c *Config) Validate() error {
	var problems []string

	if c.Port < 1 || c.Port > 65535 {
		problems = append(problems, "ZBROKER_PORT must be between 1 and 65535")
	}
	if c.Workers < 1 {
		problems = append(problems, "ZBROKER_WORKERS must be at least 1")
	}
	if c.Retries < 1 {
		problems = append(problems, "ZBROKER_RETRIES must be at least 1")
	}
	if c.Timeout <= 0 {
		problems = append(problems, "ZBROKER_TIMEOUT must be positive")
	}
	if !contains(validCiphers, c.Cipher) {
		problems = append(problems, fmt.Sprintf("ZBROKER_CIPHER must be one of: %s", strings.Join(validCiphers, ", ")))
	}
	if !contains(validLogFormats, c.LogFormat) {
		problems = append(problems, fmt.Sprintf("ZBROKER_LOG_FORMAT must be one of: %s", strings.Join(validLogFormats, ", ")))
	}
	if c.WorkerEndpoint == "" {
		problems = append(problems, "ZBROKER_WORKER_ENDPOINT must not be empty")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Address to bind the client-facing socket to.
func (c *Config) BindURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
}

// Address clients connect to. A wildcard bind host is replaced by loopback.
func (c *Config) ConnectURL() string {
	host := c.Host
	if host == "*" || host == "0.0.0.0" || host == "" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("tcp://%s:%d", host, c.Port)
}

func (c *Config) IsHidden(key string) bool {
	return contains(c.HiddenKeys, key)
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
