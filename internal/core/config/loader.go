package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/resilience/internal/core/retry"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding environment variables first.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Transaction.MaxRetries == 0 {
		cfg.Transaction.MaxRetries = 3
	}
	if cfg.Transaction.Isolation == "" {
		cfg.Transaction.Isolation = "serializable"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "pgx"
	}

	d := retry.DefaultPolicy
	for name, p := range cfg.Retry.Policies {
		if p.MaxRetries == nil {
			n := d.MaxRetries
			p.MaxRetries = &n
		}
		if p.BaseDelay == 0 {
			p.BaseDelay = d.BaseDelay
		}
		if p.MaxDelay == 0 {
			p.MaxDelay = d.MaxDelay
		}
		if p.BackoffMultiplier == 0 {
			p.BackoffMultiplier = d.BackoffMultiplier
		}
		cfg.Retry.Policies[name] = p
	}
}

// Validate checks every retry policy and the transaction settings.
func (c *AppConfig) Validate() error {
	var errs []error
	for _, name := range c.PolicyNames() {
		if err := c.Policy(name).Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := c.Transaction.TxOptions(); err != nil {
		errs = append(errs, err)
	}
	if c.Transaction.MaxRetries < 0 {
		errs = append(errs, errors.New("transaction max_retries must be >= 0"))
	}
	return errors.Join(errs...)
}
