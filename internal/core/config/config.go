package config

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vietddude/resilience/internal/core/failure"
	"github.com/vietddude/resilience/internal/core/logging"
	"github.com/vietddude/resilience/internal/core/retry"
	redisclient "github.com/vietddude/resilience/internal/infra/redis"
	"github.com/vietddude/resilience/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Logging     logging.Config     `yaml:"logging"`
	Metrics     MetricsConfig      `yaml:"metrics"`
	Retry       RetryConfig        `yaml:"retry"`
	Transaction TransactionConfig  `yaml:"transaction"`
	Database    postgres.Config    `yaml:"database"`
	Redis       redisclient.Config `yaml:"redis"`
}

// MetricsConfig holds the metrics HTTP server settings.
type MetricsConfig struct {
	Port int `yaml:"port"`
}

// RetryConfig holds named retry policies.
type RetryConfig struct {
	Policies map[string]PolicyConfig `yaml:"policies"`
}

// PolicyConfig is the YAML form of a retry.Policy.
type PolicyConfig struct {
	MaxRetries        *uint         `yaml:"max_retries"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	RetryableCodes    []string      `yaml:"retryable_codes"`
}

// TransactionConfig holds transaction retry settings.
type TransactionConfig struct {
	MaxRetries int    `yaml:"max_retries"`
	Isolation  string `yaml:"isolation"` // serializable, repeatable_read, read_committed, default
}

// Policy converts the entry into a retry.Policy named name.
func (p PolicyConfig) Policy(name string) retry.Policy {
	out := retry.Policy{
		Name:              name,
		BaseDelay:         p.BaseDelay,
		MaxDelay:          p.MaxDelay,
		BackoffMultiplier: p.BackoffMultiplier,
	}
	if p.MaxRetries != nil {
		out.MaxRetries = *p.MaxRetries
	}
	for _, c := range p.RetryableCodes {
		out.RetryableCodes = append(out.RetryableCodes, failure.Code(strings.ToUpper(strings.TrimSpace(c))))
	}
	return out
}

// Policy returns the named policy, or retry.DefaultPolicy when absent.
func (c *AppConfig) Policy(name string) retry.Policy {
	if pc, ok := c.Retry.Policies[name]; ok {
		return pc.Policy(name)
	}
	p := retry.DefaultPolicy
	p.Name = name
	return p
}

// PolicyNames returns the configured policy names in sorted order.
func (c *AppConfig) PolicyNames() []string {
	names := make([]string, 0, len(c.Retry.Policies))
	for name := range c.Retry.Policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TxOptions returns the transaction options for the configured isolation.
func (t TransactionConfig) TxOptions() (*sql.TxOptions, error) {
	switch strings.ToLower(strings.TrimSpace(t.Isolation)) {
	case "serializable":
		return &sql.TxOptions{Isolation: sql.LevelSerializable}, nil
	case "repeatable_read":
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead}, nil
	case "read_committed":
		return &sql.TxOptions{Isolation: sql.LevelReadCommitted}, nil
	case "", "default":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown transaction isolation %q", t.Isolation)
	}
}
