// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App          AppConfig               `mapstructure:"app"`
	Camunda      CamundaConfig           `mapstructure:"camunda"`
	ControlPlane ControlPlaneConfig      `mapstructure:"control_plane"`
	Resolver     ResolverConfig          `mapstructure:"resolver"`
	Database     DatabaseConfig          `mapstructure:"database"`
	Billing      BillingConfig           `mapstructure:"billing"`
	Workers      map[string]WorkerConfig `mapstructure:"workers"`
	Logging      LoggingConfig           `mapstructure:"logging"`
	Tracing      TracingConfig           `mapstructure:"tracing"`
	Server       ServerConfig            `mapstructure:"server"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	Plaintext      bool   `mapstructure:"plaintext"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

// ControlPlaneConfig selects the Kubernetes API server that stores query objects.
// An empty Kubeconfig falls back to KUBECONFIG, in-cluster config and ~/.kube/config.
type ControlPlaneConfig struct {
	Kubeconfig string  `mapstructure:"kubeconfig"`
	Context    string  `mapstructure:"context"`
	QPS        float32 `mapstructure:"qps"`
	Burst      int     `mapstructure:"burst"`
}

// ResolverConfig governs submission and polling of control-plane queries.
type ResolverConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	MaxRetries       int      `mapstructure:"max_retries"`
	InitialBackoffMs int      `mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int      `mapstructure:"max_backoff_ms"`
	BackoffFactor    float64  `mapstructure:"backoff_factor"`
	Jitter           float64  `mapstructure:"jitter"`
	DeadlineMs       int      `mapstructure:"deadline_ms"`
	FailedStatuses   []string `mapstructure:"failed_statuses"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
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

// Enabled reports whether a postgres host is configured.
func (p PostgresConfig) Enabled() bool {
	return p.Host != ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// BillingConfig holds settings for the query-billing-info worker.
type BillingConfig struct {
	CacheTTLSeconds  int    `mapstructure:"cache_ttl_seconds"`
	DefaultQueryType string `mapstructure:"default_query_type"`
	AuditEnabled     bool   `mapstructure:"audit_enabled"`
}

// CacheTTL returns the discount cache lifetime; zero disables caching.
func (b BillingConfig) CacheTTL() time.Duration {
	return time.Duration(b.CacheTTLSeconds) * time.Second
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TracingConfig selects the OTLP/HTTP collector that receives spans.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"` // OTLP/HTTP collector URL
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// ServerConfig holds the health/metrics listener settings.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// Addr returns the listen address for the health/metrics server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}
