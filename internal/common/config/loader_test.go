package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_Defaults(t *testing.T) {
	path := writeConfig(t, `
camunda:
  broker_address: localhost:26500
workers:
  query-billing-info:
    enabled: true
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.True(t, cfg.Resolver.Enabled)
	assert.Equal(t, 3, cfg.Resolver.MaxRetries)
	assert.Equal(t, 500, cfg.Resolver.InitialBackoffMs)
	assert.Equal(t, 4000, cfg.Resolver.MaxBackoffMs)
	assert.Equal(t, 2.0, cfg.Resolver.BackoffFactor)
	assert.Equal(t, 15000, cfg.Resolver.DeadlineMs)
	assert.Equal(t, "Recharge", cfg.Billing.DefaultQueryType)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Server.Addr())
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, 0.1, cfg.Tracing.SampleRatio)

	w := cfg.Workers["query-billing-info"]
	assert.True(t, w.Enabled)
	assert.Equal(t, 5, w.MaxJobsActive)
	assert.Equal(t, 30000, w.Timeout)
	assert.Equal(t, 3, w.MaxRetries)
}

func TestLoadFromFile_ExplicitValues(t *testing.T) {
	path := writeConfig(t, `
camunda:
  broker_address: zeebe:26500
resolver:
  enabled: false
  max_retries: 5
  initial_backoff_ms: 100
  max_backoff_ms: 800
  backoff_factor: 1.5
  deadline_ms: 2000
  failed_statuses: ["failed", "error"]
billing:
  cache_ttl_seconds: 60
database:
  redis:
    address: localhost:6379
tracing:
  enabled: true
  endpoint: http://otel-collector:4318
  sample_ratio: 1
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.False(t, cfg.Resolver.Enabled)
	assert.Equal(t, 5, cfg.Resolver.MaxRetries)
	assert.Equal(t, 1.5, cfg.Resolver.BackoffFactor)
	assert.Equal(t, []string{"failed", "error"}, cfg.Resolver.FailedStatuses)
	assert.Equal(t, time.Minute, cfg.Billing.CacheTTL())
	assert.Equal(t, 2*time.Second, GetDuration(cfg.Resolver.DeadlineMs))
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "http://otel-collector:4318", cfg.Tracing.Endpoint)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRatio)
}

func TestLoadFromFile_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_BROKER", "broker.internal:26500")
	path := writeConfig(t, `
camunda:
  broker_address: ${TEST_BROKER}
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "broker.internal:26500", cfg.Camunda.BrokerAddress)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "missing broker",
			body: "resolver:\n  max_retries: 1\n",
		},
		{
			name: "negative retries",
			body: "camunda:\n  broker_address: x:1\nresolver:\n  max_retries: -1\n",
		},
		{
			name: "audit without postgres",
			body: "camunda:\n  broker_address: x:1\nbilling:\n  audit_enabled: true\n",
		},
		{
			name: "cache without redis",
			body: "camunda:\n  broker_address: x:1\nbilling:\n  cache_ttl_seconds: 30\n",
		},
		{
			name: "backoff factor below one",
			body: "camunda:\n  broker_address: x:1\nresolver:\n  backoff_factor: 0.5\n",
		},
		{
			name: "tracing without endpoint",
			body: "camunda:\n  broker_address: x:1\ntracing:\n  enabled: true\n",
		},
		{
			name: "sample ratio above one",
			body: "camunda:\n  broker_address: x:1\ntracing:\n  sample_ratio: 2\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestGetWorkerConfig_Fallback(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{"a": {Enabled: false}}}

	assert.False(t, IsWorkerEnabled(cfg, "a"))
	assert.True(t, IsWorkerEnabled(cfg, "b"))
	assert.Equal(t, 30000, GetWorkerConfig(cfg, "b").Timeout)
}

func TestPostgresConfig_GetDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "billing", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=billing sslmode=disable", p.GetDSN())
	assert.True(t, p.Enabled())
}
