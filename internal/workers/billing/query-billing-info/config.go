// internal/workers/billing/query-billing-info/config.go
package querybillinginfo

import (
	"time"

	"billing-workers/internal/common/config"
	"billing-workers/internal/models"
)

type Config struct {
	Enabled          bool
	MaxJobsActive    int
	Timeout          time.Duration
	CacheTTL         time.Duration
	DefaultQueryType models.BillingQueryType
	AuditEnabled     bool
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:          true,
		MaxJobsActive:    5,
		Timeout:          30 * time.Second,
		DefaultQueryType: models.BillingQueryTypeRecharge,
	}
}

// LoadConfig merges the worker and billing sections of the application config.
func LoadConfig(appConfig *config.Config) *Config {
	cfg := DefaultConfig()
	if appConfig == nil {
		return cfg
	}

	cfg.Enabled = config.IsWorkerEnabled(appConfig, TaskType)
	workerCfg := config.GetWorkerConfig(appConfig, TaskType)
	if workerCfg.MaxJobsActive > 0 {
		cfg.MaxJobsActive = workerCfg.MaxJobsActive
	}
	if workerCfg.Timeout > 0 {
		cfg.Timeout = config.GetDuration(workerCfg.Timeout)
	}

	cfg.CacheTTL = appConfig.Billing.CacheTTL()
	cfg.AuditEnabled = appConfig.Billing.AuditEnabled
	if appConfig.Billing.DefaultQueryType != "" {
		cfg.DefaultQueryType = models.BillingQueryType(appConfig.Billing.DefaultQueryType)
	}
	return cfg
}

// WorkerConfig is the job-worker registration derived from c.
func (c *Config) WorkerConfig() config.WorkerConfig {
	return config.WorkerConfig{
		Enabled:       c.Enabled,
		MaxJobsActive: c.MaxJobsActive,
		Timeout:       int(c.Timeout.Milliseconds()),
	}
}
