// cmd/worker-manager/main.go
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"billing-workers/internal/billing/discount"
	"billing-workers/internal/common/camunda"
	"billing-workers/internal/common/config"
	"billing-workers/internal/common/database"
	"billing-workers/internal/common/logger"
	"billing-workers/internal/common/observability"
	"billing-workers/internal/controlplane"
	"billing-workers/internal/resolver"
	qbi "billing-workers/internal/workers/billing/query-billing-info"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err,
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
				"retryable":   camunda.IsRetryableError(err),
			})
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	var outputs []string
	if cfg.Logging.Output != "" {
		outputs = append(outputs, cfg.Logging.Output)
	}
	zapLog := logger.NewWithOutput(cfg.Logging.Level, cfg.Logging.Format, outputs...)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)
	log.Info("starting worker manager", map[string]interface{}{
		"app":         cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	})

	obs, err := observability.New(cfg.App.Name, cfg.App.Version, cfg.Tracing)
	if err != nil {
		zapLog.Fatal("observability setup failed", zap.Error(err))
	}
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Control plane ---
	var cp *controlplane.KubernetesClient
	err = retryWithBackoff(func() error {
		var err error
		cp, err = controlplane.NewKubernetesClientFromConfig(cfg.ControlPlane, log)
		return err
	}, 5, 2*time.Second, log, "Kubernetes client initialization")
	if err != nil {
		zapLog.Fatal("control plane client failed after retries", zap.Error(err))
	}

	discountResolver := resolver.New[*discount.Info](cp, discount.Decode, resolver.ConfigFromSettings(cfg.Resolver), log)
	if !cfg.Resolver.Enabled {
		log.Warn("recharge queries are disabled; jobs will fail with RECHARGE_DISABLED", nil)
	}

	// --- PostgreSQL (audit trail) ---
	var auditDB *sql.DB
	if cfg.Billing.AuditEnabled && cfg.Database.Postgres.Enabled() {
		var pg *database.PostgresClient
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, log, "PostgreSQL connection")
		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()

		if err := pg.EnsureAuditSchema(ctx); err != nil {
			zapLog.Fatal("audit schema migration failed", zap.Error(err))
		}
		auditDB = pg.DB
		log.Info("PostgreSQL connected, billing query audit enabled", nil)
	}

	// --- Redis (discount cache) ---
	var cache *redis.Client
	if cfg.Billing.CacheTTL() > 0 && cfg.Database.Redis.Address != "" {
		rc := database.NewRedis(cfg.Database.Redis)
		err = retryWithBackoff(func() error {
			return rc.Ping(ctx)
		}, 5, time.Second, log, "Redis connection")
		if err != nil {
			log.Warn("redis unavailable, discount cache disabled", map[string]interface{}{"error": err})
			rc.Close()
		} else {
			defer rc.Close()
			cache = rc.Client
			log.Info("Redis connected, discount cache enabled", map[string]interface{}{
				"ttl": cfg.Billing.CacheTTL().String(),
			})
		}
	}

	// --- Zeebe ---
	var zeebe *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebe, err = camunda.NewClient(cfg.Camunda)
		return err
	}, 10, 2*time.Second, log, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	log.Info("Zeebe client connected", map[string]interface{}{"gateway": cfg.Camunda.BrokerAddress})

	// --- Workers ---
	billingCfg := qbi.LoadConfig(cfg)
	handler := qbi.NewHandler(billingCfg, discountResolver, auditDB, cache, log)
	billingWorker := camunda.NewWorker(
		zeebe.GetClient(), qbi.TaskType, billingCfg.WorkerConfig(), handler.Handle, obs, log,
	)

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy", nil)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := zeebe.HealthCheck(r.Context()); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "not ready", err)
			return
		}
		writeStatus(w, http.StatusOK, "ready", nil)
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("health/metrics server listening", map[string]interface{}{"addr": server.Addr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("health/metrics server failed", map[string]interface{}{"error": err})
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, stopping workers...", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	billingWorker.Stop()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("error stopping health/metrics server", map[string]interface{}{"error": err})
	}
	if err := zeebe.Close(); err != nil {
		log.Error("error closing Zeebe client", map[string]interface{}{"error": err})
	}

	log.Info("worker manager stopped gracefully", nil)
}

func writeStatus(w http.ResponseWriter, code int, status string, err error) {
	body := map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	}
	if err != nil {
		body["error"] = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
