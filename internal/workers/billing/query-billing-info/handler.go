// internal/workers/billing/query-billing-info/handler.go
package querybillinginfo

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"billing-workers/internal/billing/discount"
	"billing-workers/internal/common/errors"
	"billing-workers/internal/common/logger"
	"billing-workers/internal/common/metrics"
	"billing-workers/internal/common/validation"
	"billing-workers/internal/models"
	"billing-workers/internal/resolver"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/redis/go-redis/v9"
	k8svalidation "k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

const TaskType = "query-billing-info"

const (
	reportTimeout = 10 * time.Second
	auditTimeout  = 5 * time.Second
)

var inputValidator = validation.MustCompile(inputSchema)

// DiscountResolver resolves BillingInfoQuery objects into discount tables.
type DiscountResolver interface {
	Resolve(ctx context.Context, q resolver.Query) (*resolver.Resolution[*discount.Info], error)
}

type Handler struct {
	config       *Config
	resolver     DiscountResolver
	db           *sql.DB
	redis        *redis.Client
	logger       logger.Logger
	errorHandler *errors.ErrorHandler
}

// NewHandler wires the worker. db and redis may be nil to disable auditing
// and caching respectively.
func NewHandler(config *Config, res DiscountResolver, db *sql.DB, redis *redis.Client, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		resolver:     res,
		db:           db,
		redis:        redis,
		logger:       l,
		errorHandler: errors.NewErrorHandler(l),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	output, err := h.process(job)

	// Commands are sent outside the job deadline, which may already be spent.
	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()

	if err == nil {
		h.completeJob(ctx, client, job, output)
		metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
		metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
		return
	}

	bpmnErr := h.errorHandler.HandleJobError(ctx, client, job, err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, bpmnErr.Code).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
}

func (h *Handler) process(job entities.Job) (*Output, error) {
	input, err := h.parseInput(job)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()
	return h.execute(ctx, input)
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("parse job variables: %v", err))
	}

	// Only validate the variables this worker reads; the process may carry more.
	relevant := map[string]interface{}{}
	for _, key := range []string{"namespace", "queryType", "forceRefresh"} {
		if v, ok := variables[key]; ok && v != nil {
			relevant[key] = v
		}
	}

	result := inputValidator.ValidateInput(relevant)
	if !result.Valid {
		return nil, errors.NewInvalidInputError(strings.Join(result.GetErrorMessages(), "; "))
	}

	input := &Input{Namespace: relevant["namespace"].(string)}
	if qt, ok := relevant["queryType"].(string); ok {
		input.QueryType = qt
	}
	if force, ok := relevant["forceRefresh"].(bool); ok {
		input.ForceRefresh = force
	}
	return input, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	queryType, err := h.validate(input)
	if err != nil {
		return nil, err
	}

	key := cacheKey(input.Namespace, queryType)
	if !input.ForceRefresh {
		if cached := h.readCache(ctx, key); cached != nil {
			h.logger.Info("discount served from cache", map[string]interface{}{
				"namespace": input.Namespace,
				"queryName": cached.QueryName,
			})
			return toOutput(cached.Info, cached.QueryName, 0, true), nil
		}
	}

	start := time.Now()
	res, err := h.resolver.Resolve(ctx, resolver.Query{
		Kind:      models.BillingInfoQueryKind,
		Namespace: input.Namespace,
		Params:    map[string]interface{}{"queryType": string(queryType)},
		Suffix:    resolver.DefaultSuffix,
	})
	elapsed := time.Since(start)

	if err != nil {
		var rerr *resolver.Error
		if stderrors.As(err, &rerr) {
			h.audit(ctx, rerr.Name, input.Namespace, queryType, string(rerr.Kind), rerr.Attempts, elapsed)
		}
		return nil, mapResolveError(err)
	}

	h.audit(ctx, res.Name, input.Namespace, queryType, OutcomeSuccess, res.Attempts, elapsed)
	h.writeCache(ctx, key, &cachedDiscount{QueryName: res.Name, Info: res.Value})

	h.logger.Info("discount resolved", map[string]interface{}{
		"namespace":       input.Namespace,
		"queryName":       res.Name,
		"attempts":        res.Attempts,
		"specialDiscount": len(res.Value.SpecialDiscount),
	})

	return toOutput(res.Value, res.Name, res.Attempts, false), nil
}

func (h *Handler) validate(input *Input) (models.BillingQueryType, error) {
	if input == nil {
		return "", errors.NewInvalidInputError("input is required")
	}
	if msgs := k8svalidation.IsDNS1123Label(input.Namespace); len(msgs) > 0 {
		return "", errors.NewInvalidInputError(
			field.Invalid(field.NewPath("namespace"), input.Namespace, strings.Join(msgs, ", ")).Error())
	}

	queryType := models.BillingQueryType(input.QueryType)
	if queryType == "" {
		queryType = h.config.DefaultQueryType
	}
	if !models.ValidBillingQueryTypes[queryType] {
		return "", errors.NewInvalidInputError(
			field.NotSupported(field.NewPath("queryType"), input.QueryType, []string{string(models.BillingQueryTypeRecharge)}).Error())
	}
	return queryType, nil
}

func mapResolveError(err error) error {
	var rerr *resolver.Error
	if !stderrors.As(err, &rerr) {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return errors.NewTimeoutError("controlplane", err)
		}
		return errors.NewExternalServiceError("controlplane", err)
	}

	switch rerr.Kind {
	case resolver.KindDisabled:
		return errors.NewRechargeDisabledError()
	case resolver.KindSubmission:
		return errors.NewQuerySubmissionFailedError(rerr.Name, rerr)
	case resolver.KindTimeout:
		return errors.NewQueryTimeoutError(rerr.Name, rerr.Attempts, rerr)
	case resolver.KindDecode:
		return errors.NewQueryDecodeFailedError(rerr.Name, rerr)
	case resolver.KindFailed:
		return errors.NewQueryFailedError(rerr.Name, rerr)
	case resolver.KindCancelled:
		return errors.NewQueryCancelledError(rerr.Name, rerr)
	default:
		return errors.NewInternalError(rerr)
	}
}

func cacheKey(namespace string, queryType models.BillingQueryType) string {
	return fmt.Sprintf("billing:discount:%s:%s", namespace, queryType)
}

func (h *Handler) cacheEnabled() bool {
	return h.redis != nil && h.config.CacheTTL > 0
}

func (h *Handler) readCache(ctx context.Context, key string) *cachedDiscount {
	if !h.cacheEnabled() {
		return nil
	}

	val, err := h.redis.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			metrics.DiscountCacheRequests.WithLabelValues("miss").Inc()
		} else {
			metrics.DiscountCacheRequests.WithLabelValues("error").Inc()
			h.logger.Warn("discount cache read failed", map[string]interface{}{"key": key, "error": err})
		}
		return nil
	}

	var cached cachedDiscount
	if err := json.Unmarshal([]byte(val), &cached); err != nil || cached.Info == nil {
		metrics.DiscountCacheRequests.WithLabelValues("error").Inc()
		h.logger.Warn("discarding unreadable cache entry", map[string]interface{}{"key": key, "error": err})
		return nil
	}
	metrics.DiscountCacheRequests.WithLabelValues("hit").Inc()
	return &cached
}

func (h *Handler) writeCache(ctx context.Context, key string, entry *cachedDiscount) {
	if !h.cacheEnabled() {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := h.redis.Set(ctx, key, data, h.config.CacheTTL).Err(); err != nil {
		h.logger.Warn("discount cache write failed", map[string]interface{}{"key": key, "error": err})
	}
}

func (h *Handler) audit(ctx context.Context, queryName, namespace string, queryType models.BillingQueryType, outcome string, attempts int, elapsed time.Duration) {
	if h.db == nil || !h.config.AuditEnabled || queryName == "" {
		return
	}

	// The row is written even when the job deadline has passed.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()

	_, err := h.db.ExecContext(ctx, `
		INSERT INTO billing_query_audit
			(query_name, namespace, query_type, outcome, attempts, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		queryName, namespace, string(queryType), outcome, attempts, elapsed.Milliseconds())
	if err != nil {
		h.logger.Warn("failed to write audit row", map[string]interface{}{
			"queryName": queryName,
			"error":     err,
		})
	}
}

func toOutput(info *discount.Info, queryName string, attempts int, cached bool) *Output {
	return &Output{
		Ratios:          info.Rates,
		Steps:           info.Steps,
		SpecialDiscount: info.SpecialDiscount,
		QueryName:       queryName,
		Attempts:        attempts,
		Cached:          cached,
	}
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.GetKey()).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err,
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err,
		})
	}
}
