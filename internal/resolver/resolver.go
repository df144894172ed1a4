// Package resolver submits query objects to the control plane and polls them
// until a controller publishes a terminal result, then decodes that result.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"billing-workers/internal/common/logger"
	"billing-workers/internal/common/metrics"
	"billing-workers/internal/controlplane"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

const statusCompleted = "completed"

var errNoEnvelope = errors.New("fetch returned no status envelope")

// Query describes one object to submit. Params becomes the object's spec.
type Query struct {
	Kind      schema.GroupVersionKind
	Namespace string
	Params    map[string]interface{}
	Suffix    string
}

// Resolution is a decoded terminal result.
type Resolution[T any] struct {
	Name     string
	Value    T
	Attempts int
	Duration time.Duration
}

// DecodeFunc turns a terminal result payload into a value.
type DecodeFunc[T any] func(payload string) (T, error)

// Resolver is safe for concurrent use; it holds no per-resolution state.
type Resolver[T any] struct {
	client controlplane.Client
	decode DecodeFunc[T]
	cfg    Config
	logger logger.Logger
	tracer trace.Tracer
	now    func() time.Time
}

func New[T any](client controlplane.Client, decode DecodeFunc[T], cfg Config, log logger.Logger) *Resolver[T] {
	return &Resolver[T]{
		client: client,
		decode: decode,
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"component": "resolver"}),
		tracer: otel.Tracer("billing-workers/resolver"),
		now:    time.Now,
	}
}

// Resolve submits q under a fresh name and waits for its result. Every
// failure is a *Error.
func (r *Resolver[T]) Resolve(ctx context.Context, q Query) (*Resolution[T], error) {
	if !r.cfg.Enabled {
		return nil, &Error{Kind: KindDisabled}
	}

	start := r.now()
	obj := &controlplane.Object{
		Kind:      q.Kind,
		Namespace: q.Namespace,
		Name:      newName(start, q.Suffix),
		Spec:      q.Params,
	}

	ctx, span := r.tracer.Start(ctx, "resolver.Resolve", trace.WithAttributes(
		attribute.String("controlplane.kind", q.Kind.Kind),
		attribute.String("controlplane.namespace", q.Namespace),
		attribute.String("controlplane.name", obj.Name),
	))
	defer span.End()

	value, attempts, err := r.run(ctx, obj)
	elapsed := r.now().Sub(start)

	outcome := "success"
	if err != nil {
		outcome = string(err.Kind)
	}
	span.SetAttributes(attribute.Int("controlplane.attempts", attempts))
	metrics.ResolutionsTotal.WithLabelValues(q.Kind.Kind, outcome).Inc()
	metrics.ResolutionDuration.WithLabelValues(q.Kind.Kind, outcome).Observe(elapsed.Seconds())

	fields := map[string]interface{}{
		"query":      obj.Name,
		"namespace":  obj.Namespace,
		"attempts":   attempts,
		"durationMs": elapsed.Milliseconds(),
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(err.Kind))
		fields["kind"] = err.Kind
		fields["error"] = err
		r.logger.Error("query resolution failed", fields)
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	r.logger.Info("query resolved", fields)
	return &Resolution[T]{
		Name:     obj.Name,
		Value:    value,
		Attempts: attempts,
		Duration: elapsed,
	}, nil
}

// run submits obj once and then polls it. The loop has a single exit: every
// branch either records a terminal outcome or consumes one attempt.
func (r *Resolver[T]) run(ctx context.Context, obj *controlplane.Object) (T, int, *Error) {
	var zero T

	if err := r.client.Submit(ctx, obj); err != nil {
		if ctx.Err() != nil {
			return zero, 0, r.interrupted(ctx, obj.Name, 0, err)
		}
		return zero, 0, &Error{Kind: KindSubmission, Name: obj.Name, Err: err}
	}

	pollCtx := ctx
	if r.cfg.Deadline > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, r.cfg.Deadline)
		defer cancel()
	}

	var (
		value    T
		failure  *Error
		attempts int
		lastSeen error
		done     bool
	)
	backoff := r.cfg.backoff()
	ref := obj.Ref()

	for !done && attempts < r.cfg.maxFetches() {
		if attempts > 0 {
			if err := sleep(pollCtx, backoff.Step()); err != nil {
				failure = r.interrupted(ctx, obj.Name, attempts, lastSeen)
				done = true
				continue
			}
		}

		attempts++
		env, err := r.client.Fetch(pollCtx, ref)
		switch {
		case err != nil && pollCtx.Err() != nil:
			failure = r.interrupted(ctx, obj.Name, attempts, err)
			done = true
		case err != nil:
			metrics.FetchAttemptsTotal.WithLabelValues(obj.Kind.Kind, "error").Inc()
			lastSeen = err
			r.logger.Warn("query fetch failed", map[string]interface{}{
				"query":   obj.Name,
				"attempt": attempts,
				"error":   err,
			})
		case env == nil:
			metrics.FetchAttemptsTotal.WithLabelValues(obj.Kind.Kind, "error").Inc()
			lastSeen = errNoEnvelope
			r.logger.Warn("query fetch returned no status", map[string]interface{}{
				"query":   obj.Name,
				"attempt": attempts,
			})
		case strings.EqualFold(env.Status, statusCompleted):
			metrics.FetchAttemptsTotal.WithLabelValues(obj.Kind.Kind, "completed").Inc()
			v, derr := r.decode(env.Result)
			if derr != nil {
				failure = &Error{Kind: KindDecode, Name: obj.Name, Attempts: attempts, Err: derr}
			} else {
				value = v
			}
			done = true
		case r.cfg.isFailedStatus(env.Status):
			metrics.FetchAttemptsTotal.WithLabelValues(obj.Kind.Kind, "failed").Inc()
			failure = &Error{
				Kind:     KindFailed,
				Name:     obj.Name,
				Attempts: attempts,
				Err:      fmt.Errorf("status %q", env.Status),
			}
			done = true
		default:
			metrics.FetchAttemptsTotal.WithLabelValues(obj.Kind.Kind, "pending").Inc()
			lastSeen = fmt.Errorf("last status %q", env.Status)
			r.logger.Warn("query not terminal yet", map[string]interface{}{
				"query":   obj.Name,
				"attempt": attempts,
				"status":  env.Status,
			})
		}
	}

	if !done {
		failure = &Error{Kind: KindTimeout, Name: obj.Name, Attempts: attempts, Err: lastSeen}
	}
	if failure != nil {
		return zero, attempts, failure
	}
	return value, attempts, nil
}

// interrupted distinguishes caller cancellation from the poll deadline.
func (r *Resolver[T]) interrupted(parent context.Context, name string, attempts int, cause error) *Error {
	if err := parent.Err(); err != nil {
		return &Error{Kind: KindCancelled, Name: name, Attempts: attempts, Err: err}
	}
	if cause == nil {
		cause = context.DeadlineExceeded
	}
	return &Error{Kind: KindTimeout, Name: name, Attempts: attempts, Err: cause}
}

func sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil || d <= 0 {
		return err
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
