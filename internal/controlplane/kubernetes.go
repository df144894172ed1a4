package controlplane

import (
	"context"
	"encoding/json"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/controller-runtime/pkg/client"
	ctrlconfig "sigs.k8s.io/controller-runtime/pkg/client/config"

	"billing-workers/internal/common/config"
	"billing-workers/internal/common/logger"
)

// KubernetesClient stores query objects as custom resources. The controller
// that owns the resource reports progress in status.status and the payload in
// status.result.
type KubernetesClient struct {
	client client.Client
	logger logger.Logger
}

var _ Client = (*KubernetesClient)(nil)

// NewKubernetesClient wraps an existing controller-runtime client.
func NewKubernetesClient(c client.Client, log logger.Logger) *KubernetesClient {
	return &KubernetesClient{
		client: c,
		logger: log.WithFields(map[string]interface{}{"component": "controlplane"}),
	}
}

// NewKubernetesClientFromConfig builds a client from kubeconfig or in-cluster
// credentials. The REST mapper is discovered lazily from the API server.
func NewKubernetesClientFromConfig(cfg config.ControlPlaneConfig, log logger.Logger) (*KubernetesClient, error) {
	restCfg, err := restConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("load control plane config: %w", err)
	}
	if cfg.QPS > 0 {
		restCfg.QPS = cfg.QPS
	}
	if cfg.Burst > 0 {
		restCfg.Burst = cfg.Burst
	}

	c, err := client.New(restCfg, client.Options{})
	if err != nil {
		return nil, fmt.Errorf("create control plane client: %w", err)
	}
	return NewKubernetesClient(c, log), nil
}

func restConfig(cfg config.ControlPlaneConfig) (*rest.Config, error) {
	if cfg.Kubeconfig != "" {
		rules := &clientcmd.ClientConfigLoadingRules{ExplicitPath: cfg.Kubeconfig}
		overrides := &clientcmd.ConfigOverrides{CurrentContext: cfg.Context}
		return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
	}
	if cfg.Context != "" {
		return ctrlconfig.GetConfigWithContext(cfg.Context)
	}
	return ctrlconfig.GetConfig()
}

// Submit creates the object. It never retries and never mutates obj.
func (k *KubernetesClient) Submit(ctx context.Context, obj *Object) error {
	if err := obj.Validate(); err != nil {
		return err
	}
	spec, err := obj.NormalizedSpec()
	if err != nil {
		return err
	}

	u := &unstructured.Unstructured{Object: map[string]interface{}{}}
	u.SetGroupVersionKind(obj.Kind)
	u.SetNamespace(obj.Namespace)
	u.SetName(obj.Name)
	if err := unstructured.SetNestedMap(u.Object, spec, "spec"); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidObject, err)
	}

	if err := k.client.Create(ctx, u); err != nil {
		return fmt.Errorf("create %s (%s): %w", obj.Ref(), SubmissionReason(err), err)
	}

	k.logger.Debug("object submitted", map[string]interface{}{
		"ref": obj.Ref().String(),
	})
	return nil
}

// Fetch reads the current status envelope. An object without status yields an
// empty, non-terminal envelope.
func (k *KubernetesClient) Fetch(ctx context.Context, ref Reference) (*StatusEnvelope, error) {
	u := &unstructured.Unstructured{}
	u.SetGroupVersionKind(ref.Kind)

	if err := k.client.Get(ctx, client.ObjectKey{Namespace: ref.Namespace, Name: ref.Name}, u); err != nil {
		return nil, fmt.Errorf("get %s: %w", ref, err)
	}

	status, _, err := unstructured.NestedString(u.Object, "status", "status")
	if err != nil {
		return nil, fmt.Errorf("read status of %s: %w", ref, err)
	}

	result, err := resultText(u)
	if err != nil {
		return nil, fmt.Errorf("read result of %s: %w", ref, err)
	}

	return &StatusEnvelope{Status: status, Result: result}, nil
}

// resultText returns status.result as text. Controllers that publish the result
// as a structured object instead of a JSON string are re-encoded.
func resultText(u *unstructured.Unstructured) (string, error) {
	raw, found, err := unstructured.NestedFieldNoCopy(u.Object, "status", "result")
	if err != nil || !found || raw == nil {
		return "", err
	}
	if s, ok := raw.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// SubmissionReason classifies a create error for logs and error messages.
func SubmissionReason(err error) string {
	switch {
	case apierrors.IsForbidden(err):
		return "forbidden"
	case apierrors.IsUnauthorized(err):
		return "unauthorized"
	case apierrors.IsInvalid(err), apierrors.IsBadRequest(err):
		return "invalid"
	case apierrors.IsAlreadyExists(err):
		return "already-exists"
	case meta.IsNoMatchError(err), apierrors.IsNotFound(err):
		return "kind-not-served"
	case apierrors.IsTimeout(err), apierrors.IsServerTimeout(err), apierrors.IsTooManyRequests(err):
		return "throttled"
	default:
		return "transport"
	}
}
