package controlplane

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/controller-runtime/pkg/client"
	clientfake "sigs.k8s.io/controller-runtime/pkg/client/fake"

	"billing-workers/internal/common/logger"
)

var testKind = schema.GroupVersionKind{Group: "account.sealos.io", Version: "v1", Kind: "BillingInfoQuery"}

func setupFake(t *testing.T, objs ...client.Object) (context.Context, client.Client, *KubernetesClient) {
	t.Helper()

	mapper := meta.NewDefaultRESTMapper([]schema.GroupVersion{testKind.GroupVersion()})
	mapper.Add(testKind, meta.RESTScopeNamespace)

	fc := clientfake.NewClientBuilder().
		WithScheme(runtime.NewScheme()).
		WithRESTMapper(mapper).
		WithObjects(objs...).
		Build()

	return context.Background(), fc, NewKubernetesClient(fc, logger.NewTestLogger(t))
}

func queryObject(name string, status map[string]interface{}) *unstructured.Unstructured {
	u := &unstructured.Unstructured{Object: map[string]interface{}{}}
	u.SetGroupVersionKind(testKind)
	u.SetNamespace("ns-user1")
	u.SetName(name)
	_ = unstructured.SetNestedField(u.Object, "Recharge", "spec", "queryType")
	if status != nil {
		_ = unstructured.SetNestedMap(u.Object, status, "status")
	}
	return u
}

func TestKubernetesClient_Submit(t *testing.T) {
	ctx, fc, kc := setupFake(t)

	obj := &Object{
		Kind:      testKind,
		Namespace: "ns-user1",
		Name:      "1700000000000-ab12cd34-bonusquery",
		Spec:      map[string]interface{}{"queryType": "Recharge", "limit": 10},
	}

	require.NoError(t, kc.Submit(ctx, obj))

	stored := &unstructured.Unstructured{}
	stored.SetGroupVersionKind(testKind)
	require.NoError(t, fc.Get(ctx, client.ObjectKey{Namespace: "ns-user1", Name: obj.Name}, stored))

	queryType, _, _ := unstructured.NestedString(stored.Object, "spec", "queryType")
	assert.Equal(t, "Recharge", queryType)
	limit, _, _ := unstructured.NestedInt64(stored.Object, "spec", "limit")
	assert.Equal(t, int64(10), limit)

	// the submission record itself is left untouched
	assert.Equal(t, 10, obj.Spec["limit"])
	assert.Len(t, obj.Spec, 2)
}

func TestKubernetesClient_Submit_AlreadyExists(t *testing.T) {
	ctx, _, kc := setupFake(t, queryObject("dup", nil))

	err := kc.Submit(ctx, &Object{Kind: testKind, Namespace: "ns-user1", Name: "dup"})
	require.Error(t, err)
	assert.True(t, apierrors.IsAlreadyExists(err))
	assert.Contains(t, err.Error(), "already-exists")
}

func TestKubernetesClient_Submit_Invalid(t *testing.T) {
	ctx, _, kc := setupFake(t)

	tests := []struct {
		name string
		obj  *Object
	}{
		{"nil", nil},
		{"no kind", &Object{Namespace: "ns", Name: "a"}},
		{"no name", &Object{Kind: testKind, Namespace: "ns"}},
		{"no namespace", &Object{Kind: testKind, Name: "a"}},
		{"unencodable spec", &Object{Kind: testKind, Namespace: "ns", Name: "a", Spec: map[string]interface{}{"c": make(chan int)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := kc.Submit(ctx, tt.obj)
			assert.True(t, errors.Is(err, ErrInvalidObject))
		})
	}
}

func TestKubernetesClient_Fetch(t *testing.T) {
	ctx, _, kc := setupFake(t,
		queryObject("done", map[string]interface{}{
			"status": "Completed",
			"result": `{"discountRates":[0.1],"discountSteps":[10]}`,
		}),
		queryObject("pending", nil),
		queryObject("structured", map[string]interface{}{
			"status": "completed",
			"result": map[string]interface{}{"discountRates": []interface{}{0.5}},
		}),
	)

	t.Run("terminal", func(t *testing.T) {
		env, err := kc.Fetch(ctx, Reference{Kind: testKind, Namespace: "ns-user1", Name: "done"})
		require.NoError(t, err)
		assert.Equal(t, "Completed", env.Status)
		assert.Equal(t, `{"discountRates":[0.1],"discountSteps":[10]}`, env.Result)
	})

	t.Run("no status yet", func(t *testing.T) {
		env, err := kc.Fetch(ctx, Reference{Kind: testKind, Namespace: "ns-user1", Name: "pending"})
		require.NoError(t, err)
		assert.Empty(t, env.Status)
		assert.Empty(t, env.Result)
	})

	t.Run("structured result is re-encoded", func(t *testing.T) {
		env, err := kc.Fetch(ctx, Reference{Kind: testKind, Namespace: "ns-user1", Name: "structured"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"discountRates":[0.5]}`, env.Result)
	})

	t.Run("missing object", func(t *testing.T) {
		_, err := kc.Fetch(ctx, Reference{Kind: testKind, Namespace: "ns-user1", Name: "nope"})
		require.Error(t, err)
		assert.True(t, apierrors.IsNotFound(err))
	})
}

func TestSubmissionReason(t *testing.T) {
	gr := schema.GroupResource{Group: testKind.Group, Resource: "billinginfoqueries"}

	assert.Equal(t, "forbidden", SubmissionReason(apierrors.NewForbidden(gr, "x", errors.New("rbac"))))
	assert.Equal(t, "already-exists", SubmissionReason(apierrors.NewAlreadyExists(gr, "x")))
	assert.Equal(t, "invalid", SubmissionReason(apierrors.NewBadRequest("bad")))
	assert.Equal(t, "throttled", SubmissionReason(apierrors.NewTooManyRequests("slow down", 1)))
	assert.Equal(t, "kind-not-served", SubmissionReason(&meta.NoKindMatchError{GroupKind: testKind.GroupKind()}))
	assert.Equal(t, "transport", SubmissionReason(errors.New("connection refused")))
}

func TestObject_NormalizedSpec(t *testing.T) {
	obj := &Object{Spec: map[string]interface{}{
		"n":      3,
		"f":      0.25,
		"nested": map[string]interface{}{"list": []int{1, 2}},
	}}

	spec, err := obj.NormalizedSpec()
	require.NoError(t, err)
	assert.Equal(t, int64(3), spec["n"])
	assert.Equal(t, 0.25, spec["f"])
	assert.Equal(t, []interface{}{int64(1), int64(2)}, spec["nested"].(map[string]interface{})["list"])

	empty, err := (&Object{}).NormalizedSpec()
	require.NoError(t, err)
	assert.Empty(t, empty)
}
