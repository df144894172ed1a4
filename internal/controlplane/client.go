// Package controlplane is the boundary to the remote object store that holds
// submitted query objects and the results computed for them out of band.
package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"math"

	"k8s.io/apimachinery/pkg/runtime/schema"
)

var (
	// ErrInvalidObject is returned for objects that cannot be submitted as-is.
	ErrInvalidObject = errors.New("invalid control-plane object")
)

// Client submits objects to and fetches status envelopes from the control
// plane. Implementations must be safe for concurrent use. Fetch returns a
// non-nil envelope whenever err is nil; an object without status yields an
// empty envelope.
type Client interface {
	Submit(ctx context.Context, obj *Object) error
	Fetch(ctx context.Context, ref Reference) (*StatusEnvelope, error)
}

// Reference addresses one object in the control plane.
type Reference struct {
	Kind      schema.GroupVersionKind
	Namespace string
	Name      string
}

func (r Reference) String() string {
	return r.Kind.Kind + "/" + r.Namespace + "/" + r.Name
}

// Object is the materialized request sent to the control plane.
type Object struct {
	Kind      schema.GroupVersionKind
	Namespace string
	Name      string
	Spec      map[string]interface{}
}

// Ref returns the reference under which the object can be fetched.
func (o *Object) Ref() Reference {
	return Reference{Kind: o.Kind, Namespace: o.Namespace, Name: o.Name}
}

// Validate checks the fields every backend needs.
func (o *Object) Validate() error {
	switch {
	case o == nil:
		return ErrInvalidObject
	case o.Kind.Kind == "" || o.Kind.Version == "":
		return errors.Join(ErrInvalidObject, errors.New("kind and version are required"))
	case o.Name == "":
		return errors.Join(ErrInvalidObject, errors.New("name is required"))
	case o.Namespace == "":
		return errors.Join(ErrInvalidObject, errors.New("namespace is required"))
	}
	return nil
}

// NormalizedSpec returns a JSON-normalized copy of the spec that shares no
// maps or slices with o. Numbers come back as int64 or float64.
func (o *Object) NormalizedSpec() (map[string]interface{}, error) {
	if o.Spec == nil {
		return map[string]interface{}{}, nil
	}
	raw, err := json.Marshal(o.Spec)
	if err != nil {
		return nil, errors.Join(ErrInvalidObject, err)
	}
	out := map[string]interface{}{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Join(ErrInvalidObject, err)
	}
	return normalizeNumbers(out).(map[string]interface{}), nil
}

// StatusEnvelope is what a fetch returns: the controller-reported state and,
// once terminal, the textual result payload.
type StatusEnvelope struct {
	Status string
	Result string
}

// normalizeNumbers turns integral float64 values into int64 so the result is
// accepted by unstructured deep copies.
func normalizeNumbers(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, item := range t {
			t[k] = normalizeNumbers(item)
		}
		return t
	case []interface{}:
		for i, item := range t {
			t[i] = normalizeNumbers(item)
		}
		return t
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int64(t)
		}
		return t
	default:
		return v
	}
}
