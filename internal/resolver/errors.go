package resolver

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a resolution ended without a value.
type FailureKind string

const (
	KindSubmission FailureKind = "submission"
	KindTimeout    FailureKind = "timeout"
	KindDecode     FailureKind = "decode"
	KindFailed     FailureKind = "failed"
	KindCancelled  FailureKind = "cancelled"
	KindDisabled   FailureKind = "disabled"
)

var (
	ErrSubmission = errors.New("query submission failed")
	ErrTimeout    = errors.New("query did not complete in time")
	ErrDecode     = errors.New("query result could not be decoded")
	ErrFailed     = errors.New("query reported a terminal failure")
	ErrCancelled  = errors.New("query resolution cancelled")
	ErrDisabled   = errors.New("query resolution is disabled")
)

var sentinels = map[FailureKind]error{
	KindSubmission: ErrSubmission,
	KindTimeout:    ErrTimeout,
	KindDecode:     ErrDecode,
	KindFailed:     ErrFailed,
	KindCancelled:  ErrCancelled,
	KindDisabled:   ErrDisabled,
}

// Error is returned by Resolve for every failure. errors.Is matches both the
// kind sentinel and the underlying cause.
type Error struct {
	Kind     FailureKind
	Name     string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	msg := sentinels[e.Kind].Error()
	if e.Name != "" {
		msg = fmt.Sprintf("%s: %s (attempts=%d)", e.Name, msg, e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := []error{sentinels[e.Kind]}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// KindOf reports the failure kind of err, or "" when err did not come from
// a resolver.
func KindOf(err error) FailureKind {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return ""
}
