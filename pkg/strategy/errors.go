package strategy

import (
	"context"
	"errors"
	"fmt"

	"github.com/wakeguard/wakeguard/pkg/platform"
)

// Code classifies an acquisition or release failure.
type Code string

const (
	// CodeNotSupported means the capability is absent or rejects the kind.
	CodeNotSupported Code = "NOT_SUPPORTED"
	// CodePermissionDenied means a prompt was declined or passive policy short-circuited.
	CodePermissionDenied Code = "PERMISSION_DENIED"
	// CodeInvalidState means an illegal call sequence.
	CodeInvalidState Code = "INVALID_STATE"
	// CodeTimeout means the acquisition deadline elapsed or the caller canceled.
	CodeTimeout Code = "TIMEOUT"
	// CodeStrategyFailed means a strategy raised an otherwise-unclassified
	// error, or the whole chain was exhausted.
	CodeStrategyFailed Code = "STRATEGY_FAILED"
	// CodeUnknown is the defensive catch-all.
	CodeUnknown Code = "UNKNOWN"
)

// Sentinel errors matched with errors.Is against classified failures.
var (
	ErrNotSupported     = errors.New("capability not supported")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidState     = errors.New("invalid state")
	ErrTimeout          = errors.New("acquisition timed out")
	ErrStrategyFailed   = errors.New("strategy failed")
	ErrUnknown          = errors.New("unknown error")
)

func (c Code) sentinel() error {
	switch c {
	case CodeNotSupported:
		return ErrNotSupported
	case CodePermissionDenied:
		return ErrPermissionDenied
	case CodeInvalidState:
		return ErrInvalidState
	case CodeTimeout:
		return ErrTimeout
	case CodeStrategyFailed:
		return ErrStrategyFailed
	default:
		return ErrUnknown
	}
}

// Error is a classified failure carrying the strategy name for diagnosis
// and wrapping the underlying platform error when one exists.
type Error struct {
	Code     Code
	Strategy string
	Err      error
}

// NewError builds a classified error. err may be nil.
func NewError(code Code, strategyName string, err error) *Error {
	return &Error{Code: code, Strategy: strategyName, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("strategy %s: %s: %v", e.Strategy, e.Code, e.Err)
	}
	return fmt.Sprintf("strategy %s: %s", e.Strategy, e.Code)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel corresponding to the error's code, so callers can
// write errors.Is(err, strategy.ErrTimeout) without unwrapping.
func (e *Error) Is(target error) bool {
	return target == e.Code.sentinel()
}

// Classify maps an arbitrary error to a Code. Context cancellation is
// indistinguishable from a deadline here: both classify as TIMEOUT unless
// the error already carries a more specific classification.
func Classify(err error) Code {
	if err == nil {
		return ""
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Code
	}
	switch {
	case errors.Is(err, platform.ErrNotSupported):
		return CodeNotSupported
	case errors.Is(err, platform.ErrPermissionDenied):
		return CodePermissionDenied
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return CodeTimeout
	default:
		return CodeUnknown
	}
}

// translateErr wraps a raw acquisition error into a classified Error for
// the given strategy, defaulting to STRATEGY_FAILED for anything the
// taxonomy does not recognize.
func translateErr(strategyName string, err error) *Error {
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	code := Classify(err)
	if code == CodeUnknown {
		code = CodeStrategyFailed
	}
	return NewError(code, strategyName, err)
}
