package strategy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/wakeguard/wakeguard/pkg/platform"
)

func TestError_MessageIncludesStrategyAndCode(t *testing.T) {
	err := NewError(CodeTimeout, "media", context.DeadlineExceeded)

	msg := err.Error()
	if !strings.Contains(msg, "media") {
		t.Errorf("expected strategy name in message, got %q", msg)
	}
	if !strings.Contains(msg, string(CodeTimeout)) {
		t.Errorf("expected code in message, got %q", msg)
	}

	bare := NewError(CodeNotSupported, "audio", nil)
	if !strings.Contains(bare.Error(), string(CodeNotSupported)) {
		t.Errorf("expected code in message, got %q", bare.Error())
	}
}

func TestError_SentinelMatching(t *testing.T) {
	tests := []struct {
		code     Code
		sentinel error
	}{
		{CodeNotSupported, ErrNotSupported},
		{CodePermissionDenied, ErrPermissionDenied},
		{CodeInvalidState, ErrInvalidState},
		{CodeTimeout, ErrTimeout},
		{CodeStrategyFailed, ErrStrategyFailed},
		{CodeUnknown, ErrUnknown},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := NewError(tt.code, "native", nil)
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("expected errors.Is match for %s", tt.code)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("underlying platform failure")
	err := NewError(CodeStrategyFailed, "timer", cause)

	if !errors.Is(err, cause) {
		t.Error("expected wrapped cause reachable via errors.Is")
	}

	wrapped := fmt.Errorf("attempt failed: %w", err)
	var classified *Error
	if !errors.As(wrapped, &classified) {
		t.Fatal("expected errors.As to find classified error")
	}
	if classified.Strategy != "timer" {
		t.Errorf("expected strategy timer, got %q", classified.Strategy)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, ""},
		{"classified", NewError(CodePermissionDenied, "native", nil), CodePermissionDenied},
		{"platform not supported", platform.ErrNotSupported, CodeNotSupported},
		{"platform denied", platform.ErrPermissionDenied, CodePermissionDenied},
		{"deadline", context.DeadlineExceeded, CodeTimeout},
		{"canceled", context.Canceled, CodeTimeout},
		{"wrapped deadline", fmt.Errorf("acquire: %w", context.DeadlineExceeded), CodeTimeout},
		{"unclassified", errors.New("mystery"), CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTranslateErr_DefaultsToStrategyFailed(t *testing.T) {
	err := translateErr("audio", errors.New("graph exploded"))
	if err.Code != CodeStrategyFailed {
		t.Errorf("expected STRATEGY_FAILED, got %s", err.Code)
	}
	if err.Strategy != "audio" {
		t.Errorf("expected strategy audio, got %q", err.Strategy)
	}

	// Already-classified errors pass through untouched.
	orig := NewError(CodeTimeout, "audio", nil)
	if got := translateErr("audio", fmt.Errorf("outer: %w", orig)); got.Code != CodeTimeout {
		t.Errorf("expected classification preserved, got %s", got.Code)
	}
}
