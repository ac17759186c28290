package rferrors

import (
	"errors"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "error with cause",
			err:  &Error{Kind: KindValidation, Message: "bad script", Cause: errors.New("parse error")},
			want: "validation: bad script: parse error",
		},
		{
			name: "error without cause",
			err:  &Error{Kind: KindNotFound, Message: "no such session"},
			want: "not_found: no such session",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := New(KindInternal, "oops", cause)
	if got := err.Unwrap(); got != cause {
		t.Errorf("Unwrap() = %v, want %v", got, cause)
	}

	bare := New(KindInternal, "oops", nil)
	if got := bare.Unwrap(); got != nil {
		t.Errorf("Unwrap() = %v, want nil", got)
	}
}

func TestConstructorsAndCheckers(t *testing.T) {
	cause := errors.New("cause")

	tests := []struct {
		name        string
		constructor func(string, error) *Error
		wantKind    Kind
		checker     func(error) bool
	}{
		{"NewNotFound", NewNotFound, KindNotFound, IsNotFound},
		{"NewValidation", NewValidation, KindValidation, IsValidation},
		{"NewOverloaded", NewOverloaded, KindOverloaded, IsOverloaded},
		{"NewInUse", NewInUse, KindInUse, IsInUse},
		{"NewTimeout", NewTimeout, KindTimeout, IsTimeout},
		{"NewCancelled", NewCancelled, KindCancelled, IsCancelled},
		{"NewEngineFault", NewEngineFault, KindEngineFault, IsEngineFault},
		{"NewEngineGone", NewEngineGone, KindEngineGone, IsEngineGone},
		{"NewToolError", NewToolError, KindToolError, IsToolError},
		{"NewInternal", NewInternal, KindInternal, IsInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.constructor("msg", cause)
			if err.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", err.Kind, tt.wantKind)
			}
			if !tt.checker(err) {
				t.Errorf("checker for %s returned false on matching error", tt.name)
			}
			if tt.checker(errors.New("plain")) {
				t.Errorf("checker for %s returned true on non-Error", tt.name)
			}
		})
	}

	if IsInternal(nil) {
		t.Errorf("IsInternal(nil) = true, want false")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, 400},
		{KindNotFound, 404},
		{KindInUse, 409},
		{KindOverloaded, 429},
		{KindTimeout, 504},
		{KindCancelled, 499},
		{KindEngineGone, 410},
		{KindToolError, 500},
		{KindEngineFault, 500},
		{KindInternal, 500},
	}

	for _, tt := range tests {
		e := New(tt.kind, "x", nil)
		if got := e.HTTPStatus(); got != tt.want {
			t.Errorf("HTTPStatus() for %v = %d, want %d", tt.kind, got, tt.want)
		}
	}
}
