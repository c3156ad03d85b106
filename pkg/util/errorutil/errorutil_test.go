package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
)

func TestToDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantStatus int
	}{
		{"validation", NewValidationError("bad", nil), CodeValidation, http.StatusBadRequest},
		{"wrapped conflict", fmt.Errorf("op: %w", NewConflict("dup", nil)), CodeConflict, http.StatusConflict},
		{"no rows", pgx.ErrNoRows, CodeNotFound, http.StatusNotFound},
		{"wrapped no rows", fmt.Errorf("get: %w", pgx.ErrNoRows), CodeNotFound, http.StatusNotFound},
		{"plain", errors.New("boom"), CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToDomainError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.HTTPStatus != tt.wantStatus {
				t.Errorf("status = %d, want %d", got.HTTPStatus, tt.wantStatus)
			}
		})
	}
}

func TestToDomainError_Nil(t *testing.T) {
	if ToDomainError(nil) != nil {
		t.Fatal("expected nil for nil error")
	}
	if MapError(nil) != nil {
		t.Fatal("expected nil MapError for nil error")
	}
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("verify: %w", NewUnauthorized("expired"))
	if !HasCode(err, CodeUnauthorized) {
		t.Error("expected unauthorized code")
	}
	if HasCode(err, CodeNotFound) {
		t.Error("unexpected not found code")
	}
	if HasCode(errors.New("plain"), CodeInternal) {
		t.Error("plain errors carry no code")
	}
}

func TestInternalErrorHidesCause(t *testing.T) {
	de := ToDomainError(errors.New("password=secret"))
	if de.Message != "internal server error" {
		t.Errorf("message = %q", de.Message)
	}
	if de.Err == nil {
		t.Error("cause should be retained for logging")
	}
}
