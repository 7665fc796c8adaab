package errors

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func TestStatusCodes(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{MissingInput("no sales file"), http.StatusBadRequest},
		{ModelNotReady("train first"), http.StatusConflict},
		{InsufficientData("too few rows"), http.StatusUnprocessableEntity},
		{Validation("bad"), http.StatusBadRequest},
		{NotFound("gone"), http.StatusNotFound},
		{RateLimit("slow down"), http.StatusTooManyRequests},
		{PayloadTooLarge("too big"), http.StatusRequestEntityTooLarge},
		{UnsupportedMediaType("not multipart"), http.StatusUnsupportedMediaType},
		{Internal("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if tt.err.StatusCode != tt.want {
			t.Errorf("%s: expected status %d, got %d", tt.err.Code, tt.want, tt.err.StatusCode)
		}
	}
}

func TestHasCode(t *testing.T) {
	wrapped := fmt.Errorf("segmentation: %w", MissingInput("returns file missing"))

	if !HasCode(wrapped, CodeMissingInput) {
		t.Error("expected wrapped error to carry MISSING_INPUT")
	}
	if HasCode(wrapped, CodeModelNotReady) {
		t.Error("unexpected MODEL_NOT_READY match")
	}
	if HasCode(fmt.Errorf("plain"), CodeInternal) {
		t.Error("plain errors carry no code")
	}
}

func TestWriteError_WrappedAppError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	w := httptest.NewRecorder()

	err := fmt.Errorf("check: %w", ModelNotReady("models not trained"))
	WriteError(w, logger, err, "req-1")

	if w.Code != http.StatusConflict {
		t.Errorf("expected status 409, got %d", w.Code)
	}

	var resp struct {
		Success bool `json:"success"`
		Error   struct {
			Code      string `json:"code"`
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Success {
		t.Error("expected success=false")
	}
	if resp.Error.Code != string(CodeModelNotReady) {
		t.Errorf("expected MODEL_NOT_READY, got %q", resp.Error.Code)
	}
	if resp.Error.RequestID != "req-1" {
		t.Errorf("expected request id to be echoed, got %q", resp.Error.RequestID)
	}
}

func TestWriteError_PlainError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	w := httptest.NewRecorder()

	WriteError(w, logger, fmt.Errorf("disk on fire"), "")

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
}

func TestWriteSuccessWithHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessWithHeaders(w, map[string]int{"n": 1}, map[string]string{"Cache-Control": "no-store"})

	if w.Header().Get("Cache-Control") != "no-store" {
		t.Error("expected custom header to be set")
	}
	if w.Header().Get("Content-Type") != "application/json" {
		t.Error("expected JSON content type")
	}
}
