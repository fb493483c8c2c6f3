package domain

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBlockedContentError_IsAndAs(t *testing.T) {
	err := error(&BlockedContentError{ScanID: "scan-1", DataTypes: []string{"CREDENTIAL_SECRET"}})

	if !errors.Is(err, ErrBlockedContent) {
		t.Fatal("expected errors.Is(ErrBlockedContent)")
	}
	var bce *BlockedContentError
	if !errors.As(err, &bce) || bce.ScanID != "scan-1" {
		t.Fatalf("expected scan id scan-1, got %+v", bce)
	}
}

func TestAdapterErrors_UnwrapCause(t *testing.T) {
	cause := errors.New("connection refused")

	unavailable := &AdapterUnavailableError{Adapter: "embedding", Err: cause}
	if !errors.Is(unavailable, ErrAdapterUnavailable) || !errors.Is(unavailable, cause) {
		t.Errorf("unavailable error should match kind and cause: %v", unavailable)
	}

	timeout := &AdapterTimeoutError{Adapter: "llm", Elapsed: time.Second, Err: context.DeadlineExceeded}
	if !errors.Is(timeout, ErrAdapterTimeout) || !errors.Is(timeout, context.DeadlineExceeded) {
		t.Errorf("timeout error should match kind and cause: %v", timeout)
	}
}

func TestValidationError_Message(t *testing.T) {
	err := NewValidationError("top_k", -1, "must be positive")
	if !errors.Is(err, ErrValidation) {
		t.Fatal("expected ErrValidation")
	}
	want := "validation error: top_k must be positive (got -1)"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestCallAdapter_Success(t *testing.T) {
	err := CallAdapter(context.Background(), "embedding", time.Second, func(context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCallAdapter_Timeout(t *testing.T) {
	err := CallAdapter(context.Background(), "llm", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	var te *AdapterTimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected AdapterTimeoutError, got %v", err)
	}
	if te.Adapter != "llm" || te.Elapsed < 10*time.Millisecond {
		t.Errorf("unexpected timeout detail: %+v", te)
	}
}

func TestCallAdapter_Unavailable(t *testing.T) {
	cause := errors.New("503")
	err := CallAdapter(context.Background(), "ner", 0, func(context.Context) error { return cause })

	var ue *AdapterUnavailableError
	if !errors.As(err, &ue) || ue.Adapter != "ner" {
		t.Fatalf("expected AdapterUnavailableError for ner, got %v", err)
	}
}

func TestCallAdapter_KeepsDomainKind(t *testing.T) {
	orig := NewValidationError("query", "", "is required")
	err := CallAdapter(context.Background(), "llm", 0, func(context.Context) error { return orig })
	if err != orig {
		t.Fatalf("expected validation error untouched, got %v", err)
	}
}
