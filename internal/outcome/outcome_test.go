package outcome

import (
	"errors"
	"fmt"
	"testing"
)

func TestFromPreservesFailures(t *testing.T) {
	original := ServerError(500, "quota exceeded")
	wrapped := fmt.Errorf("execute: %w", original)

	got := From(wrapped)
	if got != original {
		t.Fatalf("expected original failure, got %+v", got)
	}
	if got.Error() != "ServerError(500): quota exceeded" {
		t.Fatalf("unexpected message %q", got.Error())
	}
}

func TestFromConvertsPlainErrors(t *testing.T) {
	cause := errors.New("boom")
	got := From(cause)
	if got.Kind != KindInternal {
		t.Fatalf("expected internal kind, got %s", got.Kind)
	}
	if !errors.Is(got, cause) {
		t.Fatal("expected cause to be preserved")
	}
	if From(nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}

func TestIs(t *testing.T) {
	if !Is(AuthExpired(), KindAuthExpired) {
		t.Fatal("expected auth expired kind")
	}
	if Is(errors.New("x"), KindInvalid) {
		t.Fatal("plain errors carry no kind")
	}
}
