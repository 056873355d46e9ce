package chatError

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestChatErrorMatchesByKind(t *testing.T) {
	custom := NewChatError(http.StatusConflict, KindDuplicatePending, "request to bob is pending")

	if !errors.Is(custom, ErrDuplicatePending) {
		t.Fatalf("expected errors.Is to match on kind")
	}
	if errors.Is(custom, ErrBlocked) {
		t.Fatalf("did not expect match across kinds")
	}

	wrapped := fmt.Errorf("send request: %w", custom)
	var ce *ChatError
	if !errors.As(wrapped, &ce) {
		t.Fatalf("expected errors.As to unwrap ChatError")
	}
	if ce.Status != http.StatusConflict || ce.Error() != "request to bob is pending" {
		t.Fatalf("unexpected chat error: %+v", ce)
	}
}

func TestHelpers(t *testing.T) {
	if NotFound("x").Status != http.StatusNotFound {
		t.Fatalf("expected 404")
	}
	if NotAllowed("x").Kind != KindNotAllowed {
		t.Fatalf("expected not allowed kind")
	}
	if Validation("x").Status != http.StatusBadRequest {
		t.Fatalf("expected 400")
	}
	if Unauthorized("x").Status != http.StatusUnauthorized {
		t.Fatalf("expected 401")
	}
}
