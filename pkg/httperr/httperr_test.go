package httperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsBadRequest(t *testing.T) {
	if IsBadRequest(nil) {
		t.Fatalf("expected false for nil")
	}
	if !IsBadRequest(NewBadRequest("bad")) {
		t.Fatalf("expected true for BadRequestError")
	}
	if !IsBadRequest(fmt.Errorf("wrap: %w", NewBadRequestf("bad %d", 1))) {
		t.Fatalf("expected true for wrapped BadRequestError")
	}
	if IsBadRequest(errors.New("other")) {
		t.Fatalf("expected false for non-BadRequestError")
	}
}

func TestBadRequestMessage(t *testing.T) {
	msg, ok := BadRequestMessage(fmt.Errorf("record: %w", NewBadRequestf("invalid %s", "status")))
	if !ok || msg != "invalid status" {
		t.Fatalf("msg=%q ok=%v", msg, ok)
	}
	if _, ok := BadRequestMessage(errors.New("boom")); ok {
		t.Fatalf("expected no message")
	}
}
