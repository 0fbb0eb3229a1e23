package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := ErrSlotConflict.WithDetail("suggested_time", "10:00")
	wrapped := fmt.Errorf("book: %w", err)

	if !errors.Is(wrapped, ErrSlotConflict) {
		t.Fatal("expected wrapped detail error to match sentinel")
	}
	if errors.Is(wrapped, ErrOverpayment) {
		t.Fatal("did not expect overpayment match")
	}
	if ErrSlotConflict.Details != nil {
		t.Fatal("WithDetail must not mutate the sentinel")
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err      error
		expected Kind
	}{
		{ErrPastDate, KindValidation},
		{ErrSlotConflict, KindConflict},
		{ErrOverpayment, KindConflict},
		{ErrPermissionDenied, KindPermission},
		{NotFound("doctor"), KindNotFound},
		{ErrInvalidTransition, KindState},
		{errors.New("connection reset"), KindInternal},
	}
	for _, c := range cases {
		if got := KindOf(c.err); got != c.expected {
			t.Fatalf("%v: expected %s, got %s", c.err, c.expected, got)
		}
	}
}

func TestInternalHidesCause(t *testing.T) {
	cause := errors.New("pq: relation does not exist")
	err := Internal(cause)
	if err.Message != "internal error" {
		t.Fatalf("unexpected message %q", err.Message)
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to be unwrappable")
	}
}
