package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "foreign", err: errors.New("boom"), want: KindUnexpected},
		{name: "not found", err: notFound("x"), want: KindNotFound},
		{name: "wrapped", err: fmt.Errorf("outer: %w", forbidden("x")), want: KindForbidden},
		{name: "infrastructure", err: infrastructure("op", context.DeadlineExceeded), want: KindInfrastructure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRetryableOnlyForInfrastructure(t *testing.T) {
	if !Retryable(infrastructure("op", errors.New("x"))) {
		t.Fatal("infrastructure should be retryable")
	}
	for _, err := range []error{badRequest("x"), conflict("x"), unexpected("op", errors.New("x")), nil} {
		if Retryable(err) {
			t.Fatalf("%v should not be retryable", err)
		}
	}
}

func TestErrorsIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("flow: %w", badRequest("wrong code"))
	if !errors.Is(err, ErrBadRequest) {
		t.Fatal("expected match on kind")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("unexpected match on other kind")
	}
}

func TestInternalDetailsStayOutOfMessage(t *testing.T) {
	cause := errors.New("pq: password authentication failed for user identity")
	for _, err := range []*Error{infrastructure("find", cause), unexpected("hash", cause)} {
		if err.Error() == "" || errors.Unwrap(err) == nil {
			t.Fatalf("unexpected error shape: %+v", err)
		}
		if got := err.Error(); got == cause.Error() {
			t.Fatalf("cause leaked into message: %q", got)
		}
		if !errors.Is(err, cause) {
			t.Fatal("expected cause to be reachable")
		}
	}
}
