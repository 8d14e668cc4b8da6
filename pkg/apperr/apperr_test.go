package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("update task: %w", NotFound("task not found"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("expected wrapped not found to match sentinel")
	}
	if errors.Is(err, ErrConflict) {
		t.Fatal("not found must not match conflict")
	}
}

func TestCodeOfAndStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{Conflict("dup"), http.StatusConflict},
		{ErrInvalidCredentials, http.StatusUnauthorized},
		{ErrUnauthenticated, http.StatusUnauthorized},
		{NotFound("gone"), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := CodeOf(c.err).HTTPStatus(); got != c.status {
			t.Fatalf("%v: expected status %d, got %d", c.err, c.status, got)
		}
	}
}

func TestPublicMessageHidesInternalDetail(t *testing.T) {
	raw := errors.New(`pq: relation "users" does not exist`)
	if got := PublicMessage(fmt.Errorf("get user: %w", raw)); got != "server error" {
		t.Fatalf("expected generic message, got %q", got)
	}
	if got := PublicMessage(Wrap(CodeInternal, "db down", raw)); got != "server error" {
		t.Fatalf("expected generic message for internal code, got %q", got)
	}
	if got := PublicMessage(Conflict("email already in use")); got != "email already in use" {
		t.Fatalf("unexpected message %q", got)
	}
}
