package providers

import (
	"errors"
	"net/http"
	"testing"

	"screenguide/internal/domain"
)

func TestErrorForStatus(t *testing.T) {
	t.Parallel()

	cases := map[int]error{
		http.StatusUnauthorized:        domain.ErrPermissionDenied,
		http.StatusForbidden:           domain.ErrPermissionDenied,
		http.StatusTooManyRequests:     domain.ErrRateLimited,
		http.StatusInternalServerError: domain.ErrServiceError,
		http.StatusBadRequest:          domain.ErrServiceError,
	}
	for status, want := range cases {
		if got := ErrorForStatus(status); !errors.Is(got, want) {
			t.Fatalf("status %d: got %v, want %v", status, got, want)
		}
	}
}
