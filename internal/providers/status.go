// Package providers holds helpers shared by the hosted-model adapters.
package providers

import (
	"net/http"

	"screenguide/internal/domain"
)

// ErrorForStatus maps an HTTP status from a model API onto a domain error.
func ErrorForStatus(status int) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ErrPermissionDenied
	case http.StatusTooManyRequests:
		return domain.ErrRateLimited
	default:
		return domain.ErrServiceError
	}
}
