package http

import (
	"errors"
	"net/http"
	"strings"

	"capex/internal/breaker"
	"capex/internal/ledger"
)

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// storeErrorStatus maps a store failure onto a response status.
func storeErrorStatus(err error) int {
	var batch *ledger.BatchError
	switch {
	case errors.As(err, &batch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, breaker.ErrOpen), errors.Is(err, ledger.ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
