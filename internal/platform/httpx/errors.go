package httpx

import (
	"errors"
	"net/http"

	"github.com/hrdash/hrdash/internal/shared"
)

// StatusFor maps domain errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes the failed envelope for err. The raw error message is
// echoed for every class, persistence failures included.
func RespondError(w http.ResponseWriter, message string, err error) {
	status := StatusFor(err)
	if message == "" {
		message = http.StatusText(status)
	}
	Fail(w, status, message, err.Error())
}
