package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/chargefix/portal/internal/model"
)

// ErrorResponseBody is the unified JSON error format for all endpoints.
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// StatusForCode maps a taxonomy code onto its HTTP status.
func StatusForCode(code string) int {
	switch code {
	case model.ErrCodeNotFound, model.ErrCodeRepairNotFound:
		return http.StatusNotFound
	case model.ErrCodeInactive, model.ErrCodeUnauthorized:
		return http.StatusForbidden
	case model.ErrCodeTicketInvalid,
		model.ErrCodeVerificationExpired,
		model.ErrCodeVerificationInvalid,
		model.ErrCodeVerificationOther,
		model.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case model.ErrCodeValidation:
		return http.StatusBadRequest
	default:
		// CONFIGURATION_ERROR, SYNC_FAILURE, DISPATCH_FAILURE, INTERNAL_ERROR
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse writes an HTTP error in the unified format.
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteAPIError writes an APIError with the status its code maps to.
func WriteAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	WriteErrorResponse(w, StatusForCode(apiErr.Code), apiErr)
}

// WriteInternalServerError writes the generic 500 response. Detail belongs
// in the server log, not in the body.
func WriteInternalServerError(w http.ResponseWriter) {
	WriteAPIError(w, model.NewInternalError())
}
