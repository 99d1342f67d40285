// Package handler provides the HTTP handlers.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/chargefix/portal/internal/middleware"
	"github.com/chargefix/portal/internal/model"
)

// successBody is the unified success envelope.
type successBody struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// writeSuccess writes a 200 response in the unified success envelope.
func writeSuccess(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(successBody{Success: true, Data: data})
}

// writeError writes err in the unified error format. Services return
// *model.APIError for every expected failure; anything else is an
// unclassified bug and becomes the generic 500.
func writeError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteAPIError(w, apiErr)
		return
	}
	slog.Error("unclassified handler error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// decodeBody decodes a JSON request body into dst.
func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return model.NewValidationError("cuerpo JSON mal formado")
	}
	return nil
}
