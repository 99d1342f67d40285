// Package model defines the domain model.
package model

import "fmt"

// APIError is the unified error format returned by every endpoint.
// It carries a stable code, a user-facing Spanish message, a category
// and a suggested action. Upstream diagnostic detail is logged server-side
// and never placed in an APIError.
type APIError struct {
	Code     string // stable error code
	Message  string // user-facing message (Spanish)
	Category string // category: auth, validation, directory, repair, system
	Action   string // what the user can do about it
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Defined error codes.
const (
	ErrCodeConfiguration        = "CONFIGURATION_ERROR"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeInactive             = "INACTIVE"
	ErrCodeSyncFailure          = "SYNC_FAILURE"
	ErrCodeDispatchFailure      = "DISPATCH_FAILURE"
	ErrCodeTicketInvalid        = "TICKET_INVALID"
	ErrCodeVerificationExpired  = "VERIFICATION_EXPIRED"
	ErrCodeVerificationInvalid  = "VERIFICATION_INVALID"
	ErrCodeVerificationOther    = "VERIFICATION_OTHER"
	ErrCodeUnauthenticated      = "UNAUTHENTICATED"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeRepairNotFound       = "REPAIR_NOT_FOUND"
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// NewConfigurationError reports a misconfigured backing store or provider.
func NewConfigurationError() *APIError {
	return &APIError{
		Code:     ErrCodeConfiguration,
		Message:  "El servicio no está disponible en este momento.",
		Category: "system",
		Action:   "Inténtalo de nuevo más tarde o contacta con el administrador.",
	}
}

// NewNotFoundError reports an identifier that is not in the technician
// directory. The message deliberately does not disclose which part failed.
func NewNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  "Credenciales no válidas. Verifica el teléfono o email introducido.",
		Category: "auth",
		Action:   "Comprueba tus datos o contacta con el administrador.",
	}
}

// NewInactiveError reports a directory entry that exists but is deactivated.
func NewInactiveError() *APIError {
	return &APIError{
		Code:     ErrCodeInactive,
		Message:  "Tu cuenta de técnico está desactivada.",
		Category: "auth",
		Action:   "Contacta con el administrador para reactivar tu acceso.",
	}
}

// NewSyncFailureError reports a failed identity-provider create/update.
func NewSyncFailureError() *APIError {
	return &APIError{
		Code:     ErrCodeSyncFailure,
		Message:  "No se pudo preparar tu cuenta de acceso.",
		Category: "auth",
		Action:   "Inténtalo de nuevo en unos minutos.",
	}
}

// NewDispatchFailureError reports a failed passcode delivery.
func NewDispatchFailureError() *APIError {
	return &APIError{
		Code:     ErrCodeDispatchFailure,
		Message:  "No se pudo enviar el código de acceso.",
		Category: "auth",
		Action:   "Inténtalo de nuevo en unos minutos.",
	}
}

// NewTicketInvalidError reports a missing, expired or mismatched login ticket.
func NewTicketInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeTicketInvalid,
		Message:  "La sesión de acceso ha caducado.",
		Category: "auth",
		Action:   "Vuelve a introducir tu teléfono o email para empezar de nuevo.",
	}
}

// NewVerificationExpiredError reports an expired one-time passcode.
func NewVerificationExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeVerificationExpired,
		Message:  "El código ha caducado. Los códigos son válidos durante 1 hora.",
		Category: "auth",
		Action:   "Solicita un código nuevo.",
	}
}

// NewVerificationInvalidError reports a wrong one-time passcode.
func NewVerificationInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeVerificationInvalid,
		Message:  "El código introducido no es correcto.",
		Category: "auth",
		Action:   "Revisa el código recibido e inténtalo de nuevo.",
	}
}

// NewVerificationOtherError reports any other verification failure.
func NewVerificationOtherError() *APIError {
	return &APIError{
		Code:     ErrCodeVerificationOther,
		Message:  "No se pudo verificar el código.",
		Category: "auth",
		Action:   "Solicita un código nuevo e inténtalo otra vez.",
	}
}

// NewUnauthenticatedError reports a request without a valid session.
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "Necesitas iniciar sesión para acceder.",
		Category: "auth",
		Action:   "Inicia sesión e inténtalo de nuevo.",
	}
}

// NewUnauthorizedError reports a valid session whose role is not technician.
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Tu cuenta no tiene acceso al portal de técnicos.",
		Category: "auth",
		Action:   "Contacta con el administrador si crees que es un error.",
	}
}

// NewRepairNotFoundError reports a repair id that does not exist or is not
// assigned to the requesting technician.
func NewRepairNotFoundError(repairID string) *APIError {
	return &APIError{
		Code:     ErrCodeRepairNotFound,
		Message:  fmt.Sprintf("No se encontró la reparación: %s", repairID),
		Category: "repair",
		Action:   "Actualiza la lista de reparaciones asignadas.",
	}
}

// NewValidationError reports a malformed request body or parameter.
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("Solicitud no válida: %s", reason),
		Category: "validation",
		Action:   "Revisa los datos introducidos.",
	}
}

// NewInternalError reports an unexpected server-side failure.
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Se ha producido un error interno.",
		Category: "system",
		Action:   "Inténtalo de nuevo más tarde.",
	}
}
