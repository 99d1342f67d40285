package handler

import (
	"context"
	"net/http"

	"github.com/chargefix/portal/internal/auth"
	"github.com/chargefix/portal/internal/middleware"
	"github.com/chargefix/portal/internal/model"
)

// AuthServiceInterface is the service interface the auth handler needs.
type AuthServiceInterface interface {
	Validate(ctx context.Context, phone, email string) (*auth.ValidateResult, error)
	SendCode(ctx context.Context, ticket string, method model.AuthMethod, identifier string) error
	VerifyCode(ctx context.Context, ticket string, method model.AuthMethod, identifier, code string) (*model.Technician, *model.Session, error)
	Logout(ctx context.Context, accessToken string)
}

// AuthHandler serves the three-phase login flow plus logout and profile.
type AuthHandler struct {
	service AuthServiceInterface
	cookies middleware.CookieConfig
}

// NewAuthHandler builds an AuthHandler.
func NewAuthHandler(service AuthServiceInterface, cookies middleware.CookieConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		cookies: cookies,
	}
}

// validateRequest is the phase-one request body.
type validateRequest struct {
	Phone string `json:"telefono"`
	Email string `json:"email"`
}

// Validate runs directory validation and identity sync and returns the
// login ticket for the next phases.
// POST /api/auth/validar
func (h *AuthHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Phone == "" && req.Email == "" {
		writeError(w, model.NewValidationError("indica un teléfono o un email"))
		return
	}

	result, err := h.service.Validate(r.Context(), req.Phone, req.Email)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, result)
}

// sendCodeRequest is the phase-two request body.
type sendCodeRequest struct {
	Ticket     string           `json:"ticket"`
	Method     model.AuthMethod `json:"metodo"`
	Identifier string           `json:"identificador"`
}

// SendCode dispatches the one-time passcode.
// POST /api/auth/enviar-codigo
func (h *AuthHandler) SendCode(w http.ResponseWriter, r *http.Request) {
	var req sendCodeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.service.SendCode(r.Context(), req.Ticket, req.Method, req.Identifier); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, map[string]any{
		"enviado": true,
		"validez": "1 hora",
	})
}

// verifyCodeRequest is the phase-three request body.
type verifyCodeRequest struct {
	Ticket     string           `json:"ticket"`
	Method     model.AuthMethod `json:"metodo"`
	Identifier string           `json:"identificador"`
	Code       string           `json:"codigo"`
}

// VerifyCode exchanges the passcode for a session, sets the HTTP-only
// session cookies and returns the technician profile.
// POST /api/auth/verificar-codigo
func (h *AuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Code == "" {
		writeError(w, model.NewValidationError("indica el código recibido"))
		return
	}

	tech, session, err := h.service.VerifyCode(r.Context(), req.Ticket, req.Method, req.Identifier, req.Code)
	if err != nil {
		writeError(w, err)
		return
	}

	middleware.SetSessionCookies(w, h.cookies, session)

	writeSuccess(w, map[string]any{
		"tecnico": tech,
		"session": session,
	})
}

// Logout revokes the session and clears the cookies. The cookies are
// cleared even when upstream revocation fails.
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.AccessTokenCookie); err == nil && cookie.Value != "" {
		h.service.Logout(r.Context(), cookie.Value)
	}

	middleware.ClearSessionCookies(w, h.cookies)
	writeSuccess(w, nil)
}

// Me returns the authenticated technician's profile.
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	tech, err := middleware.TechnicianFromContext(r.Context())
	if err != nil {
		writeError(w, model.NewUnauthenticatedError())
		return
	}

	writeSuccess(w, map[string]any{"tecnico": tech})
}
