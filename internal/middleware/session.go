// Package middleware provides the HTTP middleware chain.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/chargefix/portal/internal/identity"
	"github.com/chargefix/portal/internal/model"
)

// Session cookie names, matching the identity provider's convention.
const (
	AccessTokenCookie  = "sb-access-token"
	RefreshTokenCookie = "sb-refresh-token"
)

// contextKey is a type-safe key for request-context values.
type contextKey string

// technicianContextKey stores the authenticated technician profile.
var technicianContextKey = contextKey("technician")

// RouteClass is the access class of a request path.
type RouteClass int

const (
	// RoutePublic is always allowed (health, metrics).
	RoutePublic RouteClass = iota
	// RouteAuth is always allowed; these endpoints establish the session.
	RouteAuth
	// RouteProtected requires a valid technician session.
	RouteProtected
)

// publicRoutes and authRoutes are exact-match allow lists. Anything not
// listed is protected: classification is default-deny, so an unlisted path
// can never silently bypass the guard.
var (
	publicRoutes = map[string]struct{}{
		"/health":  {},
		"/metrics": {},
	}
	authRoutes = map[string]struct{}{
		"/api/auth/validar":          {},
		"/api/auth/enviar-codigo":    {},
		"/api/auth/verificar-codigo": {},
		"/api/auth/logout":           {},
	}
)

// ClassifyRoute classifies a request path into exactly one RouteClass.
func ClassifyRoute(path string) RouteClass {
	if _, ok := publicRoutes[path]; ok {
		return RoutePublic
	}
	if _, ok := authRoutes[path]; ok {
		return RouteAuth
	}
	return RouteProtected
}

// SessionClient is the identity-provider subset the guard needs.
type SessionClient interface {
	GetUser(ctx context.Context, accessToken string) (*identity.User, error)
	RefreshSession(ctx context.Context, refreshToken string) (*model.Session, *identity.User, error)
}

// CookieConfig controls how session cookies are written.
type CookieConfig struct {
	Secure bool
	Domain string
}

// SetSessionCookies writes the HTTP-only token cookies for a session.
func SetSessionCookies(w http.ResponseWriter, cfg CookieConfig, session *model.Session) {
	maxAge := session.ExpiresIn
	if maxAge <= 0 {
		maxAge = 3600
	}
	http.SetCookie(w, &http.Cookie{
		Name:     AccessTokenCookie,
		Value:    session.AccessToken,
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	// The refresh token outlives the access token so expired sessions can
	// slide instead of forcing a new login.
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshTokenCookie,
		Value:    session.RefreshToken,
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   30 * 24 * 3600,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookies expires both token cookies.
func ClearSessionCookies(w http.ResponseWriter, cfg CookieConfig) {
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Domain:   cfg.Domain,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   cfg.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// NewSessionGuard returns the request gatekeeper. Public and auth paths
// pass through untouched. For protected paths it resolves the session from
// the token cookies, sliding it via the refresh token when the access token
// no longer resolves, enforces the technician role, and injects the profile
// into the request context.
//
// Unauthenticated or unauthorized requests get JSON errors on /api/ paths
// and a redirect to the root (carrying the original path in a `redirect`
// query parameter) on page paths.
func NewSessionGuard(client SessionClient, cfg CookieConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch ClassifyRoute(r.URL.Path) {
			case RoutePublic, RouteAuth:
				next.ServeHTTP(w, r)
				return
			}

			user := resolveSession(w, r, client, cfg)
			if user == nil {
				rejectRequest(w, r, model.NewUnauthenticatedError())
				return
			}

			if user.MetadataString("rol") != model.Role {
				slog.Warn("session with non-technician role rejected",
					slog.String("identity_id", user.ID),
					slog.String("path", r.URL.Path),
				)
				rejectRequest(w, r, model.NewUnauthorizedError())
				return
			}

			tech := &model.Technician{
				IdentityID: user.ID,
				Name:       user.MetadataString("nombre"),
				Email:      user.Email,
				Phone:      user.Phone,
				RecordID:   user.MetadataString("tecnico_id"),
				Role:       user.MetadataString("rol"),
			}
			ctx := context.WithValue(r.Context(), technicianContextKey, tech)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// resolveSession returns the account behind the request's cookies, sliding
// the session when the access token has gone stale. Returns nil when no
// valid session exists.
func resolveSession(w http.ResponseWriter, r *http.Request, client SessionClient, cfg CookieConfig) *identity.User {
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		user, err := client.GetUser(r.Context(), cookie.Value)
		if err == nil {
			return user
		}
	}

	refresh, err := r.Cookie(RefreshTokenCookie)
	if err != nil || refresh.Value == "" {
		return nil
	}

	session, user, err := client.RefreshSession(r.Context(), refresh.Value)
	if err != nil || user == nil {
		return nil
	}

	// Propagate the refreshed pair so the next request uses it directly.
	SetSessionCookies(w, cfg, session)
	return user
}

// rejectRequest answers an auth failure according to the request kind.
func rejectRequest(w http.ResponseWriter, r *http.Request, apiErr *model.APIError) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		WriteAPIError(w, apiErr)
		return
	}
	target := fmt.Sprintf("/?redirect=%s", url.QueryEscape(r.URL.Path))
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// TechnicianFromContext reads the authenticated technician from the request
// context. Valid only after the session guard has run.
func TechnicianFromContext(ctx context.Context) (*model.Technician, error) {
	tech, ok := ctx.Value(technicianContextKey).(*model.Technician)
	if !ok || tech == nil {
		return nil, fmt.Errorf("technician not found in context")
	}
	return tech, nil
}

// ContextWithTechnician injects a technician profile into a context.
// Used by tests and non-middleware context construction.
func ContextWithTechnician(ctx context.Context, tech *model.Technician) context.Context {
	return context.WithValue(ctx, technicianContextKey, tech)
}
