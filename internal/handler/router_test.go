package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chargefix/portal/internal/auth"
	"github.com/chargefix/portal/internal/identity"
	"github.com/chargefix/portal/internal/middleware"
	"github.com/chargefix/portal/internal/model"
)

type mockSessionClient struct {
	getUserFn func(ctx context.Context, accessToken string) (*identity.User, error)
}

func (m *mockSessionClient) GetUser(ctx context.Context, accessToken string) (*identity.User, error) {
	if m.getUserFn != nil {
		return m.getUserFn(ctx, accessToken)
	}
	return nil, errors.New("no session")
}

func (m *mockSessionClient) RefreshSession(_ context.Context, _ string) (*model.Session, *identity.User, error) {
	return nil, nil, errors.New("no session")
}

var _ middleware.SessionClient = (*mockSessionClient)(nil)

func newTestRouter(t *testing.T, session middleware.SessionClient, authSvc AuthServiceInterface, repairSvc RepairServiceInterface) http.Handler {
	t.Helper()
	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	return NewRouter(&RouterDeps{
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		SessionClient:     session,
		CookieConfig:      middleware.CookieConfig{},
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		AuthService:       authSvc,
		RepairService:     repairSvc,
	})
}

func TestRouter_Health_OpenWithoutSession(t *testing.T) {
	router := newTestRouter(t, &mockSessionClient{}, &mockAuthService{}, &mockRepairService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	data := decodeEnvelope(t, rec)
	if data["status"] != "ok" {
		t.Errorf("status = %v, want ok", data["status"])
	}
}

func TestRouter_FullLoginFlow(t *testing.T) {
	issuer := auth.NewTicketIssuer("test-secret", 10*time.Minute)

	authSvc := &mockAuthService{
		validateFn: func(_ context.Context, phone, email string) (*auth.ValidateResult, error) {
			if phone != "611223344" || email != "tech@example.com" {
				t.Errorf("Validate(%q, %q)", phone, email)
			}
			ticket, err := issuer.Issue(model.AuthMethodEmail, "tech@example.com")
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}
			return &auth.ValidateResult{
				Ticket:     ticket,
				Method:     model.AuthMethodEmail,
				Identifier: "tech@example.com",
				Name:       "Ana García",
			}, nil
		},
		sendCodeFn: func(_ context.Context, ticket string, method model.AuthMethod, identifier string) error {
			if err := issuer.Verify(ticket, method, identifier); err != nil {
				return model.NewTicketInvalidError()
			}
			return nil
		},
		verifyCodeFn: func(_ context.Context, ticket string, method model.AuthMethod, identifier, code string) (*model.Technician, *model.Session, error) {
			if err := issuer.Verify(ticket, method, identifier); err != nil {
				return nil, nil, model.NewTicketInvalidError()
			}
			if code != "123456" {
				return nil, nil, model.NewVerificationInvalidError()
			}
			return &model.Technician{
					IdentityID: "uid-1",
					Name:       "Ana García",
					Email:      "tech@example.com",
					RecordID:   "recAna",
					Role:       model.Role,
				}, &model.Session{
					AccessToken:  "at-123",
					RefreshToken: "rt-456",
					ExpiresIn:    3600,
				}, nil
		},
	}
	router := newTestRouter(t, &mockSessionClient{}, authSvc, &mockRepairService{})

	// Phase 1: directory validation.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/validar",
		strings.NewReader(`{"telefono":"611223344","email":"tech@example.com"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("validar status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	validateData := decodeEnvelope(t, rec)
	ticket, _ := validateData["ticket"].(string)
	if ticket == "" {
		t.Fatal("validar returned no ticket")
	}

	// Phase 2: passcode dispatch.
	sendBody, _ := json.Marshal(map[string]string{
		"ticket":        ticket,
		"metodo":        "email",
		"identificador": "tech@example.com",
	})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/enviar-codigo", strings.NewReader(string(sendBody))))
	if rec.Code != http.StatusOK {
		t.Fatalf("enviar-codigo status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	// Phase 3: verification.
	verifyBody, _ := json.Marshal(map[string]string{
		"ticket":        ticket,
		"metodo":        "email",
		"identificador": "tech@example.com",
		"codigo":        "123456",
	})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/verificar-codigo", strings.NewReader(string(verifyBody))))
	if rec.Code != http.StatusOK {
		t.Fatalf("verificar-codigo status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	data := decodeEnvelope(t, rec)
	tech, _ := data["tecnico"].(map[string]any)
	if tech["email"] != "tech@example.com" || tech["rol"] != "technician" {
		t.Errorf("tecnico = %v", tech)
	}

	var gotAccess string
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.AccessTokenCookie {
			gotAccess = c.Value
		}
	}
	if gotAccess != "at-123" {
		t.Errorf("access cookie = %q, want at-123", gotAccess)
	}
}

func TestRouter_SkippingValidation_Rejected(t *testing.T) {
	// Dispatch without a ticket from the validation phase must fail:
	// phase ordering is enforced server-side.
	issuer := auth.NewTicketIssuer("test-secret", 10*time.Minute)
	authSvc := &mockAuthService{
		sendCodeFn: func(_ context.Context, ticket string, method model.AuthMethod, identifier string) error {
			if err := issuer.Verify(ticket, method, identifier); err != nil {
				return model.NewTicketInvalidError()
			}
			return nil
		},
	}
	router := newTestRouter(t, &mockSessionClient{}, authSvc, &mockRepairService{})

	body := `{"ticket":"","metodo":"email","identificador":"tech@example.com"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/enviar-codigo", strings.NewReader(body)))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRouter_ProtectedRoute_RequiresSession(t *testing.T) {
	router := newTestRouter(t, &mockSessionClient{}, &mockAuthService{}, &mockRepairService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reparaciones", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRouter_ProtectedRoute_WithSession_ReachesHandler(t *testing.T) {
	session := &mockSessionClient{
		getUserFn: func(_ context.Context, accessToken string) (*identity.User, error) {
			if accessToken != "at-123" {
				return nil, errors.New("unknown token")
			}
			return &identity.User{
				ID:    "uid-1",
				Email: "tech@example.com",
				UserMetadata: map[string]any{
					"nombre":     "Ana García",
					"tecnico_id": "recAna",
					"rol":        "technician",
				},
			}, nil
		},
	}
	repairSvc := &mockRepairService{
		listAssignedFn: func(_ context.Context, tech *model.Technician) ([]model.Repair, error) {
			if tech.RecordID != "recAna" {
				t.Errorf("RecordID = %q, want recAna", tech.RecordID)
			}
			return []model.Repair{{RecordID: "rec1", State: model.RepairStateAssigned}}, nil
		},
	}
	router := newTestRouter(t, session, &mockAuthService{}, repairSvc)

	req := httptest.NewRequest(http.MethodGet, "/api/reparaciones", nil)
	req.AddCookie(&http.Cookie{Name: middleware.AccessTokenCookie, Value: "at-123"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	data := decodeEnvelope(t, rec)
	repairs, _ := data["reparaciones"].([]any)
	if len(repairs) != 1 {
		t.Errorf("len(reparaciones) = %d, want 1", len(repairs))
	}
}

func TestRouter_SecurityHeadersPresent(t *testing.T) {
	router := newTestRouter(t, &mockSessionClient{}, &mockAuthService{}, &mockRepairService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("X-Content-Type-Options header missing")
	}
	if rec.Header().Get("X-Frame-Options") == "" {
		t.Error("X-Frame-Options header missing")
	}
}

func TestRouter_CORSPreflightAnswered(t *testing.T) {
	router := newTestRouter(t, &mockSessionClient{}, &mockAuthService{}, &mockRepairService{})

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/validar", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent && rec.Code != http.StatusOK {
		t.Errorf("preflight status = %d, want 204 or 200", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}
