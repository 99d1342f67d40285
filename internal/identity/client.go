// Package identity provides the client for the identity provider
// (Supabase Auth / GoTrue): passcode dispatch and verification, session
// refresh, and the admin user API used for just-in-time provisioning.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/chargefix/portal/internal/model"
)

// Config configures the Client. URL points at the Supabase project;
// the service-role key is required only for the admin endpoints.
type Config struct {
	URL            string
	AnonKey        string
	ServiceRoleKey string
}

// Client talks to the GoTrue HTTP API.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	config     Config
}

// NewClient builds a Client.
func NewClient(httpClient *http.Client, logger *slog.Logger, config Config) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		config:     config,
	}
}

// User is an identity-provider account.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Phone        string         `json:"phone"`
	UserMetadata map[string]any `json:"user_metadata"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// MetadataString reads a string value from the user metadata.
func (u *User) MetadataString(key string) string {
	if u.UserMetadata == nil {
		return ""
	}
	if s, ok := u.UserMetadata[key].(string); ok {
		return s
	}
	return ""
}

// CreateUserParams describes a new account for admin creation.
// Confirmed flags mark the credentials as pre-verified so the first OTP
// can be delivered without a separate confirmation round-trip.
type CreateUserParams struct {
	Email    string
	Phone    string
	Metadata map[string]any
}

// sessionResponse is the wire shape of a token grant.
type sessionResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         *User  `json:"user"`
}

// SendOTP asks the provider to deliver a one-time passcode to the
// identifier. create_user is false: the account must already exist from
// the sync step, so a dispatch for an unknown identifier fails fast.
func (c *Client) SendOTP(ctx context.Context, method model.AuthMethod, identifier string) error {
	payload := map[string]any{"create_user": false}
	switch method {
	case model.AuthMethodEmail:
		payload["email"] = identifier
	case model.AuthMethodPhone:
		payload["phone"] = identifier
	default:
		return fmt.Errorf("unsupported auth method: %s", method)
	}

	_, err := c.request(ctx, http.MethodPost, "/auth/v1/otp", c.config.AnonKey, "", payload)
	if err != nil {
		return fmt.Errorf("otp dispatch failed: %w", err)
	}
	return nil
}

// VerifyOTP exchanges identifier + passcode for a session. The verify type
// follows the delivery channel: magiclink for email, sms for phone.
// Verification rejections come back as a classified *VerificationError;
// transport failures are returned as plain errors.
func (c *Client) VerifyOTP(ctx context.Context, method model.AuthMethod, identifier, code string) (*model.Session, *User, error) {
	payload := map[string]any{"token": code}
	switch method {
	case model.AuthMethodEmail:
		payload["type"] = "magiclink"
		payload["email"] = identifier
	case model.AuthMethodPhone:
		payload["type"] = "sms"
		payload["phone"] = identifier
	default:
		return nil, nil, fmt.Errorf("unsupported auth method: %s", method)
	}

	body, err := c.request(ctx, http.MethodPost, "/auth/v1/verify", c.config.AnonKey, "", payload)
	if err != nil {
		if upstream, ok := upstreamMessage(err); ok {
			return nil, nil, newVerificationError(upstream)
		}
		return nil, nil, fmt.Errorf("otp verification failed: %w", err)
	}

	return parseSession(body)
}

// RefreshSession exchanges a refresh token for a fresh token pair.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*model.Session, *User, error) {
	body, err := c.request(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", c.config.AnonKey, "",
		map[string]any{"refresh_token": refreshToken})
	if err != nil {
		return nil, nil, fmt.Errorf("session refresh failed: %w", err)
	}
	return parseSession(body)
}

// GetUser fetches the account bound to an access token.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	body, err := c.request(ctx, http.MethodGet, "/auth/v1/user", c.config.AnonKey, accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to parse user response: %w", err)
	}
	return &user, nil
}

// SignOut revokes the session behind an access token.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	_, err := c.request(ctx, http.MethodPost, "/auth/v1/logout", c.config.AnonKey, accessToken, nil)
	if err != nil {
		return fmt.Errorf("sign-out failed: %w", err)
	}
	return nil
}

// adminListResponse is the wire shape of the admin user listing.
type adminListResponse struct {
	Users []User `json:"users"`
}

// ListUsers lists all accounts via the admin API, following pagination.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	perPage := 100

	for page := 1; ; page++ {
		path := "/auth/v1/admin/users?page=" + strconv.Itoa(page) + "&per_page=" + strconv.Itoa(perPage)
		body, err := c.request(ctx, http.MethodGet, path, c.config.ServiceRoleKey, c.config.ServiceRoleKey, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to list users: %w", err)
		}

		var resp adminListResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to parse user listing: %w", err)
		}

		users = append(users, resp.Users...)
		if len(resp.Users) < perPage {
			return users, nil
		}
	}
}

// CreateUser creates an account via the admin API with credentials marked
// confirmed.
func (c *Client) CreateUser(ctx context.Context, params CreateUserParams) (*User, error) {
	payload := map[string]any{
		"user_metadata": params.Metadata,
	}
	if params.Email != "" {
		payload["email"] = params.Email
		payload["email_confirm"] = true
	}
	if params.Phone != "" {
		payload["phone"] = params.Phone
		payload["phone_confirm"] = true
	}

	body, err := c.request(ctx, http.MethodPost, "/auth/v1/admin/users", c.config.ServiceRoleKey, c.config.ServiceRoleKey, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to parse created user: %w", err)
	}
	return &user, nil
}

// UpdateUserMetadata replaces the user metadata of an account via the admin
// API. Credentials (email/phone) are never touched here.
func (c *Client) UpdateUserMetadata(ctx context.Context, id string, metadata map[string]any) (*User, error) {
	path := "/auth/v1/admin/users/" + url.PathEscape(id)
	body, err := c.request(ctx, http.MethodPut, path, c.config.ServiceRoleKey, c.config.ServiceRoleKey,
		map[string]any{"user_metadata": metadata})
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to parse updated user: %w", err)
	}
	return &user, nil
}

// apiError is a non-2xx response from the provider, carrying the upstream
// message for classification and logging.
type apiError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *apiError) Error() string {
	return fmt.Sprintf("identity provider returned status %d: %s", e.StatusCode, e.Message)
}

// upstreamMessage extracts the provider's message from a 4xx apiError.
// 5xx responses are treated as transport-level failures, not rejections.
func upstreamMessage(err error) (string, bool) {
	if e, ok := err.(*apiError); ok && e.StatusCode >= 400 && e.StatusCode < 500 {
		return e.Message, true
	}
	return "", false
}

// errorBody covers the message field variants GoTrue uses across versions.
type errorBody struct {
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorDescription string `json:"error_description"`
	ErrorField       string `json:"error"`
}

// text returns the first populated message variant.
func (b errorBody) text() string {
	for _, s := range []string{b.Msg, b.Message, b.ErrorDescription, b.ErrorField} {
		if s != "" {
			return s
		}
	}
	return ""
}

// request performs one HTTP call against the provider.
// apikey authenticates the project; bearer (when set) authenticates the
// caller, either a technician's access token or the service-role key.
func (c *Client) request(ctx context.Context, method, path, apikey, bearer string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request payload: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.URL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", apikey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.Unmarshal(body, &eb)
		msg := eb.text()
		if msg == "" {
			msg = string(body)
		}
		c.logger.Warn("identity provider request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.String("upstream", msg),
		)
		return nil, &apiError{StatusCode: resp.StatusCode, Message: msg}
	}

	return body, nil
}

// parseSession decodes a token grant into a Session and User.
func parseSession(body []byte) (*model.Session, *User, error) {
	var resp sessionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, nil, fmt.Errorf("failed to parse session response: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, nil, fmt.Errorf("empty access token in session response")
	}

	expiresAt := time.Unix(resp.ExpiresAt, 0)
	if resp.ExpiresAt == 0 {
		expiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	return &model.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expiresAt,
		ExpiresIn:    resp.ExpiresIn,
	}, resp.User, nil
}
