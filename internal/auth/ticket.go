package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chargefix/portal/internal/model"
)

// ErrTicketInvalid covers every ticket rejection: bad signature, expired,
// or bound to a different identifier. Callers get no finer detail.
var ErrTicketInvalid = errors.New("login ticket invalid or expired")

// ticketPayload is the signed content of a login ticket.
type ticketPayload struct {
	Method     model.AuthMethod `json:"m"`
	Identifier string           `json:"i"`
	ExpiresAt  int64            `json:"exp"`
}

// TicketIssuer mints and verifies the signed, time-boxed tickets that bind
// the three login phases together: validate returns a ticket, and passcode
// dispatch/verification refuse to run without one. This keeps phase
// ordering on the server instead of trusting the client.
type TicketIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTicketIssuer builds a TicketIssuer.
func NewTicketIssuer(secret string, ttl time.Duration) *TicketIssuer {
	return &TicketIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue mints a ticket for the identifier, valid for the configured TTL.
// The ticket is base64url(payload) + "." + base64url(HMAC-SHA256(payload)).
func (t *TicketIssuer) Issue(method model.AuthMethod, identifier string) (string, error) {
	payload, err := json.Marshal(ticketPayload{
		Method:     method,
		Identifier: identifier,
		ExpiresAt:  t.now().Add(t.ttl).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode ticket payload: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + t.sign(encoded), nil
}

// Verify checks the ticket's signature and expiry and that it is bound to
// the given method and identifier. Any failure returns ErrTicketInvalid.
func (t *TicketIssuer) Verify(ticket string, method model.AuthMethod, identifier string) error {
	encoded, sig, ok := strings.Cut(ticket, ".")
	if !ok {
		return ErrTicketInvalid
	}
	if !hmac.Equal([]byte(t.sign(encoded)), []byte(sig)) {
		return ErrTicketInvalid
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return ErrTicketInvalid
	}
	var payload ticketPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ErrTicketInvalid
	}

	if payload.Method != method || payload.Identifier != identifier {
		return ErrTicketInvalid
	}
	if t.now().Unix() > payload.ExpiresAt {
		return ErrTicketInvalid
	}
	return nil
}

// sign computes the base64url HMAC-SHA256 of the encoded payload.
func (t *TicketIssuer) sign(encoded string) string {
	mac := hmac.New(sha256.New, t.secret)
	mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
