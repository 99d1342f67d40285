package identity

import (
	"errors"
	"strings"
)

// VerificationKind classifies a failed passcode verification.
type VerificationKind int

const (
	// VerificationOther covers any failure not recognized below.
	VerificationOther VerificationKind = iota
	// VerificationExpired means the passcode outlived its validity window.
	VerificationExpired
	// VerificationInvalid means the passcode does not match.
	VerificationInvalid
)

// VerificationError is a classified passcode-verification failure.
// The upstream detail is kept for logging only; user-facing copy is chosen
// from Kind by the caller.
type VerificationError struct {
	Kind     VerificationKind
	Upstream string
}

// Error implements the error interface.
func (e *VerificationError) Error() string {
	return "passcode verification failed: " + e.Upstream
}

// AsVerificationError unwraps err into a *VerificationError when possible.
func AsVerificationError(err error) (*VerificationError, bool) {
	var verr *VerificationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

// ClassifyVerificationMessage maps the provider's error text onto a
// VerificationKind. The provider reports failures as free text only, so the
// substring matching is isolated here rather than scattered through
// handlers. "expired" wins over "invalid" because the provider phrases
// expiry as "Token has expired or is invalid".
func ClassifyVerificationMessage(msg string) VerificationKind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "expired"):
		return VerificationExpired
	case strings.Contains(lower, "invalid") || strings.Contains(msg, "Token"):
		return VerificationInvalid
	default:
		return VerificationOther
	}
}

// newVerificationError builds a classified error from upstream text.
func newVerificationError(msg string) *VerificationError {
	return &VerificationError{
		Kind:     ClassifyVerificationMessage(msg),
		Upstream: msg,
	}
}
