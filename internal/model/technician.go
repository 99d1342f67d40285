package model

import "time"

// Role is the fixed role tag stamped on every synchronized identity.
// The session guard rejects any identity whose role metadata differs.
const Role = "technician"

// AuthMethod identifies the channel a login identifier belongs to.
type AuthMethod string

const (
	// AuthMethodEmail delivers passcodes by email (magiclink channel).
	AuthMethodEmail AuthMethod = "email"
	// AuthMethodPhone delivers passcodes by SMS.
	AuthMethodPhone AuthMethod = "phone"
)

// DirectoryEntry is a technician record in the Airtable directory.
// The directory is the source of truth; entries are maintained by
// administrators outside this system and are read-only here.
type DirectoryEntry struct {
	RecordID string // Airtable record id (back-reference stored on the identity)
	Name     string
	Email    string
	Phone    string
	Active   bool
}

// Technician is the minimal profile returned to the client after a
// successful login. It mirrors the identity-provider account, not the
// full directory record.
type Technician struct {
	IdentityID string `json:"id"`
	Name       string `json:"nombre"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"telefono,omitempty"`
	RecordID   string `json:"tecnico_id"`
	Role       string `json:"rol"`
}

// Session is the token pair minted by passcode verification.
// The tokens are opaque; the application only stores them in HTTP-only
// cookies and hands them back to the identity provider.
type Session struct {
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
	ExpiresIn    int       `json:"expires_in"`
}
