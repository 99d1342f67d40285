// Package auth implements the technician login flow: directory validation,
// just-in-time identity provisioning, passcode dispatch and verification.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chargefix/portal/internal/directory"
	"github.com/chargefix/portal/internal/identity"
	"github.com/chargefix/portal/internal/model"
)

// Metadata keys stamped on every synchronized identity.
const (
	metaName     = "nombre"
	metaRecordID = "tecnico_id"
	metaRole     = "rol"
	metaCreated  = "creado_en"
	metaSynced   = "sincronizado_en"
)

// DirectoryLookup is the directory subset the flow needs.
type DirectoryLookup interface {
	Lookup(ctx context.Context, phone, email string) (*model.DirectoryEntry, error)
}

// IdentityProvider is the identity-provider subset the flow needs.
type IdentityProvider interface {
	ListUsers(ctx context.Context) ([]identity.User, error)
	CreateUser(ctx context.Context, params identity.CreateUserParams) (*identity.User, error)
	UpdateUserMetadata(ctx context.Context, id string, metadata map[string]any) (*identity.User, error)
	SendOTP(ctx context.Context, method model.AuthMethod, identifier string) error
	VerifyOTP(ctx context.Context, method model.AuthMethod, identifier, code string) (*model.Session, *identity.User, error)
	GetUser(ctx context.Context, accessToken string) (*identity.User, error)
	SignOut(ctx context.Context, accessToken string) error
	RefreshSession(ctx context.Context, refreshToken string) (*model.Session, *identity.User, error)
}

// MetricsRecorder counts login-flow outcomes. A nil recorder disables it.
type MetricsRecorder interface {
	RecordValidation(outcome string)
	RecordOTPDispatch(method string, ok bool)
	RecordVerification(outcome string)
}

// Service orchestrates the login flow.
type Service struct {
	directory DirectoryLookup
	idp       IdentityProvider
	tickets   *TicketIssuer
	metrics   MetricsRecorder
	logger    *slog.Logger

	// Per-identifier locks serializing the find-or-create sync. The admin
	// API has no atomic upsert, so without this two concurrent first logins
	// for the same technician could create two identities. In-process
	// locking is sufficient for a single-instance deployment.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService builds a Service. metrics may be nil.
func NewService(dir DirectoryLookup, idp IdentityProvider, tickets *TicketIssuer, metrics MetricsRecorder, logger *slog.Logger) *Service {
	return &Service{
		directory: dir,
		idp:       idp,
		tickets:   tickets,
		metrics:   metrics,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}
}

// ValidateResult is the outcome of a successful validation: the chosen
// delivery channel and the ticket gating the next two phases.
type ValidateResult struct {
	Ticket     string           `json:"ticket"`
	Method     model.AuthMethod `json:"metodo"`
	Identifier string           `json:"identificador"`
	Name       string           `json:"nombre"`
}

// Validate runs phase one of the login: directory lookup, then just-in-time
// identity sync, then ticket issuance. Inactive entries are rejected before
// any identity-provider call. Every returned error is a *model.APIError.
func (s *Service) Validate(ctx context.Context, phone, email string) (*ValidateResult, error) {
	entry, err := s.directory.Lookup(ctx, phone, email)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			s.recordValidation("not_found")
			return nil, model.NewNotFoundError()
		}
		s.recordValidation("directory_error")
		return nil, model.NewConfigurationError()
	}

	if !entry.Active {
		s.recordValidation("inactive")
		s.logger.Warn("login attempt for deactivated technician",
			slog.String("record_id", entry.RecordID),
		)
		return nil, model.NewInactiveError()
	}

	method, identifier := primaryIdentifier(entry)

	if err := s.syncIdentity(ctx, entry, method, identifier); err != nil {
		s.recordValidation("sync_failed")
		s.logger.Error("identity sync failed",
			slog.String("record_id", entry.RecordID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewSyncFailureError()
	}

	ticket, err := s.tickets.Issue(method, identifier)
	if err != nil {
		s.recordValidation("ticket_error")
		s.logger.Error("failed to issue login ticket", slog.String("error", err.Error()))
		return nil, model.NewInternalError()
	}

	s.recordValidation("validated")
	return &ValidateResult{
		Ticket:     ticket,
		Method:     method,
		Identifier: identifier,
		Name:       entry.Name,
	}, nil
}

// SendCode runs phase two: passcode dispatch. The ticket from Validate is
// required, so a client cannot skip straight to dispatch.
func (s *Service) SendCode(ctx context.Context, ticket string, method model.AuthMethod, identifier string) error {
	if err := s.tickets.Verify(ticket, method, identifier); err != nil {
		return model.NewTicketInvalidError()
	}

	if err := s.idp.SendOTP(ctx, method, identifier); err != nil {
		if s.metrics != nil {
			s.metrics.RecordOTPDispatch(string(method), false)
		}
		s.logger.Error("otp dispatch failed",
			slog.String("method", string(method)),
			slog.String("error", err.Error()),
		)
		return model.NewDispatchFailureError()
	}

	if s.metrics != nil {
		s.metrics.RecordOTPDispatch(string(method), true)
	}
	return nil
}

// VerifyCode runs phase three: exchange the passcode for a session and the
// technician profile. Verification rejections map onto the expired/invalid/
// other taxonomy; transport failures surface as internal errors.
func (s *Service) VerifyCode(ctx context.Context, ticket string, method model.AuthMethod, identifier, code string) (*model.Technician, *model.Session, error) {
	if err := s.tickets.Verify(ticket, method, identifier); err != nil {
		return nil, nil, model.NewTicketInvalidError()
	}

	session, user, err := s.idp.VerifyOTP(ctx, method, identifier, code)
	if err != nil {
		if verr, ok := identity.AsVerificationError(err); ok {
			s.logger.Warn("otp verification rejected",
				slog.String("method", string(method)),
				slog.String("upstream", verr.Upstream),
			)
			switch verr.Kind {
			case identity.VerificationExpired:
				s.recordVerification("expired")
				return nil, nil, model.NewVerificationExpiredError()
			case identity.VerificationInvalid:
				s.recordVerification("invalid")
				return nil, nil, model.NewVerificationInvalidError()
			default:
				s.recordVerification("other")
				return nil, nil, model.NewVerificationOtherError()
			}
		}
		s.recordVerification("error")
		s.logger.Error("otp verification failed", slog.String("error", err.Error()))
		return nil, nil, model.NewInternalError()
	}
	if user == nil {
		s.recordVerification("error")
		return nil, nil, model.NewInternalError()
	}

	s.recordVerification("success")
	return TechnicianFromUser(user), session, nil
}

// CurrentTechnician resolves the profile behind an access token.
func (s *Service) CurrentTechnician(ctx context.Context, accessToken string) (*model.Technician, error) {
	user, err := s.idp.GetUser(ctx, accessToken)
	if err != nil {
		return nil, model.NewUnauthenticatedError()
	}
	return TechnicianFromUser(user), nil
}

// Logout revokes the session behind an access token. A provider failure is
// logged but not surfaced: the cookies are cleared regardless.
func (s *Service) Logout(ctx context.Context, accessToken string) {
	if err := s.idp.SignOut(ctx, accessToken); err != nil {
		s.logger.Warn("sign-out failed upstream", slog.String("error", err.Error()))
	}
}

// syncIdentity lists provider accounts, matching by exact email or phone,
// then creates a pre-verified account or refreshes the metadata of the
// existing one. Credentials are never altered on update.
func (s *Service) syncIdentity(ctx context.Context, entry *model.DirectoryEntry, method model.AuthMethod, identifier string) error {
	lock := s.lockFor(identifier)
	lock.Lock()
	defer lock.Unlock()

	users, err := s.idp.ListUsers(ctx)
	if err != nil {
		return err
	}

	existing := matchUser(users, entry)
	now := time.Now().UTC().Format(time.RFC3339)

	if existing == nil {
		params := identity.CreateUserParams{
			Metadata: map[string]any{
				metaName:     entry.Name,
				metaRecordID: entry.RecordID,
				metaRole:     model.Role,
				metaCreated:  now,
			},
		}
		if entry.Email != "" {
			params.Email = entry.Email
		}
		if entry.Phone != "" {
			params.Phone = directory.NormalizePhone(entry.Phone)
		}

		created, err := s.idp.CreateUser(ctx, params)
		if err != nil {
			return err
		}
		s.logger.Info("technician identity created",
			slog.String("identity_id", created.ID),
			slog.String("record_id", entry.RecordID),
		)
		return nil
	}

	metadata := map[string]any{
		metaName:     entry.Name,
		metaRecordID: entry.RecordID,
		metaRole:     model.Role,
		metaSynced:   now,
	}
	if created := existing.MetadataString(metaCreated); created != "" {
		metadata[metaCreated] = created
	}

	if _, err := s.idp.UpdateUserMetadata(ctx, existing.ID, metadata); err != nil {
		return err
	}
	s.logger.Info("technician identity refreshed",
		slog.String("identity_id", existing.ID),
		slog.String("record_id", entry.RecordID),
	)
	return nil
}

// lockFor returns the mutex guarding a normalized identifier.
func (s *Service) lockFor(identifier string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[identifier]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[identifier] = lock
	}
	return lock
}

func (s *Service) recordValidation(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordValidation(outcome)
	}
}

func (s *Service) recordVerification(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordVerification(outcome)
	}
}

// primaryIdentifier picks the passcode delivery channel: email when the
// directory has one, else the normalized phone.
func primaryIdentifier(entry *model.DirectoryEntry) (model.AuthMethod, string) {
	if entry.Email != "" {
		return model.AuthMethodEmail, strings.ToLower(entry.Email)
	}
	return model.AuthMethodPhone, directory.NormalizePhone(entry.Phone)
}

// matchUser finds the provider account matching a directory entry by exact
// email (case-insensitive, since the provider lowercases emails) or exact
// normalized phone.
func matchUser(users []identity.User, entry *model.DirectoryEntry) *identity.User {
	email := strings.ToLower(entry.Email)
	phone := directory.NormalizePhone(entry.Phone)

	for i := range users {
		u := &users[i]
		if email != "" && strings.ToLower(u.Email) == email {
			return u
		}
		if phone != "" && u.Phone != "" && directory.NormalizePhone(u.Phone) == phone {
			return u
		}
	}
	return nil
}

// TechnicianFromUser builds the minimal client-facing profile from a
// provider account.
func TechnicianFromUser(user *identity.User) *model.Technician {
	return &model.Technician{
		IdentityID: user.ID,
		Name:       user.MetadataString(metaName),
		Email:      user.Email,
		Phone:      user.Phone,
		RecordID:   user.MetadataString(metaRecordID),
		Role:       user.MetadataString(metaRole),
	}
}
