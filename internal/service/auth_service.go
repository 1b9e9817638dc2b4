package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go-identity-service/internal/event"
	"go-identity-service/internal/mailer"
	"go-identity-service/internal/model"
	"go-identity-service/internal/security"
	"go-identity-service/pkg/apierror"
)

// AuthService turns credentials into sessions.
type AuthService struct {
	identities *IdentityService
	hasher     security.PasswordHasher
	tokens     *security.TokenIssuer
	mailer     mailer.Mailer
}

func NewAuthService(identities *IdentityService, hasher security.PasswordHasher, tokens *security.TokenIssuer, m mailer.Mailer) *AuthService {
	return &AuthService{
		identities: identities,
		hasher:     hasher,
		tokens:     tokens,
		mailer:     m,
	}
}

// Register creates the identity, sends a best-effort welcome email and logs
// the new identity in.
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest, origin string) (model.Session, error) {
	identity, err := s.identities.Register(ctx, req)
	if err != nil {
		return model.Session{}, err
	}

	if s.mailer != nil {
		to := mailer.Recipient{Name: identity.Name, Email: identity.Email}
		if err := s.mailer.SendWelcome(ctx, to, strings.TrimRight(origin, "/")+"/me"); err != nil {
			slog.WarnContext(ctx, "welcome email not delivered", "identity_id", identity.ID, "error", err)
		}
	}

	return s.issue(identity)
}

func invalidCredentials() error {
	return apierror.Unauthenticated("Incorrect email or password").WithCause(model.ErrInvalidCredentials)
}

// Login never reveals whether the email or the password was wrong.
func (s *AuthService) Login(ctx context.Context, email string, password string) (model.Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return model.Session{}, apierror.BadRequest("Please provide email and password!", "")
	}

	identity, err := s.identities.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrIdentityNotFound) {
		return model.Session{}, invalidCredentials()
	}
	if err != nil {
		return model.Session{}, err
	}
	if !identity.Active {
		return model.Session{}, invalidCredentials()
	}

	ok, err := s.hasher.Verify(password, identity.PasswordHash)
	if err != nil {
		return model.Session{}, fmt.Errorf("verify password for %s: %w", identity.ID, err)
	}
	if !ok {
		return model.Session{}, invalidCredentials()
	}

	s.identities.events.Publish(event.New(event.TypeIdentityLoggedIn, identity.ID, "", s.identities.now()))
	return s.issue(identity)
}

// UpdateOwnPassword checks the current password before changing it and
// returns a session that survives the revocation the change causes.
func (s *AuthService) UpdateOwnPassword(ctx context.Context, identityID string, req model.UpdatePasswordRequest) (model.Session, error) {
	identity, err := s.identities.FindByID(ctx, identityID)
	if err != nil {
		return model.Session{}, err
	}

	if req.PasswordCurrent == "" {
		return model.Session{}, apierror.BadRequest("Please provide your current password", "")
	}
	ok, err := s.hasher.Verify(req.PasswordCurrent, identity.PasswordHash)
	if err != nil {
		return model.Session{}, fmt.Errorf("verify current password for %s: %w", identity.ID, err)
	}
	if !ok {
		return model.Session{}, apierror.Unauthenticated("Your current password is wrong")
	}

	updated, err := s.identities.ChangePassword(ctx, identity.ID, req.Password, req.PasswordConfirm)
	if err != nil {
		return model.Session{}, err
	}

	return s.issue(updated)
}

func (s *AuthService) issue(identity model.Identity) (model.Session, error) {
	token, err := s.tokens.Issue(identity.ID)
	if err != nil {
		return model.Session{}, fmt.Errorf("issue session token: %w", err)
	}
	return model.Session{Token: token, Identity: identity}, nil
}
