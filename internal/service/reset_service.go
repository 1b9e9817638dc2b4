package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go-identity-service/internal/event"
	"go-identity-service/internal/mailer"
	"go-identity-service/internal/model"
	"go-identity-service/internal/security"
	"go-identity-service/pkg/apierror"
)

const DefaultResetTokenTTL = 10 * time.Minute

// ResetService runs the forgot-password flow: a one-time token is stored as
// a hash, delivered by mail and consumed exactly once.
type ResetService struct {
	identities *IdentityService
	auth       *AuthService
	mailer     mailer.Mailer
	ttl        time.Duration
	publicURL  string
}

func NewResetService(identities *IdentityService, auth *AuthService, m mailer.Mailer, ttl time.Duration, publicURL string) *ResetService {
	if ttl <= 0 {
		ttl = DefaultResetTokenTTL
	}
	return &ResetService{
		identities: identities,
		auth:       auth,
		mailer:     m,
		ttl:        ttl,
		publicURL:  strings.TrimRight(publicURL, "/"),
	}
}

// RequestReset stores a fresh token for the identity and mails the link. If
// delivery fails the token is withdrawn so no undeliverable token stays
// usable.
func (s *ResetService) RequestReset(ctx context.Context, email string, origin string) error {
	if strings.TrimSpace(email) == "" {
		return apierror.BadRequest("Please provide your email address", "")
	}

	identity, err := s.identities.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrIdentityNotFound) || (err == nil && !identity.Active) {
		return apierror.NotFound("There is no user with that email address.", "")
	}
	if err != nil {
		return err
	}

	token, tokenHash, err := security.GenerateResetToken()
	if err != nil {
		return err
	}

	store := s.identities.store
	now := s.identities.now()
	if err := store.SetResetToken(ctx, identity.ID, tokenHash, now.Add(s.ttl), now); err != nil {
		return err
	}

	to := mailer.Recipient{Name: identity.Name, Email: identity.Email}
	if err := s.mailer.SendPasswordReset(ctx, to, s.resetURL(origin, token), s.ttl); err != nil {
		if clearErr := store.ClearResetToken(ctx, identity.ID, s.identities.now()); clearErr != nil {
			slog.ErrorContext(ctx, "reset token rollback failed", "identity_id", identity.ID, "error", clearErr)
		}

		failed := event.New(event.TypePasswordResetFailed, identity.ID, "", now)
		failed.Attrs = map[string]string{"reason": err.Error()}
		s.identities.events.Publish(failed)

		return apierror.DependencyFailure("There was an error sending the email. Try again later!",
			fmt.Errorf("%w: %w", model.ErrDeliveryFailed, err))
	}

	s.identities.events.Publish(event.New(event.TypePasswordResetRequest, identity.ID, "", now))
	return nil
}

// CompleteReset sets a new password with a live token and logs the identity
// in. Unknown, expired and already used tokens are indistinguishable to the
// caller.
func (s *ResetService) CompleteReset(ctx context.Context, token string, password string, confirm string) (model.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return model.Session{}, invalidResetToken()
	}
	if err := validateStruct(model.PasswordInput{Password: password, PasswordConfirm: confirm}); err != nil {
		return model.Session{}, err
	}

	hash, err := hashPassword(s.identities.hasher, password)
	if err != nil {
		return model.Session{}, err
	}

	tokenHash := security.HashResetToken(token)
	now := s.identities.now()
	identity, err := s.identities.store.ConsumeResetToken(ctx, tokenHash, hash, model.PasswordChangeStamp(now), now)
	if errors.Is(err, model.ErrResetTokenInvalid) {
		slog.DebugContext(ctx, "password reset refused", "reason", s.classifyRefusal(ctx, tokenHash, now))
		return model.Session{}, invalidResetToken()
	}
	if err != nil {
		return model.Session{}, err
	}

	s.identities.events.Publish(event.New(event.TypePasswordReset, identity.ID, "", now))
	return s.auth.issue(identity)
}

// classifyRefusal explains a failed consumption for the logs only.
func (s *ResetService) classifyRefusal(ctx context.Context, tokenHash string, now time.Time) string {
	identity, err := s.identities.store.FindByResetTokenHash(ctx, tokenHash)
	switch {
	case err != nil:
		return "unknown"
	case !identity.Active:
		return "inactive"
	case identity.ResetTokenExpiresAt != nil && !identity.ResetTokenExpiresAt.After(now):
		return "expired"
	default:
		return "raced"
	}
}

func (s *ResetService) resetURL(origin string, token string) string {
	base := strings.TrimRight(strings.TrimSpace(origin), "/")
	if base == "" {
		base = s.publicURL
	}
	return base + "/reset-password/" + token
}

func invalidResetToken() error {
	return apierror.BadRequest("Token is invalid or has expired", "")
}
