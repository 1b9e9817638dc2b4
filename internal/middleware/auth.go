package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"go-identity-service/internal/model"
	"go-identity-service/internal/security"
	"go-identity-service/pkg/apierror"
)

// SessionCookieName is the cookie that carries the session token for browser
// clients.
const SessionCookieName = "session"

type tokenVerifier interface {
	Verify(raw string) (security.VerifiedToken, error)
}

type identityResolver interface {
	FindByID(ctx context.Context, id string) (model.Identity, error)
}

type rejectionRecorder interface {
	AuthRejected(stage string, reason string)
}

type contextKey string

const identityContextKey contextKey = "identity"

// Stage names a step of the authorization chain.
type Stage string

const (
	StageExtract    Stage = "extract"
	StageVerify     Stage = "verify"
	StageResolve    Stage = "resolve"
	StageRevocation Stage = "revocation"
	StageRole       Stage = "role"
)

// Rejection is the terminal state of a request the chain refused. Reason is
// for logs and metrics only; clients see Response.
type Rejection struct {
	Stage    Stage
	Reason   string
	Response *apierror.APIError
	Cause    error
}

func (r *Rejection) Error() string {
	return string(r.Stage) + ": " + r.Reason
}

func (r *Rejection) Unwrap() error {
	return r.Cause
}

type AuthMiddleware struct {
	tokens     tokenVerifier
	identities identityResolver
	recorder   rejectionRecorder
}

func NewAuthMiddleware(tokens tokenVerifier, identities identityResolver, recorder rejectionRecorder) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, identities: identities, recorder: recorder}
}

// Authenticate runs extract, verify, resolve and the revocation check. It
// returns the identity the request may act as.
func (m *AuthMiddleware) Authenticate(r *http.Request) (model.Identity, *Rejection) {
	raw, ok := ExtractToken(r)
	if !ok {
		return model.Identity{}, &Rejection{
			Stage:    StageExtract,
			Reason:   "missing_token",
			Response: apierror.Unauthenticated("You are not logged in! Please log in to get access."),
		}
	}

	verified, err := m.tokens.Verify(raw)
	if err != nil {
		reason := "token_invalid"
		if errors.Is(err, model.ErrTokenExpired) {
			reason = "token_expired"
		}
		return model.Identity{}, &Rejection{
			Stage:    StageVerify,
			Reason:   reason,
			Response: apierror.Unauthenticated("Invalid or expired token. Please log in again."),
			Cause:    err,
		}
	}

	identity, err := m.identities.FindByID(r.Context(), verified.IdentityID)
	switch {
	case errors.Is(err, model.ErrIdentityNotFound):
		return model.Identity{}, &Rejection{
			Stage:    StageResolve,
			Reason:   "identity_missing",
			Response: apierror.Unauthenticated("The user belonging to this token no longer exists."),
			Cause:    err,
		}
	case err != nil:
		return model.Identity{}, &Rejection{
			Stage:    StageResolve,
			Reason:   "store_error",
			Response: apierror.New(apierror.CodeInternal, "Something went wrong", "", http.StatusInternalServerError),
			Cause:    err,
		}
	case !identity.Active:
		return model.Identity{}, &Rejection{
			Stage:    StageResolve,
			Reason:   "identity_inactive",
			Response: apierror.Unauthenticated("The user belonging to this token no longer exists."),
		}
	}

	if identity.ChangedPasswordAfter(verified.IssuedAt) {
		return model.Identity{}, &Rejection{
			Stage:    StageRevocation,
			Reason:   "password_changed",
			Response: apierror.Unauthenticated("User recently changed password! Please log in again."),
		}
	}

	return identity, nil
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, rejection := m.Authenticate(r)
		if rejection != nil {
			m.reject(w, r, rejection)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// RequireRoles admits only identities whose role is in roles. It must run
// after RequireAuth.
func (m *AuthMiddleware) RequireRoles(roles ...model.Role) func(http.Handler) http.Handler {
	allowed := make(map[model.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				m.reject(w, r, &Rejection{
					Stage:    StageRole,
					Reason:   "unauthenticated",
					Response: apierror.Unauthenticated("You are not logged in! Please log in to get access."),
				})
				return
			}

			if _, permitted := allowed[identity.Role]; !permitted {
				m.reject(w, r, &Rejection{
					Stage:    StageRole,
					Reason:   "role_" + string(identity.Role),
					Response: apierror.Forbidden("You do not have permission to perform this action"),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (m *AuthMiddleware) reject(w http.ResponseWriter, r *http.Request, rejection *Rejection) {
	attrs := []any{
		"stage", string(rejection.Stage),
		"reason", rejection.Reason,
		"path", redactPath(r.URL.Path),
	}
	if rejection.Cause != nil {
		attrs = append(attrs, "error", rejection.Cause)
	}

	if rejection.Response.HTTPStatus >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "authorization failed", attrs...)
	} else {
		slog.DebugContext(r.Context(), "request rejected", attrs...)
	}

	if m.recorder != nil {
		m.recorder.AuthRejected(string(rejection.Stage), rejection.Reason)
	}

	writeAPIError(w, rejection.Response)
}

// ExtractToken reads the bearer token, falling back to the session cookie.
// Front ends that serialize a missing token as "null" or "undefined" are
// treated as sending none.
func ExtractToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		if token := strings.TrimSpace(header[7:]); !isPlaceholder(token) {
			return token, true
		}
	}

	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if token := strings.TrimSpace(cookie.Value); !isPlaceholder(token) {
			return token, true
		}
	}

	return "", false
}

func isPlaceholder(token string) bool {
	switch strings.ToLower(token) {
	case "", "null", "undefined", "loggedout":
		return true
	}
	return false
}

func WithIdentity(ctx context.Context, identity model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(model.Identity)
	return identity, ok
}
