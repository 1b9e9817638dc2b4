package model

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Roles lists every assignable role.
var Roles = []Role{RoleUser, RoleModerator, RoleAdmin}

// ParseRole normalizes raw and reports whether it names a known role.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Roles {
		if role == known {
			return role, true
		}
	}
	return "", false
}

// Identity is a stored user record. Secret-bearing fields never leave the
// service boundary; use Public for responses.
type Identity struct {
	ID                  string
	Name                string
	Email               string
	Photo               string
	PasswordHash        string
	Role                Role
	PasswordChangedAt   *time.Time
	ResetTokenHash      *string
	ResetTokenExpiresAt *time.Time
	Active              bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// HasResetToken reports whether an unconsumed reset token is recorded.
func (i Identity) HasResetToken() bool {
	return i.ResetTokenHash != nil && i.ResetTokenExpiresAt != nil
}

// ChangedPasswordAfter reports whether the password was changed after a
// token issued at issuedAt. Both instants are compared in milliseconds, the
// precision of the token's issue time.
func (i Identity) ChangedPasswordAfter(issuedAt time.Time) bool {
	if i.PasswordChangedAt == nil {
		return false
	}
	return issuedAt.UnixMilli() < i.PasswordChangedAt.UnixMilli()
}

// PasswordChangeStamp is the passwordChangedAt recorded for a change made at
// now. A token issued at or after now stays valid; any earlier one does not.
func PasswordChangeStamp(now time.Time) time.Time {
	return now.Truncate(time.Millisecond)
}

func (i Identity) Public() PublicIdentity {
	return PublicIdentity{
		ID:                i.ID,
		Name:              i.Name,
		Email:             i.Email,
		Photo:             i.Photo,
		Role:              i.Role,
		Active:            i.Active,
		PasswordChangedAt: i.PasswordChangedAt,
		CreatedAt:         i.CreatedAt,
		UpdatedAt:         i.UpdatedAt,
	}
}

// PublicIdentity is the password-redacted representation returned to clients.
type PublicIdentity struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	Photo             string     `json:"photo,omitempty"`
	Role              Role       `json:"role"`
	Active            bool       `json:"active"`
	PasswordChangedAt *time.Time `json:"password_changed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type PublicIdentityList struct {
	Users []PublicIdentity `json:"users"`
}

// Session is the result of any flow that logs an identity in.
type Session struct {
	Token    string
	Identity Identity
}

type SessionResponse struct {
	Token string         `json:"token"`
	User  PublicIdentity `json:"user"`
}

// ProfilePatch carries the self-service allow-list. Nil fields are untouched.
type ProfilePatch struct {
	Name  *string
	Email *string
	Photo *string
}

func (p ProfilePatch) Empty() bool {
	return p.Name == nil && p.Email == nil && p.Photo == nil
}

// AdminPatch extends ProfilePatch with fields only administrators may set.
type AdminPatch struct {
	ProfilePatch
	Role   *Role
	Active *bool
}

func (p AdminPatch) Empty() bool {
	return p.ProfilePatch.Empty() && p.Role == nil && p.Active == nil
}

// NormalizeEmail is the canonical form used for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
