package service

import (
	"context"
	"time"

	"go-identity-service/internal/model"
)

// IdentityStore is the persistence contract shared by the Postgres and
// in-memory repositories.
type IdentityStore interface {
	Create(ctx context.Context, identity model.Identity) error
	FindByID(ctx context.Context, id string) (model.Identity, error)
	FindByEmail(ctx context.Context, email string) (model.Identity, error)
	FindByResetTokenHash(ctx context.Context, tokenHash string) (model.Identity, error)
	SetResetToken(ctx context.Context, id string, tokenHash string, expiresAt time.Time, now time.Time) error
	ClearResetToken(ctx context.Context, id string, now time.Time) error
	UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time, now time.Time) error
	ConsumeResetToken(ctx context.Context, tokenHash string, passwordHash string, changedAt time.Time, now time.Time) (model.Identity, error)
	Update(ctx context.Context, id string, patch model.AdminPatch, now time.Time) (model.Identity, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, query model.ListQuery) ([]model.Identity, int, error)
	Count(ctx context.Context) (int, error)
}
