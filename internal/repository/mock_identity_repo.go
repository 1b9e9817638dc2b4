package repository

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"go-identity-service/internal/model"
)

type MockIdentityRepository struct {
	mock.Mock
}

func (m *MockIdentityRepository) Create(ctx context.Context, identity model.Identity) error {
	args := m.Called(ctx, identity)
	return args.Error(0)
}

func (m *MockIdentityRepository) FindByID(ctx context.Context, id string) (model.Identity, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.Identity), args.Error(1)
}

func (m *MockIdentityRepository) FindByEmail(ctx context.Context, email string) (model.Identity, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(model.Identity), args.Error(1)
}

func (m *MockIdentityRepository) FindByResetTokenHash(ctx context.Context, tokenHash string) (model.Identity, error) {
	args := m.Called(ctx, tokenHash)
	return args.Get(0).(model.Identity), args.Error(1)
}

func (m *MockIdentityRepository) SetResetToken(ctx context.Context, id string, tokenHash string, expiresAt time.Time, now time.Time) error {
	args := m.Called(ctx, id, tokenHash, expiresAt, now)
	return args.Error(0)
}

func (m *MockIdentityRepository) ClearResetToken(ctx context.Context, id string, now time.Time) error {
	args := m.Called(ctx, id, now)
	return args.Error(0)
}

func (m *MockIdentityRepository) UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time, now time.Time) error {
	args := m.Called(ctx, id, passwordHash, changedAt, now)
	return args.Error(0)
}

func (m *MockIdentityRepository) ConsumeResetToken(ctx context.Context, tokenHash string, passwordHash string, changedAt time.Time, now time.Time) (model.Identity, error) {
	args := m.Called(ctx, tokenHash, passwordHash, changedAt, now)
	return args.Get(0).(model.Identity), args.Error(1)
}

func (m *MockIdentityRepository) Update(ctx context.Context, id string, patch model.AdminPatch, now time.Time) (model.Identity, error) {
	args := m.Called(ctx, id, patch, now)
	return args.Get(0).(model.Identity), args.Error(1)
}

func (m *MockIdentityRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockIdentityRepository) List(ctx context.Context, query model.ListQuery) ([]model.Identity, int, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]model.Identity), args.Int(1), args.Error(2)
}

func (m *MockIdentityRepository) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
