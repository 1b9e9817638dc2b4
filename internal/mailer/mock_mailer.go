package mailer

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendWelcome(ctx context.Context, to Recipient, profileURL string) error {
	args := m.Called(ctx, to, profileURL)
	return args.Error(0)
}

func (m *MockMailer) SendPasswordReset(ctx context.Context, to Recipient, resetURL string, validFor time.Duration) error {
	args := m.Called(ctx, to, resetURL, validFor)
	return args.Error(0)
}
