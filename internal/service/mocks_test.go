package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"autoreply/backend/internal/domain"
)

// mockGateway 邮件网关 mock
type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) ListUnread(ctx context.Context) ([]domain.InboundMessage, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.InboundMessage), args.Error(1)
}

func (m *mockGateway) CreateDraft(ctx context.Context, messageID, body string) (string, error) {
	args := m.Called(ctx, messageID, body)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) MarkRead(ctx context.Context, messageID string) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *mockGateway) SendDraft(ctx context.Context, providerDraftID, body string) error {
	args := m.Called(ctx, providerDraftID, body)
	return args.Error(0)
}

func (m *mockGateway) DeleteDraft(ctx context.Context, providerDraftID string) error {
	args := m.Called(ctx, providerDraftID)
	return args.Error(0)
}

func (m *mockGateway) Health() error {
	args := m.Called()
	return args.Error(0)
}

// mockGenerator 回信生成器 mock
type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, inbound string) (string, error) {
	args := m.Called(ctx, inbound)
	return args.String(0), args.Error(1)
}
