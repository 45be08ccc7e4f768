package testutil

import (
	"context"

	"github.com/dgellow/statusboard/internal/tokens"
	"github.com/stretchr/testify/mock"
)

type MockTokenManager struct {
	mock.Mock
	Name string
}

func (m *MockTokenManager) Provider() string {
	return m.Name
}

func (m *MockTokenManager) AccessToken(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockTokenManager) Invalidate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTokenManager) ForceRefresh(ctx context.Context) (*tokens.Record, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tokens.Record), args.Error(1)
}

func (m *MockTokenManager) BeginAuthorization(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockTokenManager) HandleCallback(ctx context.Context, state, code, providerError string) (*tokens.CallbackResult, error) {
	args := m.Called(ctx, state, code, providerError)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tokens.CallbackResult), args.Error(1)
}

func (m *MockTokenManager) Status(ctx context.Context) (*tokens.Status, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tokens.Status), args.Error(1)
}

// MockFetcher implements upstream.Fetcher
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, accessToken string) (any, error) {
	args := m.Called(ctx, accessToken)
	return args.Get(0), args.Error(1)
}

// MockNotifier implements tokens.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyAuthorization(ctx context.Context, provider, authorizeURL string) error {
	args := m.Called(ctx, provider, authorizeURL)
	return args.Error(0)
}
