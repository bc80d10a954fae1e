package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/salvator/api/schemas"
)

// MockSession is a FakePage that also records the lifecycle calls a run makes.
type MockSession struct {
	*FakePage
	mock.Mock
}

func NewMockSession() *MockSession {
	return &MockSession{FakePage: NewFakePage()}
}

func (m *MockSession) SaveCookies(ctx context.Context, path string) (int, error) {
	args := m.Called(ctx, path)
	return args.Int(0), args.Error(1)
}

func (m *MockSession) LoadCookies(ctx context.Context, path string) (int, error) {
	args := m.Called(ctx, path)
	return args.Int(0), args.Error(1)
}

func (m *MockSession) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockAuthenticator mocks the login stage.
type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Resume(ctx context.Context, page schemas.Page) (bool, error) {
	args := m.Called(ctx, page)
	return args.Bool(0), args.Error(1)
}

func (m *MockAuthenticator) Login(ctx context.Context, page schemas.Page, creds schemas.Credentials) (schemas.AuthResult, error) {
	args := m.Called(ctx, page, creds)
	return args.Get(0).(schemas.AuthResult), args.Error(1)
}

// MockScraper mocks the listing stage.
type MockScraper struct {
	mock.Mock
}

func (m *MockScraper) Scrape(ctx context.Context, page schemas.Page) ([]schemas.BirthdayEntry, error) {
	args := m.Called(ctx, page)
	entries, _ := args.Get(0).([]schemas.BirthdayEntry)
	return entries, args.Error(1)
}

// MockDispatcher mocks the greeting stage.
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, page schemas.Page, entries []schemas.BirthdayEntry) []schemas.EntryOutcome {
	args := m.Called(ctx, page, entries)
	out, _ := args.Get(0).([]schemas.EntryOutcome)
	return out
}
