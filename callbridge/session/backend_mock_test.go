package session

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Name() string { return "mock" }

func (m *mockBackend) Load(ctx context.Context, id string) (*Session, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*Session)
	return s, args.Error(1)
}

func (m *mockBackend) Save(ctx context.Context, s *Session) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockBackend) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockBackend) Close() error { return m.Called().Error(0) }

func TestStorePropagatesBackendErrors(t *testing.T) {
	ctx := context.Background()
	down := errors.New("connection refused")

	b := &mockBackend{}
	b.On("Load", ctx, "s1").Return(nil, down).Once()
	store := NewStore(b, Options{}, zerolog.Nop())

	_, err := store.GetOrCreate(ctx, "s1", "u1")
	assert.ErrorIs(t, err, down)
	b.AssertExpectations(t)
}

func TestStoreCreateSaveFailure(t *testing.T) {
	ctx := context.Background()
	full := errors.New("disk full")

	b := &mockBackend{}
	b.On("Load", ctx, "s1").Return(nil, ErrSessionNotFound).Once()
	b.On("Save", ctx, mock.MatchedBy(func(s *Session) bool {
		return s.ID == "s1" && s.UserID == "u1" && s.History.Cap() == 3
	})).Return(full).Once()
	store := NewStore(b, Options{MaxTurns: 3}, zerolog.Nop())

	_, err := store.GetOrCreate(ctx, "s1", "u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, full)
	b.AssertExpectations(t)
}

func TestStoreSweepSkipsNonSweepers(t *testing.T) {
	b := &mockBackend{}
	b.On("Close").Return(nil)
	store := NewStore(b, Options{TTL: 1}, zerolog.Nop())

	n, err := store.Sweep(context.Background())
	assert.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, store.Close())
	b.AssertExpectations(t)
}
