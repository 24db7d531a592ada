package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/crm-admin/internal/domain"
	"github.com/spec-kit/crm-admin/internal/repository"
)

func TestUserService(t *testing.T) {
	users := newFakeUserRepo()
	history := &fakeHistoryRepo{}
	svc := NewUserService(users, history)
	ctx := context.Background()

	user := &domain.User{Email: "u@example.com", Role: domain.RoleAdmin, PasswordHash: "hash"}
	require.NoError(t, users.Create(ctx, user))

	got, err := svc.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, got.PasswordHash)
	assert.Equal(t, domain.RoleAdmin, got.Role)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	entries, err := svc.History(ctx, user.ID, 10)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)

	require.NoError(t, history.Create(ctx, &domain.HistoryEntry{UserID: user.ID, Action: domain.HistoryActionLogin}))
	entries, err = svc.History(ctx, user.ID, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = svc.History(ctx, "missing", 10)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
