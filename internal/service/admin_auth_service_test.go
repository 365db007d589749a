package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/p2hgit/p2h_api/internal/cache"
	"github.com/p2hgit/p2h_api/internal/models"
	"github.com/p2hgit/p2h_api/internal/utils"
)

type memAdminStore struct {
	users   map[int]*models.AdminUser
	lookups int
	touched []int
}

func (s *memAdminStore) GetByEmail(_ context.Context, email string) (*models.AdminUser, error) {
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *memAdminStore) GetByID(_ context.Context, id int) (*models.AdminUser, error) {
	s.lookups++
	u, ok := s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (s *memAdminStore) Create(_ context.Context, user *models.AdminUser) error {
	user.ID = len(s.users) + 1
	s.users[user.ID] = user
	return nil
}

func (s *memAdminStore) TouchLastLogin(_ context.Context, id int) error {
	s.touched = append(s.touched, id)
	return nil
}

func newAdminFixture(t *testing.T) (*AdminAuthService, *memAdminStore) {
	t.Helper()
	utils.SetJWTSecret("test-secret")

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret!"), bcrypt.MinCost)
	require.NoError(t, err)

	store := &memAdminStore{users: map[int]*models.AdminUser{
		1: {ID: 1, Email: "ops@p2h.in", PasswordHash: string(hash), IsActive: true},
		2: {ID: 2, Email: "old@p2h.in", PasswordHash: string(hash), IsActive: false},
	}}
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	statusCache := cache.NewTTLCache[int, bool](time.Minute, func() time.Time { return now })
	return NewAdminAuthService(store, statusCache), store
}

func TestAdminAuth_Login(t *testing.T) {
	svc, store := newAdminFixture(t)
	ctx := context.Background()

	res, err := svc.Login(ctx, "  OPS@p2h.in ", "s3cret!")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, []int{1}, store.touched)

	claims, err := utils.ValidateJWT(res.Token)
	require.NoError(t, err)
	assert.Equal(t, 1, claims.UserID)

	_, err = svc.Login(ctx, "ops@p2h.in", "wrong")
	assert.ErrorIs(t, err, utils.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@p2h.in", "s3cret!")
	assert.ErrorIs(t, err, utils.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "old@p2h.in", "s3cret!")
	assert.ErrorIs(t, err, utils.ErrAccountInactive)
}

func TestAdminAuth_IsAdminActiveIsCached(t *testing.T) {
	svc, store := newAdminFixture(t)
	ctx := context.Background()

	active, err := svc.IsAdminActive(ctx, 1)
	require.NoError(t, err)
	assert.True(t, active)

	active, err = svc.IsAdminActive(ctx, 1)
	require.NoError(t, err)
	assert.True(t, active)
	assert.Equal(t, 1, store.lookups)

	active, err = svc.IsAdminActive(ctx, 99)
	require.NoError(t, err)
	assert.False(t, active)
}
