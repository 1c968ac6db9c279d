package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

type mockAuthRepo struct {
	users   map[int64]*models.User
	tokens  map[string]*models.RefreshToken
	revoked []string
}

func (m *mockAuthRepo) FindByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	for _, u := range m.users {
		if u.UID == strings.ToUpper(identifier) {
			copied := *u
			return &copied, nil
		}
		if u.Email != nil && *u.Email == strings.ToLower(identifier) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id int64) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *u
	return &copied, nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id int64, ts time.Time) error {
	if u, ok := m.users[id]; ok {
		u.LastLogin = &ts
	}
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id int64, passwordHash string, updatedAt time.Time) error {
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.PasswordHash = passwordHash
	u.MustChangePassword = false
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID int64) error {
	for _, tok := range m.tokens {
		if tok.UserID == userID {
			tok.Revoked = true
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.tokens == nil {
		m.tokens = make(map[string]*models.RefreshToken)
	}
	stored := *token
	m.tokens[token.Token] = &stored
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	tok, ok := m.tokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *tok
	return &copied, nil
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, tok := range m.tokens {
		if tok.ID == id {
			tok.Revoked = true
			tok.RevokedAt = &revokedAt
			return nil
		}
	}
	return sql.ErrNoRows
}

func newAuthFixture(t *testing.T) (*AuthService, *mockAuthRepo) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("initial"), bcrypt.DefaultCost)
	require.NoError(t, err)
	email := "siti@example.com"
	repo := &mockAuthRepo{users: map[int64]*models.User{
		1: {
			ID:                 1,
			UID:                "25G3B001",
			Email:              &email,
			PasswordHash:       string(hash),
			FullName:           "Siti Rahma",
			Role:               models.RoleStudent,
			Active:             true,
			MustChangePassword: true,
		},
	}}
	svc := NewAuthService(repo, &mockAuditSink{}, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "sma-admission-api",
	})
	return svc, repo
}

func TestLoginByUID(t *testing.T) {
	svc, repo := newAuthFixture(t)

	res, err := svc.Login(context.Background(), models.LoginRequest{Identifier: "25G3B001", Password: "initial"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.True(t, res.MustChangePassword)
	assert.Equal(t, "25G3B001", res.User.UID)
	assert.NotNil(t, repo.users[1].LastLogin)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(1), claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestLoginByEmail(t *testing.T) {
	svc, _ := newAuthFixture(t)

	res, err := svc.Login(context.Background(), models.LoginRequest{Identifier: "siti@example.com", Password: "initial"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.User.ID)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, repo := newAuthFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{Identifier: "25G3B001", Password: "wrong"})
	assert.Error(t, err)

	_, err = svc.Login(context.Background(), models.LoginRequest{Identifier: "nobody", Password: "initial"})
	assert.Error(t, err)

	repo.users[1].Active = false
	_, err = svc.Login(context.Background(), models.LoginRequest{Identifier: "25G3B001", Password: "initial"})
	assert.Error(t, err)
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, repo := newAuthFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{Identifier: "25G3B001", Password: "initial"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)
	assert.True(t, repo.tokens[login.RefreshToken].Revoked)

	// The used token cannot be replayed.
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	assert.Error(t, err)
}

func TestChangePasswordClearsFlag(t *testing.T) {
	svc, repo := newAuthFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{Identifier: "25G3B001", Password: "initial"})
	require.NoError(t, err)

	err = svc.ChangePassword(context.Background(), 1, models.ChangePasswordRequest{OldPassword: "initial", NewPassword: "brand-new"})
	require.NoError(t, err)
	assert.False(t, repo.users[1].MustChangePassword)
	assert.True(t, repo.tokens[login.RefreshToken].Revoked)

	res, err := svc.Login(context.Background(), models.LoginRequest{Identifier: "25G3B001", Password: "brand-new"})
	require.NoError(t, err)
	assert.False(t, res.MustChangePassword)
}

func TestChangePasswordRejectsWrongOld(t *testing.T) {
	svc, repo := newAuthFixture(t)

	err := svc.ChangePassword(context.Background(), 1, models.ChangePasswordRequest{OldPassword: "wrong", NewPassword: "brand-new"})
	assert.Error(t, err)
	assert.True(t, repo.users[1].MustChangePassword)
}

func TestLogoutRevokesToken(t *testing.T) {
	svc, repo := newAuthFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{Identifier: "25G3B001", Password: "initial"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), login.RefreshToken))
	assert.True(t, repo.tokens[login.RefreshToken].Revoked)

	// Unknown or already revoked tokens are treated as logged out.
	require.NoError(t, svc.Logout(context.Background(), login.RefreshToken))
	require.NoError(t, svc.Logout(context.Background(), "missing"))
}

func TestValidateTokenRejectsTampered(t *testing.T) {
	svc, _ := newAuthFixture(t)

	_, err := svc.ValidateToken("not-a-token")
	assert.Error(t, err)

	other := NewAuthService(&mockAuthRepo{}, nil, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret: "different-secret",
		AccessTokenExpiry: time.Minute,
	})
	login, err := svc.Login(context.Background(), models.LoginRequest{Identifier: "siti@example.com", Password: "initial"})
	require.NoError(t, err)
	_, err = other.ValidateToken(login.AccessToken)
	assert.Error(t, err)
}
