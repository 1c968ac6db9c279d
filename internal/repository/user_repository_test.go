package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

func userRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "uid", "email", "password_hash", "full_name", "role", "active", "must_change_password", "phone", "last_login", "created_at", "updated_at"}).
		AddRow(1, "ADM001", "admin@example.com", "hash", "Admin", string(models.RoleAdmin), true, false, "", now, now, now)
}

func TestCreateUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("INSERT INTO users").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))

	email := "guru@example.com"
	user := &models.User{UID: "TCH001", Email: &email, PasswordHash: "hash", FullName: "Pak Guru", Role: models.RoleTeacher, Active: true, MustChangePassword: true}
	require.NoError(t, repo.Create(context.Background(), user))
	assert.Equal(t, int64(5), user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIdentifierMixedCase(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM users WHERE uid = \\$1 OR email = \\$2").
		WithArgs("ADM001", "adm001").
		WillReturnRows(userRows(now))

	user, err := repo.FindByIdentifier(context.Background(), "adm001")
	require.NoError(t, err)
	assert.Equal(t, "ADM001", user.UID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("plain error")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestUpdatePasswordClearsFlag(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("UPDATE users SET password_hash = \\$2, must_change_password = false").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdatePassword(context.Background(), 1, "newhash", time.Now().UTC())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenLifecycle(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO refresh_tokens").
		WillReturnResult(sqlmock.NewResult(1, 1))
	err := repo.CreateRefreshToken(context.Background(), &models.RefreshToken{ID: "rt-1", UserID: 1, Token: "token", ExpiresAt: time.Now(), CreatedAt: time.Now()})
	require.NoError(t, err)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM refresh_tokens WHERE token = \\$1").
		WithArgs("token").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token", "expires_at", "created_at", "revoked", "revoked_at", "ip_address", "user_agent"}).
			AddRow("rt-1", 1, "token", now.Add(time.Hour), now, false, nil, "", ""))
	rt, err := repo.FindRefreshToken(context.Background(), "token")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rt.UserID)

	mock.ExpectExec("UPDATE refresh_tokens SET revoked = true").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.RevokeRefreshToken(context.Background(), "rt-1", now))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListUsersWithRoleFilter(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM users WHERE 1=1 AND role = \\$1").
		WithArgs(string(models.RoleAdmin)).
		WillReturnRows(userRows(now))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users`).
		WithArgs(string(models.RoleAdmin)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	role := models.RoleAdmin
	users, total, err := repo.List(context.Background(), models.UserFilter{Role: &role})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
