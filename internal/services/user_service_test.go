package services

import (
	"context"
	"testing"
	"time"

	"feedbackapp/internal/config"
	"feedbackapp/internal/models"
	contextutils "feedbackapp/internal/utils"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var userColumns = []string{"id", "username", "email", "password_hash", "department_id", "last_active", "created_at", "updated_at"}

var roleColumns = []string{"id", "name", "description", "created_at", "updated_at"}

func userFixture(t *testing.T) (*UserService, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		mock.ExpectClose()
		require.NoError(t, db.Close())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	return NewUserService(db, &config.Config{}, testLogger()), mock
}

func userRow(id int, username, passwordHash string) *sqlmock.Rows {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(userColumns).
		AddRow(id, username, username+"@example.com", passwordHash, nil, nil, now, now)
}

func TestAuthenticateUser_UnknownUsernameIsInvalidCredentials(t *testing.T) {
	service, mock := userFixture(t)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE username").
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows(userColumns))

	_, err := service.AuthenticateUser(context.Background(), "nobody", "secret")
	assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidCredentials))
}

func TestAuthenticateUser_WrongPassword(t *testing.T) {
	service, mock := userFixture(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("right-password"), bcrypt.MinCost)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE username").
		WithArgs("alice").
		WillReturnRows(userRow(42, "alice", string(hash)))
	mock.ExpectQuery("SELECT (.+) FROM roles").
		WithArgs(42).
		WillReturnRows(sqlmock.NewRows(roleColumns))

	_, err = service.AuthenticateUser(context.Background(), "alice", "wrong-password")
	assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidCredentials))
}

func TestAuthenticateUser_Success(t *testing.T) {
	service, mock := userFixture(t)
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	hash, err := bcrypt.GenerateFromPassword([]byte("right-password"), bcrypt.MinCost)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE username").
		WithArgs("alice").
		WillReturnRows(userRow(42, "alice", string(hash)))
	mock.ExpectQuery("SELECT (.+) FROM roles").
		WithArgs(42).
		WillReturnRows(sqlmock.NewRows(roleColumns).
			AddRow(2, models.RoleUser, "", now, now))

	user, err := service.AuthenticateUser(context.Background(), "alice", "right-password")
	require.NoError(t, err)
	assert.Equal(t, 42, user.ID)
	require.Len(t, user.Roles, 1)
	assert.Equal(t, models.RoleUser, user.Roles[0].Name)
}

func TestCreateUser_RejectsInvalidEmail(t *testing.T) {
	service, _ := userFixture(t)

	_, err := service.CreateUser(context.Background(), "alice", "not-an-email", "secret", nil)
	assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidInput))
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	service, mock := userFixture(t)

	mock.ExpectQuery("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := service.CreateUser(context.Background(), "alice", "alice@example.com", "secret", nil)
	assert.True(t, contextutils.IsError(err, contextutils.ErrRecordExists))
}

func TestUpdateUserPassword_UnknownUser(t *testing.T) {
	service, mock := userFixture(t)

	mock.ExpectExec("UPDATE users SET password_hash").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := service.UpdateUserPassword(context.Background(), 99, "new-secret")
	assert.True(t, contextutils.IsError(err, contextutils.ErrRecordNotFound))
}

func TestIsAdmin(t *testing.T) {
	service, mock := userFixture(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(42, models.RoleAdmin).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	isAdmin, err := service.IsAdmin(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, isAdmin)
}

func TestListUsers(t *testing.T) {
	service, mock := userFixture(t)
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM users ORDER BY id").
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(1, "alice", "alice@example.com", "x", nil, nil, now, now).
			AddRow(2, "bob", nil, "y", 10, now, now, now))

	users, err := service.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
	assert.False(t, users[1].Email.Valid)
	assert.Equal(t, int64(10), users[1].DepartmentID.Int64)
}

func TestGetUserEmails_EmptyInputSkipsQuery(t *testing.T) {
	service, _ := userFixture(t)

	emails, err := service.GetUserEmails(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, emails)
}

func TestGetDepartmentMembers(t *testing.T) {
	service, mock := userFixture(t)

	mock.ExpectQuery("SELECT id FROM users WHERE department_id").
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2).AddRow(3))

	ids, err := service.GetDepartmentMembers(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, ids)
}
