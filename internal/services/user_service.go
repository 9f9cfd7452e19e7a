// Package services contains business logic services for the feedback application.
package services

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"feedbackapp/internal/config"
	"feedbackapp/internal/models"
	"feedbackapp/internal/observability"
	contextutils "feedbackapp/internal/utils"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"
)

// userQueryFields is the canonical column list for scanning users.
const userQueryFields = `id, username, email, password_hash, department_id, last_active, created_at, updated_at`

// UserServiceInterface defines the directory operations other components
// depend on: user lookup, department membership, and project membership.
type UserServiceInterface interface {
	GetUserByID(ctx context.Context, id int) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	CreateUser(ctx context.Context, username, email, password string, departmentID *int) (*models.User, error)
	AuthenticateUser(ctx context.Context, username, password string) (*models.User, error)
	UpdateUserPassword(ctx context.Context, userID int, newPassword string) error
	UpdateLastActive(ctx context.Context, userID int) error
	GetDepartmentMembers(ctx context.Context, departmentID int) ([]int, error)
	IsProjectMember(ctx context.Context, projectID, userID int) (bool, error)
	GetProjectMembers(ctx context.Context, projectID int) ([]int, error)
	AddProjectMember(ctx context.Context, projectID, userID int) error
	RemoveProjectMember(ctx context.Context, projectID, userID int) error
	GetUserRoles(ctx context.Context, userID int) ([]models.Role, error)
	AssignRole(ctx context.Context, userID int, roleName string) error
	IsAdmin(ctx context.Context, userID int) (bool, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	GetUserEmails(ctx context.Context, userIDs []int) (map[int]string, error)
	EnsureAdminUser(ctx context.Context, username, password string) (*models.User, error)
}

// UserService provides the directory store: users, roles, departments, and
// project memberships.
type UserService struct {
	db     *sql.DB
	cfg    *config.Config
	logger *observability.Logger
}

// NewUserService creates a new UserService instance
func NewUserService(db *sql.DB, cfg *config.Config, logger *observability.Logger) *UserService {
	if db == nil {
		panic("NewUserService: db is nil")
	}
	if logger == nil {
		panic("NewUserService: logger is nil")
	}
	return &UserService{db: db, cfg: cfg, logger: logger}
}

// scanUserFromRow scans a user from a row using the canonical field order
func (s *UserService) scanUserFromRow(row *sql.Row) (result0 *models.User, err error) {
	var user models.User
	err = row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.DepartmentID,
		&user.LastActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, contextutils.ErrRecordNotFound
		}
		return nil, contextutils.WrapError(err, "failed to scan user")
	}
	return &user, nil
}

// GetUserByID returns the user with the given id, including roles.
func (s *UserService) GetUserByID(ctx context.Context, id int) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_user_by_id",
		observability.AttributeUserID(id),
	)
	defer observability.FinishSpan(span, &err)

	query := `SELECT ` + userQueryFields + ` FROM users WHERE id = $1`
	user, err := s.scanUserFromRow(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}

	roles, err := s.GetUserRoles(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Roles = roles
	return user, nil
}

// GetUserByUsername returns the user with the given username, including roles.
func (s *UserService) GetUserByUsername(ctx context.Context, username string) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_user_by_username",
		attribute.String("user.username", username),
	)
	defer observability.FinishSpan(span, &err)

	query := `SELECT ` + userQueryFields + ` FROM users WHERE username = $1`
	user, err := s.scanUserFromRow(s.db.QueryRowContext(ctx, query, username))
	if err != nil {
		return nil, err
	}

	roles, err := s.GetUserRoles(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Roles = roles
	return user, nil
}

// CreateUser creates a user with a bcrypt-hashed password.
func (s *UserService) CreateUser(ctx context.Context, username, email, password string, departmentID *int) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "create_user",
		attribute.String("user.username", username),
	)
	defer observability.FinishSpan(span, &err)

	username = strings.TrimSpace(username)
	if username == "" {
		return nil, contextutils.WrapError(contextutils.ErrMissingRequired, "username is required")
	}

	email = strings.TrimSpace(email)
	if email != "" && !contextutils.IsValidEmail(email) {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "invalid email address")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to hash password")
	}

	now := time.Now()
	var id int
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO users (username, email, password_hash, department_id, created_at, updated_at)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $5) RETURNING id`,
		username, email, string(hashedPassword), departmentID, now,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, contextutils.ErrRecordExists
		}
		return nil, contextutils.WrapError(err, "failed to insert user")
	}

	return s.GetUserByID(ctx, id)
}

// AuthenticateUser verifies the password against the stored bcrypt hash and
// returns the user on success.
func (s *UserService) AuthenticateUser(ctx context.Context, username, password string) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "authenticate_user",
		attribute.String("user.username", username),
	)
	defer observability.FinishSpan(span, &err)

	user, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		if contextutils.IsError(err, contextutils.ErrRecordNotFound) {
			return nil, contextutils.ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.PasswordHash.Valid {
		return nil, contextutils.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash.String), []byte(password)); err != nil {
		return nil, contextutils.ErrInvalidCredentials
	}

	return user, nil
}

// UpdateUserPassword replaces the user's password hash.
func (s *UserService) UpdateUserPassword(ctx context.Context, userID int, newPassword string) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "update_user_password",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return contextutils.WrapError(err, "failed to hash password")
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`,
		string(hashedPassword), time.Now(), userID,
	)
	if err != nil {
		return contextutils.WrapError(err, "failed to update password")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to read rows affected")
	}
	if affected == 0 {
		return contextutils.ErrRecordNotFound
	}
	return nil
}

// UpdateLastActive stamps the user's last_active time.
func (s *UserService) UpdateLastActive(ctx context.Context, userID int) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "update_last_active",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET last_active = $1 WHERE id = $2`, time.Now(), userID)
	if err != nil {
		return contextutils.WrapError(err, "failed to update last active")
	}
	return nil
}

// GetDepartmentMembers returns the ids of all users in a department.
func (s *UserService) GetDepartmentMembers(ctx context.Context, departmentID int) (result0 []int, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_department_members",
		observability.AttributeDepartmentID(departmentID),
	)
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM users WHERE department_id = $1 ORDER BY id`, departmentID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query department members")
	}
	defer func() {
		_ = rows.Close()
	}()

	var ids []int
	for rows.Next() {
		var id int
		if err = rows.Scan(&id); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan department member")
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate department members")
	}
	return ids, nil
}

// IsProjectMember reports whether the user is a member of the project.
func (s *UserService) IsProjectMember(ctx context.Context, projectID, userID int) (result0 bool, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "is_project_member",
		observability.AttributeProjectID(projectID),
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM project_members WHERE project_id = $1 AND user_id = $2)`,
		projectID, userID,
	).Scan(&exists)
	if err != nil {
		return false, contextutils.WrapError(err, "failed to check project membership")
	}
	return exists, nil
}

// GetProjectMembers returns the ids of all members of a project.
func (s *UserService) GetProjectMembers(ctx context.Context, projectID int) (result0 []int, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_project_members",
		observability.AttributeProjectID(projectID),
	)
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM project_members WHERE project_id = $1 ORDER BY user_id`, projectID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query project members")
	}
	defer func() {
		_ = rows.Close()
	}()

	var ids []int
	for rows.Next() {
		var id int
		if err = rows.Scan(&id); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan project member")
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate project members")
	}
	return ids, nil
}

// AddProjectMember adds a user to a project. Adding an existing member is a
// no-op.
func (s *UserService) AddProjectMember(ctx context.Context, projectID, userID int) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "add_project_member",
		observability.AttributeProjectID(projectID),
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO project_members (project_id, user_id, created_at)
		 SELECT $1, $2, $3
		 WHERE NOT EXISTS (
		     SELECT 1 FROM project_members WHERE project_id = $1 AND user_id = $2
		 )`,
		projectID, userID, time.Now(),
	)
	if err != nil {
		return contextutils.WrapError(err, "failed to add project member")
	}
	return nil
}

// RemoveProjectMember removes a user from a project. Removing an absent
// member is a no-op.
func (s *UserService) RemoveProjectMember(ctx context.Context, projectID, userID int) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "remove_project_member",
		observability.AttributeProjectID(projectID),
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	_, err = s.db.ExecContext(ctx,
		`DELETE FROM project_members WHERE project_id = $1 AND user_id = $2`,
		projectID, userID,
	)
	if err != nil {
		return contextutils.WrapError(err, "failed to remove project member")
	}
	return nil
}

// GetUserRoles returns the roles assigned to a user.
func (s *UserService) GetUserRoles(ctx context.Context, userID int) (result0 []models.Role, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_user_roles",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.name, r.description, r.created_at, r.updated_at
		 FROM roles r
		 JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = $1
		 ORDER BY r.id`, userID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query user roles")
	}
	defer func() {
		_ = rows.Close()
	}()

	var roles []models.Role
	for rows.Next() {
		var role models.Role
		if err = rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan role")
		}
		roles = append(roles, role)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate roles")
	}
	return roles, nil
}

// AssignRole assigns a named role to a user, creating the role row on first
// use. Assigning an already-held role is a no-op.
func (s *UserService) AssignRole(ctx context.Context, userID int, roleName string) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "assign_role",
		observability.AttributeUserID(userID),
		attribute.String("role.name", roleName),
	)
	defer observability.FinishSpan(span, &err)

	now := time.Now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO roles (name, description, created_at, updated_at)
		 SELECT $1, '', $2, $2
		 WHERE NOT EXISTS (SELECT 1 FROM roles WHERE name = $1)`,
		roleName, now,
	)
	if err != nil {
		return contextutils.WrapError(err, "failed to ensure role")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role_id, created_at)
		 SELECT $1, r.id, $2 FROM roles r
		 WHERE r.name = $3
		 AND NOT EXISTS (
		     SELECT 1 FROM user_roles ur JOIN roles r2 ON ur.role_id = r2.id
		     WHERE ur.user_id = $1 AND r2.name = $3
		 )`,
		userID, now, roleName,
	)
	if err != nil {
		return contextutils.WrapError(err, "failed to assign role")
	}
	return nil
}

// IsAdmin reports whether the user holds the admin role.
func (s *UserService) IsAdmin(ctx context.Context, userID int) (result0 bool, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "is_admin",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	var isAdmin bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM user_roles ur JOIN roles r ON ur.role_id = r.id
		     WHERE ur.user_id = $1 AND r.name = $2
		 )`, userID, models.RoleAdmin).Scan(&isAdmin)
	if err != nil {
		return false, contextutils.WrapError(err, "failed to check admin role")
	}
	return isAdmin, nil
}

// ListUsers returns all users ordered by id. Roles are not loaded.
func (s *UserService) ListUsers(ctx context.Context) (result0 []models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "list_users")
	defer observability.FinishSpan(span, &err)

	query := `SELECT ` + userQueryFields + ` FROM users ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query users")
	}
	defer func() { _ = rows.Close() }()

	var users []models.User
	for rows.Next() {
		var user models.User
		if err := rows.Scan(
			&user.ID,
			&user.Username,
			&user.Email,
			&user.PasswordHash,
			&user.DepartmentID,
			&user.LastActive,
			&user.CreatedAt,
			&user.UpdatedAt,
		); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan user")
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate users")
	}
	return users, nil
}

// GetUserEmails returns a map of user id to email for users that have one.
func (s *UserService) GetUserEmails(ctx context.Context, userIDs []int) (result0 map[int]string, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_user_emails",
		attribute.Int("user.count", len(userIDs)),
	)
	defer observability.FinishSpan(span, &err)

	emails := make(map[int]string)
	if len(userIDs) == 0 {
		return emails, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, email FROM users WHERE id = ANY($1) AND email IS NOT NULL AND email <> ''`,
		pq.Array(userIDs))
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query user emails")
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var id int
		var email string
		if err = rows.Scan(&id, &email); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan user email")
		}
		emails[id] = email
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate user emails")
	}
	return emails, nil
}

// EnsureAdminUser creates the admin user with the admin role if it does not
// exist, or resets its password if it does.
func (s *UserService) EnsureAdminUser(ctx context.Context, username, password string) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "ensure_admin_user",
		attribute.String("user.username", username),
	)
	defer observability.FinishSpan(span, &err)

	user, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		if !contextutils.IsError(err, contextutils.ErrRecordNotFound) {
			return nil, err
		}
		user, err = s.CreateUser(ctx, username, "", password, nil)
		if err != nil {
			return nil, err
		}
	} else {
		if err := s.UpdateUserPassword(ctx, user.ID, password); err != nil {
			return nil, err
		}
	}

	if err := s.AssignRole(ctx, user.ID, models.RoleAdmin); err != nil {
		return nil, err
	}
	return s.GetUserByID(ctx, user.ID)
}
