// Package models defines data structures used throughout the feedback application.
package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// User represents a user in the system
type User struct {
	ID           int            `json:"id" yaml:"id"`
	Username     string         `json:"username" yaml:"username"`
	Email        sql.NullString `json:"email" yaml:"email"`
	PasswordHash sql.NullString `json:"-" yaml:"-"` // Omit from JSON responses
	DepartmentID sql.NullInt64  `json:"department_id" yaml:"department_id"`
	LastActive   sql.NullTime   `json:"last_active" yaml:"last_active"`
	CreatedAt    time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" yaml:"updated_at"`
	Roles        []Role         `json:"roles,omitempty" yaml:"roles,omitempty"`
}

// Role represents a role in the system
type Role struct {
	ID          int       `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

// UserRole represents the mapping between users and roles
type UserRole struct {
	ID        int       `json:"id" yaml:"id"`
	UserID    int       `json:"user_id" yaml:"user_id"`
	RoleID    int       `json:"role_id" yaml:"role_id"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Department represents an organizational unit users belong to
type Department struct {
	ID          int            `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Description sql.NullString `json:"description" yaml:"description"`
	CreatedAt   time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" yaml:"updated_at"`
}

// Project represents a project that feedback rounds are attached to
type Project struct {
	ID          int            `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Description sql.NullString `json:"description" yaml:"description"`
	CreatedAt   time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" yaml:"updated_at"`
}

// ProjectMember represents membership of a user in a project
type ProjectMember struct {
	ID        int       `json:"id" yaml:"id"`
	ProjectID int       `json:"project_id" yaml:"project_id"`
	UserID    int       `json:"user_id" yaml:"user_id"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// MarshalJSON customizes JSON marshaling for User to handle sql.NullString and sql.NullTime properly
func (u User) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID           int        `json:"id"`
		Username     string     `json:"username"`
		Email        *string    `json:"email"`
		DepartmentID *int64     `json:"department_id"`
		LastActive   *time.Time `json:"last_active"`
		CreatedAt    time.Time  `json:"created_at"`
		UpdatedAt    time.Time  `json:"updated_at"`
		Roles        []Role     `json:"roles,omitempty"`
	}{
		ID:           u.ID,
		Username:     u.Username,
		Email:        nullStringToPointer(u.Email),
		DepartmentID: nullInt64ToPointer(u.DepartmentID),
		LastActive:   nullTimeToPointer(u.LastActive),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
		Roles:        u.Roles,
	})
}

// MarshalJSON customizes JSON marshaling for Department
func (d Department) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID          int       `json:"id"`
		Name        string    `json:"name"`
		Description *string   `json:"description"`
		CreatedAt   time.Time `json:"created_at"`
		UpdatedAt   time.Time `json:"updated_at"`
	}{
		ID:          d.ID,
		Name:        d.Name,
		Description: nullStringToPointer(d.Description),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	})
}

// Helper functions for converting sql.Null types to pointers
func nullStringToPointer(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

func nullTimeToPointer(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

func nullInt64ToPointer(ni sql.NullInt64) *int64 {
	if ni.Valid {
		return &ni.Int64
	}
	return nil
}

// HasRole reports whether the user carries the named role.
func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// Role name constants
const (
	// RoleAdmin is the administrator role name
	RoleAdmin = "admin"
	// RoleUser is the regular user role name
	RoleUser = "user"
)
