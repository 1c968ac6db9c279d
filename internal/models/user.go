package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin          UserRole = "ADMIN"
	RoleAdmissionStaff UserRole = "ADMISSION_STAFF"
	RoleTeacher        UserRole = "TEACHER"
	RoleStaff          UserRole = "STAFF"
	RoleStudent        UserRole = "STUDENT"
)

// Valid reports whether the role is known.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleAdmissionStaff, RoleTeacher, RoleStaff, RoleStudent:
		return true
	}
	return false
}

// User represents an account stored in the users table. The UID is globally
// unique for the lifetime of the system and never reused.
type User struct {
	ID                 int64      `db:"id" json:"id"`
	UID                string     `db:"uid" json:"uid"`
	Email              *string    `db:"email" json:"email,omitempty"`
	PasswordHash       string     `db:"password_hash" json:"-"`
	FullName           string     `db:"full_name" json:"full_name"`
	Role               UserRole   `db:"role" json:"role"`
	Active             bool       `db:"active" json:"active"`
	MustChangePassword bool       `db:"must_change_password" json:"must_change_password"`
	Phone              string     `db:"phone" json:"phone"`
	LastLogin          *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
