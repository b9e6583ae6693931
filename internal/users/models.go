package users

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mind-engage/examdesk/internal/rbac"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrExists         = errors.New("username already taken")
	ErrInvalid        = errors.New("invalid user")
	ErrBadCredentials = errors.New("invalid username or password")
	ErrInactive       = errors.New("account is disabled")
	ErrLastAdmin      = errors.New("cannot remove the last active admin")
	ErrForbidden      = errors.New("not allowed for your role")
)

const MinPasswordLen = 8

type Role string

const (
	RoleAdmin   Role = rbac.RoleAdmin
	RoleStaff   Role = rbac.RoleStaff
	RoleStudent Role = rbac.RoleStudent
)

// ParseRole accepts the known roles; "teacher" is read as staff and an empty
// value as student.
func ParseRole(s string) (Role, error) {
	r := strings.ToLower(strings.TrimSpace(s))
	switch r {
	case "":
		return RoleStudent, nil
	case "teacher":
		return RoleStaff, nil
	}
	if !rbac.ValidRole(r) {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalid, s)
	}
	return Role(r), nil
}

type User struct {
	ID           string `json:"id" bson:"_id"`
	Username     string `json:"username" bson:"username"`
	Email        string `json:"email,omitempty" bson:"email"`
	DisplayName  string `json:"display_name,omitempty" bson:"display_name"`
	Role         Role   `json:"role" bson:"role"`
	Active       bool   `json:"active" bson:"active"`
	PasswordHash string `json:"-" bson:"password_hash"`
	CreatedAt    int64  `json:"created_at" bson:"created_at"`
	LastLoginAt  int64  `json:"last_login_at,omitempty" bson:"last_login_at"`
}

// Name is the display name, falling back to the username.
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

type ListOpts struct {
	Role   Role
	Q      string
	Active *bool
	Limit  int
	Offset int
}

func (o ListOpts) Clamp() ListOpts {
	if o.Limit <= 0 {
		o.Limit = 50
	}
	if o.Limit > 500 {
		o.Limit = 500
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

type NewUser struct {
	ID          string `json:"id,omitempty"`
	Username    string `json:"username" validate:"required,max=64"`
	Email       string `json:"email" validate:"omitempty,email"`
	DisplayName string `json:"display_name" validate:"max=128"`
	Role        string `json:"role" validate:"omitempty,oneof=admin staff student teacher"`
	Password    string `json:"password" validate:"required,min=8"`
}

// Patch holds the fields Update may change; nil leaves a field as is.
type Patch struct {
	Email       *string `json:"email" validate:"omitempty,email"`
	DisplayName *string `json:"display_name" validate:"omitempty,max=128"`
	Role        *string `json:"role" validate:"omitempty,oneof=admin staff student teacher"`
	Active      *bool   `json:"active"`
}

// BulkRow is one line of a bulk upsert. Rows match existing users by id or
// username; new users need a password.
type BulkRow struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Password    string `json:"password,omitempty"`
	Active      *bool  `json:"active,omitempty"`
}

type BulkResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}

// PII is the export of everything stored about a user.
type PII struct {
	User       User  `json:"user"`
	ExportedAt int64 `json:"exported_at"`
}
