package models

import (
	"time"

	"github.com/google/uuid"
)

// User roles
const (
	RoleAdmin       = "admin"
	RoleCompanyUser = "company_user"
)

type User struct {
	ID        uuid.UUID  `json:"id"`
	Email     string     `json:"email"`
	FullName  *string    `json:"full_name,omitempty"`
	Role      string     `json:"role"`
	CompanyID *uuid.UUID `json:"company_id,omitempty"` // employer
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Actor is the principal performing an operation. It is always passed
// explicitly; nothing reads it from request-scoped globals.
type Actor struct {
	UserID uuid.UUID
	Role   string
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func (a Actor) AuditType() string {
	if a.IsAdmin() {
		return ActorTypeAdmin
	}
	return ActorTypeUser
}
