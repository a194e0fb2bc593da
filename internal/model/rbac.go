package model

import "time"

type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleTherapist  Role = "therapist"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleTherapist:
		return true
	}
	return false
}

// Caller is the authenticated identity of a request.
type Caller struct {
	UserID      int64  `json:"userId"`
	Email       string `json:"email,omitempty"`
	Role        Role   `json:"role"`
	TherapistID *int64 `json:"therapistId,omitempty"`
}

// Capability is a resource:action pair, e.g. "appointment:create".
type Capability string

type Permission struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Resource    string    `db:"resource" json:"resource"`
	Action      string    `db:"action" json:"action"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

type RoleRecord struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}
