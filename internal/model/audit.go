package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	ActorID    *int64          `json:"actorId" db:"actor_id"`
	Action     string          `json:"action" db:"action"`
	EntityType string          `json:"entityType" db:"entity_type"`
	EntityID   int64           `json:"entityId" db:"entity_id"`
	Changes    json.RawMessage `json:"changes" db:"changes"`
	RequestID  string          `json:"requestId" db:"request_id"`
	CreatedAt  time.Time       `json:"createdAt" db:"created_at"`
}

const (
	// Action types
	AuditActionCreate     = "create"
	AuditActionUpdate     = "update"
	AuditActionSoftDelete = "soft_delete"
	AuditActionRestore    = "restore"
	AuditActionDelete     = "delete"

	// Entity types
	AuditEntityAppointment = "appointment"
)
