package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/therapy-scheduler/internal/model"
	"github.com/jwalitptl/therapy-scheduler/internal/repository"
)

type auditRepository struct {
	BaseRepository
}

func NewAuditRepository(db *sqlx.DB) repository.AuditRepository {
	return &auditRepository{NewBaseRepository(db)}
}

// Create joins the caller's transaction when one is open.
func (r *auditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			id, actor_id, action, entity_type, entity_id, changes, request_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	changes := log.Changes
	if len(changes) == 0 {
		changes = []byte("{}")
	}

	_, err := r.conn(ctx).ExecContext(ctx, query,
		log.ID,
		log.ActorID,
		log.Action,
		log.EntityType,
		log.EntityID,
		[]byte(changes),
		log.RequestID,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

func (r *auditRepository) ListByEntity(ctx context.Context, entityType string, entityID int64) ([]*model.AuditLog, error) {
	query := `
		SELECT id, actor_id, action, entity_type, entity_id, changes, request_id, created_at
		FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at ASC, id ASC
	`
	logs := []*model.AuditLog{}
	if err := r.conn(ctx).SelectContext(ctx, &logs, query, entityType, entityID); err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, nil
}

func (r *auditRepository) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.conn(ctx).ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit logs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}
