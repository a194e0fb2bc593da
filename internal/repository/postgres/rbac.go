package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/therapy-scheduler/internal/model"
	"github.com/jwalitptl/therapy-scheduler/internal/repository"
)

type rbacRepository struct {
	BaseRepository
}

func NewRBACRepository(db *sqlx.DB) repository.RBACRepository {
	return &rbacRepository{NewBaseRepository(db)}
}

// UpsertRole inserts the role once and fills role.ID either way.
func (r *rbacRepository) UpsertRole(ctx context.Context, role *model.RoleRecord) error {
	query := `
		INSERT INTO roles (name, description, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
		RETURNING id, created_at
	`
	if err := r.conn(ctx).QueryRowxContext(ctx, query, role.Name, role.Description).Scan(&role.ID, &role.CreatedAt); err != nil {
		return fmt.Errorf("failed to upsert role %s: %w", role.Name, err)
	}
	return nil
}

func (r *rbacRepository) UpsertPermission(ctx context.Context, permission *model.Permission) error {
	query := `
		INSERT INTO permissions (name, resource, action, description, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
		RETURNING id, created_at
	`
	err := r.conn(ctx).QueryRowxContext(ctx, query,
		permission.Name,
		permission.Resource,
		permission.Action,
		permission.Description,
	).Scan(&permission.ID, &permission.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert permission %s: %w", permission.Name, err)
	}
	return nil
}

func (r *rbacRepository) GrantPermission(ctx context.Context, roleID, permissionID int64) error {
	query := `
		INSERT INTO role_permissions (role_id, permission_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	if _, err := r.conn(ctx).ExecContext(ctx, query, roleID, permissionID); err != nil {
		return fmt.Errorf("failed to grant permission: %w", err)
	}
	return nil
}
