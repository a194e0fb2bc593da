// Package rbac holds the role/capability matrix and seeds it into storage.
package rbac

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/therapy-scheduler/internal/model"
	"github.com/jwalitptl/therapy-scheduler/internal/repository"
)

const (
	AppointmentCreate  model.Capability = "appointment:create"
	AppointmentRead    model.Capability = "appointment:read"
	AppointmentUpdate  model.Capability = "appointment:update"
	AppointmentDelete  model.Capability = "appointment:delete"
	AppointmentRestore model.Capability = "appointment:restore"
	AppointmentPurge   model.Capability = "appointment:purge"
	DashboardRead      model.Capability = "dashboard:read"
	AuditRead          model.Capability = "audit:read"
)

var capabilityDescriptions = map[model.Capability]string{
	AppointmentCreate:  "Book appointments",
	AppointmentRead:    "View appointments",
	AppointmentUpdate:  "Reschedule and change appointment status",
	AppointmentDelete:  "Soft delete appointments",
	AppointmentRestore: "Restore deleted appointments",
	AppointmentPurge:   "Permanently remove deleted appointments",
	DashboardRead:      "View dashboard analytics",
	AuditRead:          "View the change history of appointments",
}

var roleDescriptions = map[model.Role]string{
	model.RoleSuperAdmin: "Full access across every branch",
	model.RoleAdmin:      "Branch administrator",
	model.RoleTherapist:  "Therapist team member",
}

// grants is the capability matrix. super_admin implicitly holds everything.
var grants = map[model.Role][]model.Capability{
	model.RoleAdmin: {
		AppointmentCreate, AppointmentRead, AppointmentUpdate,
		AppointmentDelete, AppointmentRestore, DashboardRead, AuditRead,
	},
	model.RoleTherapist: {
		AppointmentCreate, AppointmentRead, AppointmentUpdate, DashboardRead,
	},
}

// Capabilities lists every known capability in a stable order.
func Capabilities() []model.Capability {
	return []model.Capability{
		AppointmentCreate, AppointmentRead, AppointmentUpdate,
		AppointmentDelete, AppointmentRestore, AppointmentPurge, DashboardRead,
		AuditRead,
	}
}

// Can reports whether role holds capability.
func Can(role model.Role, capability model.Capability) bool {
	if role == model.RoleSuperAdmin {
		return true
	}
	for _, c := range grants[role] {
		if c == capability {
			return true
		}
	}
	return false
}

// Seeder writes the roles, permissions and grants of the matrix. Running it
// again leaves storage unchanged.
type Seeder struct {
	repo repository.RBACRepository
	tx   repository.Transactor
}

func NewSeeder(repo repository.RBACRepository, tx repository.Transactor) *Seeder {
	return &Seeder{repo: repo, tx: tx}
}

func (s *Seeder) Seed(ctx context.Context) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		permissionIDs := make(map[model.Capability]int64)
		for _, c := range Capabilities() {
			resource, action, _ := strings.Cut(string(c), ":")
			p := &model.Permission{
				Name:        string(c),
				Resource:    resource,
				Action:      action,
				Description: capabilityDescriptions[c],
			}
			if err := s.repo.UpsertPermission(ctx, p); err != nil {
				return err
			}
			permissionIDs[c] = p.ID
		}

		for _, role := range []model.Role{model.RoleSuperAdmin, model.RoleAdmin, model.RoleTherapist} {
			record := &model.RoleRecord{Name: string(role), Description: roleDescriptions[role]}
			if err := s.repo.UpsertRole(ctx, record); err != nil {
				return err
			}
			for _, c := range Capabilities() {
				if !Can(role, c) {
					continue
				}
				if err := s.repo.GrantPermission(ctx, record.ID, permissionIDs[c]); err != nil {
					return fmt.Errorf("failed to grant %s to %s: %w", c, role, err)
				}
			}
		}

		log.Info().Int("permissions", len(permissionIDs)).Msg("RBAC_Seed_Complete")
		return nil
	})
}
