package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/therapy-scheduler/internal/model"
	"github.com/jwalitptl/therapy-scheduler/internal/timewindow"
)

// ErrNotFound is returned by every lookup that matches no live row.
var ErrNotFound = errors.New("record not found")

// Transactor runs fn inside a transaction carried by the context handed to
// fn. Repositories called with that context join the transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// AppointmentScope narrows dashboard queries. Zero ids mean "any".
type AppointmentScope struct {
	TherapistID int64
	BranchID    int64
	Window      *timewindow.Range
}

// DemographicsQuery selects the patient population of one insights row.
// A nil BranchID selects every live patient.
type DemographicsQuery struct {
	BranchID *int64
	WeekAgo  time.Time
	MonthAgo time.Time
	Now      time.Time
}

// All repository interfaces in one file
type (
	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		Update(ctx context.Context, appointment *model.Appointment) error
		SoftDelete(ctx context.Context, id int64, at time.Time) error
		Restore(ctx context.Context, id int64) error
		Delete(ctx context.Context, id int64) error
		// Get returns the bare row; withDeleted includes soft-deleted rows.
		Get(ctx context.Context, id int64, withDeleted bool) (*model.Appointment, error)
		GetDetails(ctx context.Context, id int64, withDeleted bool) (*model.AppointmentDetails, error)
		List(ctx context.Context, filter *model.AppointmentFilter) ([]*model.AppointmentDetails, int64, error)
		ListDeleted(ctx context.Context, page *model.Pagination) ([]*model.AppointmentDetails, int64, error)
	}

	BranchRepository interface {
		Get(ctx context.Context, id int64) (*model.Branch, error)
		List(ctx context.Context) ([]model.BranchRef, error)
		ListForTherapist(ctx context.Context, therapistID int64) ([]model.BranchRef, error)
	}

	PatientRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
	}

	TeamMemberRepository interface {
		Get(ctx context.Context, id int64) (*model.TeamMember, error)
	}

	DepartmentRepository interface {
		Get(ctx context.Context, id int64) (*model.Department, error)
	}

	SpecializationRepository interface {
		Get(ctx context.Context, id int64) (*model.Specialization, error)
	}

	UserRepository interface {
		// GetTherapistID returns the team membership linked to a login,
		// nil when the user exists without one.
		GetTherapistID(ctx context.Context, userID int64) (*int64, error)
	}

	DashboardRepository interface {
		Stats(ctx context.Context, scope AppointmentScope) (*model.AppointmentStats, error)
		Distribution(ctx context.Context, scope AppointmentScope, groupBy string) ([]model.GroupCount, error)
		CalendarEntries(ctx context.Context, scope AppointmentScope) ([]model.CalendarEntry, error)
		BranchCounts(ctx context.Context, branchIDs []int64, window *timewindow.Range) ([]model.BranchCounts, error)
		Demographics(ctx context.Context, q DemographicsQuery) (*model.Demographics, error)
		Totals(ctx context.Context, window *timewindow.Range) (*model.Totals, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		ListByEntity(ctx context.Context, entityType string, entityID int64) ([]*model.AuditLog, error)
		Cleanup(ctx context.Context, before time.Time) (int64, error)
	}

	RBACRepository interface {
		UpsertRole(ctx context.Context, role *model.RoleRecord) error
		UpsertPermission(ctx context.Context, permission *model.Permission) error
		GrantPermission(ctx context.Context, roleID, permissionID int64) error
	}
)
