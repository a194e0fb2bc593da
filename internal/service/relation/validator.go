// Package relation checks that the entities an appointment points at exist
// and agree with each other.
package relation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/therapy-scheduler/internal/model"
	"github.com/jwalitptl/therapy-scheduler/internal/repository"
	apperrors "github.com/jwalitptl/therapy-scheduler/pkg/errors"
)

var (
	ErrNotFoundRelation                 = errors.New("related entity not found")
	ErrSpecializationDepartmentMismatch = errors.New("specialization does not belong to department")
)

// Input names every related entity of an appointment.
type Input struct {
	BranchID         int64
	PatientID        uuid.UUID
	TherapistID      int64
	CreatedByID      int64
	DepartmentID     int64
	SpecializationID *int64
}

// Resolved holds the entities found for an Input. Specialization is nil
// when none was requested.
type Resolved struct {
	Branch         *model.Branch
	Patient        *model.Patient
	Therapist      *model.TeamMember
	CreatedBy      *model.TeamMember
	Department     *model.Department
	Specialization *model.Specialization
}

type Repositories struct {
	Branches        repository.BranchRepository
	Patients        repository.PatientRepository
	TeamMembers     repository.TeamMemberRepository
	Departments     repository.DepartmentRepository
	Specializations repository.SpecializationRepository
}

type Validator struct {
	repos Repositories
}

func NewValidator(repos Repositories) *Validator {
	return &Validator{repos: repos}
}

func missing(kind string, id interface{}) error {
	return apperrors.BadRequest(fmt.Sprintf("%s with ID %v not found", kind, id), ErrNotFoundRelation)
}

func mismatch(specializationID, departmentID int64) error {
	return apperrors.BadRequest(
		fmt.Sprintf("Specialization %d does not belong to department %d", specializationID, departmentID),
		ErrSpecializationDepartmentMismatch,
	)
}

// find maps repository.ErrNotFound to a nil result so only storage failures
// surface as errors.
func find[T any](fetch func() (*T, error)) (*T, error) {
	v, err := fetch()
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return v, err
}

// Validate looks every relation up concurrently, waits for all of them and
// then reports the first failure in the order branch, patient, therapist,
// creator, department, specialization. Storage failures win over missing
// entities and are returned unwrapped.
func (v *Validator) Validate(ctx context.Context, in Input) (*Resolved, error) {
	var (
		res Resolved
		g   errgroup.Group
	)

	g.Go(func() (err error) {
		res.Branch, err = find(func() (*model.Branch, error) { return v.repos.Branches.Get(ctx, in.BranchID) })
		return err
	})
	g.Go(func() (err error) {
		res.Patient, err = find(func() (*model.Patient, error) { return v.repos.Patients.Get(ctx, in.PatientID) })
		return err
	})
	g.Go(func() (err error) {
		res.Therapist, err = find(func() (*model.TeamMember, error) { return v.repos.TeamMembers.Get(ctx, in.TherapistID) })
		return err
	})
	g.Go(func() (err error) {
		res.CreatedBy, err = find(func() (*model.TeamMember, error) { return v.repos.TeamMembers.Get(ctx, in.CreatedByID) })
		return err
	})
	g.Go(func() (err error) {
		res.Department, err = find(func() (*model.Department, error) { return v.repos.Departments.Get(ctx, in.DepartmentID) })
		return err
	})
	if in.SpecializationID != nil {
		g.Go(func() (err error) {
			res.Specialization, err = find(func() (*model.Specialization, error) {
				return v.repos.Specializations.Get(ctx, *in.SpecializationID)
			})
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	switch {
	case res.Branch == nil:
		return nil, missing("Branch", in.BranchID)
	case res.Patient == nil:
		return nil, missing("Patient", in.PatientID)
	case res.Therapist == nil:
		return nil, missing("Therapist", in.TherapistID)
	case res.CreatedBy == nil:
		return nil, missing("Team member", in.CreatedByID)
	case res.Department == nil:
		return nil, missing("Department", in.DepartmentID)
	}

	if in.SpecializationID != nil {
		if res.Specialization == nil {
			return nil, missing("Specialization", *in.SpecializationID)
		}
		if res.Specialization.DepartmentID != in.DepartmentID {
			return nil, mismatch(*in.SpecializationID, in.DepartmentID)
		}
	}
	return &res, nil
}

func (v *Validator) Branch(ctx context.Context, id int64) (*model.Branch, error) {
	branch, err := find(func() (*model.Branch, error) { return v.repos.Branches.Get(ctx, id) })
	if err != nil {
		return nil, err
	}
	if branch == nil {
		return nil, missing("Branch", id)
	}
	return branch, nil
}

func (v *Validator) Patient(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	patient, err := find(func() (*model.Patient, error) { return v.repos.Patients.Get(ctx, id) })
	if err != nil {
		return nil, err
	}
	if patient == nil {
		return nil, missing("Patient", id)
	}
	return patient, nil
}

func (v *Validator) Therapist(ctx context.Context, id int64) (*model.TeamMember, error) {
	return v.member(ctx, "Therapist", id)
}

// TeamMember looks up a creator or modifier.
func (v *Validator) TeamMember(ctx context.Context, id int64) (*model.TeamMember, error) {
	return v.member(ctx, "Team member", id)
}

func (v *Validator) member(ctx context.Context, kind string, id int64) (*model.TeamMember, error) {
	member, err := find(func() (*model.TeamMember, error) { return v.repos.TeamMembers.Get(ctx, id) })
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, missing(kind, id)
	}
	return member, nil
}

func (v *Validator) Department(ctx context.Context, id int64) (*model.Department, error) {
	department, err := find(func() (*model.Department, error) { return v.repos.Departments.Get(ctx, id) })
	if err != nil {
		return nil, err
	}
	if department == nil {
		return nil, missing("Department", id)
	}
	return department, nil
}

// Specialization looks id up and checks it belongs to departmentID.
func (v *Validator) Specialization(ctx context.Context, id, departmentID int64) (*model.Specialization, error) {
	specialization, err := find(func() (*model.Specialization, error) { return v.repos.Specializations.Get(ctx, id) })
	if err != nil {
		return nil, err
	}
	if specialization == nil {
		return nil, missing("Specialization", id)
	}
	if specialization.DepartmentID != departmentID {
		return nil, mismatch(id, departmentID)
	}
	return specialization, nil
}
