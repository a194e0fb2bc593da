package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/therapy-scheduler/internal/model"
	"github.com/jwalitptl/therapy-scheduler/internal/repository"
)

// Reference data is owned by sibling services; these repositories only read it.

type branchRepository struct {
	BaseRepository
}

func NewBranchRepository(db *sqlx.DB) repository.BranchRepository {
	return &branchRepository{NewBaseRepository(db)}
}

func (r *branchRepository) Get(ctx context.Context, id int64) (*model.Branch, error) {
	query := `
		SELECT branch_id, name, is_deleted, created_at, deleted_at
		FROM branches
		WHERE branch_id = $1 AND is_deleted = false
	`
	var branch model.Branch
	if err := r.conn(ctx).GetContext(ctx, &branch, query, id); err != nil {
		return nil, notFound(err)
	}
	return &branch, nil
}

func (r *branchRepository) List(ctx context.Context) ([]model.BranchRef, error) {
	query := `SELECT branch_id, name FROM branches WHERE is_deleted = false ORDER BY branch_id`

	branches := []model.BranchRef{}
	if err := r.conn(ctx).SelectContext(ctx, &branches, query); err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	return branches, nil
}

func (r *branchRepository) ListForTherapist(ctx context.Context, therapistID int64) ([]model.BranchRef, error) {
	query := `
		SELECT DISTINCT b.branch_id, b.name
		FROM therapist_branches tb
		JOIN branches b ON b.branch_id = tb.branch_id
		WHERE tb.therapist_id = $1 AND b.is_deleted = false
		ORDER BY b.branch_id
	`
	branches := []model.BranchRef{}
	if err := r.conn(ctx).SelectContext(ctx, &branches, query, therapistID); err != nil {
		return nil, fmt.Errorf("failed to list therapist branches: %w", err)
	}
	return branches, nil
}

type patientRepository struct {
	BaseRepository
}

func NewPatientRepository(db *sqlx.DB) repository.PatientRepository {
	return &patientRepository{NewBaseRepository(db)}
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	query := `
		SELECT id, firstname, lastname, emails, legalgender, birthdate, created_at, is_delete, deleted_at
		FROM patients
		WHERE id = $1 AND is_delete = false
	`
	var patient model.Patient
	if err := r.conn(ctx).GetContext(ctx, &patient, query, id); err != nil {
		return nil, notFound(err)
	}
	return &patient, nil
}

type teamMemberRepository struct {
	BaseRepository
}

func NewTeamMemberRepository(db *sqlx.DB) repository.TeamMemberRepository {
	return &teamMemberRepository{NewBaseRepository(db)}
}

func (r *teamMemberRepository) Get(ctx context.Context, id int64) (*model.TeamMember, error) {
	query := `
		SELECT therapist_id, first_name, last_name, full_name, contact_email, role, status, is_delete, deleted_at
		FROM therapist_team_members
		WHERE therapist_id = $1 AND is_delete = false
	`
	var member model.TeamMember
	if err := r.conn(ctx).GetContext(ctx, &member, query, id); err != nil {
		return nil, notFound(err)
	}
	return &member, nil
}

type departmentRepository struct {
	BaseRepository
}

func NewDepartmentRepository(db *sqlx.DB) repository.DepartmentRepository {
	return &departmentRepository{NewBaseRepository(db)}
}

func (r *departmentRepository) Get(ctx context.Context, id int64) (*model.Department, error) {
	query := `SELECT id, name, is_active, is_deleted FROM departments WHERE id = $1 AND is_deleted = false`

	var department model.Department
	if err := r.conn(ctx).GetContext(ctx, &department, query, id); err != nil {
		return nil, notFound(err)
	}
	return &department, nil
}

type specializationRepository struct {
	BaseRepository
}

func NewSpecializationRepository(db *sqlx.DB) repository.SpecializationRepository {
	return &specializationRepository{NewBaseRepository(db)}
}

func (r *specializationRepository) Get(ctx context.Context, id int64) (*model.Specialization, error) {
	query := `
		SELECT specialization_id, department_id, specialization_type, is_active, is_deleted
		FROM specializations
		WHERE specialization_id = $1 AND is_deleted = false
	`
	var specialization model.Specialization
	if err := r.conn(ctx).GetContext(ctx, &specialization, query, id); err != nil {
		return nil, notFound(err)
	}
	return &specialization, nil
}

type userRepository struct {
	BaseRepository
}

func NewUserRepository(db *sqlx.DB) repository.UserRepository {
	return &userRepository{NewBaseRepository(db)}
}

func (r *userRepository) GetTherapistID(ctx context.Context, userID int64) (*int64, error) {
	var therapistID sql.NullInt64
	err := r.conn(ctx).GetContext(ctx, &therapistID, `SELECT therapist_id FROM users WHERE id = $1`, userID)
	if err != nil {
		return nil, notFound(err)
	}
	if !therapistID.Valid {
		return nil, nil
	}
	return &therapistID.Int64, nil
}
