package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/therapy-scheduler/internal/model"
	"github.com/jwalitptl/therapy-scheduler/internal/repository"
)

type appointmentRepository struct {
	BaseRepository
}

func NewAppointmentRepository(db *sqlx.DB) repository.AppointmentRepository {
	return &appointmentRepository{NewBaseRepository(db)}
}

const appointmentColumns = `
	a.id, a.branch_id, a.patient_id, a.therapist_id, a.department_id, a.specialization_id,
	a.created_by_id, a.modified_by_id, a.start_time, a.end_time, a.status, a.purpose_of_visit,
	a.description, a.is_deleted, a.deleted_at, a.created_at, a.updated_at`

const appointmentJoins = `
	FROM appointments a
	LEFT JOIN branches b ON b.branch_id = a.branch_id
	LEFT JOIN patients p ON p.id = a.patient_id
	LEFT JOIN therapist_team_members t ON t.therapist_id = a.therapist_id
	LEFT JOIN therapist_team_members cb ON cb.therapist_id = a.created_by_id
	LEFT JOIN therapist_team_members mb ON mb.therapist_id = a.modified_by_id
	LEFT JOIN departments d ON d.id = a.department_id
	LEFT JOIN specializations s ON s.specialization_id = a.specialization_id`

const appointmentDetailsSelect = `SELECT` + appointmentColumns + `,
	b.name AS branch_name,
	p.firstname AS patient_firstname, p.lastname AS patient_lastname, p.emails AS patient_emails,
	t.first_name AS therapist_first_name, t.last_name AS therapist_last_name, t.full_name AS therapist_full_name,
	cb.first_name AS created_by_first_name, cb.last_name AS created_by_last_name, cb.full_name AS created_by_full_name,
	mb.first_name AS modified_by_first_name, mb.last_name AS modified_by_last_name, mb.full_name AS modified_by_full_name,
	d.name AS department_name,
	s.specialization_type, s.department_id AS specialization_department_id` + appointmentJoins

// appointmentRow is the flat scan target of appointmentDetailsSelect.
type appointmentRow struct {
	model.Appointment
	BranchName                 sql.NullString `db:"branch_name"`
	PatientFirstName           sql.NullString `db:"patient_firstname"`
	PatientLastName            sql.NullString `db:"patient_lastname"`
	PatientEmails              sql.NullString `db:"patient_emails"`
	TherapistFirstName         sql.NullString `db:"therapist_first_name"`
	TherapistLastName          sql.NullString `db:"therapist_last_name"`
	TherapistFullName          sql.NullString `db:"therapist_full_name"`
	CreatedByFirstName         sql.NullString `db:"created_by_first_name"`
	CreatedByLastName          sql.NullString `db:"created_by_last_name"`
	CreatedByFullName          sql.NullString `db:"created_by_full_name"`
	ModifiedByFirstName        sql.NullString `db:"modified_by_first_name"`
	ModifiedByLastName         sql.NullString `db:"modified_by_last_name"`
	ModifiedByFullName         sql.NullString `db:"modified_by_full_name"`
	DepartmentName             sql.NullString `db:"department_name"`
	SpecializationType         sql.NullString `db:"specialization_type"`
	SpecializationDepartmentID sql.NullInt64  `db:"specialization_department_id"`
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func memberRef(id int64, first, last, full sql.NullString) *model.TeamMemberRef {
	return &model.TeamMemberRef{ID: id, FirstName: first.String, LastName: last.String, FullName: nullableString(full)}
}

func (row *appointmentRow) details() *model.AppointmentDetails {
	d := &model.AppointmentDetails{Appointment: row.Appointment}

	if row.BranchName.Valid {
		d.Branch = &model.BranchRef{ID: row.BranchID, Name: row.BranchName.String}
	}
	if row.PatientFirstName.Valid || row.PatientLastName.Valid {
		d.Patient = &model.PatientSummary{
			ID:        row.PatientID,
			FirstName: row.PatientFirstName.String,
			LastName:  row.PatientLastName.String,
			Emails:    nullableString(row.PatientEmails),
		}
	}
	if row.TherapistFirstName.Valid {
		d.Therapist = memberRef(row.TherapistID, row.TherapistFirstName, row.TherapistLastName, row.TherapistFullName)
	}
	if row.CreatedByFirstName.Valid {
		d.CreatedBy = memberRef(row.CreatedByID, row.CreatedByFirstName, row.CreatedByLastName, row.CreatedByFullName)
	}
	if row.ModifiedByID != nil && row.ModifiedByFirstName.Valid {
		d.ModifiedBy = memberRef(*row.ModifiedByID, row.ModifiedByFirstName, row.ModifiedByLastName, row.ModifiedByFullName)
	}
	if row.DepartmentName.Valid {
		d.Department = &model.DepartmentRef{ID: row.DepartmentID, Name: row.DepartmentName.String}
	}
	if row.SpecializationID != nil && row.SpecializationType.Valid {
		d.Specialization = &model.SpecializationRef{
			ID:                 *row.SpecializationID,
			DepartmentID:       row.SpecializationDepartmentID.Int64,
			SpecializationType: row.SpecializationType.String,
		}
	}
	return d
}

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			branch_id, patient_id, therapist_id, department_id, specialization_id,
			created_by_id, modified_by_id, start_time, end_time, status,
			purpose_of_visit, description, is_deleted, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, false, $13, $13)
		RETURNING id
	`
	now := time.Now().UTC()

	err := r.conn(ctx).QueryRowxContext(ctx, query,
		appointment.BranchID,
		appointment.PatientID,
		appointment.TherapistID,
		appointment.DepartmentID,
		appointment.SpecializationID,
		appointment.CreatedByID,
		appointment.ModifiedByID,
		appointment.StartTime,
		appointment.EndTime,
		appointment.Status,
		appointment.PurposeOfVisit,
		appointment.Description,
		now,
	).Scan(&appointment.ID)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}

	appointment.CreatedAt = now
	appointment.UpdatedAt = now
	return nil
}

func (r *appointmentRepository) Update(ctx context.Context, appointment *model.Appointment) error {
	query := `
		UPDATE appointments
		SET branch_id = $1, patient_id = $2, therapist_id = $3, department_id = $4,
			specialization_id = $5, modified_by_id = $6, start_time = $7, end_time = $8,
			status = $9, purpose_of_visit = $10, description = $11, updated_at = $12
		WHERE id = $13 AND is_deleted = false
	`
	appointment.UpdatedAt = time.Now().UTC()

	result, err := r.conn(ctx).ExecContext(ctx, query,
		appointment.BranchID,
		appointment.PatientID,
		appointment.TherapistID,
		appointment.DepartmentID,
		appointment.SpecializationID,
		appointment.ModifiedByID,
		appointment.StartTime,
		appointment.EndTime,
		appointment.Status,
		appointment.PurposeOfVisit,
		appointment.Description,
		appointment.UpdatedAt,
		appointment.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
	}
	return expectRow(result)
}

func (r *appointmentRepository) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE appointments
		SET is_deleted = true, deleted_at = $1, updated_at = $1
		WHERE id = $2 AND is_deleted = false
	`
	result, err := r.conn(ctx).ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("failed to soft delete appointment: %w", err)
	}
	return expectRow(result)
}

func (r *appointmentRepository) Restore(ctx context.Context, id int64) error {
	query := `
		UPDATE appointments
		SET is_deleted = false, deleted_at = NULL, updated_at = $1
		WHERE id = $2
	`
	result, err := r.conn(ctx).ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to restore appointment: %w", err)
	}
	return expectRow(result)
}

func (r *appointmentRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.conn(ctx).ExecContext(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete appointment: %w", err)
	}
	return expectRow(result)
}

func expectRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id int64, withDeleted bool) (*model.Appointment, error) {
	query := `SELECT` + appointmentColumns + ` FROM appointments a WHERE a.id = $1`
	if !withDeleted {
		query += " AND a.is_deleted = false"
	}

	var appointment model.Appointment
	if err := r.conn(ctx).GetContext(ctx, &appointment, query, id); err != nil {
		return nil, notFound(err)
	}
	return &appointment, nil
}

func (r *appointmentRepository) GetDetails(ctx context.Context, id int64, withDeleted bool) (*model.AppointmentDetails, error) {
	query := appointmentDetailsSelect + ` WHERE a.id = $1`
	if !withDeleted {
		query += " AND a.is_deleted = false"
	}

	var row appointmentRow
	if err := r.conn(ctx).GetContext(ctx, &row, query, id); err != nil {
		return nil, notFound(err)
	}
	return row.details(), nil
}

// listWhere renders the WHERE clause shared by the list and count queries.
func listWhere(filter *model.AppointmentFilter) (string, []interface{}) {
	where := " WHERE a.is_deleted = false"
	var args []interface{}

	if filter.Search != "" {
		args = append(args, likePattern(filter.Search))
		n := len(args)
		where += fmt.Sprintf(` AND (
			p.firstname ILIKE $%[1]d OR p.lastname ILIKE $%[1]d OR p.emails ILIKE $%[1]d
			OR t.first_name ILIKE $%[1]d OR t.last_name ILIKE $%[1]d
			OR cb.first_name ILIKE $%[1]d OR cb.last_name ILIKE $%[1]d
			OR d.name ILIKE $%[1]d OR s.specialization_type::text ILIKE $%[1]d)`, n)
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND a.status = $%d", len(args))
	}
	if filter.StartFrom != nil {
		args = append(args, *filter.StartFrom)
		where += fmt.Sprintf(" AND a.start_time >= $%d", len(args))
	}
	if filter.EndUntil != nil {
		args = append(args, *filter.EndUntil)
		where += fmt.Sprintf(" AND a.end_time <= $%d", len(args))
	}
	if filter.DepartmentID != 0 {
		args = append(args, filter.DepartmentID)
		where += fmt.Sprintf(" AND a.department_id = $%d", len(args))
	}
	if filter.BranchID != 0 {
		args = append(args, filter.BranchID)
		where += fmt.Sprintf(" AND a.branch_id = $%d", len(args))
	}
	if filter.PatientID != nil {
		args = append(args, *filter.PatientID)
		where += fmt.Sprintf(" AND a.patient_id = $%d", len(args))
	}
	if filter.TherapistID != 0 {
		args = append(args, filter.TherapistID)
		where += fmt.Sprintf(" AND a.therapist_id = $%d", len(args))
	}
	return where, args
}

func paginate(query string, args []interface{}, page *model.Pagination) (string, []interface{}) {
	if page == nil || !page.Enabled() {
		return query, args
	}
	args = append(args, page.Limit, page.Offset())
	return query + fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args
}

func (r *appointmentRepository) List(ctx context.Context, filter *model.AppointmentFilter) ([]*model.AppointmentDetails, int64, error) {
	if filter == nil {
		filter = &model.AppointmentFilter{}
	}
	where, args := listWhere(filter)

	var total int64
	if err := r.conn(ctx).GetContext(ctx, &total, `SELECT COUNT(*)`+appointmentJoins+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count appointments: %w", err)
	}

	query, args := paginate(appointmentDetailsSelect+where+" ORDER BY a.created_at DESC, a.id DESC", args, filter.Page)
	items, err := r.selectDetails(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list appointments: %w", err)
	}
	return items, total, nil
}

func (r *appointmentRepository) ListDeleted(ctx context.Context, page *model.Pagination) ([]*model.AppointmentDetails, int64, error) {
	where := " WHERE a.is_deleted = true"

	var total int64
	if err := r.conn(ctx).GetContext(ctx, &total, `SELECT COUNT(*) FROM appointments a`+where); err != nil {
		return nil, 0, fmt.Errorf("failed to count deleted appointments: %w", err)
	}

	query, args := paginate(appointmentDetailsSelect+where+" ORDER BY a.deleted_at DESC, a.id DESC", nil, page)
	items, err := r.selectDetails(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list deleted appointments: %w", err)
	}
	return items, total, nil
}

func (r *appointmentRepository) selectDetails(ctx context.Context, query string, args ...interface{}) ([]*model.AppointmentDetails, error) {
	var rows []appointmentRow
	if err := r.conn(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	items := make([]*model.AppointmentDetails, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].details())
	}
	return items, nil
}
