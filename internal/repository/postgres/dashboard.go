package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/therapy-scheduler/internal/model"
	"github.com/jwalitptl/therapy-scheduler/internal/repository"
	"github.com/jwalitptl/therapy-scheduler/internal/timewindow"
)

type dashboardRepository struct {
	BaseRepository
}

func NewDashboardRepository(db *sqlx.DB) repository.DashboardRepository {
	return &dashboardRepository{NewBaseRepository(db)}
}

// scopeWhere filters live appointments by therapist, branch and window
// overlap: an appointment is in the window when it starts before the window
// ends and ends after the window starts.
func scopeWhere(scope repository.AppointmentScope) (string, []interface{}) {
	where := " WHERE a.is_deleted = false"
	var args []interface{}

	if scope.TherapistID != 0 {
		args = append(args, scope.TherapistID)
		where += fmt.Sprintf(" AND a.therapist_id = $%d", len(args))
	}
	if scope.BranchID != 0 {
		args = append(args, scope.BranchID)
		where += fmt.Sprintf(" AND a.branch_id = $%d", len(args))
	}
	if scope.Window.HasEnd() {
		args = append(args, scope.Window.End)
		where += fmt.Sprintf(" AND a.start_time <= $%d", len(args))
	}
	if scope.Window.HasStart() {
		args = append(args, scope.Window.Start)
		where += fmt.Sprintf(" AND a.end_time >= $%d", len(args))
	}
	return where, args
}

// startWithin restricts a.start_time to a closed window; open windows are
// ignored.
func startWithin(window *timewindow.Range, args []interface{}) (string, []interface{}) {
	if !window.Closed() {
		return "", args
	}
	args = append(args, window.Start, window.End)
	return fmt.Sprintf(" AND a.start_time >= $%d AND a.start_time <= $%d", len(args)-1, len(args)), args
}

func (r *dashboardRepository) Stats(ctx context.Context, scope repository.AppointmentScope) (*model.AppointmentStats, error) {
	where, args := scopeWhere(scope)
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE a.status = 'completed') AS completed,
			COUNT(*) FILTER (WHERE a.status = 'cancelled') AS cancellations,
			COUNT(*) FILTER (WHERE a.status = 'pending') AS pending
		FROM appointments a` + where

	var row struct {
		Total         int64 `db:"total"`
		Completed     int64 `db:"completed"`
		Cancellations int64 `db:"cancellations"`
		Pending       int64 `db:"pending"`
	}
	if err := r.conn(ctx).GetContext(ctx, &row, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get appointment stats: %w", err)
	}

	return &model.AppointmentStats{
		Total:         row.Total,
		Completed:     row.Completed,
		Cancellations: row.Cancellations,
		Pending:       row.Pending,
	}, nil
}

func (r *dashboardRepository) Distribution(ctx context.Context, scope repository.AppointmentScope, groupBy string) ([]model.GroupCount, error) {
	where, args := scopeWhere(scope)

	var query string
	switch groupBy {
	case model.GroupByBranch:
		query = `
			SELECT b.branch_id AS id, b.name AS name, COUNT(*) AS count
			FROM appointments a
			JOIN branches b ON b.branch_id = a.branch_id` + where + `
			GROUP BY b.branch_id, b.name
			ORDER BY count DESC, id`
	default:
		query = `
			SELECT t.therapist_id AS id,
				COALESCE(NULLIF(TRIM(t.full_name), ''), TRIM(CONCAT(t.first_name, ' ', t.last_name))) AS name,
				COUNT(*) AS count
			FROM appointments a
			JOIN therapist_team_members t ON t.therapist_id = a.therapist_id` + where + `
			GROUP BY t.therapist_id, t.full_name, t.first_name, t.last_name
			ORDER BY count DESC, id`
	}

	groups := []model.GroupCount{}
	if err := r.conn(ctx).SelectContext(ctx, &groups, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get appointment distribution: %w", err)
	}
	return groups, nil
}

func (r *dashboardRepository) CalendarEntries(ctx context.Context, scope repository.AppointmentScope) ([]model.CalendarEntry, error) {
	where, args := scopeWhere(scope)
	query := `
		SELECT a.id, a.purpose_of_visit, a.start_time, a.end_time, a.status,
			a.therapist_id, t.first_name AS therapist_first_name, t.last_name AS therapist_last_name,
			t.full_name AS therapist_full_name,
			a.branch_id, b.name AS branch_name,
			p.id AS patient_id, p.firstname AS patient_firstname, p.lastname AS patient_lastname
		FROM appointments a
		LEFT JOIN therapist_team_members t ON t.therapist_id = a.therapist_id
		LEFT JOIN branches b ON b.branch_id = a.branch_id
		LEFT JOIN patients p ON p.id = a.patient_id` + where + `
		ORDER BY a.start_time ASC, a.id ASC`

	entries := []model.CalendarEntry{}
	if err := r.conn(ctx).SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get calendar events: %w", err)
	}
	return entries, nil
}

func (r *dashboardRepository) BranchCounts(ctx context.Context, branchIDs []int64, window *timewindow.Range) ([]model.BranchCounts, error) {
	if len(branchIDs) == 0 {
		return []model.BranchCounts{}, nil
	}

	args := []interface{}{pq.Array(branchIDs)}
	windowClause, args := startWithin(window, args)

	query := `
		SELECT br.id AS branch_id,
			(SELECT COUNT(DISTINCT tb.therapist_id)
				FROM therapist_branches tb
				JOIN therapist_team_members t ON t.therapist_id = tb.therapist_id
				WHERE tb.branch_id = br.id AND t.is_delete = false) AS therapists,
			(SELECT COUNT(DISTINCT a.patient_id)
				FROM appointments a
				WHERE a.branch_id = br.id AND a.is_deleted = false) AS patients,
			(SELECT COUNT(*)
				FROM appointments a
				WHERE a.branch_id = br.id AND a.is_deleted = false` + windowClause + `) AS appointments
		FROM unnest($1::bigint[]) AS br(id)
		ORDER BY br.id`

	counts := []model.BranchCounts{}
	if err := r.conn(ctx).SelectContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get branch counts: %w", err)
	}
	return counts, nil
}

// Demographics gathers the raw figures of one insights row. The branch
// population is every live patient with at least one appointment row in the
// branch; without a branch it is every live patient.
func (r *dashboardRepository) Demographics(ctx context.Context, q repository.DemographicsQuery) (*model.Demographics, error) {
	var (
		population string
		apptQuery  string
		args       []interface{}
		apptArgs   []interface{}
	)
	if q.BranchID != nil {
		args = append(args, *q.BranchID)
		population = `
			WITH pop AS (
				SELECT DISTINCT p.id, p.legalgender, p.birthdate, p.created_at
				FROM patients p
				JOIN appointments a ON a.patient_id = p.id
				WHERE a.branch_id = $1 AND p.is_delete = false
			)`
		apptQuery = `SELECT COUNT(*) FROM appointments a WHERE a.branch_id = $1 AND a.is_deleted = false`
		apptArgs = []interface{}{*q.BranchID}
	} else {
		population = `
			WITH pop AS (
				SELECT p.id, p.legalgender, p.birthdate, p.created_at
				FROM patients p
				WHERE p.is_delete = false
			)`
		apptQuery = `SELECT COUNT(*) FROM appointments a WHERE a.is_deleted = false`
	}

	n := len(args)
	countQuery := population + fmt.Sprintf(`
		SELECT
			COUNT(*) AS patients,
			COUNT(*) FILTER (WHERE created_at >= $%d AND created_at <= $%d) AS new_week,
			COUNT(*) FILTER (WHERE created_at >= $%d AND created_at <= $%d) AS new_month
		FROM pop`, n+1, n+3, n+2, n+3)
	countArgs := append(append([]interface{}{}, args...), q.WeekAgo, q.MonthAgo, q.Now)

	var counts struct {
		Patients int64 `db:"patients"`
		NewWeek  int64 `db:"new_week"`
		NewMonth int64 `db:"new_month"`
	}
	if err := r.conn(ctx).GetContext(ctx, &counts, countQuery, countArgs...); err != nil {
		return nil, fmt.Errorf("failed to count patients: %w", err)
	}

	groupQuery := population + `
		SELECT
			LOWER(TRIM(COALESCE(legalgender, ''))) AS gender,
			EXTRACT(YEAR FROM birthdate)::int AS birth_year,
			COUNT(*) AS count
		FROM pop
		GROUP BY 1, 2`

	groups := []model.DemographicGroup{}
	if err := r.conn(ctx).SelectContext(ctx, &groups, groupQuery, args...); err != nil {
		return nil, fmt.Errorf("failed to group patients: %w", err)
	}

	var appointments int64
	if err := r.conn(ctx).GetContext(ctx, &appointments, apptQuery, apptArgs...); err != nil {
		return nil, fmt.Errorf("failed to count appointments: %w", err)
	}

	return &model.Demographics{
		Patients:     counts.Patients,
		NewWeek:      counts.NewWeek,
		NewMonth:     counts.NewMonth,
		Appointments: appointments,
		Groups:       groups,
	}, nil
}

func (r *dashboardRepository) Totals(ctx context.Context, window *timewindow.Range) (*model.Totals, error) {
	windowClause, args := startWithin(window, nil)
	query := `
		SELECT
			(SELECT COUNT(*) FROM therapist_team_members WHERE is_delete = false) AS total_therapists,
			(SELECT COUNT(*) FROM patients WHERE is_delete = false) AS total_patients,
			(SELECT COUNT(*) FROM appointments a WHERE a.is_deleted = false` + windowClause + `) AS total_appointments`

	var totals model.Totals
	if err := r.conn(ctx).GetContext(ctx, &totals, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get totals: %w", err)
	}
	return &totals, nil
}
