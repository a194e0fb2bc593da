package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/therapy-scheduler/internal/model"
	"github.com/jwalitptl/therapy-scheduler/internal/repository"
	"github.com/jwalitptl/therapy-scheduler/internal/service/audit"
	"github.com/jwalitptl/therapy-scheduler/internal/service/relation"
	"github.com/jwalitptl/therapy-scheduler/internal/timewindow"
	"github.com/jwalitptl/therapy-scheduler/pkg/cache"
	"github.com/jwalitptl/therapy-scheduler/pkg/clock"
	apperrors "github.com/jwalitptl/therapy-scheduler/pkg/errors"
	"github.com/jwalitptl/therapy-scheduler/pkg/metrics"
)

var (
	ErrInvalidTimeRange        = errors.New("invalid time range")
	ErrInvalidStatus           = errors.New("invalid appointment status")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrNotDeleted              = errors.New("appointment is not deleted")
)

// AppointmentServicer is the lifecycle API consumed by the HTTP layer.
type AppointmentServicer interface {
	Create(ctx context.Context, req *model.CreateAppointmentRequest) (*model.AppointmentDetails, error)
	List(ctx context.Context, req *model.ListAppointmentsRequest) (*model.Page[*model.AppointmentDetails], error)
	Get(ctx context.Context, id int64) (*model.AppointmentDetails, error)
	Update(ctx context.Context, id int64, req *model.UpdateAppointmentRequest) (*model.AppointmentDetails, error)
	SoftDelete(ctx context.Context, id int64) error
	Restore(ctx context.Context, id int64) (*model.AppointmentDetails, error)
	PermanentDelete(ctx context.Context, id int64) error
	ListDeleted(ctx context.Context, page model.Pagination) (*model.Page[*model.AppointmentDetails], error)
}

type Deps struct {
	Appointments repository.AppointmentRepository
	Relations    *relation.Validator
	Tx           repository.Transactor
	Audit        audit.Recorder
	Cache        cache.Cache
	Metrics      *metrics.Metrics
	Clock        clock.Clock
}

type Service struct {
	repo      repository.AppointmentRepository
	relations *relation.Validator
	tx        repository.Transactor
	audit     audit.Recorder
	cache     cache.Cache
	metrics   *metrics.Metrics
	clock     clock.Clock
}

func NewService(d Deps) *Service {
	if d.Cache == nil {
		d.Cache = cache.Noop{}
	}
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	return &Service{
		repo:      d.Appointments,
		relations: d.Relations,
		tx:        d.Tx,
		audit:     d.Audit,
		cache:     d.Cache,
		metrics:   d.Metrics,
		clock:     d.Clock,
	}
}

// handleError passes known application errors through and hides everything
// else behind a generic internal error.
func (s *Service) handleError(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound("Appointment", err)
	}
	log.Error().Err(err).Msg(fmt.Sprintf("Appointment_%s_Error", op))
	return apperrors.Internal(err)
}

func notFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound("Appointment", err)
	}
	return err
}

// invalidate drops cached dashboard results after a committed write. A cache
// failure never fails the write.
func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		log.Warn().Err(err).Msg("Appointment_CacheInvalidate_Error")
	}
}

func parseStart(value string) (time.Time, error) {
	t, err := timewindow.ParseDate(value)
	if err != nil {
		return time.Time{}, apperrors.BadRequest("Start time must be a valid ISO datetime string", ErrInvalidTimeRange)
	}
	return t, nil
}

func parseEnd(value string) (time.Time, error) {
	t, err := timewindow.ParseDate(value)
	if err != nil {
		return time.Time{}, apperrors.BadRequest("End time must be a valid ISO datetime string", ErrInvalidTimeRange)
	}
	return t, nil
}

func checkSlot(start, end time.Time) error {
	if !end.After(start) {
		return apperrors.BadRequest("End time must be after start time", ErrInvalidTimeRange)
	}
	return nil
}

func parseStatus(value string) (model.AppointmentStatus, error) {
	status := model.AppointmentStatus(strings.ToLower(strings.TrimSpace(value)))
	if !status.Valid() {
		return "", apperrors.BadRequest(fmt.Sprintf("Invalid status %q", value), ErrInvalidStatus)
	}
	return status, nil
}

// annotate appends a bracketed note to description and trims the result.
func annotate(description *string, label, reason string) *string {
	base := ""
	if description != nil {
		base = *description
	}
	out := strings.TrimSpace(fmt.Sprintf("%s [%s: %s]", base, label, reason))
	return &out
}

func (s *Service) Create(ctx context.Context, req *model.CreateAppointmentRequest) (details *model.AppointmentDetails, err error) {
	defer func() { s.metrics.ObserveAppointment("create", err) }()
	log.Debug().Str("patient_id", req.PatientID.String()).Int64("branch_id", req.BranchID).Msg("Appointment_Create_Entry")

	start, err := parseStart(req.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := parseEnd(req.EndTime)
	if err != nil {
		return nil, err
	}
	if err := checkSlot(start, end); err != nil {
		return nil, err
	}

	status := model.AppointmentStatusPending
	if req.Status != "" {
		if status, err = parseStatus(req.Status); err != nil {
			return nil, err
		}
	}

	// Lookups run concurrently, so they stay outside the transaction.
	if _, err := s.relations.Validate(ctx, relation.Input{
		BranchID:         req.BranchID,
		PatientID:        req.PatientID,
		TherapistID:      req.TherapistID,
		CreatedByID:      req.CreatedByID,
		DepartmentID:     req.DepartmentID,
		SpecializationID: req.SpecializationID,
	}); err != nil {
		return nil, s.handleError("Create", err)
	}

	appointment := &model.Appointment{
		BranchID:         req.BranchID,
		PatientID:        req.PatientID,
		TherapistID:      req.TherapistID,
		DepartmentID:     req.DepartmentID,
		SpecializationID: req.SpecializationID,
		CreatedByID:      req.CreatedByID,
		StartTime:        start,
		EndTime:          end,
		Status:           status,
		PurposeOfVisit:   req.PurposeOfVisit,
		Description:      req.Description,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, appointment); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, model.AuditActionCreate, model.AuditEntityAppointment, appointment.ID, appointment); err != nil {
			return err
		}
		var err error
		details, err = s.repo.GetDetails(ctx, appointment.ID, false)
		return err
	})
	if err != nil {
		return nil, s.handleError("Create", err)
	}

	s.invalidate(ctx)
	log.Info().Int64("id", details.ID).Msg("Appointment_Create_Exit")
	return details, nil
}

func (s *Service) List(ctx context.Context, req *model.ListAppointmentsRequest) (page *model.Page[*model.AppointmentDetails], err error) {
	log.Debug().Str("search", req.Search).Int("page", req.Page).Int("limit", req.Limit).Msg("Appointment_FindAll_Entry")

	filter := &model.AppointmentFilter{
		Search:       strings.TrimSpace(req.Search),
		DepartmentID: req.DepartmentID,
		BranchID:     req.BranchID,
		TherapistID:  req.TherapistID,
		Page:         req.Pagination.Ptr(),
	}
	if req.Status != "" {
		if filter.Status, err = parseStatus(req.Status); err != nil {
			return nil, err
		}
	}
	if req.StartDate != "" {
		t, err := timewindow.ParseDate(req.StartDate)
		if err != nil {
			return nil, apperrors.BadRequest("startDate must be a valid date", err)
		}
		filter.StartFrom = &t
	}
	if req.EndDate != "" {
		t, err := timewindow.ParseDate(req.EndDate)
		if err != nil {
			return nil, apperrors.BadRequest("endDate must be a valid date", err)
		}
		filter.EndUntil = &t
	}
	if req.PatientID != "" {
		id, err := uuid.Parse(req.PatientID)
		if err != nil {
			return nil, apperrors.BadRequest("patientId must be a valid UUID", err)
		}
		filter.PatientID = &id
	}

	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, s.handleError("FindAll", err)
	}

	log.Debug().Int64("total", total).Msg("Appointment_FindAll_Exit")
	return &model.Page[*model.AppointmentDetails]{Data: rows, Total: total}, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*model.AppointmentDetails, error) {
	details, err := s.repo.GetDetails(ctx, id, false)
	if err != nil {
		return nil, s.handleError("FindOne", notFound(err))
	}
	return details, nil
}

func (s *Service) Update(ctx context.Context, id int64, req *model.UpdateAppointmentRequest) (details *model.AppointmentDetails, err error) {
	defer func() { s.metrics.ObserveAppointment("update", err) }()
	log.Debug().Int64("id", id).Msg("Appointment_Update_Entry")

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.Get(ctx, id, false)
		if err != nil {
			return notFound(err)
		}

		if err := s.applyUpdate(ctx, current, req); err != nil {
			return err
		}

		if err := s.repo.Update(ctx, current); err != nil {
			return notFound(err)
		}
		if err := s.audit.Record(ctx, model.AuditActionUpdate, model.AuditEntityAppointment, id, req); err != nil {
			return err
		}
		details, err = s.repo.GetDetails(ctx, id, false)
		return err
	})
	if err != nil {
		return nil, s.handleError("Update", err)
	}

	s.invalidate(ctx)
	log.Info().Int64("id", id).Msg("Appointment_Update_Exit")
	return details, nil
}

// applyUpdate validates req against current and merges it in place. Related
// entities are only looked up when their id actually changes.
func (s *Service) applyUpdate(ctx context.Context, current *model.Appointment, req *model.UpdateAppointmentRequest) error {
	if req.StartTime != nil || req.EndTime != nil {
		start, end := current.StartTime, current.EndTime
		var err error
		if req.StartTime != nil {
			if start, err = parseStart(*req.StartTime); err != nil {
				return err
			}
		}
		if req.EndTime != nil {
			if end, err = parseEnd(*req.EndTime); err != nil {
				return err
			}
		}
		if err := checkSlot(start, end); err != nil {
			return err
		}
		current.StartTime, current.EndTime = start, end
	}

	if req.ModifiedByID != nil {
		if _, err := s.relations.TeamMember(ctx, *req.ModifiedByID); err != nil {
			return err
		}
		current.ModifiedByID = req.ModifiedByID
	}

	description := current.Description
	if req.Description != nil {
		description = req.Description
	}
	reason := ""
	if req.Reason != nil {
		reason = strings.TrimSpace(*req.Reason)
	}

	if req.Status != nil {
		status, err := parseStatus(*req.Status)
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			return apperrors.BadRequest("Cannot change status of a cancelled appointment", ErrInvalidStatusTransition)
		}
		current.Status = status
		if reason != "" {
			description = annotate(description, "Status change", reason)
		}
	} else if reason != "" {
		description = annotate(description, "Update note", reason)
	}
	current.Description = description

	if req.BranchID != nil && *req.BranchID != current.BranchID {
		if _, err := s.relations.Branch(ctx, *req.BranchID); err != nil {
			return err
		}
		current.BranchID = *req.BranchID
	}
	if req.PatientID != nil && *req.PatientID != current.PatientID {
		if _, err := s.relations.Patient(ctx, *req.PatientID); err != nil {
			return err
		}
		current.PatientID = *req.PatientID
	}
	if req.TherapistID != nil && *req.TherapistID != current.TherapistID {
		if _, err := s.relations.Therapist(ctx, *req.TherapistID); err != nil {
			return err
		}
		current.TherapistID = *req.TherapistID
	}

	departmentChanged := false
	if req.DepartmentID != nil && *req.DepartmentID != current.DepartmentID {
		if _, err := s.relations.Department(ctx, *req.DepartmentID); err != nil {
			return err
		}
		current.DepartmentID = *req.DepartmentID
		departmentChanged = true
	}

	switch {
	case req.SpecializationID.Clears():
		current.SpecializationID = nil
	case req.SpecializationID.Set:
		if _, err := s.relations.Specialization(ctx, *req.SpecializationID.Value, current.DepartmentID); err != nil {
			return err
		}
		current.SpecializationID = req.SpecializationID.Value
	case departmentChanged && current.SpecializationID != nil:
		// The retained specialization must follow the department.
		if _, err := s.relations.Specialization(ctx, *current.SpecializationID, current.DepartmentID); err != nil {
			return err
		}
	}

	if req.PurposeOfVisit != nil {
		current.PurposeOfVisit = *req.PurposeOfVisit
	}
	return nil
}

func (s *Service) SoftDelete(ctx context.Context, id int64) (err error) {
	defer func() { s.metrics.ObserveAppointment("soft_delete", err) }()
	log.Debug().Int64("id", id).Msg("Appointment_Remove_Entry")

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.Get(ctx, id, false); err != nil {
			return notFound(err)
		}
		if err := s.repo.SoftDelete(ctx, id, s.clock.Now()); err != nil {
			return notFound(err)
		}
		return s.audit.Record(ctx, model.AuditActionSoftDelete, model.AuditEntityAppointment, id, nil)
	})
	if err != nil {
		return s.handleError("Remove", err)
	}

	s.invalidate(ctx)
	log.Info().Int64("id", id).Msg("Appointment_Remove_Exit")
	return nil
}

func (s *Service) Restore(ctx context.Context, id int64) (details *model.AppointmentDetails, err error) {
	defer func() { s.metrics.ObserveAppointment("restore", err) }()
	log.Debug().Int64("id", id).Msg("Appointment_Restore_Entry")

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.Get(ctx, id, true)
		if err != nil {
			return notFound(err)
		}
		if !current.IsDeleted {
			return apperrors.BadRequest("Appointment is not deleted", ErrNotDeleted)
		}
		if err := s.repo.Restore(ctx, id); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, model.AuditActionRestore, model.AuditEntityAppointment, id, nil); err != nil {
			return err
		}
		details, err = s.repo.GetDetails(ctx, id, false)
		return err
	})
	if err != nil {
		return nil, s.handleError("Restore", err)
	}

	s.invalidate(ctx)
	log.Info().Int64("id", id).Msg("Appointment_Restore_Exit")
	return details, nil
}

// PermanentDelete removes a row that was soft-deleted first.
func (s *Service) PermanentDelete(ctx context.Context, id int64) (err error) {
	defer func() { s.metrics.ObserveAppointment("permanent_delete", err) }()
	log.Debug().Int64("id", id).Msg("Appointment_PermanentDelete_Entry")

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.Get(ctx, id, true)
		if err != nil {
			return notFound(err)
		}
		if !current.IsDeleted {
			return apperrors.BadRequest("Appointment must be deleted before it can be removed permanently", ErrNotDeleted)
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return notFound(err)
		}
		return s.audit.Record(ctx, model.AuditActionDelete, model.AuditEntityAppointment, id, current)
	})
	if err != nil {
		return s.handleError("PermanentDelete", err)
	}

	s.invalidate(ctx)
	log.Info().Int64("id", id).Msg("Appointment_PermanentDelete_Exit")
	return nil
}

func (s *Service) ListDeleted(ctx context.Context, page model.Pagination) (*model.Page[*model.AppointmentDetails], error) {
	rows, total, err := s.repo.ListDeleted(ctx, page.Ptr())
	if err != nil {
		return nil, s.handleError("FindAllDeleted", err)
	}
	return &model.Page[*model.AppointmentDetails]{Data: rows, Total: total}, nil
}
