package model

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "pending"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

// AppointmentStatuses lists every valid status.
var AppointmentStatuses = []AppointmentStatus{
	AppointmentStatusPending,
	AppointmentStatusConfirmed,
	AppointmentStatusCompleted,
	AppointmentStatusCancelled,
}

func (s AppointmentStatus) Valid() bool {
	for _, status := range AppointmentStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Terminal statuses accept no further status change.
func (s AppointmentStatus) Terminal() bool {
	return s == AppointmentStatusCancelled
}

type Appointment struct {
	ID               int64             `db:"id" json:"id"`
	BranchID         int64             `db:"branch_id" json:"branchId"`
	PatientID        uuid.UUID         `db:"patient_id" json:"patientId"`
	TherapistID      int64             `db:"therapist_id" json:"therapistId"`
	DepartmentID     int64             `db:"department_id" json:"departmentId"`
	SpecializationID *int64            `db:"specialization_id" json:"specializationId"`
	CreatedByID      int64             `db:"created_by_id" json:"createdById"`
	ModifiedByID     *int64            `db:"modified_by_id" json:"modifiedById"`
	StartTime        time.Time         `db:"start_time" json:"startTime"`
	EndTime          time.Time         `db:"end_time" json:"endTime"`
	Status           AppointmentStatus `db:"status" json:"status"`
	PurposeOfVisit   string            `db:"purpose_of_visit" json:"purposeOfVisit"`
	Description      *string           `db:"description" json:"description"`
	IsDeleted        bool              `db:"is_deleted" json:"isDeleted"`
	DeletedAt        *time.Time        `db:"deleted_at" json:"deletedAt"`
	CreatedAt        time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time         `db:"updated_at" json:"updatedAt"`
}

// AppointmentDetails is an appointment with its related entities joined in.
type AppointmentDetails struct {
	Appointment
	Branch         *BranchRef         `json:"branch"`
	Patient        *PatientSummary    `json:"patient"`
	Therapist      *TeamMemberRef     `json:"therapist"`
	CreatedBy      *TeamMemberRef     `json:"createdBy"`
	ModifiedBy     *TeamMemberRef     `json:"modifiedBy"`
	Department     *DepartmentRef     `json:"department"`
	Specialization *SpecializationRef `json:"specialization"`
}

type CreateAppointmentRequest struct {
	BranchID         int64     `json:"branchId" binding:"required,gt=0"`
	PatientID        uuid.UUID `json:"patientId" binding:"required"`
	TherapistID      int64     `json:"therapistId" binding:"required,gt=0"`
	CreatedByID      int64     `json:"createdById" binding:"required,gt=0"`
	DepartmentID     int64     `json:"departmentId" binding:"required,gt=0"`
	SpecializationID *int64    `json:"specializationId" binding:"omitempty,gt=0"`
	StartTime        string    `json:"startTime" binding:"required"`
	EndTime          string    `json:"endTime" binding:"required"`
	PurposeOfVisit   string    `json:"purposeOfVisit" binding:"required,max=1000"`
	Description      *string   `json:"description" binding:"omitempty,max=4000"`
	Status           string    `json:"status" binding:"omitempty,appointment_status"`
}

type UpdateAppointmentRequest struct {
	BranchID         *int64     `json:"branchId" binding:"omitempty,gt=0"`
	PatientID        *uuid.UUID `json:"patientId"`
	TherapistID      *int64     `json:"therapistId" binding:"omitempty,gt=0"`
	DepartmentID     *int64     `json:"departmentId" binding:"omitempty,gt=0"`
	SpecializationID NullableID `json:"specializationId"`
	ModifiedByID     *int64     `json:"modifiedById" binding:"omitempty,gt=0"`
	StartTime        *string    `json:"startTime"`
	EndTime          *string    `json:"endTime"`
	PurposeOfVisit   *string    `json:"purposeOfVisit" binding:"omitempty,max=1000"`
	Description      *string    `json:"description" binding:"omitempty,max=4000"`
	Status           *string    `json:"status" binding:"omitempty,appointment_status"`
	Reason           *string    `json:"reason" binding:"omitempty,max=500"`
}

// NullableID distinguishes an absent field from an explicit null in JSON.
// Set is true whenever the key was present; Value is nil for null and 0.
type NullableID struct {
	Set   bool
	Value *int64
}

func (n *NullableID) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Value = nil
		return nil
	}
	var id int64
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	if id == 0 {
		n.Value = nil
		return nil
	}
	n.Value = &id
	return nil
}

func (n NullableID) MarshalJSON() ([]byte, error) {
	if n.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*n.Value)
}

// Clears reports an explicit request to remove the value.
func (n NullableID) Clears() bool {
	return n.Set && n.Value == nil
}

// ListAppointmentsRequest carries the raw list query parameters.
type ListAppointmentsRequest struct {
	Search       string `form:"search"`
	Status       string `form:"status" binding:"omitempty,appointment_status"`
	StartDate    string `form:"startDate"`
	EndDate      string `form:"endDate"`
	DepartmentID int64  `form:"departmentId"`
	BranchID     int64  `form:"branchId"`
	PatientID    string `form:"patientId" binding:"omitempty,uuid"`
	TherapistID  int64  `form:"therapistId"`
	Pagination
}

// AppointmentFilter is the parsed form of ListAppointmentsRequest.
type AppointmentFilter struct {
	Search       string
	Status       AppointmentStatus
	StartFrom    *time.Time // start_time >= StartFrom
	EndUntil     *time.Time // end_time <= EndUntil
	DepartmentID int64
	BranchID     int64
	PatientID    *uuid.UUID
	TherapistID  int64
	Page         *Pagination
}
