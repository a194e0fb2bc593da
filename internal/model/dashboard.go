package model

import (
	"time"

	"github.com/google/uuid"
)

// DashboardQuery is shared by every dashboard endpoint.
type DashboardQuery struct {
	DoctorID   int64  `form:"doctorId" binding:"omitempty,gt=0"`
	BranchID   int64  `form:"branchId" binding:"omitempty,gt=0"`
	TimeFilter string `form:"timeFilter"`
	StartDate  string `form:"startDate"`
	EndDate    string `form:"endDate"`
}

type DistributionQuery struct {
	DashboardQuery
	GroupBy string `form:"groupBy" binding:"omitempty,group_by"`
}

const (
	GroupByDoctor = "doctor"
	GroupByBranch = "branch"
)

type AppointmentStats struct {
	Total         int64 `json:"total"`
	Completed     int64 `json:"completed"`
	Cancellations int64 `json:"cancellations"`
	Pending       int64 `json:"pending"`
}

// GroupCount is one raw row of a grouped count.
type GroupCount struct {
	ID    int64  `db:"id"`
	Name  string `db:"name"`
	Count int64  `db:"count"`
}

type DistributionItem struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

type AppointmentDistribution struct {
	TotalAppointments int64              `json:"totalAppointments"`
	Distribution      []DistributionItem `json:"distribution"`
}

type NamedRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type PatientRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type CalendarEvent struct {
	ID      int64             `json:"id"`
	Title   string            `json:"title"`
	Start   time.Time         `json:"start"`
	End     time.Time         `json:"end"`
	Status  AppointmentStatus `json:"status"`
	Doctor  NamedRef          `json:"doctor"`
	Branch  NamedRef          `json:"branch"`
	Patient *PatientRef       `json:"patient,omitempty"`
}

// CalendarEntry is the raw row behind a CalendarEvent.
type CalendarEntry struct {
	ID                 int64             `db:"id"`
	PurposeOfVisit     string            `db:"purpose_of_visit"`
	StartTime          time.Time         `db:"start_time"`
	EndTime            time.Time         `db:"end_time"`
	Status             AppointmentStatus `db:"status"`
	TherapistID        int64             `db:"therapist_id"`
	TherapistFirstName *string           `db:"therapist_first_name"`
	TherapistLastName  *string           `db:"therapist_last_name"`
	TherapistFullName  *string           `db:"therapist_full_name"`
	BranchID           int64             `db:"branch_id"`
	BranchName         *string           `db:"branch_name"`
	PatientID          *uuid.UUID        `db:"patient_id"`
	PatientFirstName   *string           `db:"patient_firstname"`
	PatientLastName    *string           `db:"patient_lastname"`
}

type BranchSummary struct {
	BranchID          int64  `json:"branch_id"`
	BranchName        string `json:"branch_name"`
	TherapistsCount   int64  `json:"therapists_count"`
	PatientsCount     int64  `json:"patients_count"`
	AppointmentsCount int64  `json:"appointments_count"`
}

// BranchCounts holds the per-branch figures of a summary.
type BranchCounts struct {
	BranchID     int64 `db:"branch_id"`
	Therapists   int64 `db:"therapists"`
	Patients     int64 `db:"patients"`
	Appointments int64 `db:"appointments"`
}

type NewPatients struct {
	Week  int64 `json:"week"`
	Month int64 `json:"month"`
}

type GenderDistribution struct {
	Male   int64 `json:"male"`
	Female int64 `json:"female"`
	Other  int64 `json:"other"`
}

type AgeBucket struct {
	Range      string `json:"range"`
	Count      int64  `json:"count"`
	Percentage int64  `json:"percentage"`
}

type PatientInsight struct {
	BranchID           int64              `json:"branch_id"`
	BranchName         string             `json:"branch_name"`
	NewPatients        NewPatients        `json:"new_patients"`
	GenderDistribution GenderDistribution `json:"gender_distribution"`
	AgeDistribution    []AgeBucket        `json:"age_distribution"`
	AppointmentsCount  int64              `json:"appointments_count"`
}

// DemographicGroup counts patients sharing a gender label and birth year.
// BirthYear is nil for patients without a birthdate.
type DemographicGroup struct {
	Gender    string `db:"gender"`
	BirthYear *int   `db:"birth_year"`
	Count     int64  `db:"count"`
}

// Demographics is the raw material of one insights row.
type Demographics struct {
	Patients     int64
	NewWeek      int64
	NewMonth     int64
	Appointments int64
	Groups       []DemographicGroup
}

type Totals struct {
	TotalTherapists   int64 `db:"total_therapists" json:"totalTherapists"`
	TotalPatients     int64 `db:"total_patients" json:"totalPatients"`
	TotalAppointments int64 `db:"total_appointments" json:"totalAppointments"`
}
