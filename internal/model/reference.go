package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Branch struct {
	ID        int64      `db:"branch_id" json:"id"`
	Name      string     `db:"name" json:"name"`
	IsDeleted bool       `db:"is_deleted" json:"isDeleted"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	DeletedAt *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
}

type BranchRef struct {
	ID   int64  `db:"branch_id" json:"id"`
	Name string `db:"name" json:"name"`
}

type Department struct {
	ID        int64  `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	IsActive  bool   `db:"is_active" json:"isActive"`
	IsDeleted bool   `db:"is_deleted" json:"isDeleted"`
}

type DepartmentRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Specialization struct {
	ID                 int64  `db:"specialization_id" json:"id"`
	DepartmentID       int64  `db:"department_id" json:"departmentId"`
	SpecializationType string `db:"specialization_type" json:"specializationType"`
	IsActive           bool   `db:"is_active" json:"isActive"`
	IsDeleted          bool   `db:"is_deleted" json:"isDeleted"`
}

type SpecializationRef struct {
	ID                 int64  `json:"id"`
	DepartmentID       int64  `json:"departmentId"`
	SpecializationType string `json:"specializationType"`
}

// TeamMember is a therapist or administrator on the practice team.
type TeamMember struct {
	ID           int64      `db:"therapist_id" json:"id"`
	FirstName    string     `db:"first_name" json:"firstName"`
	LastName     string     `db:"last_name" json:"lastName"`
	FullName     *string    `db:"full_name" json:"fullName"`
	ContactEmail *string    `db:"contact_email" json:"contactEmail"`
	Role         Role       `db:"role" json:"role"`
	Status       string     `db:"status" json:"status"`
	IsDeleted    bool       `db:"is_delete" json:"isDeleted"`
	DeletedAt    *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
}

func (m *TeamMember) DisplayName() string {
	return DisplayName(m.FullName, m.FirstName, m.LastName)
}

type TeamMemberRef struct {
	ID        int64   `json:"id"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	FullName  *string `json:"fullName,omitempty"`
}

// DisplayName prefers the stored full name and falls back to "first last".
func DisplayName(fullName *string, first, last string) string {
	if fullName != nil && strings.TrimSpace(*fullName) != "" {
		return *fullName
	}
	return strings.TrimSpace(first + " " + last)
}

// Patient is read-only in this service.
type Patient struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	FirstName   string     `db:"firstname" json:"firstname"`
	LastName    string     `db:"lastname" json:"lastname"`
	Emails      *string    `db:"emails" json:"emails"`
	LegalGender *string    `db:"legalgender" json:"legalgender"`
	Birthdate   *time.Time `db:"birthdate" json:"birthdate"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	IsDeleted   bool       `db:"is_delete" json:"isDeleted"`
	DeletedAt   *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
}

type PatientSummary struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"firstname"`
	LastName  string    `json:"lastname"`
	Emails    *string   `json:"emails,omitempty"`
}
