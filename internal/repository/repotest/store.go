// Package repotest provides map-backed repositories for service and handler
// tests.
package repotest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/therapy-scheduler/internal/model"
	"github.com/jwalitptl/therapy-scheduler/internal/repository"
)

// Store keeps every entity in memory. Fail makes the named repository return
// the given error from every call ("branches", "patients", "members",
// "departments", "specializations", "appointments", "audit", "users").
type Store struct {
	mu sync.Mutex

	Branches        map[int64]*model.Branch
	Patients        map[uuid.UUID]*model.Patient
	Members         map[int64]*model.TeamMember
	Departments     map[int64]*model.Department
	Specializations map[int64]*model.Specialization
	Appointments    map[int64]*model.Appointment
	TherapistBranch map[int64][]int64
	UserTherapist   map[int64]*int64
	AuditLogs       []*model.AuditLog
	Fail            map[string]error

	// Lookups counts calls per repository name.
	Lookups map[string]int

	nextID int64
	now    func() time.Time
}

func NewStore() *Store {
	return &Store{
		Branches:        map[int64]*model.Branch{},
		Patients:        map[uuid.UUID]*model.Patient{},
		Members:         map[int64]*model.TeamMember{},
		Departments:     map[int64]*model.Department{},
		Specializations: map[int64]*model.Specialization{},
		Appointments:    map[int64]*model.Appointment{},
		TherapistBranch: map[int64][]int64{},
		UserTherapist:   map[int64]*int64{},
		Fail:            map[string]error{},
		Lookups:         map[string]int{},
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// SetNow fixes the timestamps written by Create and Update.
func (s *Store) SetNow(now func() time.Time) { s.now = now }

func (s *Store) hit(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Lookups[name]++
	return s.Fail[name]
}

// Seed helpers

func (s *Store) AddBranch(id int64, name string) *model.Branch {
	b := &model.Branch{ID: id, Name: name}
	s.Branches[id] = b
	return b
}

func (s *Store) AddPatient(first, last string) *model.Patient {
	p := &model.Patient{ID: uuid.New(), FirstName: first, LastName: last, CreatedAt: s.now()}
	s.Patients[p.ID] = p
	return p
}

func (s *Store) AddMember(id int64, first, last string, role model.Role, branches ...int64) *model.TeamMember {
	m := &model.TeamMember{ID: id, FirstName: first, LastName: last, Role: role, Status: "active"}
	s.Members[id] = m
	s.TherapistBranch[id] = append(s.TherapistBranch[id], branches...)
	return m
}

func (s *Store) AddDepartment(id int64, name string) *model.Department {
	d := &model.Department{ID: id, Name: name, IsActive: true}
	s.Departments[id] = d
	return d
}

func (s *Store) AddSpecialization(id, departmentID int64, kind string) *model.Specialization {
	sp := &model.Specialization{ID: id, DepartmentID: departmentID, SpecializationType: kind, IsActive: true}
	s.Specializations[id] = sp
	return sp
}

// Repository views

func (s *Store) BranchRepo() repository.BranchRepository                 { return branchRepo{s} }
func (s *Store) PatientRepo() repository.PatientRepository               { return patientRepo{s} }
func (s *Store) TeamMemberRepo() repository.TeamMemberRepository         { return memberRepo{s} }
func (s *Store) DepartmentRepo() repository.DepartmentRepository         { return departmentRepo{s} }
func (s *Store) SpecializationRepo() repository.SpecializationRepository { return specializationRepo{s} }
func (s *Store) AppointmentRepo() repository.AppointmentRepository       { return appointmentRepo{s} }
func (s *Store) AuditRepo() repository.AuditRepository                   { return auditRepo{s} }
func (s *Store) UserRepo() repository.UserRepository                     { return userRepo{s} }

// WithinTx runs fn directly; the store has no rollback.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type branchRepo struct{ s *Store }

func (r branchRepo) Get(_ context.Context, id int64) (*model.Branch, error) {
	if err := r.s.hit("branches"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.Branches[id]
	if !ok || b.IsDeleted {
		return nil, repository.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (r branchRepo) List(_ context.Context) ([]model.BranchRef, error) {
	if err := r.s.hit("branches"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	refs := []model.BranchRef{}
	for _, b := range r.s.Branches {
		if !b.IsDeleted {
			refs = append(refs, model.BranchRef{ID: b.ID, Name: b.Name})
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs, nil
}

func (r branchRepo) ListForTherapist(_ context.Context, therapistID int64) ([]model.BranchRef, error) {
	if err := r.s.hit("branches"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seen := map[int64]bool{}
	refs := []model.BranchRef{}
	for _, id := range r.s.TherapistBranch[therapistID] {
		b, ok := r.s.Branches[id]
		if !ok || b.IsDeleted || seen[id] {
			continue
		}
		seen[id] = true
		refs = append(refs, model.BranchRef{ID: b.ID, Name: b.Name})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs, nil
}

type patientRepo struct{ s *Store }

func (r patientRepo) Get(_ context.Context, id uuid.UUID) (*model.Patient, error) {
	if err := r.s.hit("patients"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.Patients[id]
	if !ok || p.IsDeleted {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

type memberRepo struct{ s *Store }

func (r memberRepo) Get(_ context.Context, id int64) (*model.TeamMember, error) {
	if err := r.s.hit("members"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.Members[id]
	if !ok || m.IsDeleted {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

type departmentRepo struct{ s *Store }

func (r departmentRepo) Get(_ context.Context, id int64) (*model.Department, error) {
	if err := r.s.hit("departments"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.Departments[id]
	if !ok || d.IsDeleted {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

type specializationRepo struct{ s *Store }

func (r specializationRepo) Get(_ context.Context, id int64) (*model.Specialization, error) {
	if err := r.s.hit("specializations"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sp, ok := r.s.Specializations[id]
	if !ok || sp.IsDeleted {
		return nil, repository.ErrNotFound
	}
	cp := *sp
	return &cp, nil
}

type userRepo struct{ s *Store }

func (r userRepo) GetTherapistID(_ context.Context, userID int64) (*int64, error) {
	if err := r.s.hit("users"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.UserTherapist[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return id, nil
}

type auditRepo struct{ s *Store }

func (r auditRepo) Create(_ context.Context, log *model.AuditLog) error {
	if err := r.s.hit("audit"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.AuditLogs = append(r.s.AuditLogs, log)
	return nil
}

func (r auditRepo) ListByEntity(_ context.Context, entityType string, entityID int64) ([]*model.AuditLog, error) {
	if err := r.s.hit("audit"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	logs := []*model.AuditLog{}
	for _, l := range r.s.AuditLogs {
		if l.EntityType == entityType && l.EntityID == entityID {
			logs = append(logs, l)
		}
	}
	return logs, nil
}

func (r auditRepo) Cleanup(_ context.Context, before time.Time) (int64, error) {
	if err := r.s.hit("audit"); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.AuditLogs[:0]
	var removed int64
	for _, l := range r.s.AuditLogs {
		if l.CreatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, l)
	}
	r.s.AuditLogs = kept
	return removed, nil
}

type appointmentRepo struct{ s *Store }

func (r appointmentRepo) Create(_ context.Context, a *model.Appointment) error {
	if err := r.s.hit("appointments"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextID++
	a.ID = r.s.nextID
	a.CreatedAt = r.s.now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	r.s.Appointments[a.ID] = &cp
	return nil
}

func (r appointmentRepo) Update(_ context.Context, a *model.Appointment) error {
	if err := r.s.hit("appointments"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.Appointments[a.ID]
	if !ok || cur.IsDeleted {
		return repository.ErrNotFound
	}
	a.UpdatedAt = r.s.now()
	cp := *a
	r.s.Appointments[a.ID] = &cp
	return nil
}

func (r appointmentRepo) SoftDelete(_ context.Context, id int64, at time.Time) error {
	if err := r.s.hit("appointments"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.Appointments[id]
	if !ok || a.IsDeleted {
		return repository.ErrNotFound
	}
	a.IsDeleted = true
	a.DeletedAt = &at
	return nil
}

func (r appointmentRepo) Restore(_ context.Context, id int64) error {
	if err := r.s.hit("appointments"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.Appointments[id]
	if !ok || !a.IsDeleted {
		return repository.ErrNotFound
	}
	a.IsDeleted = false
	a.DeletedAt = nil
	return nil
}

func (r appointmentRepo) Delete(_ context.Context, id int64) error {
	if err := r.s.hit("appointments"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.Appointments[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.Appointments, id)
	return nil
}

func (r appointmentRepo) Get(_ context.Context, id int64, withDeleted bool) (*model.Appointment, error) {
	if err := r.s.hit("appointments"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.Appointments[id]
	if !ok || (a.IsDeleted && !withDeleted) {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r appointmentRepo) GetDetails(ctx context.Context, id int64, withDeleted bool) (*model.AppointmentDetails, error) {
	a, err := r.Get(ctx, id, withDeleted)
	if err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.details(a), nil
}

func (r appointmentRepo) List(_ context.Context, f *model.AppointmentFilter) ([]*model.AppointmentDetails, int64, error) {
	if err := r.s.hit("appointments"); err != nil {
		return nil, 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var rows []*model.AppointmentDetails
	for _, a := range r.s.Appointments {
		if a.IsDeleted || !r.s.matches(a, f) {
			continue
		}
		cp := *a
		rows = append(rows, r.s.details(&cp))
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].ID > rows[j].ID
	})
	return page(rows, f.Page)
}

func (r appointmentRepo) ListDeleted(_ context.Context, p *model.Pagination) ([]*model.AppointmentDetails, int64, error) {
	if err := r.s.hit("appointments"); err != nil {
		return nil, 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var rows []*model.AppointmentDetails
	for _, a := range r.s.Appointments {
		if !a.IsDeleted {
			continue
		}
		cp := *a
		rows = append(rows, r.s.details(&cp))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].DeletedAt.After(*rows[j].DeletedAt) })
	return page(rows, p)
}

func page(rows []*model.AppointmentDetails, p *model.Pagination) ([]*model.AppointmentDetails, int64, error) {
	total := int64(len(rows))
	if rows == nil {
		rows = []*model.AppointmentDetails{}
	}
	if p == nil || !p.Enabled() {
		return rows, total, nil
	}
	start := p.Offset()
	if start >= len(rows) {
		return []*model.AppointmentDetails{}, total, nil
	}
	end := start + p.Limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end], total, nil
}

func (s *Store) matches(a *model.Appointment, f *model.AppointmentFilter) bool {
	if f == nil {
		return true
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.StartFrom != nil && a.StartTime.Before(*f.StartFrom) {
		return false
	}
	if f.EndUntil != nil && a.EndTime.After(*f.EndUntil) {
		return false
	}
	if f.DepartmentID != 0 && a.DepartmentID != f.DepartmentID {
		return false
	}
	if f.BranchID != 0 && a.BranchID != f.BranchID {
		return false
	}
	if f.PatientID != nil && a.PatientID != *f.PatientID {
		return false
	}
	if f.TherapistID != 0 && a.TherapistID != f.TherapistID {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(strings.TrimSpace(f.Search))
		var haystack []string
		if p, ok := s.Patients[a.PatientID]; ok {
			haystack = append(haystack, p.FirstName, p.LastName)
		}
		if t, ok := s.Members[a.TherapistID]; ok {
			haystack = append(haystack, t.FirstName, t.LastName)
		}
		if d, ok := s.Departments[a.DepartmentID]; ok {
			haystack = append(haystack, d.Name)
		}
		found := false
		for _, h := range haystack {
			if strings.Contains(strings.ToLower(h), needle) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (s *Store) details(a *model.Appointment) *model.AppointmentDetails {
	d := &model.AppointmentDetails{Appointment: *a}
	if b, ok := s.Branches[a.BranchID]; ok {
		d.Branch = &model.BranchRef{ID: b.ID, Name: b.Name}
	}
	if p, ok := s.Patients[a.PatientID]; ok {
		d.Patient = &model.PatientSummary{ID: p.ID, FirstName: p.FirstName, LastName: p.LastName, Emails: p.Emails}
	}
	d.Therapist = s.memberRef(a.TherapistID)
	d.CreatedBy = s.memberRef(a.CreatedByID)
	if a.ModifiedByID != nil {
		d.ModifiedBy = s.memberRef(*a.ModifiedByID)
	}
	if dep, ok := s.Departments[a.DepartmentID]; ok {
		d.Department = &model.DepartmentRef{ID: dep.ID, Name: dep.Name}
	}
	if a.SpecializationID != nil {
		if sp, ok := s.Specializations[*a.SpecializationID]; ok {
			d.Specialization = &model.SpecializationRef{ID: sp.ID, DepartmentID: sp.DepartmentID, SpecializationType: sp.SpecializationType}
		}
	}
	return d
}

func (s *Store) memberRef(id int64) *model.TeamMemberRef {
	m, ok := s.Members[id]
	if !ok {
		return nil
	}
	return &model.TeamMemberRef{ID: m.ID, FirstName: m.FirstName, LastName: m.LastName, FullName: m.FullName}
}

// ErrStorage is a convenient injected failure.
var ErrStorage = errors.New("connection reset by peer")
