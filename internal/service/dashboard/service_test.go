package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/therapy-scheduler/internal/model"
	"github.com/jwalitptl/therapy-scheduler/internal/repository"
	"github.com/jwalitptl/therapy-scheduler/internal/repository/repotest"
	"github.com/jwalitptl/therapy-scheduler/internal/service/access"
	"github.com/jwalitptl/therapy-scheduler/internal/timewindow"
	"github.com/jwalitptl/therapy-scheduler/pkg/cache"
	"github.com/jwalitptl/therapy-scheduler/pkg/clock"
	apperrors "github.com/jwalitptl/therapy-scheduler/pkg/errors"
	"github.com/jwalitptl/therapy-scheduler/pkg/metrics"
)

// stubRepo evaluates stats and calendars over an in-memory appointment list
// and serves canned demographics.
type stubRepo struct {
	mu           sync.Mutex
	appointments []model.Appointment
	groups       []model.GroupCount
	counts       []model.BranchCounts
	demographics map[int64]*model.Demographics // key 0 is the whole population
	totals       *model.Totals
	err          error

	scopes  []repository.AppointmentScope
	windows []*timewindow.Range
	calls   int
}

func (r *stubRepo) record(scope repository.AppointmentScope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.scopes = append(r.scopes, scope)
}

func (r *stubRepo) filtered(scope repository.AppointmentScope) []model.Appointment {
	var out []model.Appointment
	for _, a := range r.appointments {
		if a.IsDeleted {
			continue
		}
		if scope.TherapistID != 0 && a.TherapistID != scope.TherapistID {
			continue
		}
		if scope.BranchID != 0 && a.BranchID != scope.BranchID {
			continue
		}
		if !scope.Window.Overlaps(a.StartTime, a.EndTime) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (r *stubRepo) Stats(_ context.Context, scope repository.AppointmentScope) (*model.AppointmentStats, error) {
	r.record(scope)
	if r.err != nil {
		return nil, r.err
	}
	stats := &model.AppointmentStats{}
	for _, a := range r.filtered(scope) {
		stats.Total++
		switch a.Status {
		case model.AppointmentStatusPending:
			stats.Pending++
		case model.AppointmentStatusCompleted:
			stats.Completed++
		case model.AppointmentStatusCancelled:
			stats.Cancellations++
		}
	}
	return stats, nil
}

func (r *stubRepo) Distribution(_ context.Context, scope repository.AppointmentScope, _ string) ([]model.GroupCount, error) {
	r.record(scope)
	return r.groups, r.err
}

func (r *stubRepo) CalendarEntries(_ context.Context, scope repository.AppointmentScope) ([]model.CalendarEntry, error) {
	r.record(scope)
	var out []model.CalendarEntry
	for _, a := range r.filtered(scope) {
		out = append(out, model.CalendarEntry{
			ID:             a.ID,
			PurposeOfVisit: a.PurposeOfVisit,
			StartTime:      a.StartTime,
			EndTime:        a.EndTime,
			Status:         a.Status,
			TherapistID:    a.TherapistID,
			BranchID:       a.BranchID,
		})
	}
	return out, r.err
}

func (r *stubRepo) BranchCounts(_ context.Context, ids []int64, window *timewindow.Range) ([]model.BranchCounts, error) {
	r.mu.Lock()
	r.calls++
	r.windows = append(r.windows, window)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []model.BranchCounts
	for _, c := range r.counts {
		for _, id := range ids {
			if c.BranchID == id {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (r *stubRepo) Demographics(_ context.Context, q repository.DemographicsQuery) (*model.Demographics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	key := int64(0)
	if q.BranchID != nil {
		key = *q.BranchID
	}
	d, ok := r.demographics[key]
	if !ok {
		return &model.Demographics{}, nil
	}
	return d, nil
}

func (r *stubRepo) Totals(_ context.Context, window *timewindow.Range) (*model.Totals, error) {
	r.mu.Lock()
	r.calls++
	r.windows = append(r.windows, window)
	r.mu.Unlock()
	return r.totals, r.err
}

type staticAccess struct {
	branches []model.BranchRef
	err      error
}

func (a staticAccess) AccessibleBranches(context.Context, model.Caller) ([]model.BranchRef, error) {
	return a.branches, a.err
}

// memoryCache is a map-backed cache.Cache that versions entries by
// generation like the redis implementation.
type memoryCache struct {
	mu      sync.Mutex
	gen     cache.Generation
	entries map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (c *memoryCache) entryKey(gen cache.Generation, key string) string {
	return fmt.Sprintf("%d:%s", gen, key)
}

func (c *memoryCache) Get(_ context.Context, key string, dest interface{}) (cache.Generation, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[c.entryKey(c.gen, key)]
	if !ok {
		return c.gen, false, nil
	}
	return c.gen, true, json.Unmarshal(raw, dest)
}

func (c *memoryCache) Set(_ context.Context, gen cache.Generation, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.entryKey(gen, key)] = raw
	return nil
}

func (c *memoryCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	return nil
}

// invalidatingRepo bumps the cache generation while a stats query runs, the
// way a concurrent appointment write would.
type invalidatingRepo struct {
	*stubRepo
	cache cache.Cache
}

func (r *invalidatingRepo) Stats(ctx context.Context, scope repository.AppointmentScope) (*model.AppointmentStats, error) {
	stats, err := r.stubRepo.Stats(ctx, scope)
	if err != nil {
		return nil, err
	}
	return stats, r.cache.Invalidate(ctx)
}

type movingClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *movingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *movingClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var now = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC) // Wednesday

func newService(repo *stubRepo, store *repotest.Store, acc access.BranchAccess) *Service {
	if store == nil {
		store = repotest.NewStore()
	}
	return NewService(Deps{
		Dashboard:           repo,
		Branches:            store.BranchRepo(),
		Access:              acc,
		Metrics:             metrics.NewNop(),
		Clock:               clock.Fixed(now),
		InsightsConcurrency: 2,
	})
}

func appt(id int64, status model.AppointmentStatus, start time.Time, deleted bool) model.Appointment {
	return model.Appointment{
		ID:          id,
		BranchID:    1,
		TherapistID: 10,
		Status:      status,
		StartTime:   start,
		EndTime:     start.Add(30 * time.Minute),
		IsDeleted:   deleted,
	}
}

func TestStatsCountsLiveAppointmentsInWindow(t *testing.T) {
	day := time.Date(2025, 1, 14, 9, 0, 0, 0, time.UTC)
	repo := &stubRepo{appointments: []model.Appointment{
		appt(1, model.AppointmentStatusPending, day, false),
		appt(2, model.AppointmentStatusPending, day.Add(time.Hour), false),
		appt(3, model.AppointmentStatusPending, day.Add(2*time.Hour), false),
		appt(4, model.AppointmentStatusCompleted, day.Add(3*time.Hour), false),
		appt(5, model.AppointmentStatusCompleted, day.Add(4*time.Hour), false),
		appt(6, model.AppointmentStatusPending, day.Add(5*time.Hour), true),
		appt(7, model.AppointmentStatusPending, day.AddDate(0, 0, -30), false),
	}}
	svc := newService(repo, nil, nil)

	stats, err := svc.Stats(context.Background(), model.DashboardQuery{TimeFilter: timewindow.ThisWeek})
	require.NoError(t, err)
	assert.Equal(t, &model.AppointmentStats{Total: 5, Pending: 3, Completed: 2, Cancellations: 0}, stats)

	require.Len(t, repo.scopes, 1)
	assert.Equal(t, time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC), repo.scopes[0].Window.Start)
}

func TestStatsPassesFilters(t *testing.T) {
	repo := &stubRepo{}
	svc := newService(repo, nil, nil)

	_, err := svc.Stats(context.Background(), model.DashboardQuery{DoctorID: 4, BranchID: 2, StartDate: "2025-01-01"})
	require.NoError(t, err)

	scope := repo.scopes[0]
	assert.Equal(t, int64(4), scope.TherapistID)
	assert.Equal(t, int64(2), scope.BranchID)
	assert.True(t, scope.Window.HasStart())
	assert.False(t, scope.Window.HasEnd())
}

func TestStatsRejectsInvalidDate(t *testing.T) {
	repo := &stubRepo{}
	svc := newService(repo, nil, nil)

	_, err := svc.Stats(context.Background(), model.DashboardQuery{StartDate: "yesterday"})
	assert.True(t, apperrors.IsBadRequest(err))
	assert.Zero(t, repo.calls)
}

func TestUnknownTimeFilterMeansNoWindow(t *testing.T) {
	repo := &stubRepo{}
	svc := newService(repo, nil, nil)

	_, err := svc.Stats(context.Background(), model.DashboardQuery{TimeFilter: "nextYear", StartDate: "2025-01-01"})
	require.NoError(t, err)
	assert.Nil(t, repo.scopes[0].Window)
}

func TestStatsHidesStorageFailure(t *testing.T) {
	repo := &stubRepo{err: repotest.ErrStorage}
	svc := newService(repo, nil, nil)

	_, err := svc.Stats(context.Background(), model.DashboardQuery{})
	require.Error(t, err)
	assert.True(t, apperrors.IsInternal(err))
}

func TestStatsServedFromCache(t *testing.T) {
	repo := &stubRepo{}
	svc := newService(repo, nil, nil)
	svc.cache = newMemoryCache()
	ctx := context.Background()

	_, err := svc.Stats(ctx, model.DashboardQuery{})
	require.NoError(t, err)
	_, err = svc.Stats(ctx, model.DashboardQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.calls)

	require.NoError(t, svc.cache.Invalidate(ctx))
	_, err = svc.Stats(ctx, model.DashboardQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}

func TestStatsComputedDuringWriteIsNotCached(t *testing.T) {
	mem := newMemoryCache()
	repo := &invalidatingRepo{stubRepo: &stubRepo{}, cache: mem}
	svc := NewService(Deps{
		Dashboard: repo,
		Branches:  repotest.NewStore().BranchRepo(),
		Cache:     mem,
		Metrics:   metrics.NewNop(),
		Clock:     clock.Fixed(now),
	})
	ctx := context.Background()

	_, err := svc.Stats(ctx, model.DashboardQuery{})
	require.NoError(t, err)
	_, err = svc.Stats(ctx, model.DashboardQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}

func TestPatientsInsightsCacheFollowsClock(t *testing.T) {
	store := repotest.NewStore()
	store.AddBranch(1, "Central")
	repo := &stubRepo{}
	clk := &movingClock{t: now}
	svc := NewService(Deps{
		Dashboard:           repo,
		Branches:            store.BranchRepo(),
		Cache:               newMemoryCache(),
		Metrics:             metrics.NewNop(),
		Clock:               clk,
		InsightsConcurrency: 2,
	})
	ctx := context.Background()

	_, err := svc.PatientsInsights(ctx)
	require.NoError(t, err)
	_, err = svc.PatientsInsights(ctx)
	require.NoError(t, err)
	// one branch row plus the Overall row
	assert.Equal(t, 2, repo.calls)

	clk.Advance(time.Minute)
	_, err = svc.PatientsInsights(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, repo.calls)
}

func TestBuildDistribution(t *testing.T) {
	dist := buildDistribution([]model.GroupCount{
		{ID: 1, Name: "A", Count: 1},
		{ID: 2, Name: "B", Count: 1},
		{ID: 3, Name: "C", Count: 1},
	})
	assert.Equal(t, int64(3), dist.TotalAppointments)

	var sum float64
	for _, item := range dist.Distribution {
		assert.Equal(t, 33.3, item.Percentage)
		sum += item.Percentage
	}
	assert.InDelta(t, 100, sum, 0.1*3)

	empty := buildDistribution(nil)
	assert.Zero(t, empty.TotalAppointments)
	assert.NotNil(t, empty.Distribution)
	assert.Empty(t, empty.Distribution)
}

func TestDistribution(t *testing.T) {
	repo := &stubRepo{groups: []model.GroupCount{
		{ID: 10, Name: "Tom Ray", Count: 3},
		{ID: 11, Name: "Sue Kim", Count: 1},
	}}
	svc := newService(repo, nil, nil)

	dist, err := svc.Distribution(context.Background(), model.DistributionQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), dist.TotalAppointments)
	assert.Equal(t, 75.0, dist.Distribution[0].Percentage)
	assert.Equal(t, 25.0, dist.Distribution[1].Percentage)

	_, err = svc.Distribution(context.Background(), model.DistributionQuery{GroupBy: "department"})
	assert.ErrorIs(t, err, ErrInvalidGroupBy)
	assert.True(t, apperrors.IsBadRequest(err))
}

func TestCalendarEvents(t *testing.T) {
	patientID := uuid.New()
	first, last := "Tom", "Ray"
	branch := "Central"
	pFirst, pLast := "Ann", "Lee"
	entries := []model.CalendarEntry{
		{ID: 1, PurposeOfVisit: "", TherapistID: 10, TherapistFirstName: &first, TherapistLastName: &last, BranchID: 1, BranchName: &branch},
		{ID: 2, PurposeOfVisit: "Review", TherapistID: 10, PatientID: &patientID, PatientFirstName: &pFirst, PatientLastName: &pLast},
	}

	ev := toEvent(entries[0])
	assert.Equal(t, "Appointment", ev.Title)
	assert.Equal(t, "Tom Ray", ev.Doctor.Name)
	assert.Equal(t, "Central", ev.Branch.Name)
	assert.Nil(t, ev.Patient)

	ev = toEvent(entries[1])
	assert.Equal(t, "Review", ev.Title)
	require.NotNil(t, ev.Patient)
	assert.Equal(t, "Ann Lee", ev.Patient.Name)
	assert.Equal(t, patientID, ev.Patient.ID)
}

func TestBranchesSummary(t *testing.T) {
	repo := &stubRepo{counts: []model.BranchCounts{
		{BranchID: 1, Therapists: 2, Patients: 5, Appointments: 9},
	}}
	acc := staticAccess{branches: []model.BranchRef{{ID: 1, Name: "Central"}, {ID: 2, Name: "North"}}}
	svc := newService(repo, nil, acc)

	summary, err := svc.BranchesSummary(context.Background(), model.Caller{UserID: 1}, model.DashboardQuery{TimeFilter: timewindow.LastMonth})
	require.NoError(t, err)
	assert.Equal(t, []model.BranchSummary{
		{BranchID: 1, BranchName: "Central", TherapistsCount: 2, PatientsCount: 5, AppointmentsCount: 9},
		{BranchID: 2, BranchName: "North"},
	}, summary)

	require.Len(t, repo.windows, 1)
	assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), repo.windows[0].Start)
}

func TestBranchesSummaryWithoutBranches(t *testing.T) {
	repo := &stubRepo{}
	svc := newService(repo, nil, staticAccess{})

	summary, err := svc.BranchesSummary(context.Background(), model.Caller{UserID: 1}, model.DashboardQuery{})
	require.NoError(t, err)
	assert.NotNil(t, summary)
	assert.Empty(t, summary)
	assert.Zero(t, repo.calls)
}

func TestBranchesSummaryPassesAccessErrors(t *testing.T) {
	svc := newService(&stubRepo{}, nil, staticAccess{err: apperrors.Forbidden("nope")})

	_, err := svc.BranchesSummary(context.Background(), model.Caller{}, model.DashboardQuery{})
	assert.True(t, apperrors.IsForbidden(err))
}

func year(y int) *int { return &y }

func TestPatientsInsights(t *testing.T) {
	store := repotest.NewStore()
	store.AddBranch(1, "Central")
	store.AddBranch(2, "North")

	repo := &stubRepo{demographics: map[int64]*model.Demographics{
		1: {
			Patients: 4, NewWeek: 1, NewMonth: 2, Appointments: 7,
			Groups: []model.DemographicGroup{
				{Gender: "m", BirthYear: year(2020), Count: 1},  // 5
				{Gender: "FEMALE", BirthYear: year(1985), Count: 2}, // 40
				{Gender: "", BirthYear: nil, Count: 1},
			},
		},
		0: {
			Patients: 6, Appointments: 9,
			Groups: []model.DemographicGroup{
				{Gender: "male", BirthYear: year(1960), Count: 3}, // 65
				{Gender: "x", BirthYear: year(2000), Count: 3},    // 25
			},
		},
	}}
	svc := newService(repo, store, nil)

	insights, err := svc.PatientsInsights(context.Background())
	require.NoError(t, err)
	require.Len(t, insights, 3)

	central := insights[0]
	assert.Equal(t, int64(1), central.BranchID)
	assert.Equal(t, model.GenderDistribution{Male: 1, Female: 2, Other: 1}, central.GenderDistribution)
	assert.Equal(t, model.NewPatients{Week: 1, Month: 2}, central.NewPatients)
	assert.Equal(t, int64(7), central.AppointmentsCount)
	assert.Equal(t, []model.AgeBucket{
		{Range: "0-12", Count: 1, Percentage: 25},
		{Range: "13-25", Count: 0, Percentage: 0},
		{Range: "26-40", Count: 2, Percentage: 50},
		{Range: "41-60", Count: 0, Percentage: 0},
		{Range: "60+", Count: 0, Percentage: 0},
	}, central.AgeDistribution)

	north := insights[1]
	assert.Equal(t, "North", north.BranchName)
	assert.Zero(t, north.AgeDistribution[0].Percentage)

	overall := insights[2]
	assert.Equal(t, int64(0), overall.BranchID)
	assert.Equal(t, "Overall", overall.BranchName)
	assert.Equal(t, int64(3), overall.GenderDistribution.Other)
	assert.Equal(t, int64(50), overall.AgeDistribution[1].Percentage)
	assert.Equal(t, int64(50), overall.AgeDistribution[4].Percentage)
	assert.Equal(t, int64(9), overall.AppointmentsCount)
}

func TestPatientsInsightsFailure(t *testing.T) {
	store := repotest.NewStore()
	store.AddBranch(1, "Central")
	svc := newService(&stubRepo{err: repotest.ErrStorage}, store, nil)

	_, err := svc.PatientsInsights(context.Background())
	assert.True(t, apperrors.IsInternal(err))
}

func TestAgeBucketBoundaries(t *testing.T) {
	cases := map[int]string{0: "0-12", 12: "0-12", 13: "13-25", 25: "13-25", 26: "26-40", 40: "26-40", 41: "41-60", 60: "41-60", 61: "60+"}
	for age, label := range cases {
		assert.Equal(t, label, ageRanges[ageBucket(age)], "age %d", age)
	}
}

func TestClassifyGender(t *testing.T) {
	assert.Equal(t, "male", classifyGender(" M "))
	assert.Equal(t, "female", classifyGender("Female"))
	assert.Equal(t, "other", classifyGender("nonbinary"))
	assert.Equal(t, "other", classifyGender(""))
}

func TestTotalsWindow(t *testing.T) {
	repo := &stubRepo{totals: &model.Totals{TotalTherapists: 3, TotalPatients: 8, TotalAppointments: 20}}
	svc := newService(repo, nil, nil)

	totals, err := svc.Totals(context.Background(), model.DashboardQuery{StartDate: "2025-01-01", EndDate: "2025-01-31"})
	require.NoError(t, err)
	assert.Equal(t, int64(20), totals.TotalAppointments)
	require.Len(t, repo.windows, 1)
	assert.True(t, repo.windows[0].Closed())
}
