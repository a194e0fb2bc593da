package dashboard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/therapy-scheduler/internal/model"
	"github.com/jwalitptl/therapy-scheduler/internal/repository"
	"github.com/jwalitptl/therapy-scheduler/internal/service/access"
	"github.com/jwalitptl/therapy-scheduler/internal/timewindow"
	"github.com/jwalitptl/therapy-scheduler/pkg/cache"
	"github.com/jwalitptl/therapy-scheduler/pkg/clock"
	apperrors "github.com/jwalitptl/therapy-scheduler/pkg/errors"
	"github.com/jwalitptl/therapy-scheduler/pkg/metrics"
)

var ErrInvalidGroupBy = errors.New("invalid groupBy")

// Age bucket labels in display order.
var ageRanges = []string{"0-12", "13-25", "26-40", "41-60", "60+"}

const (
	overallBranchName = "Overall"
	defaultTitle      = "Appointment"
)

// DashboardServicer is the analytics API consumed by the HTTP layer.
type DashboardServicer interface {
	Stats(ctx context.Context, q model.DashboardQuery) (*model.AppointmentStats, error)
	Distribution(ctx context.Context, q model.DistributionQuery) (*model.AppointmentDistribution, error)
	Calendar(ctx context.Context, q model.DashboardQuery) ([]model.CalendarEvent, error)
	BranchesSummary(ctx context.Context, caller model.Caller, q model.DashboardQuery) ([]model.BranchSummary, error)
	PatientsInsights(ctx context.Context) ([]model.PatientInsight, error)
	Totals(ctx context.Context, q model.DashboardQuery) (*model.Totals, error)
}

type Deps struct {
	Dashboard repository.DashboardRepository
	Branches  repository.BranchRepository
	Access    access.BranchAccess
	Windows   *timewindow.Resolver
	Cache     cache.Cache
	Metrics   *metrics.Metrics
	Clock     clock.Clock
	// InsightsConcurrency bounds the branches computed at once.
	InsightsConcurrency int
}

type Service struct {
	repo        repository.DashboardRepository
	branches    repository.BranchRepository
	access      access.BranchAccess
	windows     *timewindow.Resolver
	cache       cache.Cache
	metrics     *metrics.Metrics
	clock       clock.Clock
	concurrency int
}

func NewService(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	if d.Windows == nil {
		d.Windows = timewindow.NewResolver(d.Clock)
	}
	if d.Cache == nil {
		d.Cache = cache.Noop{}
	}
	if d.InsightsConcurrency < 1 {
		d.InsightsConcurrency = 4
	}
	return &Service{
		repo:        d.Dashboard,
		branches:    d.Branches,
		access:      d.Access,
		windows:     d.Windows,
		cache:       d.Cache,
		metrics:     d.Metrics,
		clock:       d.Clock,
		concurrency: d.InsightsConcurrency,
	}
}

func (s *Service) handleError(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	log.Error().Err(err).Msg(fmt.Sprintf("Dashboard_%s_Error", op))
	return apperrors.Internal(err)
}

func (s *Service) window(q model.DashboardQuery) (*timewindow.Range, error) {
	rng, err := s.windows.Resolve(timewindow.Filter{
		Named:     q.TimeFilter,
		StartDate: q.StartDate,
		EndDate:   q.EndDate,
	})
	if err != nil {
		if errors.Is(err, timewindow.ErrInvalidDate) {
			return nil, apperrors.BadRequest("startDate and endDate must be valid dates", err)
		}
		return nil, err
	}
	return rng, nil
}

func (s *Service) scope(q model.DashboardQuery) (repository.AppointmentScope, error) {
	rng, err := s.window(q)
	if err != nil {
		return repository.AppointmentScope{}, err
	}
	return repository.AppointmentScope{TherapistID: q.DoctorID, BranchID: q.BranchID, Window: rng}, nil
}

// cached serves key from the cache or computes and stores it. Cache failures
// only cost a recomputation.
func cached[T any](ctx context.Context, s *Service, key string, load func() (T, error)) (T, error) {
	var out T
	gen, ok, readErr := s.cache.Get(ctx, key, &out)
	if readErr != nil {
		log.Warn().Err(readErr).Str("key", key).Msg("Dashboard_CacheRead_Error")
	} else if ok {
		return out, nil
	}

	out, err := load()
	if err != nil || readErr != nil {
		return out, err
	}
	// Stored under the generation the miss was observed at, so a write that
	// invalidated in between hides this result.
	if err := s.cache.Set(ctx, gen, key, out); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Dashboard_CacheWrite_Error")
	}
	return out, nil
}

func (s *Service) Stats(ctx context.Context, q model.DashboardQuery) (*model.AppointmentStats, error) {
	defer s.metrics.ObserveDashboard("stats", time.Now())
	log.Debug().Interface("query", q).Msg("Dashboard_GetAppointmentStats_Entry")

	scope, err := s.scope(q)
	if err != nil {
		return nil, err
	}

	stats, err := cached(ctx, s, cache.Key("stats", scope), func() (*model.AppointmentStats, error) {
		return s.repo.Stats(ctx, scope)
	})
	if err != nil {
		return nil, s.handleError("GetAppointmentStats", err)
	}

	log.Debug().Interface("stats", stats).Msg("Dashboard_GetAppointmentStats_Exit")
	return stats, nil
}

func (s *Service) Distribution(ctx context.Context, q model.DistributionQuery) (*model.AppointmentDistribution, error) {
	defer s.metrics.ObserveDashboard("distribution", time.Now())

	groupBy := q.GroupBy
	if groupBy == "" {
		groupBy = model.GroupByDoctor
	}
	if groupBy != model.GroupByDoctor && groupBy != model.GroupByBranch {
		return nil, apperrors.BadRequest("groupBy must be either doctor or branch", ErrInvalidGroupBy)
	}

	scope, err := s.scope(q.DashboardQuery)
	if err != nil {
		return nil, err
	}

	key := cache.Key("distribution", struct {
		Scope   repository.AppointmentScope
		GroupBy string
	}{scope, groupBy})
	dist, err := cached(ctx, s, key, func() (*model.AppointmentDistribution, error) {
		groups, err := s.repo.Distribution(ctx, scope, groupBy)
		if err != nil {
			return nil, err
		}
		return buildDistribution(groups), nil
	})
	if err != nil {
		return nil, s.handleError("GetAppointmentDistribution", err)
	}
	return dist, nil
}

// buildDistribution totals the groups and gives each its share rounded to
// one decimal place.
func buildDistribution(groups []model.GroupCount) *model.AppointmentDistribution {
	var total int64
	for _, g := range groups {
		total += g.Count
	}

	items := make([]model.DistributionItem, 0, len(groups))
	for _, g := range groups {
		var pct float64
		if total > 0 {
			pct = math.Round(float64(g.Count)/float64(total)*1000) / 10
		}
		items = append(items, model.DistributionItem{ID: g.ID, Name: g.Name, Count: g.Count, Percentage: pct})
	}
	return &model.AppointmentDistribution{TotalAppointments: total, Distribution: items}
}

func (s *Service) Calendar(ctx context.Context, q model.DashboardQuery) ([]model.CalendarEvent, error) {
	defer s.metrics.ObserveDashboard("calendar", time.Now())

	scope, err := s.scope(q)
	if err != nil {
		return nil, err
	}

	events, err := cached(ctx, s, cache.Key("calendar", scope), func() ([]model.CalendarEvent, error) {
		entries, err := s.repo.CalendarEntries(ctx, scope)
		if err != nil {
			return nil, err
		}
		events := make([]model.CalendarEvent, 0, len(entries))
		for _, e := range entries {
			events = append(events, toEvent(e))
		}
		return events, nil
	})
	if err != nil {
		return nil, s.handleError("GetCalendarEvents", err)
	}

	log.Debug().Int("count", len(events)).Msg("Dashboard_GetCalendarEvents_Exit")
	return events, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toEvent(e model.CalendarEntry) model.CalendarEvent {
	title := e.PurposeOfVisit
	if strings.TrimSpace(title) == "" {
		title = defaultTitle
	}
	ev := model.CalendarEvent{
		ID:     e.ID,
		Title:  title,
		Start:  e.StartTime,
		End:    e.EndTime,
		Status: e.Status,
		Doctor: model.NamedRef{
			ID:   e.TherapistID,
			Name: model.DisplayName(e.TherapistFullName, deref(e.TherapistFirstName), deref(e.TherapistLastName)),
		},
		Branch: model.NamedRef{ID: e.BranchID, Name: deref(e.BranchName)},
	}
	if e.PatientID != nil {
		ev.Patient = &model.PatientRef{
			ID:   *e.PatientID,
			Name: strings.TrimSpace(deref(e.PatientFirstName) + " " + deref(e.PatientLastName)),
		}
	}
	return ev
}

// BranchesSummary reports counts for every branch visible to caller.
func (s *Service) BranchesSummary(ctx context.Context, caller model.Caller, q model.DashboardQuery) ([]model.BranchSummary, error) {
	defer s.metrics.ObserveDashboard("branches_summary", time.Now())

	rng, err := s.window(q)
	if err != nil {
		return nil, err
	}

	branches, err := s.access.AccessibleBranches(ctx, caller)
	if err != nil {
		return nil, s.handleError("GetBranchesSummary", err)
	}
	if len(branches) == 0 {
		return []model.BranchSummary{}, nil
	}

	ids := make([]int64, 0, len(branches))
	for _, b := range branches {
		ids = append(ids, b.ID)
	}

	key := cache.Key("branches_summary", struct {
		Branches []int64
		Window   *timewindow.Range
	}{ids, rng})
	counts, err := cached(ctx, s, key, func() ([]model.BranchCounts, error) {
		return s.repo.BranchCounts(ctx, ids, rng)
	})
	if err != nil {
		return nil, s.handleError("GetBranchesSummary", err)
	}

	byBranch := make(map[int64]model.BranchCounts, len(counts))
	for _, c := range counts {
		byBranch[c.BranchID] = c
	}

	out := make([]model.BranchSummary, 0, len(branches))
	for _, b := range branches {
		c := byBranch[b.ID]
		out = append(out, model.BranchSummary{
			BranchID:          b.ID,
			BranchName:        b.Name,
			TherapistsCount:   c.Therapists,
			PatientsCount:     c.Patients,
			AppointmentsCount: c.Appointments,
		})
	}
	return out, nil
}

// PatientsInsights computes one row per branch followed by an Overall row
// over every live patient. The Overall row is recomputed, not summed.
func (s *Service) PatientsInsights(ctx context.Context) ([]model.PatientInsight, error) {
	defer s.metrics.ObserveDashboard("patients_insights", time.Now())
	log.Debug().Msg("Dashboard_GetPatientsInsights_Entry")

	// New-patient windows trail the clock, so the key rolls over every minute.
	key := cache.Key("patients_insights", s.clock.Now().UTC().Truncate(time.Minute))
	insights, err := cached(ctx, s, key, func() ([]model.PatientInsight, error) {
		return s.computeInsights(ctx)
	})
	if err != nil {
		return nil, s.handleError("GetPatientsInsights", err)
	}
	return insights, nil
}

func (s *Service) computeInsights(ctx context.Context) ([]model.PatientInsight, error) {
	branches, err := s.branches.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(branches) == 0 {
		return []model.PatientInsight{}, nil
	}

	now := s.clock.Now().UTC()
	base := repository.DemographicsQuery{
		WeekAgo:  now.AddDate(0, 0, -7),
		MonthAgo: now.AddDate(0, -1, 0),
		Now:      now,
	}

	// The last slot holds the Overall row.
	out := make([]model.PatientInsight, len(branches)+1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, b := range branches {
		i, b := i, b
		g.Go(func() error {
			q := base
			branchID := b.ID
			q.BranchID = &branchID
			d, err := s.repo.Demographics(gctx, q)
			if err != nil {
				return err
			}
			out[i] = buildInsight(b.ID, b.Name, d, now.Year())
			return nil
		})
	}
	g.Go(func() error {
		d, err := s.repo.Demographics(gctx, base)
		if err != nil {
			return err
		}
		out[len(branches)] = buildInsight(0, overallBranchName, d, now.Year())
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func buildInsight(branchID int64, name string, d *model.Demographics, year int) model.PatientInsight {
	var gender model.GenderDistribution
	buckets := make([]int64, len(ageRanges))

	for _, grp := range d.Groups {
		switch classifyGender(grp.Gender) {
		case "male":
			gender.Male += grp.Count
		case "female":
			gender.Female += grp.Count
		default:
			gender.Other += grp.Count
		}
		if grp.BirthYear != nil {
			buckets[ageBucket(year-*grp.BirthYear)] += grp.Count
		}
	}

	ages := make([]model.AgeBucket, len(ageRanges))
	for i, label := range ageRanges {
		ages[i] = model.AgeBucket{Range: label, Count: buckets[i], Percentage: percentOf(buckets[i], d.Patients)}
	}

	return model.PatientInsight{
		BranchID:           branchID,
		BranchName:         name,
		NewPatients:        model.NewPatients{Week: d.NewWeek, Month: d.NewMonth},
		GenderDistribution: gender,
		AgeDistribution:    ages,
		AppointmentsCount:  d.Appointments,
	}
}

func classifyGender(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "m", "male":
		return "male"
	case "f", "female":
		return "female"
	default:
		return "other"
	}
}

// ageBucket indexes ageRanges by age in whole calendar years.
func ageBucket(age int) int {
	switch {
	case age <= 12:
		return 0
	case age <= 25:
		return 1
	case age <= 40:
		return 2
	case age <= 60:
		return 3
	default:
		return 4
	}
}

func percentOf(count, total int64) int64 {
	if total == 0 {
		return 0
	}
	return int64(math.Round(float64(count) / float64(total) * 100))
}

func (s *Service) Totals(ctx context.Context, q model.DashboardQuery) (*model.Totals, error) {
	defer s.metrics.ObserveDashboard("totals", time.Now())

	rng, err := s.window(q)
	if err != nil {
		return nil, err
	}

	totals, err := cached(ctx, s, cache.Key("totals", rng), func() (*model.Totals, error) {
		return s.repo.Totals(ctx, rng)
	})
	if err != nil {
		return nil, s.handleError("GetTotals", err)
	}
	return totals, nil
}
