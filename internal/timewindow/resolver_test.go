package timewindow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/therapy-scheduler/pkg/clock"
)

func at(value string) clock.Clock {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return clock.Fixed(t)
}

func utc(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		panic(err)
	}
	return t
}

func TestNamedWindows(t *testing.T) {
	tests := []struct {
		name      string
		now       string
		filter    string
		wantStart string
		wantEnd   string
	}{
		{
			name:      "this week on a Wednesday",
			now:       "2024-05-15T10:30:00Z",
			filter:    ThisWeek,
			wantStart: "2024-05-13T00:00:00Z",
			wantEnd:   "2024-05-19T23:59:59.999Z",
		},
		{
			name:      "this week on a Sunday belongs to the previous Monday",
			now:       "2024-05-19T22:00:00Z",
			filter:    ThisWeek,
			wantStart: "2024-05-13T00:00:00Z",
			wantEnd:   "2024-05-19T23:59:59.999Z",
		},
		{
			name:      "this week on a Monday",
			now:       "2024-05-13T00:00:00Z",
			filter:    ThisWeek,
			wantStart: "2024-05-13T00:00:00Z",
			wantEnd:   "2024-05-19T23:59:59.999Z",
		},
		{
			name:      "last week",
			now:       "2024-05-15T10:30:00Z",
			filter:    LastWeek,
			wantStart: "2024-05-06T00:00:00Z",
			wantEnd:   "2024-05-12T23:59:59.999Z",
		},
		{
			name:      "this month in a leap February",
			now:       "2024-02-10T08:00:00Z",
			filter:    ThisMonth,
			wantStart: "2024-02-01T00:00:00Z",
			wantEnd:   "2024-02-29T23:59:59.999Z",
		},
		{
			name:      "last month from January rolls into December",
			now:       "2025-01-15T08:00:00Z",
			filter:    LastMonth,
			wantStart: "2024-12-01T00:00:00Z",
			wantEnd:   "2024-12-31T23:59:59.999Z",
		},
		{
			name:      "last month from March",
			now:       "2023-03-31T23:00:00Z",
			filter:    LastMonth,
			wantStart: "2023-02-01T00:00:00Z",
			wantEnd:   "2023-02-28T23:59:59.999Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(at(tt.now))

			rng, err := r.Resolve(Filter{Named: tt.filter})
			require.NoError(t, err)
			require.NotNil(t, rng)
			assert.Equal(t, utc(tt.wantStart), rng.Start)
			assert.Equal(t, utc(tt.wantEnd), rng.End)
			assert.Equal(t, time.UTC, rng.Start.Location())
		})
	}
}

func TestResolveUnknownNamedWindow(t *testing.T) {
	r := NewResolver(at("2024-05-15T10:30:00Z"))

	rng, err := r.Resolve(Filter{Named: "fortnight", StartDate: "2024-01-01"})
	require.NoError(t, err)
	assert.Nil(t, rng)
}

func TestResolveExplicitDates(t *testing.T) {
	r := NewResolver(at("2024-05-15T10:30:00Z"))

	t.Run("both bounds", func(t *testing.T) {
		rng, err := r.Resolve(Filter{StartDate: "2024-01-01", EndDate: "2024-01-31T23:59:59Z"})
		require.NoError(t, err)
		assert.Equal(t, utc("2024-01-01T00:00:00Z"), rng.Start)
		assert.Equal(t, utc("2024-01-31T23:59:59Z"), rng.End)
		assert.True(t, rng.Closed())
	})

	t.Run("start only", func(t *testing.T) {
		rng, err := r.Resolve(Filter{StartDate: "2024-01-01T09:00:00+02:00"})
		require.NoError(t, err)
		assert.Equal(t, utc("2024-01-01T07:00:00Z"), rng.Start)
		assert.False(t, rng.HasEnd())
		assert.False(t, rng.Closed())
	})

	t.Run("nothing", func(t *testing.T) {
		rng, err := r.Resolve(Filter{})
		require.NoError(t, err)
		assert.Nil(t, rng)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := r.Resolve(Filter{EndDate: "yesterday"})
		assert.ErrorIs(t, err, ErrInvalidDate)
	})
}

func TestNamedTakesPrecedence(t *testing.T) {
	r := NewResolver(at("2024-05-15T10:30:00Z"))

	rng, err := r.Resolve(Filter{Named: ThisMonth, StartDate: "2020-01-01", EndDate: "2020-12-31"})
	require.NoError(t, err)
	assert.Equal(t, utc("2024-05-01T00:00:00Z"), rng.Start)
}

func TestRangePredicates(t *testing.T) {
	rng := &Range{Start: utc("2024-05-13T00:00:00Z"), End: utc("2024-05-19T23:59:59.999Z")}

	// starts before the window, ends inside it
	assert.True(t, rng.Overlaps(utc("2024-05-12T23:00:00Z"), utc("2024-05-13T00:30:00Z")))
	assert.False(t, rng.ContainsStart(utc("2024-05-12T23:00:00Z")))

	assert.False(t, rng.Overlaps(utc("2024-05-20T00:00:00Z"), utc("2024-05-20T01:00:00Z")))
	assert.True(t, rng.ContainsStart(utc("2024-05-19T23:59:59.999Z")))

	var none *Range
	assert.True(t, none.Overlaps(time.Time{}, time.Time{}))
}
