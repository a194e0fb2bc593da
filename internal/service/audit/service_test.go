package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/therapy-scheduler/internal/model"
	"github.com/jwalitptl/therapy-scheduler/internal/repository/repotest"
	"github.com/jwalitptl/therapy-scheduler/pkg/clock"
	apperrors "github.com/jwalitptl/therapy-scheduler/pkg/errors"
)

func TestRecordCarriesActorAndRequestID(t *testing.T) {
	store := repotest.NewStore()
	now := time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)
	svc := NewService(store.AuditRepo(), clock.Fixed(now))

	actorID := int64(9)
	ctx := WithActor(WithRequestID(context.Background(), "req-1"), &actorID)

	err := svc.Record(ctx, model.AuditActionCreate, model.AuditEntityAppointment, 42, map[string]string{"status": "pending"})
	require.NoError(t, err)

	require.Len(t, store.AuditLogs, 1)
	entry := store.AuditLogs[0]
	assert.Equal(t, "req-1", entry.RequestID)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, int64(9), *entry.ActorID)
	assert.Equal(t, int64(42), entry.EntityID)
	assert.JSONEq(t, `{"status":"pending"}`, string(entry.Changes))
	assert.Equal(t, now, entry.CreatedAt)
}

func TestCleanupUsesRetention(t *testing.T) {
	store := repotest.NewStore()
	now := time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)
	store.AuditLogs = []*model.AuditLog{
		{EntityID: 1, CreatedAt: now.AddDate(0, 0, -40)},
		{EntityID: 2, CreatedAt: now.AddDate(0, 0, -10)},
	}
	svc := NewService(store.AuditRepo(), clock.Fixed(now))

	removed, err := svc.Cleanup(context.Background(), 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	require.Len(t, store.AuditLogs, 1)
	assert.Equal(t, int64(2), store.AuditLogs[0].EntityID)
}

func TestHistoryFiltersByEntity(t *testing.T) {
	store := repotest.NewStore()
	svc := NewService(store.AuditRepo(), clock.Fixed(time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)))
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, model.AuditActionCreate, model.AuditEntityAppointment, 1, nil))
	require.NoError(t, svc.Record(ctx, model.AuditActionCreate, model.AuditEntityAppointment, 2, nil))
	require.NoError(t, svc.Record(ctx, model.AuditActionUpdate, model.AuditEntityAppointment, 1, nil))

	logs, err := svc.History(ctx, model.AuditEntityAppointment, 1)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, model.AuditActionCreate, logs[0].Action)
	assert.Equal(t, model.AuditActionUpdate, logs[1].Action)

	store.Fail = map[string]error{"audit": repotest.ErrStorage}
	_, err = svc.History(ctx, model.AuditEntityAppointment, 1)
	assert.True(t, apperrors.IsInternal(err))
}
