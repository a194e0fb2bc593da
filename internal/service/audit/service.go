package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/therapy-scheduler/internal/model"
	"github.com/jwalitptl/therapy-scheduler/internal/repository"
	"github.com/jwalitptl/therapy-scheduler/pkg/clock"
	apperrors "github.com/jwalitptl/therapy-scheduler/pkg/errors"
)

type requestIDKey struct{}
type actorKey struct{}

// WithRequestID attaches the request id recorded on audit rows.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// WithActor attaches the team member performing the write.
func WithActor(ctx context.Context, actorID *int64) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func actor(ctx context.Context) *int64 {
	id, _ := ctx.Value(actorKey{}).(*int64)
	return id
}

// Recorder writes audit rows. Called with a transactional context, the row
// commits or rolls back together with the write it describes.
type Recorder interface {
	Record(ctx context.Context, action, entityType string, entityID int64, changes interface{}) error
}

type Service struct {
	repo  repository.AuditRepository
	clock clock.Clock
}

func NewService(repo repository.AuditRepository, c clock.Clock) *Service {
	if c == nil {
		c = clock.New()
	}
	return &Service{repo: repo, clock: c}
}

func (s *Service) Record(ctx context.Context, action, entityType string, entityID int64, changes interface{}) error {
	var raw json.RawMessage
	if changes != nil {
		b, err := json.Marshal(changes)
		if err != nil {
			return fmt.Errorf("failed to marshal audit changes: %w", err)
		}
		raw = b
	}

	entry := &model.AuditLog{
		ID:         uuid.New(),
		ActorID:    actor(ctx),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Changes:    raw,
		RequestID:  requestID(ctx),
		CreatedAt:  s.clock.Now(),
	}
	return s.repo.Create(ctx, entry)
}

// History returns the audit rows of one entity, oldest first.
func (s *Service) History(ctx context.Context, entityType string, entityID int64) ([]*model.AuditLog, error) {
	logs, err := s.repo.ListByEntity(ctx, entityType, entityID)
	if err != nil {
		log.Error().Err(err).Str("entity_type", entityType).Int64("entity_id", entityID).Msg("Audit_History_Error")
		return nil, apperrors.Internal(err)
	}
	return logs, nil
}

// Cleanup removes rows older than retention.
func (s *Service) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	return s.repo.Cleanup(ctx, s.clock.Now().Add(-retention))
}
