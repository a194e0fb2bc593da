// Package access decides which branches a caller may see.
package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/therapy-scheduler/internal/model"
	"github.com/jwalitptl/therapy-scheduler/internal/repository"
	apperrors "github.com/jwalitptl/therapy-scheduler/pkg/errors"
)

// BranchAccess is the boundary consumed by the dashboard.
type BranchAccess interface {
	AccessibleBranches(ctx context.Context, caller model.Caller) ([]model.BranchRef, error)
}

type Resolver struct {
	branches repository.BranchRepository
	users    repository.UserRepository
	memo     *cache.Cache
}

// NewResolver memoises results per caller for ttl. A zero ttl disables the
// memo.
func NewResolver(branches repository.BranchRepository, users repository.UserRepository, ttl time.Duration) *Resolver {
	r := &Resolver{branches: branches, users: users}
	if ttl > 0 {
		r.memo = cache.New(ttl, 2*ttl)
	}
	return r
}

// AccessibleBranches returns every branch for super admins and the branches
// of the caller's team membership otherwise.
func (r *Resolver) AccessibleBranches(ctx context.Context, caller model.Caller) ([]model.BranchRef, error) {
	if caller.UserID == 0 {
		return nil, apperrors.Forbidden("User is not allowed to view branches")
	}

	key := fmt.Sprintf("%d:%s", caller.UserID, caller.Role)
	if r.memo != nil {
		if cached, ok := r.memo.Get(key); ok {
			return cached.([]model.BranchRef), nil
		}
	}

	branches, err := r.resolve(ctx, caller)
	if err != nil {
		return nil, err
	}

	if r.memo != nil {
		r.memo.SetDefault(key, branches)
	}
	return branches, nil
}

func (r *Resolver) resolve(ctx context.Context, caller model.Caller) ([]model.BranchRef, error) {
	if caller.Role == model.RoleSuperAdmin {
		return r.branches.List(ctx)
	}

	therapistID := caller.TherapistID
	if therapistID == nil {
		id, err := r.users.GetTherapistID(ctx, caller.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperrors.NotFound("User", err)
			}
			return nil, err
		}
		therapistID = id
	}
	if therapistID == nil {
		log.Debug().Int64("user_id", caller.UserID).Msg("Access_NoTeamMembership")
		return []model.BranchRef{}, nil
	}

	return r.branches.ListForTherapist(ctx, *therapistID)
}
