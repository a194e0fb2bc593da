package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/therapy-scheduler/internal/model"
)

type memoryRBAC struct {
	roles       map[string]int64
	permissions map[string]int64
	grants      map[[2]int64]bool
	failGrant   error
}

func newMemoryRBAC() *memoryRBAC {
	return &memoryRBAC{roles: map[string]int64{}, permissions: map[string]int64{}, grants: map[[2]int64]bool{}}
}

func (m *memoryRBAC) UpsertRole(_ context.Context, role *model.RoleRecord) error {
	id, ok := m.roles[role.Name]
	if !ok {
		id = int64(len(m.roles) + 1)
		m.roles[role.Name] = id
	}
	role.ID = id
	return nil
}

func (m *memoryRBAC) UpsertPermission(_ context.Context, p *model.Permission) error {
	id, ok := m.permissions[p.Name]
	if !ok {
		id = int64(len(m.permissions) + 1)
		m.permissions[p.Name] = id
	}
	p.ID = id
	return nil
}

func (m *memoryRBAC) GrantPermission(_ context.Context, roleID, permissionID int64) error {
	if m.failGrant != nil {
		return m.failGrant
	}
	m.grants[[2]int64{roleID, permissionID}] = true
	return nil
}

type directTx struct{}

func (directTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func TestCan(t *testing.T) {
	assert.True(t, Can(model.RoleSuperAdmin, AppointmentPurge))
	assert.True(t, Can(model.RoleAdmin, AppointmentRestore))
	assert.False(t, Can(model.RoleAdmin, AppointmentPurge))
	assert.True(t, Can(model.RoleTherapist, AppointmentUpdate))
	assert.False(t, Can(model.RoleTherapist, AppointmentDelete))
	assert.True(t, Can(model.RoleAdmin, AuditRead))
	assert.False(t, Can(model.RoleTherapist, AuditRead))
	assert.False(t, Can(model.Role("guest"), AppointmentRead))
}

func TestSeedIsIdempotent(t *testing.T) {
	repo := newMemoryRBAC()
	seeder := NewSeeder(repo, directTx{})
	ctx := context.Background()

	require.NoError(t, seeder.Seed(ctx))
	require.NoError(t, seeder.Seed(ctx))

	assert.Len(t, repo.roles, 3)
	assert.Len(t, repo.permissions, len(Capabilities()))
	// super_admin 8 + admin 7 + therapist 4
	assert.Len(t, repo.grants, 19)

	purge := repo.permissions[string(AppointmentPurge)]
	assert.True(t, repo.grants[[2]int64{repo.roles["super_admin"], purge}])
	assert.False(t, repo.grants[[2]int64{repo.roles["admin"], purge}])
}

func TestSeedFailure(t *testing.T) {
	repo := newMemoryRBAC()
	repo.failGrant = errors.New("boom")

	err := NewSeeder(repo, directTx{}).Seed(context.Background())
	assert.ErrorContains(t, err, "boom")
}
