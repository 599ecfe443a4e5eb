package authorization

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	collectivedomain "github.com/smallbiznis/patronage/internal/collective/domain"
	collectiverepo "github.com/smallbiznis/patronage/internal/collective/repository"
	"github.com/smallbiznis/patronage/internal/config"
	"github.com/smallbiznis/patronage/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db   *gorm.DB
	node *snowflake.Node
	repo collectivedomain.Repository
	svc  Service
}

func newFixture(t *testing.T, rootID int64) *fixture {
	t.Helper()
	db := testutil.OpenDB(t, &collectivedomain.Collective{}, &collectivedomain.Member{})
	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)

	repo := collectiverepo.Provide()
	cfg := config.Config{}
	cfg.Platform.RootCollectiveID = rootID

	return &fixture{
		db:   db,
		node: testutil.Node(t),
		repo: repo,
		svc: NewService(Params{
			DB:             db,
			Log:            zap.NewNop(),
			Config:         cfg,
			Enforcer:       enforcer,
			CollectiveRepo: repo,
		}),
	}
}

func (f *fixture) collective(t *testing.T, collectiveType collectivedomain.Type) *collectivedomain.Collective {
	t.Helper()
	id := f.node.Generate()
	c := &collectivedomain.Collective{
		ID:        id,
		Slug:      "c-" + id.String(),
		Name:      "c",
		Type:      collectiveType,
		Currency:  "USD",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, f.repo.Insert(context.Background(), f.db, c))
	return c
}

func (f *fixture) member(t *testing.T, member, collective snowflake.ID, role collectivedomain.Role) {
	t.Helper()
	require.NoError(t, f.repo.InsertMember(context.Background(), f.db, &collectivedomain.Member{
		ID:                 f.node.Generate(),
		MemberCollectiveID: member,
		CollectiveID:       collective,
		Role:               role,
		CreatedAt:          time.Now().UTC(),
		UpdatedAt:          time.Now().UTC(),
	}))
}

func TestAuthorizeOnBehalf(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	user := f.collective(t, collectivedomain.TypeUser)
	org := f.collective(t, collectivedomain.TypeOrganization)
	coll := f.collective(t, collectivedomain.TypeCollective)

	assert.ErrorIs(t, f.svc.Authorize(ctx, user.ID, org, ActionOrderOnBehalf), ErrForbidden)

	f.member(t, user.ID, org.ID, collectivedomain.RoleMember)
	f.member(t, user.ID, coll.ID, collectivedomain.RoleMember)

	assert.NoError(t, f.svc.Authorize(ctx, user.ID, org, ActionOrderOnBehalf))
	assert.ErrorIs(t, f.svc.Authorize(ctx, user.ID, org, ActionCollectiveAdmin), ErrForbidden)
	assert.ErrorIs(t, f.svc.Authorize(ctx, user.ID, coll, ActionOrderOnBehalf), ErrForbidden)

	f.member(t, user.ID, coll.ID, collectivedomain.RoleAdmin)
	assert.NoError(t, f.svc.Authorize(ctx, user.ID, coll, ActionOrderOnBehalf))
	assert.NoError(t, f.svc.Authorize(ctx, user.ID, coll, ActionCollectiveAdmin))

	assert.NoError(t, f.svc.Authorize(ctx, user.ID, user, ActionCollectiveAdmin))
}

func TestAuthorizeRejectsInvalidInput(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	coll := f.collective(t, collectivedomain.TypeCollective)

	assert.ErrorIs(t, f.svc.Authorize(ctx, 0, coll, ActionCollectiveAdmin), ErrInvalidActor)
	assert.ErrorIs(t, f.svc.Authorize(ctx, coll.ID, nil, ActionCollectiveAdmin), ErrInvalidCollective)
	assert.ErrorIs(t, f.svc.Authorize(ctx, f.node.Generate(), coll, " "), ErrInvalidAction)
}

func TestIsAdminAndRoot(t *testing.T) {
	f := newFixture(t, 0)
	root := f.collective(t, collectivedomain.TypeOrganization)

	f2 := &fixture{db: f.db, node: f.node, repo: f.repo}
	enforcer, err := NewEnforcer(f.db)
	require.NoError(t, err)
	cfg := config.Config{}
	cfg.Platform.RootCollectiveID = int64(root.ID)
	f2.svc = NewService(Params{DB: f.db, Log: zap.NewNop(), Config: cfg, Enforcer: enforcer, CollectiveRepo: f.repo})

	ctx := context.Background()
	user := f2.collective(t, collectivedomain.TypeUser)
	host := f2.collective(t, collectivedomain.TypeOrganization)

	ok, err := f2.svc.IsAdmin(ctx, user.ID, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f2.svc.IsAdmin(ctx, user.ID, &host.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	f2.member(t, user.ID, host.ID, collectivedomain.RoleAdmin)
	ok, err = f2.svc.IsAdmin(ctx, user.ID, &host.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f2.svc.IsRoot(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	f2.member(t, user.ID, root.ID, collectivedomain.RoleAdmin)
	ok, err = f2.svc.IsRoot(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}
