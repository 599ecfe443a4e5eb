package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	collectivedomain "github.com/smallbiznis/patronage/internal/collective/domain"
	"github.com/smallbiznis/patronage/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	roleAdmin  = "role:admin"
	roleMember = "role:member"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	Config         config.Config
	Enforcer       *casbin.SyncedEnforcer
	CollectiveRepo collectivedomain.Repository
}

type ServiceImpl struct {
	db             *gorm.DB
	log            *zap.Logger
	rootID         snowflake.ID
	enforcer       *casbin.SyncedEnforcer
	collectiveRepo collectivedomain.Repository
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:             p.DB,
		log:            p.Log.Named("authorization.service"),
		rootID:         snowflake.ID(p.Config.Platform.RootCollectiveID),
		enforcer:       p.Enforcer,
		collectiveRepo: p.CollectiveRepo,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actorCollectiveID snowflake.ID, collective *collectivedomain.Collective, action string) error {
	if actorCollectiveID == 0 {
		return ErrInvalidActor
	}
	if collective == nil || collective.ID == 0 {
		return ErrInvalidCollective
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject := fmt.Sprintf("user:%s", actorCollectiveID.String())
	domain := fmt.Sprintf("collective:%s", collective.ID.String())
	object := strings.ToLower(string(collective.Type))

	// A user administers its own collective.
	if actorCollectiveID == collective.ID {
		return nil
	}

	roleName, err := s.roleFor(ctx, actorCollectiveID, collective.ID)
	if err != nil {
		return err
	}
	if roleName == "" {
		s.log.Debug("authorization denied",
			zap.String("subject", subject),
			zap.String("domain", domain),
			zap.String("action", action),
		)
		return ErrForbidden
	}

	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("subject", subject),
			zap.String("domain", domain),
			zap.String("role", roleName),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) IsAdmin(ctx context.Context, actorCollectiveID snowflake.ID, collectiveID *snowflake.ID) (bool, error) {
	if actorCollectiveID == 0 || collectiveID == nil || *collectiveID == 0 {
		return false, nil
	}
	if actorCollectiveID == *collectiveID {
		return true, nil
	}
	member, err := s.collectiveRepo.FindMember(ctx, s.db, actorCollectiveID, *collectiveID, collectivedomain.RoleAdmin)
	if err != nil {
		return false, err
	}
	return member != nil, nil
}

func (s *ServiceImpl) IsRoot(ctx context.Context, actorCollectiveID snowflake.ID) (bool, error) {
	if s.rootID == 0 {
		return false, nil
	}
	root := s.rootID
	return s.IsAdmin(ctx, actorCollectiveID, &root)
}

// roleFor returns the casbin role of the actor on the collective, ADMIN first.
func (s *ServiceImpl) roleFor(ctx context.Context, actorCollectiveID, collectiveID snowflake.ID) (string, error) {
	for _, candidate := range []collectivedomain.Role{collectivedomain.RoleAdmin, collectivedomain.RoleMember} {
		member, err := s.collectiveRepo.FindMember(ctx, s.db, actorCollectiveID, collectiveID, candidate)
		if err != nil {
			return "", err
		}
		if member != nil {
			return fmt.Sprintf("role:%s", strings.ToLower(string(candidate))), nil
		}
	}
	return "", nil
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	types := []collectivedomain.Type{
		collectivedomain.TypeUser,
		collectivedomain.TypeOrganization,
		collectivedomain.TypeCollective,
		collectivedomain.TypeEvent,
		collectivedomain.TypeFund,
		collectivedomain.TypeProject,
	}

	policies := make([][]string, 0, len(types)*2+1)
	for _, t := range types {
		object := strings.ToLower(string(t))
		policies = append(policies,
			[]string{roleAdmin, object, ActionCollectiveAdmin},
			[]string{roleAdmin, object, ActionOrderOnBehalf},
		)
	}
	// Organization members may spend on behalf of the organization.
	policies = append(policies, []string{roleMember, strings.ToLower(string(collectivedomain.TypeOrganization)), ActionOrderOnBehalf})

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
