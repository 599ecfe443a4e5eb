// Package plan manages the host plans sold by the platform collective.
package plan

import (
	"context"
	"strings"

	collectivedomain "github.com/smallbiznis/patronage/internal/collective/domain"
	"github.com/smallbiznis/patronage/internal/config"
	tierdomain "github.com/smallbiznis/patronage/internal/tier/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Plan is a host plan, ordered by Rank.
type Plan struct {
	Name string
	Slug string
	Rank int
}

var Plans = map[string]Plan{
	"small":   {Name: "small", Slug: "small-host-plan", Rank: 1},
	"medium":  {Name: "medium", Slug: "medium-host-plan", Rank: 2},
	"large":   {Name: "large", Slug: "large-host-plan", Rank: 3},
	"network": {Name: "network", Slug: "network-host-plan", Rank: 4},
}

// ForTierSlug returns the plan sold by a tier slug.
func ForTierSlug(slug string) (Plan, bool) {
	for _, p := range Plans {
		if p.Slug == slug {
			return p, true
		}
	}
	return Plan{}, false
}

// IsHireOrUpgrade is true when the payer has no plan yet or the new plan ranks
// above the current one. An unknown current plan is never replaced.
func IsHireOrUpgrade(newPlan string, oldPlan *string) bool {
	if oldPlan == nil || strings.TrimSpace(*oldPlan) == "" {
		return true
	}
	next, ok := Plans[newPlan]
	if !ok {
		return false
	}
	current, ok := Plans[*oldPlan]
	if !ok {
		return false
	}
	return next.Rank > current.Rank
}

type Params struct {
	fx.In

	Log    *zap.Logger
	Config config.Config
	Repo   collectivedomain.Repository
}

type Service struct {
	log            *zap.Logger
	plansSlug      string
	collectiveRepo collectivedomain.Repository
}

func NewService(p Params) *Service {
	return &Service{
		log:            p.Log.Named("plan.service"),
		plansSlug:      p.Config.Platform.PlansCollectiveSlug,
		collectiveRepo: p.Repo,
	}
}

// HireOrUpgrade updates the payer's plan after an order to the plans
// collective. Downgrades are left to a separate process.
func (s *Service) HireOrUpgrade(ctx context.Context, db *gorm.DB, recipient, payer *collectivedomain.Collective, tier *tierdomain.Tier) error {
	if tier == nil || recipient == nil || payer == nil {
		return nil
	}
	if recipient.Slug != s.plansSlug {
		return nil
	}
	newPlan, ok := ForTierSlug(tier.Slug)
	if !ok || !IsHireOrUpgrade(newPlan.Name, payer.Plan) {
		return nil
	}

	if err := s.collectiveRepo.UpdatePlan(ctx, db, payer.ID, newPlan.Name); err != nil {
		return err
	}
	name := newPlan.Name
	payer.Plan = &name
	s.log.Info("plan updated",
		zap.String("collective_id", payer.ID.String()),
		zap.String("plan", name),
	)
	return nil
}

var Module = fx.Module("plan.service",
	fx.Provide(NewService),
)
