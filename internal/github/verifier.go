package github

import (
	"context"
	"strings"

	"github.com/smallbiznis/patronage/internal/apperror"
	"github.com/smallbiznis/patronage/internal/config"
	"go.uber.org/zap"
)

// PledgeVerifier checks that a GitHub project is popular enough to receive
// pledges before a collective is created for it.
type PledgeVerifier struct {
	client Client
	limits *config.LimitsHolder
	log    *zap.Logger
}

func NewPledgeVerifier(client Client, limits *config.LimitsHolder, log *zap.Logger) *PledgeVerifier {
	return &PledgeVerifier{client: client, limits: limits, log: log.Named("github.pledge")}
}

// Verify accepts "owner/repo" handles for repositories and bare logins for
// organizations.
func (v *PledgeVerifier) Verify(ctx context.Context, handle string) error {
	handle = strings.TrimSpace(handle)
	minStars := v.limits.Get().GithubFlow.MinNbStars

	if strings.Contains(handle, "/") {
		repo, err := v.client.GetRepo(ctx, handle)
		if err != nil || repo == nil {
			v.log.Info("repository lookup failed", zap.String("handle", handle), zap.Error(err))
			return apperror.Validation("We could not verify the GitHub repository")
		}
		if repo.StargazersCount < minStars {
			return apperror.Validationf("The repository need at least %d GitHub stars to be pledged.", minStars)
		}
		return nil
	}

	org, err := v.client.GetOrg(ctx, handle)
	if err != nil || org == nil {
		v.log.Info("organization lookup failed", zap.String("handle", handle), zap.Error(err))
		return apperror.Validation("We could not verify the GitHub organization")
	}
	repos, err := v.client.ListOrgPublicRepos(ctx, handle)
	if err != nil {
		v.log.Info("organization repositories lookup failed", zap.String("handle", handle), zap.Error(err))
	}
	for _, repo := range repos {
		if repo.StargazersCount >= minStars {
			return nil
		}
	}
	return apperror.Validationf("The organization need at least one repository with %d GitHub stars to be pledged.", minStars)
}
