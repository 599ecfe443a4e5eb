package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/patronage/internal/apperror"
	"github.com/smallbiznis/patronage/internal/authorization"
	"github.com/smallbiznis/patronage/internal/clock"
	collectivedomain "github.com/smallbiznis/patronage/internal/collective/domain"
	"github.com/smallbiznis/patronage/internal/spam"
	"github.com/smallbiznis/patronage/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultCurrency = "USD"
	maxSlugAttempts = 3
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    collectivedomain.Repository
	Authz   authorization.Service
	Scanner *spam.Scanner
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    collectivedomain.Repository
	authz   authorization.Service
	scanner *spam.Scanner
}

func NewService(p Params) collectivedomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("collective.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		authz:   p.Authz,
		scanner: p.Scanner,
	}
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*collectivedomain.Collective, error) {
	collective, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if collective == nil {
		return nil, apperror.NotFound(fmt.Sprintf("No collective found: %s", id))
	}
	return collective, nil
}

// HostCollectiveID returns the collective's host, falling back to the parent's host.
func (s *Service) HostCollectiveID(ctx context.Context, collective *collectivedomain.Collective) (*snowflake.ID, error) {
	if collective == nil {
		return nil, nil
	}
	if collective.HostCollectiveID != nil {
		return collective.HostCollectiveID, nil
	}
	if collective.ParentCollectiveID == nil {
		return nil, nil
	}
	parent, err := s.repo.FindByID(ctx, s.db, *collective.ParentCollectiveID)
	if err != nil || parent == nil {
		return nil, err
	}
	return parent.HostCollectiveID, nil
}

func (s *Service) FindOrCreateByWebsite(ctx context.Context, in collectivedomain.RecipientInput) (*collectivedomain.Collective, error) {
	website := strings.TrimSpace(in.Website)
	existing, err := s.repo.FindByWebsite(ctx, s.db, website)
	if err != nil || existing != nil {
		return existing, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = websiteName(website)
	}
	collective := s.newCollective(name, collectivedomain.TypeCollective, in.CreatedByUserID)
	collective.Website = &website

	if err := s.insertWithSlug(ctx, s.db, collective, name); err != nil {
		return nil, err
	}
	s.log.Info("created collective from website",
		zap.String("collective_id", collective.ID.String()),
		zap.String("slug", collective.Slug),
	)
	return collective, nil
}

func (s *Service) FindOrCreatePledged(ctx context.Context, in collectivedomain.RecipientInput) (*collectivedomain.Collective, error) {
	handle := strings.TrimSpace(in.GithubHandle)
	existing, err := s.repo.FindByGithubHandle(ctx, s.db, handle)
	if err != nil || existing != nil {
		return existing, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = handle
		if idx := strings.LastIndex(handle, "/"); idx >= 0 {
			name = handle[idx+1:]
		}
	}
	collective := s.newCollective(name, collectivedomain.TypeCollective, in.CreatedByUserID)
	collective.GithubHandle = &handle
	collective.IsPledged = true

	if err := s.insertWithSlug(ctx, s.db, collective, strings.ReplaceAll(handle, "/", "-")); err != nil {
		return nil, err
	}
	s.log.Info("created pledged collective",
		zap.String("collective_id", collective.ID.String()),
		zap.String("github_handle", handle),
	)
	return collective, nil
}

func (s *Service) CreateOrganization(ctx context.Context, in collectivedomain.CreateOrganizationInput) (*collectivedomain.Collective, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperror.Validation("An organization name is required")
	}

	org := s.newCollective(name, collectivedomain.TypeOrganization, in.CreatedByUserID)
	org.IsActive = true
	if currency := strings.ToUpper(strings.TrimSpace(in.Currency)); currency != "" {
		org.Currency = currency
	}
	if website := strings.TrimSpace(in.Website); website != "" {
		org.Website = &website
	}
	if twitter := strings.TrimPrefix(strings.TrimSpace(in.TwitterHandle), "@"); twitter != "" {
		org.TwitterHandle = &twitter
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.insertWithSlug(ctx, tx, org, name); err != nil {
			return err
		}
		if in.AdminCollectiveID == 0 {
			return nil
		}
		createdBy := in.CreatedByUserID
		return s.repo.InsertMember(ctx, tx, &collectivedomain.Member{
			ID:                 s.genID.Generate(),
			MemberCollectiveID: in.AdminCollectiveID,
			CollectiveID:       org.ID,
			Role:               collectivedomain.RoleAdmin,
			CreatedByUserID:    nonZero(createdBy),
			CreatedAt:          org.CreatedAt,
			UpdatedAt:          org.CreatedAt,
		})
	})
	if err != nil {
		return nil, err
	}
	return org, nil
}

func (s *Service) CreateUserCollective(ctx context.Context, tx *gorm.DB, name, currency string, createdByUserID snowflake.ID) (*collectivedomain.Collective, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, collectivedomain.ErrInvalidName
	}
	user := s.newCollective(name, collectivedomain.TypeUser, createdByUserID)
	user.IsActive = true
	if currency = strings.ToUpper(strings.TrimSpace(currency)); currency != "" {
		user.Currency = currency
	}
	if err := s.insertWithSlug(ctx, tx, user, name); err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateProfile applies a profile edit and then scans the stored text. The scan
// result is informative; it never blocks the edit.
func (s *Service) UpdateProfile(ctx context.Context, actorCollectiveID, id snowflake.ID, req collectivedomain.UpdateProfileRequest) (*collectivedomain.Collective, spam.Result, error) {
	collective, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, spam.Result{}, err
	}
	if err := s.authz.Authorize(ctx, actorCollectiveID, collective, authorization.ActionCollectiveAdmin); err != nil {
		if errors.Is(err, authorization.ErrForbidden) {
			return nil, spam.Result{}, apperror.Unauthorized("You must be logged in as an admin of this collective")
		}
		return nil, spam.Result{}, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, spam.Result{}, apperror.Validation("Name cannot be empty")
		}
		collective.Name = name
	}
	if req.Website != nil {
		collective.Website = optionalString(*req.Website)
	}
	if req.Description != nil {
		collective.Description = optionalString(*req.Description)
	}
	if req.LongDescription != nil {
		collective.LongDescription = optionalString(*req.LongDescription)
	}
	collective.UpdatedAt = s.clock.Now().UTC()

	if err := s.repo.UpdateProfile(ctx, s.db, collective); err != nil {
		return nil, spam.Result{}, err
	}

	result := s.scanner.CollectiveCheck(ctx, spam.Content{
		CollectiveID:    collective.ID,
		Slug:            collective.Slug,
		Name:            collective.Name,
		Website:         deref(collective.Website),
		Description:     deref(collective.Description),
		LongDescription: deref(collective.LongDescription),
	})
	return collective, result, nil
}

func (s *Service) newCollective(name string, collectiveType collectivedomain.Type, createdBy snowflake.ID) *collectivedomain.Collective {
	now := s.clock.Now().UTC()
	return &collectivedomain.Collective{
		ID:              s.genID.Generate(),
		Name:            name,
		Type:            collectiveType,
		Currency:        defaultCurrency,
		CreatedByUserID: nonZero(createdBy),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// insertWithSlug derives a free slug from base and inserts the collective.
// A concurrent insert can still take the slug between the lookup and the
// insert; the insert then runs again with the next free slug.
func (s *Service) insertWithSlug(ctx context.Context, conn *gorm.DB, collective *collectivedomain.Collective, base string) error {
	root := slug.Make(base)
	if root == "" {
		root = strings.ToLower(string(collective.Type))
	}
	suffix := 0
	for attempt := 0; ; attempt++ {
		candidate, next, err := s.freeSlug(ctx, conn, root, suffix)
		if err != nil {
			return err
		}
		collective.Slug = candidate
		err = conn.Transaction(func(tx *gorm.DB) error {
			return s.repo.Insert(ctx, tx, collective)
		})
		if err == nil || !db.IsDuplicateKeyErr(err) || attempt == maxSlugAttempts-1 {
			return err
		}
		s.log.Debug("slug taken concurrently, retrying", zap.String("slug", candidate))
		suffix = next
	}
}

// freeSlug returns the first unused slug from root, root+suffix onwards and
// the suffix to try after it.
func (s *Service) freeSlug(ctx context.Context, conn *gorm.DB, root string, suffix int) (string, int, error) {
	for {
		candidate := root
		if suffix > 0 {
			candidate = fmt.Sprintf("%s%d", root, suffix)
		}
		exists, err := s.repo.SlugExists(ctx, conn, candidate)
		if err != nil {
			return "", 0, err
		}
		if !exists {
			return candidate, suffix + 1, nil
		}
		suffix++
	}
}

func websiteName(website string) string {
	parsed, err := url.Parse(website)
	if err != nil || parsed.Host == "" {
		return website
	}
	return strings.TrimPrefix(parsed.Hostname(), "www.")
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func nonZero(id snowflake.ID) *snowflake.ID {
	if id == 0 {
		return nil
	}
	return &id
}
