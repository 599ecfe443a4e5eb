package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	collectivedomain "github.com/smallbiznis/patronage/internal/collective/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() collectivedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, collective *collectivedomain.Collective) error {
	return db.WithContext(ctx).Create(collective).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*collectivedomain.Collective, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*collectivedomain.Collective, error) {
	return r.findOne(ctx, db, "slug = ?", strings.ToLower(strings.TrimSpace(slug)))
}

func (r *repo) FindByWebsite(ctx context.Context, db *gorm.DB, website string) (*collectivedomain.Collective, error) {
	return r.findOne(ctx, db, "website = ?", strings.TrimSpace(website))
}

func (r *repo) FindByGithubHandle(ctx context.Context, db *gorm.DB, handle string) (*collectivedomain.Collective, error) {
	return r.findOne(ctx, db, "github_handle = ?", strings.TrimSpace(handle))
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*collectivedomain.Collective, error) {
	var collective collectivedomain.Collective
	err := db.WithContext(ctx).Where(query, args...).Take(&collective).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &collective, nil
}

func (r *repo) SlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&collectivedomain.Collective{}).
		Where("slug = ?", slug).
		Count(&count).Error
	return count > 0, err
}

func (r *repo) UpdateProfile(ctx context.Context, db *gorm.DB, collective *collectivedomain.Collective) error {
	return db.WithContext(ctx).Exec(
		`UPDATE collectives
		SET name = ?, website = ?, description = ?, long_description = ?, updated_at = ?
		WHERE id = ?`,
		collective.Name,
		collective.Website,
		collective.Description,
		collective.LongDescription,
		collective.UpdatedAt,
		collective.ID,
	).Error
}

func (r *repo) UpdatePlan(ctx context.Context, db *gorm.DB, id snowflake.ID, plan string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE collectives SET plan = ?, updated_at = ? WHERE id = ?`,
		plan,
		time.Now().UTC(),
		id,
	).Error
}

func (r *repo) InsertMember(ctx context.Context, db *gorm.DB, member *collectivedomain.Member) error {
	return db.WithContext(ctx).Create(member).Error
}

func (r *repo) FindMember(ctx context.Context, db *gorm.DB, memberCollectiveID, collectiveID snowflake.ID, role collectivedomain.Role) (*collectivedomain.Member, error) {
	var member collectivedomain.Member
	err := db.WithContext(ctx).
		Where("member_collective_id = ? AND collective_id = ? AND role = ?", memberCollectiveID, collectiveID, role).
		Take(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *repo) ListMembershipsOf(ctx context.Context, db *gorm.DB, memberCollectiveID snowflake.ID) ([]collectivedomain.Member, error) {
	var members []collectivedomain.Member
	err := db.WithContext(ctx).
		Where("member_collective_id = ?", memberCollectiveID).
		Order("created_at ASC").
		Find(&members).Error
	return members, err
}
