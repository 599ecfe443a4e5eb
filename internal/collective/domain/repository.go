package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository persists collectives and memberships. Finders return nil, nil when
// nothing matches.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, collective *Collective) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Collective, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Collective, error)
	FindByWebsite(ctx context.Context, db *gorm.DB, website string) (*Collective, error)
	FindByGithubHandle(ctx context.Context, db *gorm.DB, handle string) (*Collective, error)
	SlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error)
	UpdateProfile(ctx context.Context, db *gorm.DB, collective *Collective) error
	UpdatePlan(ctx context.Context, db *gorm.DB, id snowflake.ID, plan string) error

	InsertMember(ctx context.Context, db *gorm.DB, member *Member) error
	FindMember(ctx context.Context, db *gorm.DB, memberCollectiveID, collectiveID snowflake.ID, role Role) (*Member, error)
	ListMembershipsOf(ctx context.Context, db *gorm.DB, memberCollectiveID snowflake.ID) ([]Member, error)
}
