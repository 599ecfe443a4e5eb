package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/patronage/internal/spam"
	"gorm.io/gorm"
)

var (
	ErrCollectiveNotFound = errors.New("collective_not_found")
	ErrInvalidName        = errors.New("invalid_name")
)

// RecipientInput describes a recipient that may not exist yet.
type RecipientInput struct {
	Name            string
	Website         string
	GithubHandle    string
	CreatedByUserID snowflake.ID
}

// CreateOrganizationInput creates an ORGANIZATION administered by AdminCollectiveID.
type CreateOrganizationInput struct {
	Name              string
	Website           string
	TwitterHandle     string
	Currency          string
	AdminCollectiveID snowflake.ID
	CreatedByUserID   snowflake.ID
}

type UpdateProfileRequest struct {
	Name            *string `json:"name"`
	Website         *string `json:"website"`
	Description     *string `json:"description"`
	LongDescription *string `json:"longDescription"`
}

type Service interface {
	GetByID(ctx context.Context, id snowflake.ID) (*Collective, error)
	HostCollectiveID(ctx context.Context, collective *Collective) (*snowflake.ID, error)
	FindOrCreateByWebsite(ctx context.Context, in RecipientInput) (*Collective, error)
	FindOrCreatePledged(ctx context.Context, in RecipientInput) (*Collective, error)
	CreateOrganization(ctx context.Context, in CreateOrganizationInput) (*Collective, error)
	// CreateUserCollective inserts the USER profile of a new user through tx.
	CreateUserCollective(ctx context.Context, tx *gorm.DB, name, currency string, createdByUserID snowflake.ID) (*Collective, error)
	UpdateProfile(ctx context.Context, actorCollectiveID, id snowflake.ID, req UpdateProfileRequest) (*Collective, spam.Result, error)
}
