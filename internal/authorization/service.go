package authorization

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	collectivedomain "github.com/smallbiznis/patronage/internal/collective/domain"
)

const (
	// ActionCollectiveAdmin covers administrative edits of a collective.
	ActionCollectiveAdmin = "collective.admin"
	// ActionOrderOnBehalf allows creating orders paid by the collective.
	ActionOrderOnBehalf = "order.create_on_behalf"
)

var (
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidActor      = errors.New("invalid_actor")
	ErrInvalidCollective = errors.New("invalid_collective")
	ErrInvalidAction     = errors.New("invalid_action")
)

// Service answers permission questions for an actor identified by the id of
// the user's own collective.
type Service interface {
	Authorize(ctx context.Context, actorCollectiveID snowflake.ID, collective *collectivedomain.Collective, action string) error
	IsAdmin(ctx context.Context, actorCollectiveID snowflake.ID, collectiveID *snowflake.ID) (bool, error)
	IsRoot(ctx context.Context, actorCollectiveID snowflake.ID) (bool, error)
}
