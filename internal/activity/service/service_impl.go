package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	activitydomain "github.com/smallbiznis/patronage/internal/activity/domain"
	"github.com/smallbiznis/patronage/internal/activity/masking"
	"github.com/smallbiznis/patronage/internal/clock"
	obscontext "github.com/smallbiznis/patronage/internal/observability/context"
	"github.com/smallbiznis/patronage/pkg/db/option"
	"github.com/smallbiznis/patronage/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Store repository.Repository[activitydomain.Activity]
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	store repository.Repository[activitydomain.Activity]
}

func NewService(p Params) activitydomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("activity.service"),
		genID: p.GenID,
		clock: p.Clock,
		store: p.Store,
	}
}

func (s *Service) Record(ctx context.Context, tx *gorm.DB, entry activitydomain.Entry) error {
	activityType := strings.TrimSpace(entry.Type)
	if activityType == "" {
		return activitydomain.ErrInvalidType
	}

	payload := masking.MaskSensitive(entry.Data)
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		payload["request_id"] = requestID
	}

	activity := activitydomain.Activity{
		ID:           s.genID.Generate(),
		Type:         activityType,
		CollectiveID: entry.CollectiveID,
		UserID:       s.resolveUser(ctx, entry.UserID),
		Data:         datatypes.JSONMap(payload),
		CreatedAt:    s.clock.Now().UTC(),
	}

	store := s.store
	if tx != nil {
		store = store.WithTrx(tx)
	}
	if err := store.Create(ctx, &activity); err != nil {
		s.log.Warn("failed to write activity", zap.String("type", activityType), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) ListByCollective(ctx context.Context, collectiveID snowflake.ID, limit int) ([]*activitydomain.Activity, error) {
	if limit <= 0 || limit > 250 {
		limit = 50
	}
	return s.store.Find(ctx,
		&activitydomain.Activity{CollectiveID: &collectiveID},
		option.WithSortBy("created_at", true),
		option.WithLimit(limit),
	)
}

func (s *Service) resolveUser(ctx context.Context, userID *snowflake.ID) *snowflake.ID {
	if userID != nil && *userID != 0 {
		return userID
	}
	actorType, actorID := obscontext.ActorFromContext(ctx)
	if actorType != "user" || actorID == "" {
		return nil
	}
	parsed, err := snowflake.ParseString(actorID)
	if err != nil || parsed == 0 {
		return nil
	}
	return &parsed
}
