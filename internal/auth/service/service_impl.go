package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/patronage/internal/auth/domain"
	"github.com/smallbiznis/patronage/internal/clock"
	collectivedomain "github.com/smallbiznis/patronage/internal/collective/domain"
	"github.com/smallbiznis/patronage/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const tokenBytes = 32

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Users       repository.Repository[authdomain.User]
	Collectives collectivedomain.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	users       repository.Repository[authdomain.User]
	collectives collectivedomain.Service
}

func New(p Params) authdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("auth.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		users:       p.Users,
		collectives: p.Collectives,
	}
}

func (s *Service) Authenticate(ctx context.Context, rawToken string) (*authdomain.User, error) {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return nil, authdomain.ErrInvalidToken
	}
	hash := authdomain.HashToken(token)
	user, err := s.users.FindOne(ctx, &authdomain.User{TokenHash: &hash})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, authdomain.ErrInvalidToken
	}
	return user, nil
}

// IssueToken replaces the user's API token and returns the raw value once.
func (s *Service) IssueToken(ctx context.Context, email string) (string, error) {
	user, err := s.FindByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", authdomain.ErrUserNotFound
	}

	raw, err := newToken()
	if err != nil {
		return "", err
	}
	err = s.users.Update(ctx, user.ID.String(), map[string]any{
		"token_hash": authdomain.HashToken(raw),
		"updated_at": s.clock.Now().UTC(),
	})
	if err != nil {
		return "", err
	}
	s.log.Info("api token issued", zap.String("user_id", user.ID.String()))
	return raw, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*authdomain.User, error) {
	user, err := s.users.FindOne(ctx, &authdomain.User{ID: id})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, authdomain.ErrUserNotFound
	}
	return user, nil
}

func (s *Service) FindByEmail(ctx context.Context, email string) (*authdomain.User, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, authdomain.ErrInvalidEmail
	}
	return s.users.FindOne(ctx, &authdomain.User{Email: normalized})
}

func (s *Service) CreateUserWithCollective(ctx context.Context, req authdomain.CreateUserRequest) (*authdomain.User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, authdomain.ErrInvalidEmail
	}
	existing, err := s.users.FindOne(ctx, &authdomain.User{Email: email})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, authdomain.ErrUserExists
	}

	name := strings.TrimSpace(strings.Join([]string{strings.TrimSpace(req.FirstName), strings.TrimSpace(req.LastName)}, " "))
	if name == "" {
		name = defaultDisplayName(email)
	}

	now := s.clock.Now().UTC()
	user := &authdomain.User{
		ID:        s.genID.Generate(),
		Email:     email,
		FirstName: optional(req.FirstName),
		LastName:  optional(req.LastName),
		Data:      datatypes.JSONMap{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profile, err := s.collectives.CreateUserCollective(ctx, tx, name, req.Currency, req.CreatedByUserID)
		if err != nil {
			return err
		}
		user.CollectiveID = profile.ID
		return s.users.WithTrx(tx).Create(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("user created",
		zap.String("user_id", user.ID.String()),
		zap.String("collective_id", user.CollectiveID.String()),
	)
	return user, nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(addr.Address)), nil
}

func defaultDisplayName(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) > 0 && strings.TrimSpace(parts[0]) != "" {
		return strings.TrimSpace(parts[0])
	}
	return email
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
