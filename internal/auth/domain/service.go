package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidEmail = errors.New("invalid email")
)

type CreateUserRequest struct {
	Email           string `json:"email"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Currency        string `json:"currency"`
	CreatedByUserID snowflake.ID
}

type Service interface {
	Authenticate(ctx context.Context, rawToken string) (*User, error)
	IssueToken(ctx context.Context, email string) (string, error)
	GetByID(ctx context.Context, id snowflake.ID) (*User, error)
	// FindByEmail returns nil, nil when no user has the address.
	FindByEmail(ctx context.Context, email string) (*User, error)
	CreateUserWithCollective(ctx context.Context, req CreateUserRequest) (*User, error)
}
