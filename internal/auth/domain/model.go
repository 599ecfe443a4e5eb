// Package domain contains users and their API tokens.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	FeatureOrder = "ORDER"
	FeatureAll   = "ALL"
)

// User is a login identity. Its public profile is the USER collective
// referenced by CollectiveID.
type User struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	CollectiveID snowflake.ID      `gorm:"not null;index" json:"collectiveId"`
	Email        string            `gorm:"type:text;not null;uniqueIndex" json:"email"`
	FirstName    *string           `gorm:"type:text" json:"firstName,omitempty"`
	LastName     *string           `gorm:"type:text" json:"lastName,omitempty"`
	TokenHash    *string           `gorm:"type:text;uniqueIndex" json:"-"`
	Data         datatypes.JSONMap `gorm:"type:jsonb" json:"data,omitempty"`
	CreatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// CanUseFeature is false only when data.features explicitly disables the
// feature or ALL.
func (u *User) CanUseFeature(feature string) bool {
	if u == nil {
		return false
	}
	features, ok := u.Data["features"].(map[string]any)
	if !ok {
		return true
	}
	for _, key := range []string{strings.ToUpper(feature), FeatureAll} {
		if enabled, set := features[key].(bool); set && !enabled {
			return false
		}
	}
	return true
}

// DisplayName returns the first name, falling back to the email local part.
func (u *User) DisplayName() string {
	if u.FirstName != nil && strings.TrimSpace(*u.FirstName) != "" {
		return strings.TrimSpace(*u.FirstName)
	}
	if at := strings.Index(u.Email, "@"); at > 0 {
		return u.Email[:at]
	}
	return u.Email
}
