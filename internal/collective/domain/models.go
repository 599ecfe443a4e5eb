// Package domain contains persistence models for collectives and their members.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Type is the kind of account a collective represents.
type Type string

const (
	TypeUser         Type = "USER"
	TypeOrganization Type = "ORGANIZATION"
	TypeCollective   Type = "COLLECTIVE"
	TypeEvent        Type = "EVENT"
	TypeFund         Type = "FUND"
	TypeProject      Type = "PROJECT"
)

// Role is the relation a member collective holds on another collective.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleMember   Role = "MEMBER"
	RoleBacker   Role = "BACKER"
	RoleAttendee Role = "ATTENDEE"
	RoleHost     Role = "HOST"
	RoleFollower Role = "FOLLOWER"
)

// Collective is an account in the platform graph.
type Collective struct {
	ID                 snowflake.ID      `gorm:"primaryKey" json:"id"`
	Slug               string            `gorm:"type:text;not null;uniqueIndex" json:"slug"`
	Name               string            `gorm:"type:text;not null" json:"name"`
	Type               Type              `gorm:"type:text;not null" json:"type"`
	Currency           string            `gorm:"type:text;not null" json:"currency"`
	CountryISO         *string           `gorm:"type:text;column:country_iso" json:"countryISO,omitempty"`
	HostCollectiveID   *snowflake.ID     `gorm:"index" json:"hostCollectiveId,omitempty"`
	ParentCollectiveID *snowflake.ID     `gorm:"index" json:"parentCollectiveId,omitempty"`
	IsActive           bool              `gorm:"not null;default:false" json:"isActive"`
	IsHostAccount      bool              `gorm:"not null;default:false" json:"isHostAccount"`
	IsPledged          bool              `gorm:"not null;default:false" json:"isPledged"`
	Website            *string           `gorm:"type:text;index" json:"website,omitempty"`
	GithubHandle       *string           `gorm:"type:text;index" json:"githubHandle,omitempty"`
	TwitterHandle      *string           `gorm:"type:text" json:"twitterHandle,omitempty"`
	Description        *string           `gorm:"type:text" json:"description,omitempty"`
	LongDescription    *string           `gorm:"type:text" json:"longDescription,omitempty"`
	Settings           datatypes.JSONMap `gorm:"type:jsonb" json:"settings,omitempty"`
	Data               datatypes.JSONMap `gorm:"type:jsonb" json:"data,omitempty"`
	Plan               *string           `gorm:"type:text" json:"plan,omitempty"`
	HostFeePercent     *float64          `json:"hostFeePercent,omitempty"`
	CreatedByUserID    *snowflake.ID     `gorm:"index" json:"createdByUserId,omitempty"`
	CreatedAt          time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt          time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

// TableName sets the database table name.
func (Collective) TableName() string { return "collectives" }

// VATSettings returns the VAT mode (OWN or HOST) and VAT number declared in settings.
func (c Collective) VATSettings() (string, string) {
	raw, ok := c.Settings["VAT"].(map[string]any)
	if !ok {
		return "", ""
	}
	vatType, _ := raw["type"].(string)
	number, _ := raw["number"].(string)
	return strings.ToUpper(strings.TrimSpace(vatType)), strings.TrimSpace(number)
}

// Country returns the declared country code or an empty string.
func (c Collective) Country() string {
	if c.CountryISO == nil {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(*c.CountryISO))
}

// Member links a member collective to a collective with a role.
type Member struct {
	ID                 snowflake.ID  `gorm:"primaryKey" json:"id"`
	MemberCollectiveID snowflake.ID  `gorm:"not null;index" json:"memberCollectiveId"`
	CollectiveID       snowflake.ID  `gorm:"not null;index" json:"collectiveId"`
	Role               Role          `gorm:"type:text;not null" json:"role"`
	TierID             *snowflake.ID `json:"tierId,omitempty"`
	CreatedByUserID    *snowflake.ID `json:"createdByUserId,omitempty"`
	CreatedAt          time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt          time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

// TableName sets the database table name.
func (Member) TableName() string { return "members" }
