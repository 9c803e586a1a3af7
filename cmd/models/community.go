package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	RoleMember    = "member"
	RoleModerator = "moderator"
	RoleOwner     = "owner"
)

type Community struct {
	gorm.Model
	Name         string `gorm:"column:name;size:50;not null;uniqueIndex" json:"name"`
	Title        string `gorm:"column:title;size:255;not null" json:"title"`
	Description  string `gorm:"column:description;type:text" json:"description"`
	MembersCount int    `gorm:"column:members_count;default:0" json:"members_count"`
	CreatedByID  uint   `gorm:"column:created_by_id;not null" json:"created_by_id"`

	CreatedBy *User `gorm:"foreignKey:CreatedByID" json:"created_by,omitempty"`
}

// CommunityMember records a user's membership and role in a community.
// The (user, community) pair is unique at the database level; leaving
// deletes the row so a later join can recreate it.
type CommunityMember struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UserID      uint      `gorm:"column:user_id;not null;uniqueIndex:idx_user_community" json:"user_id"`
	CommunityID uint      `gorm:"column:community_id;not null;uniqueIndex:idx_user_community" json:"community_id"`
	Role        string    `gorm:"column:role;size:20;not null;default:member" json:"role"`

	User      *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Community *Community `gorm:"foreignKey:CommunityID" json:"community,omitempty"`
}

func (CommunityMember) TableName() string {
	return "community_members"
}
