package models

import "gorm.io/gorm"

const (
	NotificationReply   = "reply"
	NotificationVote    = "vote"
	NotificationMessage = "message"
	NotificationFollow  = "follow"
)

type Notification struct {
	gorm.Model
	UserID            uint   `gorm:"column:user_id;not null;index" json:"user_id"`
	Type              string `gorm:"column:type;size:30;not null" json:"type"`
	SourceUserID      *uint  `gorm:"column:source_user_id" json:"source_user_id"`
	SourcePostID      *uint  `gorm:"column:source_post_id" json:"source_post_id"`
	SourceCommentID   *uint  `gorm:"column:source_comment_id" json:"source_comment_id"`
	SourceCommunityID *uint  `gorm:"column:source_community_id" json:"source_community_id"`
	Read              bool   `gorm:"column:read;default:false" json:"read"`

	SourceUser      *User      `gorm:"foreignKey:SourceUserID" json:"source_user,omitempty"`
	SourcePost      *Post      `gorm:"foreignKey:SourcePostID" json:"source_post,omitempty"`
	SourceComment   *Comment   `gorm:"foreignKey:SourceCommentID" json:"source_comment,omitempty"`
	SourceCommunity *Community `gorm:"foreignKey:SourceCommunityID" json:"source_community,omitempty"`
}

// Device holds an Expo push token registered by a client app.
type Device struct {
	gorm.Model
	UserID     uint   `gorm:"column:user_id;not null;index;uniqueIndex:idx_token_user" json:"user_id"`
	Token      string `gorm:"column:token;not null;uniqueIndex:idx_token_user" json:"token"`
	DeviceType string `gorm:"column:device_type;type:varchar(50)" json:"device_type"`
	DeviceName string `gorm:"column:device_name;type:varchar(100)" json:"device_name,omitempty"`
}
