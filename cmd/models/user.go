package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	Username     string `gorm:"column:username;size:50;not null;uniqueIndex" json:"username"`
	Email        string `gorm:"column:email;size:255;not null;uniqueIndex" json:"-"`
	PasswordHash string `gorm:"column:password_hash;size:255;not null" json:"-"`
	DisplayName  string `gorm:"column:display_name;size:100" json:"display_name"`
	Bio          string `gorm:"column:bio;type:text" json:"bio"`
	Avatar       string `gorm:"column:avatar;size:255" json:"avatar"`

	Refresh               string    `gorm:"column:refresh_token;size:255" json:"-"`
	RefreshTokenExpiredAt time.Time `gorm:"column:refresh_token_expired_at" json:"-"`
}

// Follow links a follower to the user they follow, one row per pair.
// Unfollow deletes the row outright so the pair can be recreated.
type Follow struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	FollowerID  uint      `gorm:"column:follower_id;not null;uniqueIndex:idx_follower_following" json:"follower_id"`
	FollowingID uint      `gorm:"column:following_id;not null;uniqueIndex:idx_follower_following" json:"following_id"`

	Follower  *User `gorm:"foreignKey:FollowerID" json:"follower,omitempty"`
	Following *User `gorm:"foreignKey:FollowingID" json:"following,omitempty"`
}

type PasswordResetToken struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"not null"`
	Token     string    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null"`
}
