package models

import (
	"time"

	"gorm.io/gorm"
)

type Post struct {
	gorm.Model
	Title       string `gorm:"column:title;size:300;not null" json:"title"`
	Body        string `gorm:"column:body;type:text" json:"body"`
	URL         string `gorm:"column:url;size:2048" json:"url"`
	AuthorID    uint   `gorm:"column:author_id;not null;index" json:"author_id"`
	CommunityID uint   `gorm:"column:community_id;not null;index" json:"community_id"`

	// Derived caches. The votes and comments tables are authoritative;
	// these are rewritten after every mutation, never trusted as input.
	Score         int `gorm:"column:score;default:0" json:"score"`
	CommentsCount int `gorm:"column:comments_count;default:0" json:"comments_count"`

	Author    *User      `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Community *Community `gorm:"foreignKey:CommunityID" json:"community,omitempty"`
}

// Vote is one user's vote on one post. Value is +1 or -1; absence of a
// row means no vote. Uniqueness of (user, post) is a database constraint.
/// No soft delete: an un-vote must free the unique slot immediately.
type Vote struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UserID    uint      `gorm:"column:user_id;not null;uniqueIndex:idx_vote_user_post" json:"user_id"`
	PostID    uint      `gorm:"column:post_id;not null;uniqueIndex:idx_vote_user_post;index" json:"post_id"`
	Value     int       `gorm:"column:value;not null" json:"value"`
}

type SavedPost struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UserID    uint      `gorm:"column:user_id;not null;uniqueIndex:idx_saved_user_post" json:"user_id"`
	PostID    uint      `gorm:"column:post_id;not null;uniqueIndex:idx_saved_user_post;index" json:"post_id"`

	Post *Post `gorm:"foreignKey:PostID" json:"post,omitempty"`
}

func (SavedPost) TableName() string {
	return "saved_posts"
}
