package models

import (
	"time"

	"gorm.io/gorm"
)

// Comment belongs to a post and optionally to a parent comment. A nil
// ParentID marks a root comment.
type Comment struct {
	gorm.Model
	PostID   uint   `gorm:"column:post_id;not null;index" json:"post_id"`
	AuthorID uint   `gorm:"column:author_id;not null" json:"author_id"`
	Body     string `gorm:"column:body;type:text;not null" json:"body"`
	ParentID *uint  `gorm:"column:parent_id;index" json:"parent_id"`
	Score    int    `gorm:"column:score;default:0" json:"score"`

	Author *User `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
}

// CommentVote mirrors Vote for comments, with the same semantics.
type CommentVote struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UserID    uint      `gorm:"column:user_id;not null;uniqueIndex:idx_vote_user_comment" json:"user_id"`
	CommentID uint      `gorm:"column:comment_id;not null;uniqueIndex:idx_vote_user_comment;index" json:"comment_id"`
	Value     int       `gorm:"column:value;not null" json:"value"`
}

func (CommentVote) TableName() string {
	return "comment_votes"
}
