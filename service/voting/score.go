package voting

import (
	"errors"

	"github.com/threadit/threadit-server/cmd/models"
	"gorm.io/gorm"
)

// ErrInvalidDirection is returned before any mutation when the requested
// vote value is not +1 or -1.
var ErrInvalidDirection = errors.New("vote direction must be 1 or -1")

// ApplyPostVote applies one user's vote request to a post inside tx.
// A first vote creates the record, a repeat of the same value removes it
// (un-vote), an opposite value flips the existing record in place. The
// returned value is the user's effective vote afterwards: +1, -1 or 0.
func ApplyPostVote(tx *gorm.DB, userID, postID uint, direction int) (int, error) {
	if direction != 1 && direction != -1 {
		return 0, ErrInvalidDirection
	}

	var existing models.Vote
	err := tx.Where("user_id = ? AND post_id = ?", userID, postID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		vote := models.Vote{UserID: userID, PostID: postID, Value: direction}
		if err := tx.Create(&vote).Error; err != nil {
			return 0, err
		}
		return direction, nil
	case err != nil:
		return 0, err
	case existing.Value == direction:
		if err := tx.Delete(&existing).Error; err != nil {
			return 0, err
		}
		return 0, nil
	default:
		if err := tx.Model(&existing).Update("value", direction).Error; err != nil {
			return 0, err
		}
		return direction, nil
	}
}

// ApplyCommentVote mirrors ApplyPostVote for comment votes.
func ApplyCommentVote(tx *gorm.DB, userID, commentID uint, value int) (int, error) {
	if value != 1 && value != -1 {
		return 0, ErrInvalidDirection
	}

	var existing models.CommentVote
	err := tx.Where("user_id = ? AND comment_id = ?", userID, commentID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		vote := models.CommentVote{UserID: userID, CommentID: commentID, Value: value}
		if err := tx.Create(&vote).Error; err != nil {
			return 0, err
		}
		return value, nil
	case err != nil:
		return 0, err
	case existing.Value == value:
		if err := tx.Delete(&existing).Error; err != nil {
			return 0, err
		}
		return 0, nil
	default:
		if err := tx.Model(&existing).Update("value", value).Error; err != nil {
			return 0, err
		}
		return value, nil
	}
}

// RecomputePostScore rewrites the post's cached score from the full sum
// of its vote rows. Recomputing instead of patching keeps the cache from
// drifting; running it in the vote's transaction keeps it race-free.
func RecomputePostScore(tx *gorm.DB, postID uint) (int, error) {
	var score int64
	if err := tx.Model(&models.Vote{}).
		Where("post_id = ?", postID).
		Select("COALESCE(SUM(value), 0)").
		Scan(&score).Error; err != nil {
		return 0, err
	}

	if err := tx.Model(&models.Post{}).Where("id = ?", postID).
		UpdateColumn("score", score).Error; err != nil {
		return 0, err
	}
	return int(score), nil
}

// RecomputeCommentScore mirrors RecomputePostScore for comments.
func RecomputeCommentScore(tx *gorm.DB, commentID uint) (int, error) {
	var score int64
	if err := tx.Model(&models.CommentVote{}).
		Where("comment_id = ?", commentID).
		Select("COALESCE(SUM(value), 0)").
		Scan(&score).Error; err != nil {
		return 0, err
	}

	if err := tx.Model(&models.Comment{}).Where("id = ?", commentID).
		UpdateColumn("score", score).Error; err != nil {
		return 0, err
	}
	return int(score), nil
}
