package voting

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/threadit/threadit-server/cmd/models"
	"github.com/threadit/threadit-server/cmd/utils"
	"github.com/threadit/threadit-server/service/notification"
	"gorm.io/gorm"
)

type VoteHandler struct {
	db       *gorm.DB
	notifier *notification.Notifier
}

func NewVoteHandler(db *gorm.DB, notifier *notification.Notifier) *VoteHandler {
	return &VoteHandler{db: db, notifier: notifier}
}

func (h *VoteHandler) RegisterRoutes(router *mux.Router, writeLimiter *utils.RateLimiter) {
	router.HandleFunc("/posts/{id}/vote", writeLimiter.Middleware(utils.AuthMiddleware(h.VotePost))).Methods("POST")
	router.HandleFunc("/posts/{id}/vote", writeLimiter.Middleware(utils.AuthMiddleware(h.UnvotePost))).Methods("DELETE")
	router.HandleFunc("/comments/{id}/vote", writeLimiter.Middleware(utils.AuthMiddleware(h.VoteComment))).Methods("POST")
	router.HandleFunc("/comments/{id}/vote", writeLimiter.Middleware(utils.AuthMiddleware(h.UnvoteComment))).Methods("DELETE")
}

// VotePost applies an up/down vote request to a post and returns the
// repopulated post along with the caller's effective vote.
func (h *VoteHandler) VotePost(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	vars := mux.Vars(r)
	postID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid post ID")
		return
	}

	var voteRequest struct {
		Direction int `json:"direction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&voteRequest); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var post models.Post
	if err := h.db.First(&post, postID).Error; err != nil {
		utils.WriteError(w, http.StatusNotFound, "Post not found")
		return
	}

	tx := h.db.Begin()

	yourVote, err := ApplyPostVote(tx, userID, post.ID, voteRequest.Direction)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, ErrInvalidDirection) {
			utils.WriteError(w, http.StatusBadRequest, "Invalid direction")
			return
		}
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if _, err := RecomputePostScore(tx, post.ID); err != nil {
		tx.Rollback()
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := tx.Commit().Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if yourVote != 0 {
		postRef := post.ID
		h.notifier.Create(post.AuthorID, models.NotificationVote, userID, &postRef, nil, nil)
	}

	h.db.Preload("Author").Preload("Community").First(&post, post.ID)

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"post":     post,
		"yourVote": yourVote,
	})
}

// UnvotePost removes any vote the caller has on the post.
func (h *VoteHandler) UnvotePost(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	vars := mux.Vars(r)
	postID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid post ID")
		return
	}

	var post models.Post
	if err := h.db.First(&post, postID).Error; err != nil {
		utils.WriteError(w, http.StatusNotFound, "Post not found")
		return
	}

	tx := h.db.Begin()

	if err := tx.Where("user_id = ? AND post_id = ?", userID, post.ID).Delete(&models.Vote{}).Error; err != nil {
		tx.Rollback()
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if _, err := RecomputePostScore(tx, post.ID); err != nil {
		tx.Rollback()
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := tx.Commit().Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.db.Preload("Author").Preload("Community").First(&post, post.ID)

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"post":     post,
		"yourVote": 0,
	})
}

// VoteComment applies an up/down vote request to a comment.
func (h *VoteHandler) VoteComment(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	vars := mux.Vars(r)
	commentID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid comment ID")
		return
	}

	var voteRequest struct {
		Value int `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&voteRequest); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var comment models.Comment
	if err := h.db.First(&comment, commentID).Error; err != nil {
		utils.WriteError(w, http.StatusNotFound, "Comment not found")
		return
	}

	tx := h.db.Begin()

	yourVote, err := ApplyCommentVote(tx, userID, comment.ID, voteRequest.Value)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, ErrInvalidDirection) {
			utils.WriteError(w, http.StatusBadRequest, "Invalid vote value")
			return
		}
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	score, err := RecomputeCommentScore(tx, comment.ID)
	if err != nil {
		tx.Rollback()
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := tx.Commit().Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if yourVote != 0 {
		postRef := comment.PostID
		commentRef := comment.ID
		h.notifier.Create(comment.AuthorID, models.NotificationVote, userID, &postRef, &commentRef, nil)
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"score":    score,
		"yourVote": yourVote,
	})
}

// UnvoteComment removes any vote the caller has on the comment.
func (h *VoteHandler) UnvoteComment(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	vars := mux.Vars(r)
	commentID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid comment ID")
		return
	}

	var comment models.Comment
	if err := h.db.First(&comment, commentID).Error; err != nil {
		utils.WriteError(w, http.StatusNotFound, "Comment not found")
		return
	}

	tx := h.db.Begin()

	if err := tx.Where("user_id = ? AND comment_id = ?", userID, comment.ID).Delete(&models.CommentVote{}).Error; err != nil {
		tx.Rollback()
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	score, err := RecomputeCommentScore(tx, comment.ID)
	if err != nil {
		tx.Rollback()
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := tx.Commit().Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"score":    score,
		"yourVote": 0,
	})
}
