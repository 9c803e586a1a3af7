package comment

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/threadit/threadit-server/cmd/models"
	"github.com/threadit/threadit-server/cmd/utils"
	"github.com/threadit/threadit-server/service/notification"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type CommentHandler struct {
	db       *gorm.DB
	notifier *notification.Notifier
}

func NewCommentHandler(db *gorm.DB, notifier *notification.Notifier) *CommentHandler {
	return &CommentHandler{db: db, notifier: notifier}
}

func (h *CommentHandler) RegisterRoutes(router *mux.Router, writeLimiter *utils.RateLimiter) {
	router.HandleFunc("/comments", writeLimiter.Middleware(utils.AuthMiddleware(h.CreateComment))).Methods("POST")
	router.HandleFunc("/comments/{id}", writeLimiter.Middleware(utils.AuthMiddleware(h.DeleteComment))).Methods("DELETE")
	router.HandleFunc("/comments/post/{postId}", h.GetPostComments).Methods("GET")
}

func (h *CommentHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var commentRequest struct {
		PostID uint   `json:"postId"`
		Body   string `json:"body"`
		Parent *uint  `json:"parent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&commentRequest); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if commentRequest.PostID == 0 || commentRequest.Body == "" {
		utils.WriteError(w, http.StatusBadRequest, "Missing fields")
		return
	}

	var post models.Post
	if err := h.db.First(&post, commentRequest.PostID).Error; err != nil {
		utils.WriteError(w, http.StatusNotFound, "Post not found")
		return
	}

	var parent *models.Comment
	if commentRequest.Parent != nil {
		parent = &models.Comment{}
		if err := h.db.Where("id = ? AND post_id = ?", *commentRequest.Parent, post.ID).First(parent).Error; err != nil {
			utils.WriteError(w, http.StatusNotFound, "Parent comment not found")
			return
		}
	}

	tx := h.db.Begin()

	comment := models.Comment{
		PostID:   post.ID,
		AuthorID: userID,
		Body:     commentRequest.Body,
		ParentID: commentRequest.Parent,
	}
	if err := tx.Create(&comment).Error; err != nil {
		tx.Rollback()
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := tx.Model(&models.Post{}).Where("id = ?", post.ID).
		UpdateColumn("comments_count", gorm.Expr("comments_count + ?", 1)).Error; err != nil {
		tx.Rollback()
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := tx.Commit().Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Replies notify the parent comment's author, top-level comments the
	// post's author.
	postRef := post.ID
	commentRef := comment.ID
	if parent != nil {
		h.notifier.Create(parent.AuthorID, models.NotificationReply, userID, &postRef, &commentRef, nil)
	} else {
		h.notifier.Create(post.AuthorID, models.NotificationReply, userID, &postRef, &commentRef, nil)
	}

	h.db.Preload("Author").First(&comment, comment.ID)

	utils.WriteJSON(w, http.StatusCreated, comment)
}

// DeleteComment removes the caller's comment, its votes, and the post's
// cached comment count in one transaction. Replies survive and surface
// as page roots once their parent is gone.
func (h *CommentHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
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

	if comment.AuthorID != userID {
		utils.WriteError(w, http.StatusForbidden, "You are not the author of this comment")
		return
	}

	tx := h.db.Begin()

	if err := tx.Where("comment_id = ?", comment.ID).Delete(&models.CommentVote{}).Error; err != nil {
		tx.Rollback()
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := tx.Delete(&comment).Error; err != nil {
		tx.Rollback()
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := tx.Model(&models.Post{}).Where("id = ?", comment.PostID).
		UpdateColumn("comments_count", gorm.Expr("comments_count - ?", 1)).Error; err != nil {
		tx.Rollback()
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := tx.Commit().Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Comment deleted successfully",
	})
}

// GetPostComments returns one page of a post's comments assembled into
// reply trees, with reply counts taken over the whole post.
func (h *CommentHandler) GetPostComments(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	postID, err := strconv.ParseUint(vars["postId"], 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid post ID")
		return
	}

	var post models.Post
	if err := h.db.First(&post, postID).Error; err != nil {
		utils.WriteError(w, http.StatusNotFound, "Post not found")
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	var total int64
	if err := h.db.Model(&models.Comment{}).Where("post_id = ?", postID).Count(&total).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	totalPages := (total + int64(limit) - 1) / int64(limit)
	if totalPages < 1 {
		totalPages = 1
	}

	var comments []models.Comment
	if err := h.db.Where("post_id = ?", postID).
		Order("created_at ASC").
		Offset((page - 1) * limit).
		Limit(limit).
		Preload("Author").
		Find(&comments).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// One grouped query for reply counts instead of a count per comment.
	var counts []struct {
		ParentID uint  `gorm:"column:parent_id"`
		Count    int64 `gorm:"column:count"`
	}
	if err := h.db.Model(&models.Comment{}).
		Select("parent_id, COUNT(*) AS count").
		Where("post_id = ? AND parent_id IS NOT NULL", postID).
		Group("parent_id").
		Scan(&counts).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	replyCounts := make(map[uint]int64, len(counts))
	for _, c := range counts {
		replyCounts[c.ParentID] = c.Count
	}

	roots := BuildCommentTree(comments, replyCounts)

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"comments":   roots,
		"page":       page,
		"totalPages": totalPages,
	})
}
