package post

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/threadit/threadit-server/cmd/models"
	"github.com/threadit/threadit-server/cmd/utils"
	"gorm.io/gorm"
)

type PostHandler struct {
	db *gorm.DB
}

func NewPostHandler(db *gorm.DB) *PostHandler {
	return &PostHandler{db: db}
}

func (h *PostHandler) RegisterRoutes(router *mux.Router, writeLimiter *utils.RateLimiter) {
	router.HandleFunc("/posts", writeLimiter.Middleware(utils.AuthMiddleware(h.CreatePost))).Methods("POST")
	router.HandleFunc("/posts", h.GetPosts).Methods("GET")
	router.HandleFunc("/posts/{id}", h.GetPost).Methods("GET")
	router.HandleFunc("/posts/{id}", writeLimiter.Middleware(utils.AuthMiddleware(h.UpdatePost))).Methods("PATCH")
	router.HandleFunc("/posts/{id}", writeLimiter.Middleware(utils.AuthMiddleware(h.DeletePost))).Methods("DELETE")

	router.HandleFunc("/posts/{id}/save", writeLimiter.Middleware(utils.AuthMiddleware(h.SavePost))).Methods("POST")
	router.HandleFunc("/posts/{id}/save", writeLimiter.Middleware(utils.AuthMiddleware(h.UnsavePost))).Methods("DELETE")
}

func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var postRequest struct {
		Title         string `json:"title"`
		Body          string `json:"body"`
		URL           string `json:"url"`
		CommunityName string `json:"communityName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&postRequest); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if postRequest.Title == "" || postRequest.CommunityName == "" {
		utils.WriteError(w, http.StatusBadRequest, "Title and communityName are required")
		return
	}

	var community models.Community
	if err := h.db.Where("name = ?", postRequest.CommunityName).First(&community).Error; err != nil {
		utils.WriteError(w, http.StatusNotFound, "Community not found")
		return
	}

	post := models.Post{
		Title:       postRequest.Title,
		Body:        postRequest.Body,
		URL:         postRequest.URL,
		AuthorID:    userID,
		CommunityID: community.ID,
	}
	if err := h.db.Create(&post).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.db.Preload("Author").Preload("Community").First(&post, post.ID)

	utils.WriteJSON(w, http.StatusCreated, post)
}

// GetPosts lists posts newest first, optionally scoped to one community
// via ?community=<name>.
func (h *PostHandler) GetPosts(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 25
	}
	if limit > 100 {
		limit = 100
	}

	query := h.db.Model(&models.Post{})

	if communityName := r.URL.Query().Get("community"); communityName != "" {
		var community models.Community
		if err := h.db.Where("name = ?", communityName).First(&community).Error; err != nil {
			utils.WriteError(w, http.StatusNotFound, "Community not found")
			return
		}
		query = query.Where("community_id = ?", community.ID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var posts []models.Post
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Preload("Author").
		Preload("Community").
		Find(&posts).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	totalPages := (total + int64(limit) - 1) / int64(limit)
	if totalPages < 1 {
		totalPages = 1
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"posts":      posts,
		"total":      total,
		"page":       page,
		"totalPages": totalPages,
	})
}

func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	postID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid post ID")
		return
	}

	var post models.Post
	if err := h.db.Preload("Author").Preload("Community").First(&post, postID).Error; err != nil {
		utils.WriteError(w, http.StatusNotFound, "Post not found")
		return
	}

	utils.WriteJSON(w, http.StatusOK, post)
}

// UpdatePost lets the author edit title, body, or url.
func (h *PostHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
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

	if post.AuthorID != userID {
		utils.WriteError(w, http.StatusForbidden, "You are not the author of this post")
		return
	}

	var updateRequest struct {
		Title *string `json:"title"`
		Body  *string `json:"body"`
		URL   *string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&updateRequest); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updates := map[string]interface{}{}
	if updateRequest.Title != nil {
		updates["title"] = *updateRequest.Title
	}
	if updateRequest.Body != nil {
		updates["body"] = *updateRequest.Body
	}
	if updateRequest.URL != nil {
		updates["url"] = *updateRequest.URL
	}

	if len(updates) > 0 {
		if err := h.db.Model(&post).Updates(updates).Error; err != nil {
			utils.WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	h.db.Preload("Author").Preload("Community").First(&post, post.ID)

	utils.WriteJSON(w, http.StatusOK, post)
}

// DeletePost removes the author's post together with its votes, saved
// bookmarks, comments, and those comments' votes in one transaction so
// a failure can't leave orphans behind.
func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
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

	if post.AuthorID != userID {
		utils.WriteError(w, http.StatusForbidden, "You are not the author of this post")
		return
	}

	tx := h.db.Begin()

	if err := tx.Where("post_id = ?", post.ID).Delete(&models.Vote{}).Error; err != nil {
		tx.Rollback()
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := tx.Where("post_id = ?", post.ID).Delete(&models.SavedPost{}).Error; err != nil {
		tx.Rollback()
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var commentIDs []uint
	if err := tx.Model(&models.Comment{}).Where("post_id = ?", post.ID).Pluck("id", &commentIDs).Error; err != nil {
		tx.Rollback()
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(commentIDs) > 0 {
		if err := tx.Where("comment_id IN ?", commentIDs).Delete(&models.CommentVote{}).Error; err != nil {
			tx.Rollback()
			utils.WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.Comment{}).Error; err != nil {
			tx.Rollback()
			utils.WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	if err := tx.Delete(&post).Error; err != nil {
		tx.Rollback()
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := tx.Commit().Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.WriteJSON(w, http.StatusOK, nil)
}

// SavePost bookmarks the post for the caller. Saving twice is a no-op.
func (h *PostHandler) SavePost(w http.ResponseWriter, r *http.Request) {
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

	var existing models.SavedPost
	if err := h.db.Where("user_id = ? AND post_id = ?", userID, post.ID).First(&existing).Error; err == nil {
		utils.WriteJSON(w, http.StatusOK, map[string]bool{"saved": true})
		return
	}

	savedPost := models.SavedPost{UserID: userID, PostID: post.ID}
	if err := h.db.Create(&savedPost).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]bool{"saved": true})
}

// UnsavePost drops the caller's bookmark; removing a bookmark that does
// not exist still succeeds.
func (h *PostHandler) UnsavePost(w http.ResponseWriter, r *http.Request) {
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

	if err := h.db.Where("user_id = ? AND post_id = ?", userID, post.ID).Delete(&models.SavedPost{}).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]bool{"saved": false})
}
