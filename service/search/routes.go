package search

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/threadit/threadit-server/cmd/models"
	"github.com/threadit/threadit-server/cmd/utils"
	"gorm.io/gorm"
)

const (
	postResultLimit      = 10
	userResultLimit      = 5
	communityResultLimit = 5
)

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/search", h.Search).Methods("GET")
}

// Search runs a case-insensitive substring match over posts, users, and
// communities in one round trip.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		utils.WriteError(w, http.StatusBadRequest, "Search query is required")
		return
	}

	pattern := "%" + strings.ToLower(query) + "%"

	var posts []models.Post
	if err := h.db.Where("LOWER(title) LIKE ? OR LOWER(body) LIKE ?", pattern, pattern).
		Order("created_at DESC").
		Limit(postResultLimit).
		Preload("Author").
		Preload("Community").
		Find(&posts).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var users []models.User
	if err := h.db.Where("LOWER(username) LIKE ? OR LOWER(display_name) LIKE ?", pattern, pattern).
		Limit(userResultLimit).
		Find(&users).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var communities []models.Community
	if err := h.db.Where("LOWER(name) LIKE ? OR LOWER(title) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern, pattern).
		Order("members_count DESC").
		Limit(communityResultLimit).
		Find(&communities).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"posts":       posts,
		"users":       users,
		"communities": communities,
	})
}
