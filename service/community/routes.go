package community

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/threadit/threadit-server/cmd/models"
	"github.com/threadit/threadit-server/cmd/utils"
	"gorm.io/gorm"
)

type CommunityHandler struct {
	db *gorm.DB
}

func NewCommunityHandler(db *gorm.DB) *CommunityHandler {
	return &CommunityHandler{db: db}
}

func (h *CommunityHandler) RegisterRoutes(router *mux.Router, writeLimiter *utils.RateLimiter) {
	router.HandleFunc("/communities", writeLimiter.Middleware(utils.AuthMiddleware(h.CreateCommunity))).Methods("POST")
	router.HandleFunc("/communities", h.GetCommunities).Methods("GET")
	router.HandleFunc("/communities/{name}", utils.OptionalAuthMiddleware(h.GetCommunity)).Methods("GET")
	router.HandleFunc("/communities/{name}/join", writeLimiter.Middleware(utils.AuthMiddleware(h.JoinCommunity))).Methods("POST")
	router.HandleFunc("/communities/{name}/leave", writeLimiter.Middleware(utils.AuthMiddleware(h.LeaveCommunity))).Methods("POST")
}

// CreateCommunity creates a community with the caller as its owner. The
// owner counts as the first member.
func (h *CommunityHandler) CreateCommunity(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var communityRequest struct {
		Name        string `json:"name"`
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&communityRequest); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if communityRequest.Name == "" || communityRequest.Title == "" {
		utils.WriteError(w, http.StatusBadRequest, "Missing fields")
		return
	}

	var existing models.Community
	result := h.db.Where("name = ?", communityRequest.Name).First(&existing)
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		if result.Error != nil {
			utils.WriteError(w, http.StatusInternalServerError, result.Error.Error())
			return
		}
		utils.WriteError(w, http.StatusBadRequest, "Community already exists")
		return
	}

	tx := h.db.Begin()

	community := models.Community{
		Name:         communityRequest.Name,
		Title:        communityRequest.Title,
		Description:  communityRequest.Description,
		MembersCount: 1,
		CreatedByID:  userID,
	}
	if err := tx.Create(&community).Error; err != nil {
		tx.Rollback()
		if strings.Contains(err.Error(), "UNIQUE constraint") || strings.Contains(err.Error(), "duplicate key") {
			utils.WriteError(w, http.StatusBadRequest, "Community already exists")
			return
		}
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	member := models.CommunityMember{
		UserID:      userID,
		CommunityID: community.ID,
		Role:        models.RoleOwner,
	}
	if err := tx.Create(&member).Error; err != nil {
		tx.Rollback()
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := tx.Commit().Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.WriteJSON(w, http.StatusCreated, community)
}

// GetCommunities lists the 50 largest communities.
func (h *CommunityHandler) GetCommunities(w http.ResponseWriter, r *http.Request) {
	var communities []models.Community
	if err := h.db.Order("members_count DESC").Limit(50).Find(&communities).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.WriteJSON(w, http.StatusOK, communities)
}

// GetCommunity returns one community; authenticated callers also learn
// their own membership state.
func (h *CommunityHandler) GetCommunity(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var community models.Community
	if err := h.db.Where("name = ?", vars["name"]).First(&community).Error; err != nil {
		utils.WriteError(w, http.StatusNotFound, "Community not found")
		return
	}

	isMember := false
	var memberRole *string
	if userID, err := utils.GetUserIDFromContext(r.Context()); err == nil {
		var member models.CommunityMember
		if err := h.db.Where("user_id = ? AND community_id = ?", userID, community.ID).First(&member).Error; err == nil {
			isMember = true
			memberRole = &member.Role
		}
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"community":  community,
		"isMember":   isMember,
		"memberRole": memberRole,
	})
}

// JoinCommunity adds the caller as a member. Joining a community the
// caller already belongs to succeeds without changing anything.
func (h *CommunityHandler) JoinCommunity(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	vars := mux.Vars(r)

	var community models.Community
	if err := h.db.Where("name = ?", vars["name"]).First(&community).Error; err != nil {
		utils.WriteError(w, http.StatusNotFound, "Community not found")
		return
	}

	var existing models.CommunityMember
	if err := h.db.Where("user_id = ? AND community_id = ?", userID, community.ID).First(&existing).Error; err == nil {
		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"joined":       true,
			"membersCount": community.MembersCount,
		})
		return
	}

	tx := h.db.Begin()

	member := models.CommunityMember{
		UserID:      userID,
		CommunityID: community.ID,
		Role:        models.RoleMember,
	}
	if err := tx.Create(&member).Error; err != nil {
		tx.Rollback()
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := tx.Model(&models.Community{}).Where("id = ?", community.ID).
		UpdateColumn("members_count", gorm.Expr("members_count + ?", 1)).Error; err != nil {
		tx.Rollback()
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := tx.Commit().Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"joined":       true,
		"membersCount": community.MembersCount + 1,
	})
}

// LeaveCommunity removes the caller's membership. Leaving a community
// the caller never joined succeeds without changing anything.
func (h *CommunityHandler) LeaveCommunity(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	vars := mux.Vars(r)

	var community models.Community
	if err := h.db.Where("name = ?", vars["name"]).First(&community).Error; err != nil {
		utils.WriteError(w, http.StatusNotFound, "Community not found")
		return
	}

	tx := h.db.Begin()

	result := tx.Where("user_id = ? AND community_id = ?", userID, community.ID).Delete(&models.CommunityMember{})
	if result.Error != nil {
		tx.Rollback()
		utils.WriteError(w, http.StatusInternalServerError, result.Error.Error())
		return
	}

	if result.RowsAffected == 0 {
		tx.Rollback()
		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"joined":       false,
			"membersCount": community.MembersCount,
		})
		return
	}

	if err := tx.Model(&models.Community{}).Where("id = ?", community.ID).
		UpdateColumn("members_count", gorm.Expr("members_count - ?", 1)).Error; err != nil {
		tx.Rollback()
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := tx.Commit().Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"joined":       false,
		"membersCount": community.MembersCount - 1,
	})
}
