package user

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"
	"github.com/threadit/threadit-server/cmd/models"
	"github.com/threadit/threadit-server/cmd/utils"
	"github.com/threadit/threadit-server/service/notification"
	"gorm.io/gorm"
)

type Handler struct {
	db       *gorm.DB
	notifier *notification.Notifier
}

func NewHandler(db *gorm.DB, notifier *notification.Notifier) *Handler {
	return &Handler{db: db, notifier: notifier}
}

// RegisterRoutes sets up all user-related routes. The /users/me routes
// must come before /users/{username} so "me" is never read as a name.
func (h *Handler) RegisterRoutes(router *mux.Router, writeLimiter *utils.RateLimiter) {
	router.HandleFunc("/users/me", utils.AuthMiddleware(h.GetMe)).Methods("GET")
	router.HandleFunc("/users/me", writeLimiter.Middleware(utils.AuthMiddleware(h.UpdateMe))).Methods("PATCH")
	router.HandleFunc("/users/me/communities", utils.AuthMiddleware(h.GetMyCommunities)).Methods("GET")
	router.HandleFunc("/users/me/saved", utils.AuthMiddleware(h.GetMySavedPosts)).Methods("GET")
	router.HandleFunc("/users/me/avatar", writeLimiter.Middleware(utils.AuthMiddleware(h.UploadAvatar))).Methods("POST")
	router.HandleFunc("/users/{username}", h.GetProfile).Methods("GET")
	router.HandleFunc("/users/{username}/follow", writeLimiter.Middleware(utils.AuthMiddleware(h.FollowUser))).Methods("POST")
	router.HandleFunc("/users/{username}/follow", writeLimiter.Middleware(utils.AuthMiddleware(h.UnfollowUser))).Methods("DELETE")
	router.HandleFunc("/avatars/{filename}", h.ServeAvatar).Methods("GET")
}

func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		utils.WriteError(w, http.StatusNotFound, "User not found")
		return
	}

	utils.WriteJSON(w, http.StatusOK, user)
}

// UpdateMe changes the caller's profile fields; only bio, avatar, and
// displayName are editable.
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var updateRequest struct {
		Bio         *string `json:"bio"`
		Avatar      *string `json:"avatar"`
		DisplayName *string `json:"displayName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&updateRequest); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		utils.WriteError(w, http.StatusNotFound, "User not found")
		return
	}

	updates := map[string]interface{}{}
	if updateRequest.Bio != nil {
		updates["bio"] = *updateRequest.Bio
	}
	if updateRequest.Avatar != nil {
		updates["avatar"] = *updateRequest.Avatar
	}
	if updateRequest.DisplayName != nil {
		updates["display_name"] = *updateRequest.DisplayName
	}

	if len(updates) > 0 {
		if err := h.db.Model(&user).Updates(updates).Error; err != nil {
			utils.WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	utils.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) GetMyCommunities(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var memberships []models.CommunityMember
	if err := h.db.Where("user_id = ?", userID).Preload("Community").Find(&memberships).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	communities := make([]*models.Community, 0, len(memberships))
	for _, m := range memberships {
		if m.Community != nil {
			communities = append(communities, m.Community)
		}
	}

	utils.WriteJSON(w, http.StatusOK, communities)
}

func (h *Handler) GetMySavedPosts(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var saved []models.SavedPost
	if err := h.db.Where("user_id = ?", userID).
		Preload("Post").
		Preload("Post.Author").
		Preload("Post.Community").
		Find(&saved).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	posts := make([]*models.Post, 0, len(saved))
	for _, s := range saved {
		if s.Post != nil {
			posts = append(posts, s.Post)
		}
	}

	utils.WriteJSON(w, http.StatusOK, posts)
}

// UploadAvatar stores an uploaded image and points the caller's avatar
// at it. The previous avatar file is removed afterwards.
func (h *Handler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if err := r.ParseMultipartForm(utils.MaxAvatarSize); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	avatarURL, err := utils.SaveAvatar(file, header)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		utils.DeleteAvatar(avatarURL)
		utils.WriteError(w, http.StatusNotFound, "User not found")
		return
	}

	oldAvatar := user.Avatar
	if err := h.db.Model(&user).Update("avatar", avatarURL).Error; err != nil {
		utils.DeleteAvatar(avatarURL)
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if oldAvatar != "" {
		utils.DeleteAvatar(oldAvatar)
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"id":       user.ID,
		"username": user.Username,
		"avatar":   avatarURL,
	})
}

func (h *Handler) ServeAvatar(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	filename := vars["filename"]

	if containsDotDot(filename) {
		utils.WriteError(w, http.StatusBadRequest, "Invalid path")
		return
	}

	avatarPath := filepath.Join(utils.AvatarPath, filepath.Clean(filename))
	if _, err := os.Stat(avatarPath); os.IsNotExist(err) {
		utils.WriteError(w, http.StatusNotFound, "Avatar not found")
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeFile(w, r, avatarPath)
}

func containsDotDot(v string) bool {
	if !filepath.IsAbs(v) {
		v = filepath.Clean(filepath.Join("/", v))
	}
	return filepath.Clean(v) != v
}

// GetProfile assembles a user's public profile: counts, karma, recent
// posts, and the communities they moderate.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var user models.User
	if err := h.db.Where("username = ?", vars["username"]).First(&user).Error; err != nil {
		utils.WriteError(w, http.StatusNotFound, "User not found")
		return
	}

	var followersCount, followingCount int64
	h.db.Model(&models.Follow{}).Where("following_id = ?", user.ID).Count(&followersCount)
	h.db.Model(&models.Follow{}).Where("follower_id = ?", user.ID).Count(&followingCount)

	var postCount, commentCount int64
	h.db.Model(&models.Post{}).Where("author_id = ?", user.ID).Count(&postCount)
	h.db.Model(&models.Comment{}).Where("author_id = ?", user.ID).Count(&commentCount)

	// Karma sums vote values over everything the user authored.
	var postKarma, commentKarma int64
	h.db.Model(&models.Vote{}).
		Joins("JOIN posts ON posts.id = votes.post_id").
		Where("posts.author_id = ?", user.ID).
		Select("COALESCE(SUM(votes.value), 0)").
		Scan(&postKarma)
	h.db.Model(&models.CommentVote{}).
		Joins("JOIN comments ON comments.id = comment_votes.comment_id").
		Where("comments.author_id = ?", user.ID).
		Select("COALESCE(SUM(comment_votes.value), 0)").
		Scan(&commentKarma)

	var moderatedMemberships []models.CommunityMember
	h.db.Where("user_id = ? AND role = ?", user.ID, models.RoleModerator).
		Preload("Community").
		Find(&moderatedMemberships)
	moderatedCommunities := make([]*models.Community, 0, len(moderatedMemberships))
	for _, m := range moderatedMemberships {
		if m.Community != nil {
			moderatedCommunities = append(moderatedCommunities, m.Community)
		}
	}

	var recentPosts []models.Post
	h.db.Where("author_id = ?", user.ID).
		Order("created_at DESC").
		Limit(10).
		Preload("Author").
		Preload("Community").
		Find(&recentPosts)

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"id":                   user.ID,
		"username":             user.Username,
		"display_name":         user.DisplayName,
		"bio":                  user.Bio,
		"avatar":               user.Avatar,
		"createdAt":            user.CreatedAt,
		"followersCount":       followersCount,
		"followingCount":       followingCount,
		"karma":                postKarma + commentKarma,
		"contributions":        postCount + commentCount,
		"postCount":            postCount,
		"commentCount":         commentCount,
		"posts":                recentPosts,
		"moderatedCommunities": moderatedCommunities,
	})
}

// FollowUser follows the named user. Following someone twice succeeds
// without creating a second row; following yourself is rejected.
func (h *Handler) FollowUser(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	vars := mux.Vars(r)

	var userToFollow models.User
	if err := h.db.Where("username = ?", vars["username"]).First(&userToFollow).Error; err != nil {
		utils.WriteError(w, http.StatusNotFound, "User not found")
		return
	}

	if userToFollow.ID == userID {
		utils.WriteError(w, http.StatusBadRequest, "You can't follow yourself")
		return
	}

	var existing models.Follow
	if err := h.db.Where("follower_id = ? AND following_id = ?", userID, userToFollow.ID).First(&existing).Error; err == nil {
		utils.WriteJSON(w, http.StatusOK, map[string]bool{"following": true})
		return
	}

	follow := models.Follow{FollowerID: userID, FollowingID: userToFollow.ID}
	if err := h.db.Create(&follow).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.notifier.Create(userToFollow.ID, models.NotificationFollow, userID, nil, nil, nil)

	utils.WriteJSON(w, http.StatusOK, map[string]bool{"following": true})
}

// UnfollowUser removes the follow relation if it exists.
func (h *Handler) UnfollowUser(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	vars := mux.Vars(r)

	var userToUnfollow models.User
	if err := h.db.Where("username = ?", vars["username"]).First(&userToUnfollow).Error; err != nil {
		utils.WriteError(w, http.StatusNotFound, "User not found")
		return
	}

	if err := h.db.Where("follower_id = ? AND following_id = ?", userID, userToUnfollow.ID).Delete(&models.Follow{}).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]bool{"following": false})
}
