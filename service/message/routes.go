package message

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/threadit/threadit-server/cmd/models"
	"github.com/threadit/threadit-server/cmd/utils"
	"github.com/threadit/threadit-server/service/notification"
	"github.com/threadit/threadit-server/service/realtime"
	"gorm.io/gorm"
)

type Handler struct {
	db       *gorm.DB
	hub      *realtime.Hub
	notifier *notification.Notifier
}

func NewHandler(db *gorm.DB, hub *realtime.Hub, notifier *notification.Notifier) *Handler {
	return &Handler{db: db, hub: hub, notifier: notifier}
}

func (h *Handler) RegisterRoutes(router *mux.Router, writeLimiter *utils.RateLimiter) {
	router.HandleFunc("/messages", writeLimiter.Middleware(utils.AuthMiddleware(h.SendMessage))).Methods("POST")
	router.HandleFunc("/messages", utils.AuthMiddleware(h.GetConversations)).Methods("GET")
	router.HandleFunc("/messages/{userId}", utils.AuthMiddleware(h.GetThread)).Methods("GET")
}

// SendMessage persists a direct message and pushes it to the receiver's
// websocket if they are connected. Delivery failure does not fail the send.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var messageRequest struct {
		ReceiverID uint   `json:"receiverId"`
		Content    string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&messageRequest); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if messageRequest.ReceiverID == 0 || strings.TrimSpace(messageRequest.Content) == "" {
		utils.WriteError(w, http.StatusBadRequest, "Receiver and content are required")
		return
	}

	if messageRequest.ReceiverID == userID {
		utils.WriteError(w, http.StatusBadRequest, "You can't message yourself")
		return
	}

	var receiver models.User
	if err := h.db.First(&receiver, messageRequest.ReceiverID).Error; err != nil {
		utils.WriteError(w, http.StatusNotFound, "User not found")
		return
	}

	message := models.Message{
		SenderID:   userID,
		ReceiverID: receiver.ID,
		Content:    messageRequest.Content,
	}
	if err := h.db.Create(&message).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := h.db.Preload("Sender").Preload("Receiver").First(&message, message.ID).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.hub.Push(receiver.ID, "message", message)
	h.notifier.Create(receiver.ID, models.NotificationMessage, userID, nil, nil, nil)

	utils.WriteJSON(w, http.StatusCreated, message)
}

// GetThread returns the full two-way history with another user, oldest
// first, and marks their messages to the caller as read.
func (h *Handler) GetThread(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	vars := mux.Vars(r)
	otherID, err := strconv.ParseUint(vars["userId"], 10, 32)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	var other models.User
	if err := h.db.First(&other, uint(otherID)).Error; err != nil {
		utils.WriteError(w, http.StatusNotFound, "User not found")
		return
	}

	var messages []models.Message
	if err := h.db.Where(
		"(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
		userID, other.ID, other.ID, userID,
	).Order("created_at ASC").
		Preload("Sender").
		Preload("Receiver").
		Find(&messages).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.db.Model(&models.Message{}).
		Where("sender_id = ? AND receiver_id = ? AND read = ?", other.ID, userID, false).
		UpdateColumn("read", true)

	utils.WriteJSON(w, http.StatusOK, messages)
}

type conversation struct {
	User        *models.User    `json:"user"`
	LastMessage *models.Message `json:"lastMessage"`
	UnreadCount int64           `json:"unreadCount"`
}

// GetConversations lists the caller's message partners with the most
// recent message and unread count for each, newest conversation first.
func (h *Handler) GetConversations(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var partnerIDs []uint
	if err := h.db.Raw(
		`SELECT DISTINCT CASE WHEN sender_id = ? THEN receiver_id ELSE sender_id END
		 FROM messages
		 WHERE (sender_id = ? OR receiver_id = ?) AND deleted_at IS NULL`,
		userID, userID, userID,
	).Scan(&partnerIDs).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	conversations := make([]conversation, 0, len(partnerIDs))
	for _, partnerID := range partnerIDs {
		var partner models.User
		if err := h.db.First(&partner, partnerID).Error; err != nil {
			continue
		}

		var last models.Message
		if err := h.db.Where(
			"(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			userID, partnerID, partnerID, userID,
		).Order("created_at DESC").First(&last).Error; err != nil {
			continue
		}

		var unread int64
		h.db.Model(&models.Message{}).
			Where("sender_id = ? AND receiver_id = ? AND read = ?", partnerID, userID, false).
			Count(&unread)

		conversations = append(conversations, conversation{
			User:        &partner,
			LastMessage: &last,
			UnreadCount: unread,
		})
	}

	// Newest activity first.
	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].LastMessage.CreatedAt.After(conversations[j].LastMessage.CreatedAt)
	})

	utils.WriteJSON(w, http.StatusOK, conversations)
}
