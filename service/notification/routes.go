package notification

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"github.com/threadit/threadit-server/cmd/models"
	"github.com/threadit/threadit-server/cmd/utils"
	"gorm.io/gorm"
)

type NotificationHandler struct {
	db *gorm.DB
}

func NewNotificationHandler(db *gorm.DB) *NotificationHandler {
	return &NotificationHandler{db: db}
}

func (h *NotificationHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/notifications", utils.AuthMiddleware(h.GetNotifications)).Methods("GET")
	router.HandleFunc("/notifications/{id}/read", utils.AuthMiddleware(h.MarkRead)).Methods("PATCH")
	router.HandleFunc("/devices", utils.AuthMiddleware(h.RegisterDevice)).Methods("POST")
	router.HandleFunc("/devices/{id}", utils.AuthMiddleware(h.DeleteDevice)).Methods("DELETE")
}

// GetNotifications lists the caller's notifications, newest first.
func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 20
	}

	var total int64
	if err := h.db.Model(&models.Notification{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var notifications []models.Notification
	if err := h.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Preload("SourceUser").
		Preload("SourcePost").
		Preload("SourceComment").
		Preload("SourceCommunity").
		Find(&notifications).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	totalPages := (total + int64(limit) - 1) / int64(limit)
	if totalPages < 1 {
		totalPages = 1
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
		"page":          page,
		"totalPages":    totalPages,
	})
}

// MarkRead marks one of the caller's notifications as read. A
// notification belonging to someone else is reported as missing.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	vars := mux.Vars(r)
	notificationID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid notification ID")
		return
	}

	var notification models.Notification
	if err := h.db.Where("id = ? AND user_id = ?", notificationID, userID).First(&notification).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteError(w, http.StatusNotFound, "Notification not found")
			return
		}
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := h.db.Model(&notification).Update("read", true).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.WriteJSON(w, http.StatusOK, notification)
}

// RegisterDevice stores an Expo push token for the caller, updating the
// existing row when the token is already registered.
func (h *NotificationHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var deviceRequest struct {
		Token      string `json:"token"`
		DeviceType string `json:"device_type"`
		DeviceName string `json:"device_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&deviceRequest); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if deviceRequest.Token == "" {
		utils.WriteError(w, http.StatusBadRequest, "Token is required")
		return
	}

	if _, err := expo.NewExponentPushToken(deviceRequest.Token); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid Expo push token format")
		return
	}

	var device models.Device
	result := h.db.Where("token = ? AND user_id = ?", deviceRequest.Token, userID).First(&device)
	if result.Error == nil {
		device.UpdatedAt = time.Now()
		device.DeviceType = deviceRequest.DeviceType
		device.DeviceName = deviceRequest.DeviceName
		if err := h.db.Save(&device).Error; err != nil {
			utils.WriteError(w, http.StatusInternalServerError, "Error updating device")
			return
		}
	} else {
		device = models.Device{
			UserID:     userID,
			Token:      deviceRequest.Token,
			DeviceType: deviceRequest.DeviceType,
			DeviceName: deviceRequest.DeviceName,
		}
		if err := h.db.Create(&device).Error; err != nil {
			utils.WriteError(w, http.StatusInternalServerError, "Error creating device")
			return
		}
	}

	utils.WriteJSON(w, http.StatusOK, device)
}

func (h *NotificationHandler) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	vars := mux.Vars(r)
	deviceID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid device ID")
		return
	}

	result := h.db.Where("id = ? AND user_id = ?", deviceID, userID).Delete(&models.Device{})
	if result.Error != nil {
		utils.WriteError(w, http.StatusInternalServerError, result.Error.Error())
		return
	}
	if result.RowsAffected == 0 {
		utils.WriteError(w, http.StatusNotFound, "Device not found")
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Device deleted successfully",
	})
}
