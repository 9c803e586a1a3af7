package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/threadit/threadit-server/cmd/models"
	"github.com/threadit/threadit-server/cmd/utils"
	"github.com/threadit/threadit-server/service/realtime"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Notification{},
		&models.Device{},
	))

	return db
}

func authedRequest(method, target string, body []byte, userID uint) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	ctx := context.WithValue(req.Context(), utils.UserIDKey, userID)
	return req.WithContext(ctx)
}

func TestNotifierSkipsSelf(t *testing.T) {
	db := setupTestDB(t)
	notifier := NewNotifier(db, realtime.NewHub())

	notifier.Create(5, models.NotificationVote, 5, nil, nil, nil)

	var count int64
	db.Model(&models.Notification{}).Count(&count)
	assert.Zero(t, count, "acting on your own content never notifies you")
}

func TestNotifierCreates(t *testing.T) {
	db := setupTestDB(t)
	notifier := NewNotifier(db, realtime.NewHub())

	notifier.Create(5, models.NotificationFollow, 9, nil, nil, nil)

	var stored models.Notification
	require.NoError(t, db.First(&stored).Error)
	assert.Equal(t, uint(5), stored.UserID)
	assert.Equal(t, models.NotificationFollow, stored.Type)
	require.NotNil(t, stored.SourceUserID)
	assert.Equal(t, uint(9), *stored.SourceUserID)
	assert.False(t, stored.Read)
}

func TestMarkReadScopedToOwner(t *testing.T) {
	db := setupTestDB(t)
	handler := NewNotificationHandler(db)

	source := uint(2)
	notification := models.Notification{UserID: 1, Type: models.NotificationVote, SourceUserID: &source}
	require.NoError(t, db.Create(&notification).Error)

	// Someone else cannot mark it.
	req := authedRequest("PATCH", fmt.Sprintf("/api/notifications/%d/read", notification.ID), nil, 99)
	req = mux.SetURLVars(req, map[string]string{"id": fmt.Sprint(notification.ID)})
	recorder := httptest.NewRecorder()
	handler.MarkRead(recorder, req)
	assert.Equal(t, http.StatusNotFound, recorder.Code)

	// The owner can.
	req = authedRequest("PATCH", fmt.Sprintf("/api/notifications/%d/read", notification.ID), nil, 1)
	req = mux.SetURLVars(req, map[string]string{"id": fmt.Sprint(notification.ID)})
	recorder = httptest.NewRecorder()
	handler.MarkRead(recorder, req)
	require.Equal(t, http.StatusOK, recorder.Code)

	var stored models.Notification
	require.NoError(t, db.First(&stored, notification.ID).Error)
	assert.True(t, stored.Read)
}

func TestGetNotificationsOnlyOwn(t *testing.T) {
	db := setupTestDB(t)
	handler := NewNotificationHandler(db)

	source := uint(9)
	require.NoError(t, db.Create(&models.Notification{UserID: 1, Type: models.NotificationVote, SourceUserID: &source}).Error)
	require.NoError(t, db.Create(&models.Notification{UserID: 2, Type: models.NotificationVote, SourceUserID: &source}).Error)

	recorder := httptest.NewRecorder()
	handler.GetNotifications(recorder, authedRequest("GET", "/api/notifications", nil, 1))

	require.Equal(t, http.StatusOK, recorder.Code)

	var envelope struct {
		Success bool `json:"success"`
		Data    struct {
			Notifications []models.Notification `json:"notifications"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data.Notifications, 1)
	assert.Equal(t, uint(1), envelope.Data.Notifications[0].UserID)
}

func TestRegisterDeviceRejectsBadToken(t *testing.T) {
	db := setupTestDB(t)
	handler := NewNotificationHandler(db)

	body, _ := json.Marshal(map[string]string{"token": "not-an-expo-token"})
	recorder := httptest.NewRecorder()
	handler.RegisterDevice(recorder, authedRequest("POST", "/api/devices", body, 1))

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestRegisterDeviceUpsert(t *testing.T) {
	db := setupTestDB(t)
	handler := NewNotificationHandler(db)

	token := "ExponentPushToken[xxxxxxxxxxxxxxxxxxxxxx]"
	for _, name := range []string{"old phone", "new phone"} {
		body, _ := json.Marshal(map[string]string{"token": token, "device_name": name})
		recorder := httptest.NewRecorder()
		handler.RegisterDevice(recorder, authedRequest("POST", "/api/devices", body, 1))
		require.Equal(t, http.StatusOK, recorder.Code)
	}

	var devices []models.Device
	require.NoError(t, db.Find(&devices).Error)
	require.Len(t, devices, 1, "re-registering the same token updates in place")
	assert.Equal(t, "new phone", devices[0].DeviceName)
}
