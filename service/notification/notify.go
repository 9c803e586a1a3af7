package notification

import (
	"fmt"
	"log"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"github.com/threadit/threadit-server/cmd/models"
	"github.com/threadit/threadit-server/service/realtime"
	"gorm.io/gorm"
)

// Notifier records notifications and fans them out to the recipient's
// open websocket and registered devices. Persistence is the contract;
// delivery is best-effort.
type Notifier struct {
	db         *gorm.DB
	hub        *realtime.Hub
	expoClient *expo.PushClient
}

func NewNotifier(db *gorm.DB, hub *realtime.Hub) *Notifier {
	return &Notifier{
		db:         db,
		hub:        hub,
		expoClient: expo.NewPushClient(nil),
	}
}

// Create stores a notification for userID unless they triggered it
// themselves. Source references are optional and may be nil.
func (n *Notifier) Create(userID uint, notificationType string, sourceUserID uint, sourcePostID, sourceCommentID, sourceCommunityID *uint) {
	if userID == sourceUserID {
		return
	}

	notification := models.Notification{
		UserID:            userID,
		Type:              notificationType,
		SourceUserID:      &sourceUserID,
		SourcePostID:      sourcePostID,
		SourceCommentID:   sourceCommentID,
		SourceCommunityID: sourceCommunityID,
	}

	if err := n.db.Create(&notification).Error; err != nil {
		log.Printf("Error creating notification: %v", err)
		return
	}

	n.db.Preload("SourceUser").Preload("SourcePost").Preload("SourceComment").Preload("SourceCommunity").
		First(&notification, notification.ID)

	if n.hub != nil {
		n.hub.Push(userID, "notification", notification)
	}

	go n.push(userID, notification)
}

func (n *Notifier) push(userID uint, notification models.Notification) {
	var devices []models.Device
	if err := n.db.Where("user_id = ?", userID).Find(&devices).Error; err != nil || len(devices) == 0 {
		return
	}

	var validTokens []expo.ExponentPushToken
	var invalidTokens []string
	for _, device := range devices {
		pushToken, err := expo.NewExponentPushToken(device.Token)
		if err != nil {
			invalidTokens = append(invalidTokens, device.Token)
			continue
		}
		validTokens = append(validTokens, pushToken)
	}

	for _, token := range invalidTokens {
		if err := n.db.Where("token = ?", token).Delete(&models.Device{}).Error; err != nil {
			log.Printf("Error cleaning up invalid token: %v", err)
		}
	}

	if len(validTokens) == 0 {
		return
	}

	pushMessage := &expo.PushMessage{
		To:       validTokens,
		Title:    pushTitle(notification),
		Body:     pushBody(notification),
		Sound:    "default",
		Priority: expo.DefaultPriority,
		Data: map[string]string{
			"notification_id": fmt.Sprint(notification.ID),
			"type":            notification.Type,
		},
	}

	response, err := n.expoClient.Publish(pushMessage)
	if err != nil {
		log.Printf("Failed to publish push notification: %v", err)
		return
	}
	if err := response.ValidateResponse(); err != nil {
		log.Printf("Push notification validation error: %v", err)
	}
}

func pushTitle(notification models.Notification) string {
	switch notification.Type {
	case models.NotificationReply:
		return "New reply"
	case models.NotificationVote:
		return "New vote"
	case models.NotificationMessage:
		return "New message"
	case models.NotificationFollow:
		return "New follower"
	default:
		return "Notification"
	}
}

func pushBody(notification models.Notification) string {
	username := "Someone"
	if notification.SourceUser != nil {
		username = notification.SourceUser.Username
	}

	switch notification.Type {
	case models.NotificationReply:
		return fmt.Sprintf("%s replied to you", username)
	case models.NotificationVote:
		return fmt.Sprintf("%s voted on your content", username)
	case models.NotificationMessage:
		return fmt.Sprintf("%s sent you a message", username)
	case models.NotificationFollow:
		return fmt.Sprintf("%s followed you", username)
	default:
		return fmt.Sprintf("Activity from %s", username)
	}
}
