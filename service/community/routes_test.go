package community

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/threadit/threadit-server/cmd/models"
	"github.com/threadit/threadit-server/cmd/utils"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestHandler(t *testing.T) (*CommunityHandler, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Community{},
		&models.CommunityMember{},
	))

	return NewCommunityHandler(db), db
}

func authedRequest(method, target string, body []byte, userID uint) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	ctx := context.WithValue(req.Context(), utils.UserIDKey, userID)
	return req.WithContext(ctx)
}

func TestCreateCommunityMakesOwnerMember(t *testing.T) {
	handler, db := setupTestHandler(t)

	body, _ := json.Marshal(map[string]string{"name": "golang", "title": "Go"})
	recorder := httptest.NewRecorder()
	handler.CreateCommunity(recorder, authedRequest("POST", "/api/communities", body, 1))

	require.Equal(t, http.StatusCreated, recorder.Code)

	var community models.Community
	require.NoError(t, db.Where("name = ?", "golang").First(&community).Error)
	assert.Equal(t, 1, community.MembersCount)

	var member models.CommunityMember
	require.NoError(t, db.Where("community_id = ?", community.ID).First(&member).Error)
	assert.Equal(t, uint(1), member.UserID)
	assert.Equal(t, models.RoleOwner, member.Role)
}

func TestCreateCommunityDuplicateName(t *testing.T) {
	handler, _ := setupTestHandler(t)

	body, _ := json.Marshal(map[string]string{"name": "golang", "title": "Go"})
	recorder := httptest.NewRecorder()
	handler.CreateCommunity(recorder, authedRequest("POST", "/api/communities", body, 1))
	require.Equal(t, http.StatusCreated, recorder.Code)

	body, _ = json.Marshal(map[string]string{"name": "golang", "title": "Other"})
	recorder = httptest.NewRecorder()
	handler.CreateCommunity(recorder, authedRequest("POST", "/api/communities", body, 2))
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestJoinCommunityIdempotent(t *testing.T) {
	handler, db := setupTestHandler(t)

	community := models.Community{Name: "golang", Title: "Go", CreatedByID: 1, MembersCount: 1}
	require.NoError(t, db.Create(&community).Error)

	for i := 0; i < 2; i++ {
		req := authedRequest("POST", "/api/communities/golang/join", nil, 2)
		req = mux.SetURLVars(req, map[string]string{"name": "golang"})
		recorder := httptest.NewRecorder()
		handler.JoinCommunity(recorder, req)
		require.Equal(t, http.StatusOK, recorder.Code)
	}

	var stored models.Community
	require.NoError(t, db.First(&stored, community.ID).Error)
	assert.Equal(t, 2, stored.MembersCount, "a repeated join must not inflate the count")

	var memberships int64
	db.Model(&models.CommunityMember{}).Where("community_id = ?", community.ID).Count(&memberships)
	assert.Equal(t, int64(1), memberships)
}

func TestLeaveCommunityWithoutMembership(t *testing.T) {
	handler, db := setupTestHandler(t)

	community := models.Community{Name: "golang", Title: "Go", CreatedByID: 1, MembersCount: 5}
	require.NoError(t, db.Create(&community).Error)

	req := authedRequest("POST", "/api/communities/golang/leave", nil, 9)
	req = mux.SetURLVars(req, map[string]string{"name": "golang"})
	recorder := httptest.NewRecorder()
	handler.LeaveCommunity(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)

	var stored models.Community
	require.NoError(t, db.First(&stored, community.ID).Error)
	assert.Equal(t, 5, stored.MembersCount, "leaving without a membership leaves the count alone")
}

func TestLeaveThenRejoin(t *testing.T) {
	handler, db := setupTestHandler(t)

	community := models.Community{Name: "golang", Title: "Go", CreatedByID: 1, MembersCount: 1}
	require.NoError(t, db.Create(&community).Error)

	join := func() {
		req := authedRequest("POST", "/api/communities/golang/join", nil, 2)
		req = mux.SetURLVars(req, map[string]string{"name": "golang"})
		recorder := httptest.NewRecorder()
		handler.JoinCommunity(recorder, req)
		require.Equal(t, http.StatusOK, recorder.Code)
	}

	join()

	req := authedRequest("POST", "/api/communities/golang/leave", nil, 2)
	req = mux.SetURLVars(req, map[string]string{"name": "golang"})
	recorder := httptest.NewRecorder()
	handler.LeaveCommunity(recorder, req)
	require.Equal(t, http.StatusOK, recorder.Code)

	// The unique (user, community) slot must be free again.
	join()

	var stored models.Community
	require.NoError(t, db.First(&stored, community.ID).Error)
	assert.Equal(t, 2, stored.MembersCount)
}

func TestGetCommunityMembershipState(t *testing.T) {
	handler, db := setupTestHandler(t)

	community := models.Community{Name: "golang", Title: "Go", CreatedByID: 1, MembersCount: 1}
	require.NoError(t, db.Create(&community).Error)
	require.NoError(t, db.Create(&models.CommunityMember{UserID: 1, CommunityID: community.ID, Role: models.RoleOwner}).Error)

	req := authedRequest("GET", "/api/communities/golang", nil, 1)
	req = mux.SetURLVars(req, map[string]string{"name": "golang"})
	recorder := httptest.NewRecorder()
	handler.GetCommunity(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)

	var envelope struct {
		Success bool `json:"success"`
		Data    struct {
			IsMember   bool    `json:"isMember"`
			MemberRole *string `json:"memberRole"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	require.True(t, envelope.Success)
	assert.True(t, envelope.Data.IsMember)
	require.NotNil(t, envelope.Data.MemberRole)
	assert.Equal(t, models.RoleOwner, *envelope.Data.MemberRole)
}

func TestGetCommunityAnonymous(t *testing.T) {
	handler, db := setupTestHandler(t)

	community := models.Community{Name: "golang", Title: "Go", CreatedByID: 1, MembersCount: 1}
	require.NoError(t, db.Create(&community).Error)

	req := httptest.NewRequest("GET", "/api/communities/golang", nil)
	req = mux.SetURLVars(req, map[string]string{"name": "golang"})
	recorder := httptest.NewRecorder()
	handler.GetCommunity(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)

	var envelope struct {
		Success bool `json:"success"`
		Data    struct {
			IsMember bool `json:"isMember"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	assert.False(t, envelope.Data.IsMember)
}
