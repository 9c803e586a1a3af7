package search

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/threadit/threadit-server/cmd/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestHandler(t *testing.T) (*Handler, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Community{},
		&models.Post{},
	))

	return NewHandler(db), db
}

type searchResult struct {
	Posts       []models.Post      `json:"posts"`
	Users       []models.User      `json:"users"`
	Communities []models.Community `json:"communities"`
}

func search(t *testing.T, handler *Handler, query string) searchResult {
	req := httptest.NewRequest("GET", "/api/search?q="+query, nil)
	recorder := httptest.NewRecorder()
	handler.Search(recorder, req)
	require.Equal(t, http.StatusOK, recorder.Code)

	var envelope struct {
		Success bool         `json:"success"`
		Data    searchResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	require.True(t, envelope.Success)
	return envelope.Data
}

func TestSearchMissingQuery(t *testing.T) {
	handler, _ := setupTestHandler(t)

	req := httptest.NewRequest("GET", "/api/search", nil)
	recorder := httptest.NewRecorder()
	handler.Search(recorder, req)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestSearchCaseInsensitive(t *testing.T) {
	handler, db := setupTestHandler(t)

	user := models.User{Username: "GopherFan", Email: "g@example.com", PasswordHash: "x"}
	require.NoError(t, db.Create(&user).Error)
	community := models.Community{Name: "golang", Title: "The Go Community", CreatedByID: user.ID}
	require.NoError(t, db.Create(&community).Error)
	post := models.Post{Title: "Why Gophers Love Channels", AuthorID: user.ID, CommunityID: community.ID}
	require.NoError(t, db.Create(&post).Error)

	result := search(t, handler, "gopher")

	require.Len(t, result.Users, 1)
	assert.Equal(t, "GopherFan", result.Users[0].Username)
	require.Len(t, result.Posts, 1)
	assert.Equal(t, post.ID, result.Posts[0].ID)
	assert.Empty(t, result.Communities)
}

func TestSearchMatchesAllThreeKinds(t *testing.T) {
	handler, db := setupTestHandler(t)

	user := models.User{Username: "alice", DisplayName: "Go Expert", Email: "a@example.com", PasswordHash: "x"}
	require.NoError(t, db.Create(&user).Error)
	community := models.Community{Name: "gotips", Title: "Go Tips", CreatedByID: user.ID}
	require.NoError(t, db.Create(&community).Error)
	post := models.Post{Title: "irrelevant", Body: "all about go tips", AuthorID: user.ID, CommunityID: community.ID}
	require.NoError(t, db.Create(&post).Error)

	result := search(t, handler, "go")

	assert.Len(t, result.Users, 1, "display_name matches too")
	assert.Len(t, result.Communities, 1)
	assert.Len(t, result.Posts, 1, "body matches too")
}

func TestSearchNoResults(t *testing.T) {
	handler, _ := setupTestHandler(t)

	result := search(t, handler, "nothinghere")

	assert.Empty(t, result.Posts)
	assert.Empty(t, result.Users)
	assert.Empty(t, result.Communities)
}

func TestSearchPostLimit(t *testing.T) {
	handler, db := setupTestHandler(t)

	user := models.User{Username: "alice", Email: "a@example.com", PasswordHash: "x"}
	require.NoError(t, db.Create(&user).Error)
	community := models.Community{Name: "flood", Title: "Flood", CreatedByID: user.ID}
	require.NoError(t, db.Create(&community).Error)
	for i := 0; i < 15; i++ {
		post := models.Post{Title: "flooding the index", AuthorID: user.ID, CommunityID: community.ID}
		require.NoError(t, db.Create(&post).Error)
	}

	result := search(t, handler, "flooding")

	assert.Len(t, result.Posts, postResultLimit)
}
