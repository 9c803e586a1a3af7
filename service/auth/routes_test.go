package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/threadit/threadit-server/cmd/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestHandler(t *testing.T) (*Handler, *gorm.DB) {
	t.Setenv("SECRET_KEY", "test-secret")

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.PasswordResetToken{}))

	return NewHandler(db), db
}

func postJSON(t *testing.T, handler http.HandlerFunc, target string, payload interface{}) *httptest.ResponseRecorder {
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", target, bytes.NewReader(body))
	recorder := httptest.NewRecorder()
	handler(recorder, req)
	return recorder
}

func TestSignupCreatesUser(t *testing.T) {
	handler, db := setupTestHandler(t)

	recorder := postJSON(t, handler.handleSignup, "/api/auth/signup", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "hunter22",
	})

	require.Equal(t, http.StatusCreated, recorder.Code)

	var user models.User
	require.NoError(t, db.Where("username = ?", "alice").First(&user).Error)
	assert.NotEqual(t, "hunter22", user.PasswordHash, "passwords are never stored in the clear")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("hunter22")))

	var envelope struct {
		Success bool `json:"success"`
		Data    struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	require.True(t, envelope.Success)
	assert.NotEmpty(t, envelope.Data.Token)
}

func TestSignupDuplicate(t *testing.T) {
	handler, _ := setupTestHandler(t)

	payload := map[string]string{"username": "alice", "email": "alice@example.com", "password": "hunter22"}
	recorder := postJSON(t, handler.handleSignup, "/api/auth/signup", payload)
	require.Equal(t, http.StatusCreated, recorder.Code)

	// Same email, different username.
	recorder = postJSON(t, handler.handleSignup, "/api/auth/signup", map[string]string{
		"username": "alice2", "email": "alice@example.com", "password": "hunter22",
	})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	// Same username, different email.
	recorder = postJSON(t, handler.handleSignup, "/api/auth/signup", map[string]string{
		"username": "alice", "email": "other@example.com", "password": "hunter22",
	})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestSignupMissingFields(t *testing.T) {
	handler, _ := setupTestHandler(t)

	recorder := postJSON(t, handler.handleSignup, "/api/auth/signup", map[string]string{
		"username": "alice",
	})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestLoginByEmailAndUsername(t *testing.T) {
	handler, _ := setupTestHandler(t)

	recorder := postJSON(t, handler.handleSignup, "/api/auth/signup", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "hunter22",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	for _, identifier := range []string{"alice", "alice@example.com"} {
		recorder = postJSON(t, handler.handleLogin, "/api/auth/login", map[string]string{
			"emailOrUsername": identifier,
			"password":        "hunter22",
		})
		assert.Equal(t, http.StatusOK, recorder.Code, "login with %q", identifier)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	handler, _ := setupTestHandler(t)

	recorder := postJSON(t, handler.handleSignup, "/api/auth/signup", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "hunter22",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	recorder = postJSON(t, handler.handleLogin, "/api/auth/login", map[string]string{
		"emailOrUsername": "alice",
		"password":        "wrong",
	})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = postJSON(t, handler.handleLogin, "/api/auth/login", map[string]string{
		"emailOrUsername": "ghost",
		"password":        "hunter22",
	})
	assert.Equal(t, http.StatusBadRequest, recorder.Code, "unknown users get the same error as bad passwords")
}

func TestRefreshTokenRotates(t *testing.T) {
	handler, _ := setupTestHandler(t)

	recorder := postJSON(t, handler.handleSignup, "/api/auth/signup", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "hunter22",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	recorder = postJSON(t, handler.handleLogin, "/api/auth/login", map[string]string{
		"emailOrUsername": "alice", "password": "hunter22",
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var login struct {
		Data struct {
			RefreshToken string `json:"refresh_token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &login))
	require.NotEmpty(t, login.Data.RefreshToken)

	recorder = postJSON(t, handler.handleRefreshToken, "/api/auth/refresh", map[string]string{
		"refresh_token": login.Data.RefreshToken,
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var refreshed struct {
		Data struct {
			Token        string `json:"token"`
			RefreshToken string `json:"refresh_token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &refreshed))
	assert.NotEmpty(t, refreshed.Data.Token)
	assert.NotEqual(t, login.Data.RefreshToken, refreshed.Data.RefreshToken, "refresh must rotate the token")

	// The old token is spent.
	recorder = postJSON(t, handler.handleRefreshToken, "/api/auth/refresh", map[string]string{
		"refresh_token": login.Data.RefreshToken,
	})
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestRefreshTokenExpired(t *testing.T) {
	handler, db := setupTestHandler(t)

	expired := models.User{
		Username:              "alice",
		Email:                 "alice@example.com",
		PasswordHash:          "x",
		Refresh:               "stale-token",
		RefreshTokenExpiredAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, db.Create(&expired).Error)

	recorder := postJSON(t, handler.handleRefreshToken, "/api/auth/refresh", map[string]string{
		"refresh_token": "stale-token",
	})
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestPasswordResetConfirm(t *testing.T) {
	handler, db := setupTestHandler(t)

	recorder := postJSON(t, handler.handleSignup, "/api/auth/signup", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "hunter22",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	var user models.User
	require.NoError(t, db.Where("username = ?", "alice").First(&user).Error)
	require.NoError(t, db.Create(&models.PasswordResetToken{
		UserID:    user.ID,
		Token:     "123456",
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}).Error)

	recorder = postJSON(t, handler.handlePasswordReset, "/api/auth/reset-password/confirm", map[string]string{
		"email":    "alice@example.com",
		"code":     "123456",
		"password": "newpass99",
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = postJSON(t, handler.handleLogin, "/api/auth/login", map[string]string{
		"emailOrUsername": "alice", "password": "newpass99",
	})
	assert.Equal(t, http.StatusOK, recorder.Code)

	var tokens int64
	db.Model(&models.PasswordResetToken{}).Where("user_id = ?", user.ID).Count(&tokens)
	assert.Zero(t, tokens, "a used code cannot be replayed")
}

func TestPasswordResetWrongCode(t *testing.T) {
	handler, db := setupTestHandler(t)

	recorder := postJSON(t, handler.handleSignup, "/api/auth/signup", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "hunter22",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	var user models.User
	require.NoError(t, db.Where("username = ?", "alice").First(&user).Error)
	require.NoError(t, db.Create(&models.PasswordResetToken{
		UserID:    user.ID,
		Token:     "123456",
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}).Error)

	recorder = postJSON(t, handler.handlePasswordReset, "/api/auth/reset-password/confirm", map[string]string{
		"email":    "alice@example.com",
		"code":     "000000",
		"password": "newpass99",
	})
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}
