package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"gopkg.in/gomail.v2"

	"github.com/gorilla/mux"
	"github.com/threadit/threadit-server/cmd/models"
	"github.com/threadit/threadit-server/cmd/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

func (h *Handler) RegisterRoutes(router *mux.Router, authLimiter *utils.RateLimiter) {
	router.HandleFunc("/auth/signup", authLimiter.Middleware(h.handleSignup)).Methods("POST")
	router.HandleFunc("/auth/login", authLimiter.Middleware(h.handleLogin)).Methods("POST")
	router.HandleFunc("/auth/refresh", h.handleRefreshToken).Methods("POST")
	router.HandleFunc("/auth/reset-password", authLimiter.Middleware(h.handlePasswordResetRequest)).Methods("POST")
	router.HandleFunc("/auth/reset-password/confirm", authLimiter.Middleware(h.handlePasswordReset)).Methods("POST")
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var signupRequest struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&signupRequest); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if signupRequest.Username == "" || signupRequest.Email == "" || signupRequest.Password == "" {
		utils.WriteError(w, http.StatusBadRequest, "Missing fields")
		return
	}

	var existingUser models.User
	result := h.db.Where("email = ? OR username = ?", signupRequest.Email, signupRequest.Username).First(&existingUser)
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		if result.Error != nil {
			utils.WriteError(w, http.StatusInternalServerError, result.Error.Error())
			return
		}
		utils.WriteError(w, http.StatusBadRequest, "User already exists")
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(signupRequest.Password), bcrypt.DefaultCost)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Error hashing password")
		return
	}

	user := models.User{
		Username:     signupRequest.Username,
		Email:        signupRequest.Email,
		PasswordHash: string(passwordHash),
	}

	if err := h.db.Create(&user).Error; err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") || strings.Contains(err.Error(), "duplicate key") {
			utils.WriteError(w, http.StatusBadRequest, "User already exists")
			return
		}
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	token, err := GenerateJWT(user.ID, 7*24*time.Hour)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Error generating token")
		return
	}

	utils.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"token": token,
		"user": map[string]interface{}{
			"id":       user.ID,
			"username": user.Username,
			"email":    user.Email,
		},
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var loginRequest struct {
		EmailOrUsername string `json:"emailOrUsername"`
		Password        string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&loginRequest); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var user models.User
	result := h.db.Where("email = ? OR username = ?", loginRequest.EmailOrUsername, loginRequest.EmailOrUsername).First(&user)
	if result.Error != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid credentials")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(loginRequest.Password)); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid credentials")
		return
	}

	token, err := GenerateJWT(user.ID, 7*24*time.Hour)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Error generating token")
		return
	}

	refreshToken, err := generateRefreshToken(user.ID)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Error generating refresh token")
		return
	}

	if err := saveRefreshToken(h.db, user.ID, refreshToken); err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Error saving refresh token")
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"token":         token,
		"refresh_token": refreshToken,
		"user": map[string]interface{}{
			"id":       user.ID,
			"username": user.Username,
			"email":    user.Email,
		},
	})
}

func (h *Handler) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	var refreshRequest struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&refreshRequest); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tx := h.db.Begin()

	var user models.User
	if err := tx.Where("refresh_token = ?", refreshRequest.RefreshToken).First(&user).Error; err != nil {
		tx.Rollback()
		utils.WriteError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	if user.RefreshTokenExpiredAt.Before(time.Now()) {
		tx.Rollback()
		utils.WriteError(w, http.StatusUnauthorized, "Refresh token expired")
		return
	}

	newAccessToken, err := GenerateJWT(user.ID, 7*24*time.Hour)
	if err != nil {
		tx.Rollback()
		utils.WriteError(w, http.StatusInternalServerError, "Error generating new token")
		return
	}

	// Rotate the refresh token on every use.
	newRefreshToken, err := generateRefreshToken(user.ID)
	if err != nil {
		tx.Rollback()
		utils.WriteError(w, http.StatusInternalServerError, "Error generating refresh token")
		return
	}

	if err := tx.Model(&user).Updates(map[string]interface{}{
		"refresh_token":            newRefreshToken,
		"refresh_token_expired_at": time.Now().Add(30 * 24 * time.Hour),
	}).Error; err != nil {
		tx.Rollback()
		utils.WriteError(w, http.StatusInternalServerError, "Error updating refresh token")
		return
	}

	if err := tx.Commit().Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]string{
		"token":         newAccessToken,
		"refresh_token": newRefreshToken,
	})
}

func (h *Handler) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var resetRequest struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&resetRequest); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if resetRequest.Email == "" {
		utils.WriteError(w, http.StatusBadRequest, "Email is required")
		return
	}

	// The response is the same whether or not the account exists.
	vague := map[string]string{
		"message": "If an account exists, a reset code will be sent to your email",
	}

	var user models.User
	if err := h.db.Where("email = ?", resetRequest.Email).First(&user).Error; err != nil {
		utils.WriteJSON(w, http.StatusOK, vague)
		return
	}

	resetToken, err := generateResetCode()
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Error creating reset token")
		return
	}

	tx := h.db.Begin()

	if err := tx.Where("user_id = ?", user.ID).Delete(&models.PasswordResetToken{}).Error; err != nil {
		tx.Rollback()
		utils.WriteError(w, http.StatusInternalServerError, "Error processing reset request")
		return
	}

	passwordResetToken := models.PasswordResetToken{
		UserID:    user.ID,
		Token:     resetToken,
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}
	if err := tx.Create(&passwordResetToken).Error; err != nil {
		tx.Rollback()
		utils.WriteError(w, http.StatusInternalServerError, "Error creating reset token")
		return
	}

	if err := tx.Commit().Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Error processing reset request")
		return
	}

	go func() {
		if err := sendResetEmail(user.Email, resetToken); err != nil {
			log.Printf("Error sending reset email: %v", err)
		}
	}()

	utils.WriteJSON(w, http.StatusOK, vague)
}

func (h *Handler) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var confirmRequest struct {
		Email    string `json:"email"`
		Code     string `json:"code"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&confirmRequest); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if confirmRequest.Email == "" || confirmRequest.Code == "" || confirmRequest.Password == "" {
		utils.WriteError(w, http.StatusBadRequest, "Missing fields")
		return
	}

	var user models.User
	if err := h.db.Where("email = ?", confirmRequest.Email).First(&user).Error; err != nil {
		utils.WriteError(w, http.StatusNotFound, "User not found")
		return
	}

	var resetToken models.PasswordResetToken
	if err := h.db.Where("user_id = ? AND token = ?", user.ID, confirmRequest.Code).First(&resetToken).Error; err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Invalid or expired reset code")
		return
	}
	if time.Now().After(resetToken.ExpiresAt) {
		utils.WriteError(w, http.StatusUnauthorized, "Invalid or expired reset code")
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(confirmRequest.Password), bcrypt.DefaultCost)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Error hashing password")
		return
	}

	tx := h.db.Begin()
	if err := tx.Model(&user).Update("password_hash", string(passwordHash)).Error; err != nil {
		tx.Rollback()
		utils.WriteError(w, http.StatusInternalServerError, "Error updating password")
		return
	}
	if err := tx.Where("user_id = ?", user.ID).Delete(&models.PasswordResetToken{}).Error; err != nil {
		tx.Rollback()
		utils.WriteError(w, http.StatusInternalServerError, "Error clearing reset token")
		return
	}
	if err := tx.Commit().Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Password reset successfully",
	})
}

func GenerateJWT(userID uint, lifetime time.Duration) (string, error) {
	claims := &jwt.RegisteredClaims{
		Subject:   fmt.Sprint(userID),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(lifetime)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(os.Getenv("SECRET_KEY")))
}

func generateRefreshToken(userID uint) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, []byte(os.Getenv("SECRET_KEY")))
	mac.Write([]byte(strconv.FormatUint(uint64(userID), 10)))
	mac.Write(b)

	signature := mac.Sum(nil)
	return fmt.Sprintf("%d_%x_%x", userID, b, signature), nil
}

func saveRefreshToken(db *gorm.DB, userID uint, refreshToken string) error {
	expirationTime := time.Now().Add(30 * 24 * time.Hour)
	return db.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"refresh_token":            refreshToken,
		"refresh_token_expired_at": expirationTime,
	}).Error
}

func generateResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func sendResetEmail(email, code string) error {
	smtpHost := os.Getenv("SMTP_HOST")
	smtpPort := os.Getenv("SMTP_PORT")
	smtpUser := os.Getenv("SMTP_USER")
	smtpPass := os.Getenv("SMTP_PASS")

	m := gomail.NewMessage()
	m.SetHeader("From", smtpUser)
	m.SetHeader("To", email)
	m.SetHeader("Subject", "Password Reset Code")
	m.SetBody("text/plain", fmt.Sprintf("Your password reset code is: %s. Ignore this email if you did not request a reset.", code))

	port, err := strconv.Atoi(smtpPort)
	if err != nil {
		return fmt.Errorf("invalid SMTP port: %v", err)
	}
	d := gomail.NewDialer(smtpHost, port, smtpUser, smtpPass)

	return d.DialAndSend(m)
}
