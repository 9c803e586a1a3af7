package utils

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MaxAvatarSize = 5 << 20 // 5 MB
	AvatarPath    = "uploads/avatars"
)

// SaveAvatar stores an uploaded avatar image and returns its URL path.
func SaveAvatar(file multipart.File, header *multipart.FileHeader) (string, error) {
	if header.Size > MaxAvatarSize {
		return "", fmt.Errorf("file size exceeds maximum limit of %d MB", MaxAvatarSize/(1<<20))
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !isValidImageType(ext) {
		return "", fmt.Errorf("invalid file type: %s", ext)
	}

	if err := os.MkdirAll(AvatarPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %v", err)
	}

	filename := fmt.Sprintf("%s-%s%s",
		time.Now().Format("20060102"),
		uuid.New().String(),
		ext,
	)
	filePath := filepath.Join(AvatarPath, filename)

	dst, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %v", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		return "", fmt.Errorf("failed to save file: %v", err)
	}

	return fmt.Sprintf("/api/avatars/%s", filename), nil
}

func isValidImageType(ext string) bool {
	validTypes := map[string]bool{
		".jpg":  true,
		".jpeg": true,
		".png":  true,
		".webp": true,
	}
	return validTypes[ext]
}

func DeleteAvatar(avatarURL string) error {
	filename := filepath.Base(avatarURL)
	filePath := filepath.Join(AvatarPath, filename)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil
	}

	return os.Remove(filePath)
}
