// Package services holds the application's use cases: building and tearing
// down posts with their images, likes, comments and user accounts.
package services

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"familybook/config"
)

var (
	ErrForbidden          = errors.New("permission denied")
	ErrPostNotFound       = errors.New("post not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidInput       = errors.New("invalid input")
)

// Upload is one named file from a request. Open is called at most once.
type Upload struct {
	Filename string
	Open     func() (io.ReadCloser, error)
}

// allowedUpload checks the filename against the extension allowlist.
func allowedUpload(filename string) bool {
	return config.AllowedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// CleanText trims surrounding space. User text is stored verbatim and is
// only ever served as JSON strings.
func CleanText(s string) string {
	return strings.TrimSpace(s)
}

func logAction(logger *slog.Logger, userID int64, action string, args ...any) {
	logger.Info("User action", append([]any{"action", action, "user_id", userID}, args...)...)
}
