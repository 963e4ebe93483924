// familybook/config/config.go
package config

import "time"

const (
	AppName    = "FamilyBook"
	AppVersion = "1.3.1"

	// Form limits
	MaxDisplayNameLen = 75
	MaxPostLen        = 5000
	MaxCommentLen     = 2000
	MinPasswordLen    = 3
	FeedPageSize      = 50

	// Upload limits
	MaxUploadSize = 20 * 1024 * 1024 // 20MB, whole multipart body
	MaxWidth      = 2560
	MaxHeight     = 1440
	WebPQuality   = 85
	WebPMethod    = 6 // slowest, smallest output
	ImageExt      = ".webp"

	// Sources are decoded in full before resizing; larger ones are refused.
	MaxSourcePixels = 50_000_000

	// Public paths
	StaticPrefix        = "/static/"
	AvatarsPublicPrefix = "/static/uploads/avatars/"
	PostsPublicPrefix   = "/static/uploads/posts/"
	DefaultAvatarURL    = "/static/default_avatar.png"

	// Session
	SessionCookieName = "user_session"
	FlashCookieName   = "flash"
	SessionMaxAge     = 14 * 24 * time.Hour
	FlashMaxAge       = 10 * time.Second

	// Rate limiting defaults for post creation
	DefaultRateLimitEvery = "10s"
	DefaultRateLimitBurst = 5

	DefaultAdminPassword = "admin123"
)

// AllowedExtensions is the upload allowlist, lowercase with leading dot.
var AllowedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}
