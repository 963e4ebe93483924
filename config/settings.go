package config

import (
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"familybook/utils"

	"github.com/joho/godotenv"
)

// Settings is the runtime configuration, read once at startup.
type Settings struct {
	Mode          string
	Environment   string
	Port          string
	DBPath        string
	StaticDir     string
	BackupDir     string
	SecretKey     string
	LogLevel      string
	LogFile       string
	AdminPassword string

	RateLimitEvery time.Duration
	RateLimitBurst int

	S3Enabled   bool
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Region    string
	S3PublicURL string
	S3UseSSL    bool
}

// AvatarsDir is where avatar files live on local disk.
func (s *Settings) AvatarsDir() string { return filepath.Join(s.StaticDir, "uploads", "avatars") }

// PostsDir is where post images live on local disk.
func (s *Settings) PostsDir() string { return filepath.Join(s.StaticDir, "uploads", "posts") }

func (s *Settings) IsProduction() bool { return strings.EqualFold(s.Environment, "production") }

// Load reads .env.<APP_MODE> (if present) and then the process environment.
// Malformed numeric values fall back to defaults and are reported on logger.
func Load(logger *slog.Logger) *Settings {
	mode := utils.GetEnv("APP_MODE", "dev")
	envFile := ".env." + mode
	if err := godotenv.Load(envFile); err != nil {
		logger.Debug("No env file loaded", "file", envFile, "error", err)
	}

	s := &Settings{
		Mode:          mode,
		Environment:   utils.GetEnv("FB_ENVIRONMENT", "development"),
		Port:          utils.GetEnv("FB_PORT", "8080"),
		DBPath:        utils.GetEnv("FB_DB_PATH", "./family_book.db"),
		StaticDir:     utils.GetEnv("FB_STATIC_DIR", "./static"),
		BackupDir:     utils.GetEnv("FB_BACKUP_DIR", "./backups"),
		SecretKey:     utils.GetEnv("FB_SECRET_KEY", "super_secret_key_change_me"),
		LogLevel:      utils.GetEnv("FB_LOG_LEVEL", "info"),
		LogFile:       utils.GetEnv("FB_LOG_FILE", ""),
		AdminPassword: utils.GetEnv("FB_ADMIN_PASSWORD", DefaultAdminPassword),

		S3Enabled:   utils.GetEnv("FB_S3_ENABLED", "false") == "true",
		S3Endpoint:  utils.GetEnv("FB_S3_ENDPOINT", ""),
		S3AccessKey: utils.GetEnv("FB_S3_ACCESS_KEY", ""),
		S3SecretKey: utils.GetEnv("FB_S3_SECRET_KEY", ""),
		S3Bucket:    utils.GetEnv("FB_S3_BUCKET", ""),
		S3Region:    utils.GetEnv("FB_S3_REGION", "us-east-1"),
		S3PublicURL: utils.GetEnv("FB_S3_PUBLIC_URL", ""),
		S3UseSSL:    utils.GetEnv("FB_S3_USE_SSL", "true") == "true",
	}

	every, err := time.ParseDuration(utils.GetEnv("FB_RATE_EVERY", DefaultRateLimitEvery))
	if err != nil {
		logger.Warn("Invalid FB_RATE_EVERY duration, using default", "value", utils.GetEnv("FB_RATE_EVERY", ""), "default", DefaultRateLimitEvery)
		every, _ = time.ParseDuration(DefaultRateLimitEvery)
	}
	s.RateLimitEvery = every

	burst, err := strconv.Atoi(utils.GetEnv("FB_RATE_BURST", strconv.Itoa(DefaultRateLimitBurst)))
	if err != nil || burst < 1 {
		logger.Warn("Invalid FB_RATE_BURST integer, using default", "value", utils.GetEnv("FB_RATE_BURST", ""), "default", DefaultRateLimitBurst)
		burst = DefaultRateLimitBurst
	}
	s.RateLimitBurst = burst

	return s
}
