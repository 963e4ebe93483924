// familybook/main.go
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"familybook/config"
	"familybook/database"
	"familybook/handlers"
	"familybook/media"
	"familybook/models"
	"familybook/services"
	"familybook/utils"
)

const (
	rateLimitPrune  = 10 * time.Minute
	rateLimitExpire = time.Hour
)

type Application struct {
	db          *database.DatabaseService
	posts       *services.PostService
	users       *services.UserService
	rateLimiter *models.RateLimiter
	sessions    *utils.CookieCodec
	flashes     *utils.CookieCodec
	settings    *config.Settings
	logger      *slog.Logger
}

// Methods to satisfy the handlers.App interface
func (a *Application) DB() *database.DatabaseService    { return a.db }
func (a *Application) Posts() *services.PostService     { return a.posts }
func (a *Application) Users() *services.UserService     { return a.users }
func (a *Application) RateLimiter() *models.RateLimiter { return a.rateLimiter }
func (a *Application) Sessions() *utils.CookieCodec     { return a.sessions }
func (a *Application) Flashes() *utils.CookieCodec      { return a.flashes }
func (a *Application) Settings() *config.Settings       { return a.settings }
func (a *Application) Logger() *slog.Logger             { return a.logger }

func main() {
	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	settings := config.Load(bootLogger)

	logger, closeLog, err := utils.NewLogger(settings.LogLevel, settings.LogFile)
	if err != nil {
		bootLogger.Error("Failed to set up logging", "error", err)
		os.Exit(1)
	}
	defer closeLog()
	slog.SetDefault(logger)

	if settings.IsProduction() && settings.SecretKey == "super_secret_key_change_me" {
		logger.Warn("FB_SECRET_KEY is the default value; sessions can be forged")
	}

	dbService, err := database.InitDB(settings.DBPath, logger)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbService.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()

	media.EnsureDefaultAvatar(settings.StaticDir, logger)

	// --- Storage Service Init ---
	var store media.Store
	var s3PublicURL string
	if settings.S3Enabled {
		s3Store, err := media.NewS3Storage(context.Background(), settings.S3Endpoint, settings.S3AccessKey, settings.S3SecretKey,
			settings.S3Bucket, settings.S3Region, settings.S3PublicURL, settings.S3UseSSL, logger)
		if err != nil {
			logger.Error("Failed to initialize S3 storage", "error", err)
			os.Exit(1)
		}
		store = s3Store
		s3PublicURL = s3Store.PublicURL
		logger.Info("S3 storage initialized", "endpoint", settings.S3Endpoint, "bucket", settings.S3Bucket)
	} else {
		localStore, err := media.NewLocalStorage(settings.AvatarsDir(), settings.PostsDir(), logger)
		if err != nil {
			logger.Error("FATAL: Could not create upload directories", "error", err)
			os.Exit(1)
		}
		store = localStore
		logger.Info("Local storage initialized", "avatars", settings.AvatarsDir(), "posts", settings.PostsDir())
	}

	app := &Application{
		db:          dbService,
		posts:       services.NewPostService(dbService, store, logger),
		users:       services.NewUserService(dbService, store, logger),
		rateLimiter: models.NewRateLimiter(settings.RateLimitEvery, settings.RateLimitBurst, rateLimitPrune, rateLimitExpire),
		sessions:    utils.NewCookieCodec(settings.SecretKey, config.SessionMaxAge),
		flashes:     utils.NewCookieCodec(settings.SecretKey+":flash", config.FlashMaxAge),
		settings:    settings,
		logger:      logger,
	}
	defer app.rateLimiter.Stop()

	if err := app.users.SeedAdmin(context.Background(), settings.AdminPassword); err != nil {
		logger.Error("Failed to seed admin account", "error", err)
		os.Exit(1)
	}
	if settings.AdminPassword == config.DefaultAdminPassword {
		logger.Warn("Admin account uses the default password; set FB_ADMIN_PASSWORD")
	}

	mux := handlers.SetupRouter(app, s3PublicURL)

	// --- Graceful Shutdown ---
	server := &http.Server{
		Addr:              ":" + settings.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	logger.Info("FamilyBook server started successfully",
		"action", "STARTUP",
		"version", config.AppVersion,
		"mode", settings.Mode,
		"environment", settings.Environment,
		"address", "http://localhost:"+settings.Port,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		logger.Error("Server failed unexpectedly", "error", err)
		return
	}

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		return
	}
	logger.Info("Server exiting")
}
