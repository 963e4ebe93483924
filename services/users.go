package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"familybook/config"
	"familybook/database"
	"familybook/media"
	"familybook/models"
	"familybook/utils"

	"github.com/google/uuid"
)

type UserService struct {
	db     *database.DatabaseService
	store  media.Store
	logger *slog.Logger
}

func NewUserService(db *database.DatabaseService, store media.Store, logger *slog.Logger) *UserService {
	return &UserService{db: db, store: store, logger: logger.With("service", "users")}
}

func cleanDisplayName(name string) (string, error) {
	name = CleanText(name)
	if name == "" {
		return "", fmt.Errorf("%w: display name is empty", ErrInvalidInput)
	}
	if utf8.RuneCountInString(name) > config.MaxDisplayNameLen {
		return "", fmt.Errorf("%w: display name is longer than %d characters", ErrInvalidInput, config.MaxDisplayNameLen)
	}
	return name, nil
}

// newUsername returns a generated handle such as "user_1a2b3c4d".
func newUsername() string {
	return "user_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Register creates a member account with a generated handle and the default avatar.
func (s *UserService) Register(ctx context.Context, displayName, password string) (*models.User, error) {
	name, err := cleanDisplayName(displayName)
	if err != nil {
		return nil, err
	}
	if len(password) < config.MinPasswordLen {
		return nil, fmt.Errorf("%w: password must have at least %d characters", ErrInvalidInput, config.MinPasswordLen)
	}
	hashed, err := utils.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	for attempt := 0; ; attempt++ {
		u := &models.User{
			Username:       newUsername(),
			DisplayName:    name,
			HashedPassword: hashed,
			Role:           models.RoleMember,
			AvatarURL:      config.DefaultAvatarURL,
		}
		err := s.db.CreateUser(ctx, u)
		if err == nil {
			logAction(s.logger, u.ID, "REGISTER", "username", u.Username)
			return u, nil
		}
		if !database.IsUniqueViolation(err) || attempt == 2 {
			return nil, err
		}
	}
}

// Login signs in the account carrying displayName whose password matches.
// Several members may share a display name; each is tried, oldest first.
func (s *UserService) Login(ctx context.Context, displayName, password string) (*models.User, error) {
	candidates, err := s.db.ListUsersByDisplayName(ctx, strings.TrimSpace(displayName))
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		if utils.CheckPassword(candidates[i].HashedPassword, password) {
			return &candidates[i], nil
		}
	}
	return nil, ErrInvalidCredentials
}

func (s *UserService) Get(ctx context.Context, userID int64) (*models.User, error) {
	u, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// UpdateAvatar stores a new avatar, points the user at it and then removes
// the previous one unless it is the shared default.
func (s *UserService) UpdateAvatar(ctx context.Context, userID int64, upload Upload) (string, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if !allowedUpload(upload.Filename) {
		return "", fmt.Errorf("%w: extension not allowed", ErrInvalidInput)
	}

	src, err := upload.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	url, err := s.store.SaveImage(ctx, media.Avatars, src)
	if err != nil {
		return "", err
	}

	if err := s.db.UpdateAvatar(ctx, userID, url); err != nil {
		if derr := s.store.Delete(context.WithoutCancel(ctx), media.Avatars, url); derr != nil {
			s.logger.Warn("Failed to remove unused avatar", "url", url, "error", derr)
		}
		return "", err
	}

	if !media.IsDefaultAsset(u.AvatarURL) {
		if err := s.store.Delete(ctx, media.Avatars, u.AvatarURL); err != nil {
			s.logger.Warn("Failed to remove previous avatar", "url", u.AvatarURL, "error", err)
		}
	}
	logAction(s.logger, userID, "AVATAR_UPDATE", "url", url)
	return url, nil
}

func (s *UserService) Rename(ctx context.Context, userID int64, displayName string) (string, error) {
	name, err := cleanDisplayName(displayName)
	if err != nil {
		return "", err
	}
	if err := s.db.UpdateDisplayName(ctx, userID, name); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	logAction(s.logger, userID, "RENAME", "display_name", name)
	return name, nil
}

// SeedAdmin creates the admin account on first start.
func (s *UserService) SeedAdmin(ctx context.Context, password string) error {
	hashed, err := utils.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	created, err := s.db.EnsureAdmin(ctx, hashed)
	if err != nil {
		return err
	}
	if created {
		s.logger.Info("First start: created admin account", "action", "DB_INIT", "username", "admin")
	}
	return nil
}
