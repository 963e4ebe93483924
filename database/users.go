package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"familybook/config"
	"familybook/models"
)

const userColumns = "u.id, u.username, u.display_name, u.hashed_password, u.role, u.avatar_url, u.referred_by"

type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser reads the columns listed in userColumns, plus any extra
// destinations appended after them.
func scanUser(row rowScanner, extra ...any) (models.User, error) {
	var u models.User
	var avatar sql.NullString
	var referredBy sql.NullInt64
	dest := append([]any{&u.ID, &u.Username, &u.DisplayName, &u.HashedPassword, &u.Role, &avatar, &referredBy}, extra...)
	if err := row.Scan(dest...); err != nil {
		return u, err
	}
	u.AvatarURL = avatar.String
	if u.AvatarURL == "" {
		u.AvatarURL = config.DefaultAvatarURL
	}
	if referredBy.Valid {
		id := referredBy.Int64
		u.ReferredBy = &id
	}
	return u, nil
}

// CreateUser inserts u and sets its ID.
func (ds *DatabaseService) CreateUser(ctx context.Context, u *models.User) error {
	var referredBy sql.NullInt64
	if u.ReferredBy != nil {
		referredBy = sql.NullInt64{Int64: *u.ReferredBy, Valid: true}
	}
	res, err := ds.DB.ExecContext(ctx,
		"INSERT INTO user (username, display_name, hashed_password, role, avatar_url, referred_by) VALUES (?, ?, ?, ?, ?, ?)",
		u.Username, u.DisplayName, u.HashedPassword, u.Role, nullString(u.AvatarURL), referredBy)
	if err != nil {
		return fmt.Errorf("failed to insert user %s: %w", u.Username, mapConstraintErr(err))
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	return nil
}

func (ds *DatabaseService) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(ds.DB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM user u WHERE u.id = ?", id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("db error getting user %d: %w", id, err)
	}
	return &u, nil
}

// ListUsersByDisplayName returns every account carrying displayName, oldest
// first. Display names are not unique.
func (ds *DatabaseService) ListUsersByDisplayName(ctx context.Context, displayName string) ([]models.User, error) {
	rows, err := ds.DB.QueryContext(ctx, "SELECT "+userColumns+" FROM user u WHERE u.display_name = ? ORDER BY u.id ASC", displayName)
	if err != nil {
		return nil, fmt.Errorf("db error listing users %q: %w", displayName, err)
	}
	defer closeRows(rows, ds.logger, "ListUsersByDisplayName")

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (ds *DatabaseService) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	u, err := scanUser(ds.DB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM user u WHERE u.username = ?", username))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
		}
		return nil, fmt.Errorf("db error getting user %q: %w", username, err)
	}
	return &u, nil
}

func (ds *DatabaseService) UpdateAvatar(ctx context.Context, userID int64, avatarURL string) error {
	return ds.updateUserColumn(ctx, userID, "avatar_url", avatarURL)
}

func (ds *DatabaseService) UpdateDisplayName(ctx context.Context, userID int64, displayName string) error {
	return ds.updateUserColumn(ctx, userID, "display_name", displayName)
}

func (ds *DatabaseService) updateUserColumn(ctx context.Context, userID int64, column, value string) error {
	res, err := ds.DB.ExecContext(ctx, "UPDATE user SET "+column+" = ? WHERE id = ?", value, userID)
	if err != nil {
		return fmt.Errorf("failed to update %s for user %d: %w", column, userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	return nil
}

// EnsureAdmin creates the admin account if no user named "admin" exists yet.
// It reports whether a row was inserted.
func (ds *DatabaseService) EnsureAdmin(ctx context.Context, hashedPassword string) (bool, error) {
	_, err := ds.GetUserByUsername(ctx, "admin")
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, err
	}

	admin := &models.User{
		Username:       "admin",
		DisplayName:    "Head of Family",
		HashedPassword: hashedPassword,
		Role:           models.RoleAdmin,
		AvatarURL:      config.DefaultAvatarURL,
	}
	if err := ds.CreateUser(ctx, admin); err != nil {
		if IsUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to seed admin: %w", err)
	}
	return true, nil
}
