package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"familybook/config"
	"familybook/media"
	"familybook/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u, err := env.users.Register(ctx, "  Grandma Rose ", "secret")
	require.NoError(t, err)
	assert.Equal(t, "Grandma Rose", u.DisplayName)
	assert.Regexp(t, `^user_[0-9a-f]{8}$`, u.Username)
	assert.Equal(t, models.RoleMember, u.Role)
	assert.Equal(t, config.DefaultAvatarURL, u.AvatarURL)
	assert.NotEqual(t, "secret", u.HashedPassword)

	other, err := env.users.Register(ctx, "Grandma Rose", "secret")
	require.NoError(t, err, "display names are not unique")
	assert.NotEqual(t, u.Username, other.Username)

	verbatim, err := env.users.Register(ctx, "Tom <3 & Jerry", "secret")
	require.NoError(t, err)
	assert.Equal(t, "Tom <3 & Jerry", verbatim.DisplayName)

	testCases := []struct {
		name, displayName, password string
	}{
		{"empty name", "   ", "secret"},
		{"whitespace only", "\t \n", "secret"},
		{"long name", strings.Repeat("n", config.MaxDisplayNameLen+1), "secret"},
		{"short password", "Valid", "12"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.users.Register(ctx, tc.displayName, tc.password)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	registered, err := env.users.Register(ctx, "Uncle Bob", "hunter2")
	require.NoError(t, err)

	u, err := env.users.Login(ctx, " Uncle Bob ", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, u.ID)

	_, err = env.users.Login(ctx, "Uncle Bob", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.users.Login(ctx, "Nobody", "hunter2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginSharedDisplayName(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	older, err := env.users.Register(ctx, "Sam", "first-sam")
	require.NoError(t, err)
	younger, err := env.users.Register(ctx, "Sam", "second-sam")
	require.NoError(t, err)

	u, err := env.users.Login(ctx, "Sam", "first-sam")
	require.NoError(t, err)
	assert.Equal(t, older.ID, u.ID)

	u, err = env.users.Login(ctx, "Sam", "second-sam")
	require.NoError(t, err, "a later member with the same name can still sign in")
	assert.Equal(t, younger.ID, u.ID)

	_, err = env.users.Login(ctx, "Sam", "third-sam")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSeedAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.users.SeedAdmin(ctx, "first"))
	require.NoError(t, env.users.SeedAdmin(ctx, "second"))

	admin, err := env.users.Login(ctx, "Head of Family", "first")
	require.NoError(t, err, "the first seed wins")
	assert.True(t, admin.IsAdmin())
}

func TestUpdateAvatar(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.member(t, "Alice")

	sharedDefault := filepath.Join(env.store.Dir(media.Avatars), filepath.Base(config.DefaultAvatarURL))
	require.NoError(t, os.WriteFile(sharedDefault, []byte("png"), 0644))

	first, err := env.users.UpdateAvatar(ctx, u.ID, upload("me.png", pngBytes(t, 64, 64)))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first, config.AvatarsPublicPrefix))
	assert.FileExists(t, sharedDefault, "default avatar is never deleted")

	second, err := env.users.UpdateAvatar(ctx, u.ID, upload("me2.jpg", pngBytes(t, 32, 32)))
	require.NoError(t, err)

	firstPath, _ := env.store.Resolve(media.Avatars, first)
	secondPath, _ := env.store.Resolve(media.Avatars, second)
	assert.NoFileExists(t, firstPath, "previous avatar is removed")
	assert.FileExists(t, secondPath)

	got, err := env.users.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, second, got.AvatarURL)

	t.Run("broken image keeps current avatar", func(t *testing.T) {
		_, err := env.users.UpdateAvatar(ctx, u.ID, upload("broken.png", []byte("junk")))
		assert.ErrorIs(t, err, media.ErrNormalize)

		got, err := env.users.Get(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, second, got.AvatarURL)
		assert.FileExists(t, secondPath)
	})

	t.Run("disallowed extension", func(t *testing.T) {
		_, err := env.users.UpdateAvatar(ctx, u.ID, upload("me.bmp", pngBytes(t, 8, 8)))
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := env.users.UpdateAvatar(ctx, 999, upload("me.png", pngBytes(t, 8, 8)))
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestRename(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.member(t, "Alice")

	name, err := env.users.Rename(ctx, u.ID, " Aunt Alice ")
	require.NoError(t, err)
	assert.Equal(t, "Aunt Alice", name)

	got, err := env.users.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Aunt Alice", got.DisplayName)

	_, err = env.users.Rename(ctx, u.ID, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = env.users.Rename(ctx, 999, "Ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
