package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleDatabaseBackup(t *testing.T) {
	app, mux := setupTestApp(t)
	member := registerUser(t, app, "Alice")
	admin := seedAdmin(t, app)

	t.Run("anonymous", func(t *testing.T) {
		rr := sendForm(t, mux, "/admin/backup", nil)
		require.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "/login", rr.Header().Get("Location"))
	})

	t.Run("member is refused", func(t *testing.T) {
		rr := sendForm(t, mux, "/admin/backup", nil, sessionCookie(t, app, member))
		require.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, FlashError, flashOf(t, app, rr).Category)
		_, err := os.Stat(app.settings.BackupDir)
		assert.True(t, os.IsNotExist(err), "no backup is written")
	})

	t.Run("admin", func(t *testing.T) {
		rr := sendForm(t, mux, "/admin/backup", nil, sessionCookie(t, app, admin))
		require.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, FlashSuccess, flashOf(t, app, rr).Category)

		matches, err := filepath.Glob(filepath.Join(app.settings.BackupDir, "familybook_backup_*.db"))
		require.NoError(t, err)
		assert.Len(t, matches, 1)
	})
}
