package handlers

import (
	"net/http"
	"path/filepath"
)

// HandleDatabaseBackup writes a consistent copy of the database to the backup dir.
func HandleDatabaseBackup(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleDatabaseBackup")
	user, _ := currentUser(r)

	backupPath, err := app.DB().BackupDatabase(r.Context(), app.Settings().BackupDir)
	if err != nil {
		logger.Error("Failed to create database backup", "error", err)
		redirect(w, r, app, "/", FlashError, "The backup could not be created.")
		return
	}
	logger.Info("Database backup created successfully", "action", "DB_BACKUP", "user_id", user.ID, "path", backupPath)
	redirect(w, r, app, "/", FlashSuccess, "Backup saved as "+filepath.Base(backupPath)+".")
}
