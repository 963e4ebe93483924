package media

import (
	"image/color"
	"log/slog"
	"os"
	"path/filepath"

	"familybook/config"

	"github.com/disintegration/imaging"
)

// EnsureDefaultAvatar writes a plain placeholder for the shared default
// avatar if staticDir does not already have one.
func EnsureDefaultAvatar(staticDir string, logger *slog.Logger) {
	placeholderPath := filepath.Join(staticDir, filepath.Base(config.DefaultAvatarURL))
	if _, err := os.Stat(placeholderPath); err == nil {
		return
	}
	if err := os.MkdirAll(staticDir, 0755); err != nil {
		logger.Error("Error creating static directory", "path", staticDir, "error", err)
		return
	}

	img := imaging.New(128, 128, color.NRGBA{R: 0xf2, G: 0xc9, B: 0x8b, A: 0xff})
	if err := imaging.Save(img, placeholderPath); err != nil {
		logger.Error("Error writing default avatar", "path", placeholderPath, "error", err)
		return
	}
	logger.Info("Created missing default avatar", "path", placeholderPath)
}
