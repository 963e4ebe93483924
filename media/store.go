package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"familybook/config"

	"github.com/google/uuid"
)

// AssetClass groups stored files by purpose; each class has its own directory.
type AssetClass string

const (
	Avatars AssetClass = "avatars"
	Posts   AssetClass = "posts"
)

// Store saves normalized images and removes them again by public reference.
type Store interface {
	// SaveImage normalizes src and stores it under a fresh random name.
	// Normalization failures wrap ErrNormalize.
	SaveImage(ctx context.Context, class AssetClass, src io.Reader) (string, error)
	// Delete removes the file behind ref. Missing files and the shared
	// default avatar are not errors.
	Delete(ctx context.Context, class AssetClass, ref string) error
}

// NewAssetName returns an opaque random filename with the fixed image extension.
func NewAssetName() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + config.ImageExt
}

// IsDefaultAsset reports whether ref points at a shared asset no user owns.
func IsDefaultAsset(ref string) bool {
	return ref == "" || path.Base(ref) == path.Base(config.DefaultAvatarURL)
}

// baseName reduces a caller-supplied reference to a bare filename, or "" if
// nothing usable remains.
func baseName(ref string) string {
	name := filepath.Base(path.Base(filepath.ToSlash(ref)))
	switch name {
	case ".", "..", "/", `\`:
		return ""
	}
	return name
}

// LocalStorage implements Store on local disk.
type LocalStorage struct {
	dirs   map[AssetClass]string
	public map[AssetClass]string
	logger *slog.Logger
}

// NewLocalStorage creates both class directories if they do not exist.
func NewLocalStorage(avatarsDir, postsDir string, logger *slog.Logger) (*LocalStorage, error) {
	ls := &LocalStorage{
		dirs: map[AssetClass]string{
			Avatars: filepath.Clean(avatarsDir),
			Posts:   filepath.Clean(postsDir),
		},
		public: map[AssetClass]string{
			Avatars: config.AvatarsPublicPrefix,
			Posts:   config.PostsPublicPrefix,
		},
		logger: logger,
	}
	for class, dir := range ls.dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory %s: %w", class, dir, err)
		}
	}
	return ls, nil
}

// Dir returns the managed directory for class.
func (ls *LocalStorage) Dir(class AssetClass) string {
	return ls.dirs[class]
}

// Resolve maps a stored reference back to its on-disk path inside the managed
// directory. Only the base filename of ref is used.
func (ls *LocalStorage) Resolve(class AssetClass, ref string) (string, error) {
	dir, ok := ls.dirs[class]
	if !ok {
		return "", fmt.Errorf("unknown asset class %q", class)
	}
	name := baseName(ref)
	if name == "" {
		return "", fmt.Errorf("unusable asset reference %q", ref)
	}
	return filepath.Join(dir, name), nil
}

func (ls *LocalStorage) SaveImage(_ context.Context, class AssetClass, src io.Reader) (string, error) {
	dir, ok := ls.dirs[class]
	if !ok {
		return "", fmt.Errorf("unknown asset class %q", class)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s directory: %w", class, err)
	}

	target := filepath.Join(dir, NewAssetName())
	written, ok := NormalizeToFile(src, target, ls.logger)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNormalize, filepath.Base(target))
	}
	return ls.public[class] + filepath.Base(written), nil
}

func (ls *LocalStorage) Delete(_ context.Context, class AssetClass, ref string) error {
	if IsDefaultAsset(ref) {
		return nil
	}
	fullPath, err := ls.Resolve(class, ref)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to remove %s: %w", fullPath, err)
	}
	return nil
}
