// Package media turns uploaded images into normalized WebP files and manages
// where those files live.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"familybook/config"

	"github.com/disintegration/imaging"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
	_ "golang.org/x/image/webp"
)

// ErrNormalize marks a single upload that could not be turned into an image.
var ErrNormalize = errors.New("image normalization failed")

// Normalize decodes src, applies EXIF orientation, removes transparency,
// shrinks the image to fit config.MaxWidth x config.MaxHeight and writes it
// to dst as lossy WebP.
func Normalize(src io.Reader, dst io.Writer) error {
	data, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("%w: read: %w", ErrNormalize, err)
	}

	reader := bytes.NewReader(data)
	cfg, _, err := image.DecodeConfig(reader)
	if err != nil {
		return fmt.Errorf("%w: decode config: %w", ErrNormalize, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > config.MaxSourcePixels {
		return fmt.Errorf("%w: image dimensions (%dx%d) exceed %d pixels", ErrNormalize, cfg.Width, cfg.Height, config.MaxSourcePixels)
	}
	if _, err := reader.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: could not reset reader position: %w", ErrNormalize, err)
	}

	img, err := imaging.Decode(reader, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("%w: decode: %w", ErrNormalize, err)
	}

	img = flatten(img)

	// Fit never upscales: images already inside the box come back unchanged.
	img = imaging.Fit(img, config.MaxWidth, config.MaxHeight, imaging.Lanczos)

	opts, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, config.WebPQuality)
	if err != nil {
		return fmt.Errorf("%w: encoder options: %w", ErrNormalize, err)
	}
	opts.Method = config.WebPMethod

	if err := webp.Encode(dst, img, opts); err != nil {
		return fmt.Errorf("%w: encode: %w", ErrNormalize, err)
	}
	return nil
}

// NormalizeToFile normalizes src into target with its extension replaced by
// config.ImageExt. It returns the written path, or false after logging the
// failure. No file is left behind on failure.
func NormalizeToFile(src io.Reader, target string, logger *slog.Logger) (string, bool) {
	final := strings.TrimSuffix(target, filepath.Ext(target)) + config.ImageExt

	var buf bytes.Buffer
	if err := Normalize(src, &buf); err != nil {
		logger.Error("IMAGE_PROCESSING_ERROR", "path", target, "error", err)
		return "", false
	}

	if err := os.WriteFile(final, buf.Bytes(), 0644); err != nil {
		if removeErr := os.Remove(final); removeErr != nil && !os.IsNotExist(removeErr) {
			logger.Error("Failed to remove partial image file", "path", final, "error", removeErr)
		}
		logger.Error("IMAGE_PROCESSING_ERROR", "path", target, "error", err)
		return "", false
	}
	return final, true
}

// flatten composites images with any transparency onto an opaque white
// canvas of the same size. Opaque images are returned untouched.
func flatten(img image.Image) image.Image {
	if !hasTransparency(img) {
		return img
	}
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

func hasTransparency(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return true
			}
		}
	}
	return false
}
