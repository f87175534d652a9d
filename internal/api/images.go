package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/nfnt/resize"
)

var allowedExtensions = map[string]bool{
	".jpeg": true,
	".jpg":  true,
	".png":  true,
}

// imageHash names uploaded images by content so re-uploads overwrite.
func imageHash(imageData []byte) string {
	hash := sha256.Sum256(imageData)
	return hex.EncodeToString(hash[:])
}

// savedImage is an image written by saveImage. created is false when a file
// with the same content hash was already on disk.
type savedImage struct {
	path    string
	created bool
}

// discard removes the file if this upload created it. Files that predate the
// upload may back other menu items and are kept.
func (s savedImage) discard() error {
	if !s.created {
		return nil
	}
	return os.Remove(s.path)
}

// saveImage decodes, resizes to 800px wide and writes the image under dir.
func saveImage(dir string, imageData []byte, hash string, extension string) (savedImage, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return savedImage{}, fmt.Errorf("failed to decode image: %w", err)
	}

	img = resize.Resize(800, 0, img, resize.Lanczos3)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return savedImage{}, fmt.Errorf("failed to create images directory: %w", err)
	}

	saved := savedImage{path: filepath.Join(dir, hash+extension)}
	if _, err := os.Stat(saved.path); errors.Is(err, fs.ErrNotExist) {
		saved.created = true
	}
	out, err := os.Create(saved.path)
	if err != nil {
		return savedImage{}, fmt.Errorf("failed to create image file: %w", err)
	}
	defer out.Close()

	switch extension {
	case ".jpeg", ".jpg":
		err = jpeg.Encode(out, img, nil)
	case ".png":
		err = png.Encode(out, img)
	default:
		err = fmt.Errorf("unsupported image format: %s", extension)
	}
	if err != nil {
		_ = saved.discard()
		return savedImage{}, fmt.Errorf("failed to encode image: %w", err)
	}

	return saved, nil
}
