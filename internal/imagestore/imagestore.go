/**
 * Uploaded-image store
 *
 * Persists uploaded images to a local directory and resolves opaque image
 * ids back to bytes plus pixel dimensions for the region pipeline.
 */

package imagestore

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/wakka810/web-ocr/internal/apperr"
)

// Image describes a stored upload
type Image struct {
	ID       string
	Filename string
	MimeType string
	Width    int
	Height   int
	Size     int64
}

var extByMime = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Store persists uploads under a directory, keyed by generated id
type Store struct {
	dir string

	mu    sync.RWMutex
	index map[string]Image
}

// NewStore creates the upload directory if needed and returns a store
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("upload directory is required")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	return &Store{
		dir:   dir,
		index: make(map[string]Image),
	}, nil
}

// Dir returns the directory backing the store
func (s *Store) Dir() string {
	return s.dir
}

// Supported reports whether the MIME type is an accepted image format
func Supported(mimeType string) bool {
	_, ok := extByMime[mimeType]
	return ok
}

// Save writes image data to disk and returns its metadata. The image must
// be decodable; uploads that only claim an image content type are rejected
// here.
func (s *Store) Save(data []byte, mimeType string) (*Image, error) {
	ext, ok := extByMime[mimeType]
	if !ok {
		return nil, apperr.InvalidRequest(fmt.Sprintf("unsupported image type: %s", mimeType))
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeUploadError, "uploaded data is not a decodable image", false, err)
	}

	id := uuid.NewString()
	filename := id + ext
	path := filepath.Join(s.dir, filename)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, apperr.Wrap(apperr.CodeUploadError, "failed to persist upload", false, err)
	}

	img := Image{
		ID:       id,
		Filename: filename,
		MimeType: mimeType,
		Width:    cfg.Width,
		Height:   cfg.Height,
		Size:     int64(len(data)),
	}

	s.mu.Lock()
	s.index[id] = img
	s.mu.Unlock()

	return &img, nil
}

// Get resolves an image id to its bytes and metadata
func (s *Store) Get(id string) ([]byte, *Image, error) {
	s.mu.RLock()
	img, ok := s.index[id]
	s.mu.RUnlock()

	if !ok {
		// The index is process-local; fall back to the directory so ids
		// from a previous run still resolve.
		found, err := s.recover(id)
		if err != nil {
			return nil, nil, err
		}
		img = *found
	}

	data, err := os.ReadFile(filepath.Join(s.dir, img.Filename))
	if err != nil {
		return nil, nil, apperr.ImageNotFound(id)
	}

	return data, &img, nil
}

// recover rebuilds index metadata for an id found on disk
func (s *Store) recover(id string) (*Image, error) {
	if id == "" || strings.ContainsAny(id, `/\.`) {
		return nil, apperr.ImageNotFound(id)
	}

	matches, err := filepath.Glob(filepath.Join(s.dir, id+".*"))
	if err != nil || len(matches) == 0 {
		return nil, apperr.ImageNotFound(id)
	}

	path := matches[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.ImageNotFound(id)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeUploadError, "stored file is not a decodable image", false, err)
	}

	mimeType := "image/" + format
	if format == "jpeg" {
		mimeType = "image/jpeg"
	}

	img := Image{
		ID:       id,
		Filename: filepath.Base(path),
		MimeType: mimeType,
		Width:    cfg.Width,
		Height:   cfg.Height,
		Size:     int64(len(data)),
	}

	s.mu.Lock()
	s.index[id] = img
	s.mu.Unlock()

	return &img, nil
}
