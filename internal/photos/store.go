// Package photos keeps contact pictures on disk, one file per person.
package photos

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"contact-sync/internal/common/errors"
)

// refPrefix marks person photo values that point into a Store.
const refPrefix = "photo:"

// maxPhotoSize bounds a single stored picture.
const maxPhotoSize = 10 << 20

// Store persists photo payloads keyed by user and person and hands back a
// stable reference to save on the person.
type Store interface {
	Save(ctx context.Context, userID, personID string, data []byte, mediaType string) (string, error)
	Load(ctx context.Context, ref string) ([]byte, string, error)
	Delete(ctx context.Context, ref string) error
}

// IsRef reports whether a person's photo value was produced by a Store.
func IsRef(value string) bool {
	return strings.HasPrefix(value, refPrefix)
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/heic": ".heic",
	"image/bmp":  ".bmp",
}

// FileStore writes photos to <root>/<userID>/<personID><ext>.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, errors.ConfigError("photo directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.ConfigError("failed to create photo directory").WithCause(err)
	}
	return &FileStore{root: root}, nil
}

// Save replaces any earlier photo of the person.
func (s *FileStore) Save(ctx context.Context, userID, personID string, data []byte, mediaType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", errors.ValidationError("photo is empty")
	}
	if len(data) > maxPhotoSize {
		return "", errors.ValidationError(fmt.Sprintf("photo exceeds %d bytes", maxPhotoSize))
	}
	if !safeSegment(userID) || !safeSegment(personID) {
		return "", errors.ValidationError("invalid photo owner")
	}

	ext, ok := extensions[strings.ToLower(mediaType)]
	if !ok {
		ext = ".jpg"
	}
	dir := filepath.Join(s.root, userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.InternalError("failed to create photo directory", err)
	}

	// Drop pictures of the same person stored under another extension.
	if old, _ := filepath.Glob(filepath.Join(dir, personID+".*")); len(old) > 0 {
		for _, f := range old {
			if filepath.Ext(f) != ext {
				os.Remove(f)
			}
		}
	}

	tmp, err := os.CreateTemp(dir, personID+"-*.tmp")
	if err != nil {
		return "", errors.InternalError("failed to write photo", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", errors.InternalError("failed to write photo", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", errors.InternalError("failed to write photo", err)
	}
	name := personID + ext
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		os.Remove(tmp.Name())
		return "", errors.InternalError("failed to store photo", err)
	}
	return refPrefix + userID + "/" + name, nil
}

// Load returns the bytes and media type behind ref.
func (s *FileStore) Load(ctx context.Context, ref string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	path, err := s.path(ref)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, "", errors.NotFoundError("photo")
	}
	if err != nil {
		return nil, "", errors.InternalError("failed to read photo", err)
	}
	mediaType := mime.TypeByExtension(filepath.Ext(path))
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	return data, mediaType, nil
}

func (s *FileStore) Delete(ctx context.Context, ref string) error {
	path, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.InternalError("failed to delete photo", err)
	}
	return nil
}

func (s *FileStore) path(ref string) (string, error) {
	if !IsRef(ref) {
		return "", errors.ValidationError("not a stored photo reference")
	}
	userID, name, ok := strings.Cut(strings.TrimPrefix(ref, refPrefix), "/")
	if !ok || !safeSegment(userID) || !safeSegment(name) {
		return "", errors.ValidationError("malformed photo reference")
	}
	return filepath.Join(s.root, userID, name), nil
}

func safeSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`) && !strings.Contains(s, "..")
}

var _ Store = (*FileStore)(nil)
