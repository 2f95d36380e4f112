// Package storage keeps uploaded photos on the local filesystem. Callers only
// ever record the returned file name.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store is the photo storage collaborator.
type Store interface {
	Save(ctx context.Context, folder, originalName string, r io.Reader) (string, error)
	Delete(ctx context.Context, folder, name string) error
	Path(folder, name string) string
}

var (
	ErrUnsupportedType = errors.New("unsupported photo type")
	ErrTooLarge        = errors.New("photo exceeds size limit")
)

// MaxPhotoBytes bounds a single upload.
const MaxPhotoBytes = 5 << 20

var allowedExt = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}

type LocalStore struct {
	root string
}

func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

// Save writes r under folder with a fresh uuid name keeping the original
// extension, and returns that name.
func (s *LocalStore) Save(ctx context.Context, folder, originalName string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if !allowedExt[ext] {
		return "", ErrUnsupportedType
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Join(s.root, filepath.Base(folder))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create photo dir: %w", err)
	}

	name := uuid.NewString() + ext
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("create photo: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(r, MaxPhotoBytes+1))
	closeErr := f.Close()
	if err == nil && n > MaxPhotoBytes {
		err = ErrTooLarge
	}
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(filepath.Join(dir, name))
		return "", err
	}
	return name, nil
}

// Delete removes a stored photo. Missing files are not an error.
func (s *LocalStore) Delete(_ context.Context, folder, name string) error {
	if name == "" {
		return nil
	}
	err := os.Remove(s.Path(folder, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete photo: %w", err)
	}
	return nil
}

// Path resolves a stored photo, refusing anything that escapes the folder.
func (s *LocalStore) Path(folder, name string) string {
	return filepath.Join(s.root, filepath.Base(folder), filepath.Base(name))
}
