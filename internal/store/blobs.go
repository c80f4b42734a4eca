package store

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"splicer/internal/fileutil"
)

// Blobs is the local object store backing MediaItem storage keys. Keys are
// slash-separated relative paths under the media directory.
type Blobs struct {
	root string
}

// ErrInvalidKey is returned for storage keys that would escape the root.
var ErrInvalidKey = errors.New("invalid storage key")

// NewBlobs returns a blob store rooted at dir.
func NewBlobs(dir string) *Blobs {
	return &Blobs{root: dir}
}

// Root returns the directory backing the store.
func (b *Blobs) Root() string { return b.root }

// Path resolves a storage key to a filesystem path.
func (b *Blobs) Path(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(b.root, cleaned), nil
}

// Put writes r under key, replacing any existing object atomically.
func (b *Blobs) Put(key string, r io.Reader) (int64, error) {
	target, err := b.Path(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("create blob dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".blob-*")
	if err != nil {
		return 0, fmt.Errorf("create blob temp: %w", err)
	}
	tmpName := tmp.Name()
	n, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("write blob %s: %w", key, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("commit blob %s: %w", key, err)
	}
	return n, nil
}

// Import moves or copies an existing file into the store under key.
func (b *Blobs) Import(key, src string) error {
	target, err := b.Path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}
	if err := os.Rename(src, target); err == nil {
		return nil
	}
	// Cross-device: copy beside the target, verify, then swap it in.
	tmp, err := os.CreateTemp(filepath.Dir(target), ".import-*")
	if err != nil {
		return fmt.Errorf("create import temp: %w", err)
	}
	tmpName := tmp.Name()
	_ = tmp.Close()
	if _, err := fileutil.CopyVerified(src, tmpName); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("import %s: %w", key, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("commit import %s: %w", key, err)
	}
	return nil
}

// Open returns a reader for key.
func (b *Blobs) Open(key string) (*os.File, error) {
	target, err := b.Path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("blob %s: %w", key, ErrNotFound)
	}
	return f, err
}

// Exists reports whether key has an object.
func (b *Blobs) Exists(key string) bool {
	target, err := b.Path(key)
	if err != nil {
		return false
	}
	info, err := os.Stat(target)
	return err == nil && !info.IsDir()
}

// Remove deletes key. Removing a missing object is not an error.
func (b *Blobs) Remove(key string) error {
	target, err := b.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove blob %s: %w", key, err)
	}
	return nil
}
