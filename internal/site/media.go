package site

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"eventsite/internal/fileutil"
	"eventsite/internal/logger"
)

// AllowedImageExtensions are the upload types accepted for the home image.
var AllowedImageExtensions = []string{"png", "jpg", "jpeg", "gif"}

var (
	ErrFileType    = errors.New("file type not allowed")
	ErrBadFilename = errors.New("invalid file name")
)

// MediaStore keeps uploaded files by name.
type MediaStore interface {
	Store(name string, body io.Reader) error
}

// LocalMedia stores uploads in a directory.
type LocalMedia struct {
	dir string
}

func NewLocalMedia(dir string) *LocalMedia {
	return &LocalMedia{dir: dir}
}

func (m *LocalMedia) Dir() string { return m.dir }

func (m *LocalMedia) Store(name string, body io.Reader) error {
	if name != filepath.Base(name) || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrBadFilename, name)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read upload %s: %w", name, err)
	}
	return fileutil.WriteFileAtomic(filepath.Join(m.dir, name), data, 0o644)
}

// Path resolves a stored file; ok is false when it does not exist.
func (m *LocalMedia) Path(name string) (string, bool) {
	name = SecureFilename(name)
	if name == "" {
		return "", false
	}
	p := filepath.Join(m.dir, name)
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return "", false
	}
	return p, true
}

// AllowedImage reports whether filename has an accepted image extension.
func AllowedImage(filename string) bool {
	i := strings.LastIndex(filename, ".")
	if i < 0 {
		return false
	}
	ext := strings.ToLower(filename[i+1:])
	for _, allowed := range AllowedImageExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SecureFilename reduces a client supplied name to a flat ASCII file
// name. Path separators become underscores; the result may be empty.
func SecureFilename(name string) string {
	name = strings.NewReplacer("/", " ", "\\", " ").Replace(name)
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	return strings.Trim(name, "._")
}

// StoreHomeImage validates and stores an uploaded image and returns the
// name it was stored under. The document is not changed; pass the name
// as "home-image" to SaveSections or call SetHomeImage.
func (s *Service) StoreHomeImage(filename string, body io.Reader) (string, error) {
	if s.media == nil {
		return "", ErrNoMediaStore
	}
	if !AllowedImage(filename) {
		return "", fmt.Errorf("%w: %q", ErrFileType, filename)
	}
	name := SecureFilename(filename)
	if name == "" || !AllowedImage(name) {
		return "", fmt.Errorf("%w: %q", ErrBadFilename, filename)
	}
	if err := s.media.Store(name, body); err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	logger.LogInfo("Stored uploaded image %s", name)
	return name, nil
}
