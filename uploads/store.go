package uploads

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Artifact is an uploaded credentials file persisted to local disk.
type Artifact struct {
	Key      string `json:"key"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	SHA256   string `json:"sha256"`
}

// Store writes uploads under a single directory. Files are never removed by
// the store; retention is left to the operator.
type Store struct {
	dir      string
	maxBytes int64
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ErrTooLarge is returned when an upload exceeds the configured size.
var ErrTooLarge = errors.New("uploaded file exceeds size limit")

func NewStore(dir string, maxBytes int64) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", dir, err)
	}
	return &Store{dir: dir, maxBytes: maxBytes}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// Save copies r into a new file keyed by a fresh UUID. The declared filename
// is kept only as a sanitized suffix so concurrent uploads never collide.
func (s *Store) Save(filename string, r io.Reader) (*Artifact, error) {
	key := uuid.NewString()
	name := sanitizeFilename(filename)
	path := filepath.Join(s.dir, key+"-"+name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload file: %w", err)
	}

	hash := sha256.New()
	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	written, err := io.Copy(io.MultiWriter(f, hash), src)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && s.maxBytes > 0 && written > s.maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		os.Remove(path)
		if errors.Is(err, ErrTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to write upload file: %w", err)
	}

	return &Artifact{
		Key:      key,
		Filename: name,
		Path:     path,
		Size:     written,
		SHA256:   hex.EncodeToString(hash.Sum(nil)),
	}, nil
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "creds.json"
	}
	if len(name) > 64 {
		name = name[len(name)-64:]
	}
	return name
}
