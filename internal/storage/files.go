// Package storage keeps submitted report files.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/reporttrack/internal/models"
)

// Upload describes a file to store.
type Upload struct {
	FileName    string
	ContentType string
	Folder      string // optional grouping, e.g. the entity tax id
}

// Stored identifies a stored file and where it can be viewed.
type Stored struct {
	FileID  string `json:"file_id"`
	ViewURL string `json:"view_url"`
}

// FileStore persists uploads on an afero filesystem under root. File ids are
// "<folder>/<uuid>-<name>" and double as the relative path.
type FileStore struct {
	fs      afero.Fs
	root    string
	baseURL string
}

func NewFileStore(fs afero.Fs, root, baseURL string) *FileStore {
	return &FileStore{fs: fs, root: root, baseURL: strings.TrimRight(baseURL, "/")}
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func sanitize(name string) string {
	name = unsafeChars.ReplaceAllString(filepath.Base(name), "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "file"
	}
	return name
}

// Upload writes r to a new file and returns its id and view URL.
func (s *FileStore) Upload(ctx context.Context, r io.Reader, meta Upload) (Stored, error) {
	if err := ctx.Err(); err != nil {
		return Stored{}, err
	}

	folder := "misc"
	if meta.Folder != "" {
		folder = sanitize(meta.Folder)
	}
	fileID := path.Join(folder, uuid.NewString()+"-"+sanitize(meta.FileName))
	full := filepath.Join(s.root, filepath.FromSlash(fileID))

	if err := s.fs.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return Stored{}, fmt.Errorf("%w: failed to create folder: %v", models.ErrDeliveryFailure, err)
	}
	f, err := s.fs.Create(full)
	if err != nil {
		return Stored{}, fmt.Errorf("%w: failed to create file: %v", models.ErrDeliveryFailure, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = s.fs.Remove(full)
		return Stored{}, fmt.Errorf("%w: failed to write file: %v", models.ErrDeliveryFailure, err)
	}
	if err := f.Close(); err != nil {
		return Stored{}, fmt.Errorf("%w: failed to close file: %v", models.ErrDeliveryFailure, err)
	}

	return Stored{FileID: fileID, ViewURL: s.ViewURL(fileID)}, nil
}

// Open returns a reader for a stored file.
func (s *FileStore) Open(fileID string) (afero.File, error) {
	full, err := s.resolve(fileID)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file %s: %w", fileID, models.ErrNotFound)
		}
		return nil, err
	}
	return f, nil
}

// Delete removes a stored file. Deleting a missing file is not an error.
func (s *FileStore) Delete(ctx context.Context, fileID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(fileID)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: failed to delete file %s: %v", models.ErrDeliveryFailure, fileID, err)
	}
	return nil
}

func (s *FileStore) ViewURL(fileID string) string {
	return s.baseURL + "/" + fileID
}

// resolve maps an id to a path under root, rejecting ids that escape it.
func (s *FileStore) resolve(fileID string) (string, error) {
	clean := path.Clean("/" + fileID)
	if fileID == "" || clean == "/" || clean != "/"+fileID {
		return "", fmt.Errorf("invalid file id %q: %w", fileID, models.ErrNotFound)
	}
	return filepath.Join(s.root, filepath.FromSlash(fileID)), nil
}
