// Package filestore keeps uploaded interview media on the local disk until
// the transcription provider has consumed it.
package filestore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-interview-auditor/internal/domain"
)

// UploadStore stores each upload as <ulid><ext> under Dir.
type UploadStore struct {
	Dir string
}

var _ domain.UploadStore = (*UploadStore)(nil)

// NewUploadStore creates dir if needed and returns a store rooted there.
func NewUploadStore(dir string) (*UploadStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("op=upload_store.new: %w", err)
	}
	return &UploadStore{Dir: dir}, nil
}

// Save writes data and returns the generated upload id.
func (s *UploadStore) Save(ctx domain.Context, filename string, data []byte) (string, error) {
	_, span := otel.Tracer("repo.uploads").Start(ctx, "uploads.Save")
	defer span.End()

	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\`) {
		ext = ""
	}
	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String() + ext
	span.SetAttributes(attribute.String("upload.id", id), attribute.Int("upload.size", len(data)))

	tmp := filepath.Join(s.Dir, "."+id+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return "", fmt.Errorf("op=upload_store.save: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.Dir, id)); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("op=upload_store.save: %w", err)
	}
	return id, nil
}

// Path returns the file path of an upload.
func (s *UploadStore) Path(_ domain.Context, uploadID string) (string, error) {
	p, err := s.resolve(uploadID)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("op=upload_store.path: %s: %w", uploadID, domain.ErrNotFound)
		}
		return "", fmt.Errorf("op=upload_store.path: %w", err)
	}
	return p, nil
}

// Remove deletes an upload.
func (s *UploadStore) Remove(_ domain.Context, uploadID string) error {
	p, err := s.resolve(uploadID)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("op=upload_store.remove: %s: %w", uploadID, domain.ErrNotFound)
		}
		return fmt.Errorf("op=upload_store.remove: %w", err)
	}
	return nil
}

// Prune deletes uploads last modified before cutoff and returns how many were removed.
func (s *UploadStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return 0, fmt.Errorf("op=upload_store.prune: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.Dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// resolve maps an id to a path inside Dir, rejecting anything that could escape it.
func (s *UploadStore) resolve(uploadID string) (string, error) {
	if uploadID == "" || uploadID != filepath.Base(uploadID) || strings.HasPrefix(uploadID, ".") {
		return "", fmt.Errorf("op=upload_store: bad upload id %q: %w", uploadID, domain.ErrInvalidArgument)
	}
	return filepath.Join(s.Dir, uploadID), nil
}
