package usecase

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/fairyhunter13/ai-interview-auditor/internal/domain"
)

// ErrUnsupportedMedia is returned for content that is neither audio, video nor plain text.
var ErrUnsupportedMedia = fmt.Errorf("%w: unsupported media type", domain.ErrInvalidArgument)

// Upload is the stored form of an interview recording or transcript file.
type Upload struct {
	ID       string `json:"upload_id"`
	Filename string `json:"filename"`
	MIME     string `json:"mime"`
	Size     int64  `json:"size"`
}

// UploadService validates and stores interview media.
type UploadService struct {
	Store    domain.UploadStore
	MaxBytes int64
}

// NewUploadService constructs an UploadService with the given store.
func NewUploadService(s domain.UploadStore, maxBytes int64) UploadService {
	return UploadService{Store: s, MaxBytes: maxBytes}
}

// Ingest sniffs the content type, rejects anything that is not audio,
// video or plain text, and stores the file.
func (s UploadService) Ingest(ctx domain.Context, filename string, data []byte) (Upload, error) {
	if len(data) == 0 {
		return Upload{}, fmt.Errorf("%w: empty file", domain.ErrInvalidArgument)
	}
	if s.MaxBytes > 0 && int64(len(data)) > s.MaxBytes {
		return Upload{}, fmt.Errorf("%w: file exceeds %d bytes", domain.ErrInvalidArgument, s.MaxBytes)
	}
	mt := mimetype.Detect(data)
	if !acceptedMedia(mt) {
		return Upload{}, fmt.Errorf("%w %s", ErrUnsupportedMedia, mt.String())
	}
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "." || name == "/" || name == "" {
		name = "upload" + mt.Extension()
	}
	id, err := s.Store.Save(ctx, name, data)
	if err != nil {
		return Upload{}, err
	}
	return Upload{ID: id, Filename: name, MIME: mt.String(), Size: int64(len(data))}, nil
}

func acceptedMedia(mt *mimetype.MIME) bool {
	if isPlainText(mt) {
		return true
	}
	for m := mt; m != nil; m = m.Parent() {
		top, _, _ := strings.Cut(m.String(), "/")
		if top == "audio" || top == "video" {
			return true
		}
	}
	return false
}

// isPlainText reports whether mt is text/plain or one of its descendants.
// Text uploads are transcripts and skip transcription.
func isPlainText(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}
