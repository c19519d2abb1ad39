package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/Rrens/kb-chat/internal/domain"
	"github.com/Rrens/kb-chat/internal/security"
	"github.com/rs/zerolog/log"
)

// UploadObserver counts upload attempts
type UploadObserver interface {
	ObserveUpload(err error)
}

// UploadService stores reference documents for the knowledge base
type UploadService struct {
	sessions  domain.SessionStore
	store     domain.ObjectStore
	validator *security.FileNameValidator
	prefix    string
	maxBytes  int64
	observer  UploadObserver
}

// NewUploadService creates a new upload service. A maxBytes of 0 means no limit.
func NewUploadService(
	sessions domain.SessionStore,
	store domain.ObjectStore,
	validator *security.FileNameValidator,
	prefix string,
	maxBytes int64,
	observer UploadObserver,
) *UploadService {
	return &UploadService{
		sessions:  sessions,
		store:     store,
		validator: validator,
		prefix:    strings.Trim(prefix, "/"),
		maxBytes:  maxBytes,
		observer:  observer,
	}
}

// MaxBytes returns the configured size limit
func (s *UploadService) MaxBytes() int64 {
	return s.maxBytes
}

// Upload stores body under its file name. The session is never modified.
func (s *UploadService) Upload(ctx context.Context, sessionID, fileName string, body io.Reader, size int64) (*domain.UploadResult, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if !sess.Authenticated() {
		return nil, domain.ErrUnauthorized
	}

	if err := s.validator.Validate(fileName); err != nil {
		return nil, err
	}
	if s.maxBytes > 0 && size > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", domain.ErrFileTooLarge, size, s.maxBytes)
	}

	key := fileName
	if s.prefix != "" {
		key = path.Join(s.prefix, fileName)
	}
	contentType := contentTypeFor(fileName)

	err = s.store.Put(ctx, key, body, size, contentType)
	if s.observer != nil {
		s.observer.ObserveUpload(err)
	}
	if err != nil {
		if !errors.Is(err, domain.ErrStorage) {
			err = fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
		log.Error().Err(err).Str("key", key).Msg("upload failed")
		return nil, err
	}

	log.Info().
		Str("key", key).
		Int64("size", size).
		Str("uploaded_by", sess.Identity.DisplayName()).
		Msg("document uploaded")

	return &domain.UploadResult{Key: key, Size: size, ContentType: contentType}, nil
}

func contentTypeFor(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == ".md" || ext == ".markdown" {
		return "text/markdown; charset=utf-8"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
