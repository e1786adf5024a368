package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Dosada05/bracket-engine/models"
	"github.com/Dosada05/bracket-engine/repositories"
	"github.com/Dosada05/bracket-engine/storage"
	"github.com/google/uuid"
)

// MaxAttachmentSize caps screenshots and evidence files.
const MaxAttachmentSize = 10 << 20

type AttachmentKind string

const (
	AttachmentScreenshot AttachmentKind = "screenshot"
	AttachmentEvidence   AttachmentKind = "evidence"
)

func (k AttachmentKind) Valid() bool {
	return k == AttachmentScreenshot || k == AttachmentEvidence
}

type Attachment struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// AttachmentService stores files that results and disputes later reference by URL.
type AttachmentService interface {
	Upload(ctx context.Context, auth models.AuthContext, matchID uuid.UUID, kind AttachmentKind, contentType string, body io.Reader) (*Attachment, error)
}

type attachmentService struct {
	matchRepo repositories.MatchRepository
	uploader  storage.FileUploader
	logger    *slog.Logger
}

func NewAttachmentService(matchRepo repositories.MatchRepository, uploader storage.FileUploader, logger *slog.Logger) AttachmentService {
	return &attachmentService{matchRepo: matchRepo, uploader: uploader, logger: logger}
}

func (s *attachmentService) Upload(ctx context.Context, auth models.AuthContext, matchID uuid.UUID, kind AttachmentKind, contentType string, body io.Reader) (*Attachment, error) {
	if auth.IsAnonymous() {
		return nil, ErrNotAParticipant
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown attachment kind %q", ErrValidationFailed, kind)
	}
	ext, err := GetExtensionFromContentType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedAttachment, err)
	}
	if s.uploader == nil {
		return nil, fmt.Errorf("%w: file storage is not configured", ErrExternalService)
	}

	match, err := s.matchRepo.GetByID(ctx, nil, matchID)
	if err != nil {
		return nil, mapMatchRepoError(err)
	}
	if !match.HasPlayer(auth.UserID) {
		return nil, ErrNotAParticipant
	}

	// buffered so the S3 client gets a seekable body with a known length
	data, err := io.ReadAll(io.LimitReader(body, MaxAttachmentSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: attachment is empty", ErrValidationFailed)
	}
	if len(data) > MaxAttachmentSize {
		return nil, fmt.Errorf("%w: attachment exceeds %d bytes", ErrValidationFailed, MaxAttachmentSize)
	}

	key := storage.MatchAttachmentKey(match.TournamentID, match.ID, string(kind), auth.UserID, ext)
	result, err := s.uploader.Upload(ctx, key, contentType, bytes.NewReader(data))
	if err != nil {
		s.logger.ErrorContext(ctx, "attachment upload failed", slog.String("match_id", matchID.String()), slog.String("key", key), slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", ErrExternalService, err)
	}

	s.logger.InfoContext(ctx, "attachment uploaded",
		slog.String("match_id", matchID.String()),
		slog.String("kind", string(kind)),
		slog.Int("bytes", len(data)),
	)
	return &Attachment{Key: result.Key, URL: result.Location}, nil
}

// GetExtensionFromContentType maps an image content type to a file extension.
func GetExtensionFromContentType(contentType string) (string, error) {
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	switch mediaType {
	case "image/jpeg", "image/jpg":
		return ".jpg", nil
	case "image/png":
		return ".png", nil
	case "image/gif":
		return ".gif", nil
	case "image/webp":
		return ".webp", nil
	case "application/pdf":
		return ".pdf", nil
	}
	return "", fmt.Errorf("could not determine file extension from content type: '%s'", contentType)
}
