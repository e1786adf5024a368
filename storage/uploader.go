package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

type UploadResult struct {
	Key      string
	Location string
	ETag     string
}

type FileUploader interface {
	Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error)

	Delete(ctx context.Context, key string) error

	GetPublicURL(key string) string
}

// MatchAttachmentKey builds the object key for a screenshot or dispute evidence file, e.g.
// tournaments/<t>/matches/<m>/screenshot/<user>-<random>.png.
func MatchAttachmentKey(tournamentID, matchID uuid.UUID, kind string, userID uuid.UUID, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("tournaments/%s/matches/%s/%s/%s-%s%s", tournamentID, matchID, kind, userID, uuid.NewString(), strings.ToLower(ext))
}
