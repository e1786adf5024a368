package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Dosada05/bracket-engine/services"
)

// multipart overhead on top of the file itself
const attachmentFormSlack = 1 << 20

type AttachmentHandler struct {
	attachmentService services.AttachmentService
}

func NewAttachmentHandler(attachmentService services.AttachmentService) *AttachmentHandler {
	return &AttachmentHandler{attachmentService: attachmentService}
}

// UploadAttachmentHandler accepts a multipart form with a "file" part and a "kind" field
// (screenshot or evidence) and returns the public URL to reference from a result or dispute.
func (h *AttachmentHandler) UploadAttachmentHandler(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, services.MaxAttachmentSize+attachmentFormSlack)
	if err := r.ParseMultipartForm(services.MaxAttachmentSize); err != nil {
		badRequestResponse(w, r, fmt.Errorf("failed to parse multipart form: %w", err))
		return
	}

	kind := services.AttachmentKind(r.FormValue("kind"))
	if kind == "" {
		kind = services.AttachmentScreenshot
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		badRequestResponse(w, r, fmt.Errorf("failed to get file from form: %w", err))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		badRequestResponse(w, r, errors.New("content-type header is required for file"))
		return
	}

	attachment, err := h.attachmentService.Upload(r.Context(), callerFrom(r), matchID, kind, contentType, file)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"attachment": attachment}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
