package handlers

import (
	"errors"
	"log"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/vaibh/video-segmenter/internal/gateway"
	"github.com/vaibh/video-segmenter/internal/planner"
	"github.com/vaibh/video-segmenter/internal/storage"
	"github.com/vaibh/video-segmenter/internal/types"
)

var videoExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".webm"}

// UploadHandler ingests direct file uploads.
type UploadHandler struct {
	gateway   *gateway.Gateway
	local     *storage.LocalStorage
	maxSizeMB int
}

func NewUploadHandler(gw *gateway.Gateway, local *storage.LocalStorage, maxSizeMB int) *UploadHandler {
	return &UploadHandler{gateway: gw, local: local, maxSizeMB: maxSizeMB}
}

// Handle processes the upload request.
func (h *UploadHandler) Handle(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "No file uploaded",
			"code":  "ERR_NO_FILE",
		})
	}

	maxSize := int64(h.maxSizeMB) * 1024 * 1024
	if file.Size > maxSize {
		return c.Status(400).JSON(fiber.Map{
			"error": "File too large",
			"code":  "ERR_FILE_TOO_LARGE",
		})
	}

	if !ValidVideoFilename(file.Filename) {
		return c.Status(400).JSON(fiber.Map{
			"error": "Unsupported video format",
			"code":  "ERR_INVALID_FORMAT",
		})
	}

	trim, err := trimFromForm(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": err.Error(),
			"code":  "ERR_INVALID_TRIM",
		})
	}

	assetID := uuid.New().String()

	src, err := file.Open()
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to read upload",
			"code":  "ERR_SAVE_FAILED",
		})
	}
	defer src.Close()

	path, size, err := h.local.SaveUpload(src, file.Filename, assetID)
	if err != nil {
		log.Printf("Failed to save uploaded file: %v", err)
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to save file",
			"code":  "ERR_SAVE_FAILED",
		})
	}

	handle, err := h.gateway.Submit(c.Context(), gateway.Submission{
		Asset: types.MediaAsset{
			ID:       assetID,
			Filename: file.Filename,
			Path:     path,
			Source:   types.SourceUpload,
			Size:     size,
		},
		Trim:        trim,
		RecipientID: c.FormValue("recipient_id"),
	})
	if err != nil {
		return submissionError(c, err)
	}

	return c.JSON(handle)
}

// ValidVideoFilename checks the extension against the supported formats.
func ValidVideoFilename(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, v := range videoExtensions {
		if ext == v {
			return true
		}
	}
	return false
}

// submissionError maps gateway errors onto HTTP responses: validation
// failures are the client's fault, everything else is ours.
func submissionError(c *fiber.Ctx, err error) error {
	var ve *planner.ValidationError
	if errors.As(err, &ve) {
		return c.Status(400).JSON(fiber.Map{
			"error": ve.Error(),
			"code":  "ERR_VALIDATION",
		})
	}
	log.Printf("Submission failed: %v", err)
	return c.Status(500).JSON(fiber.Map{
		"error": err.Error(),
		"code":  "ERR_SUBMISSION_FAILED",
	})
}
