package handlers

import (
	"log"
	"os"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/vaibh/video-segmenter/internal/gateway"
	"github.com/vaibh/video-segmenter/internal/resolver"
	"github.com/vaibh/video-segmenter/internal/types"
)

// URLHandler ingests remote sources by URL.
type URLHandler struct {
	gateway  *gateway.Gateway
	resolver *resolver.Resolver
}

func NewURLHandler(gw *gateway.Gateway, res *resolver.Resolver) *URLHandler {
	return &URLHandler{gateway: gw, resolver: res}
}

// URLRequest is the request body for /url submissions.
type URLRequest struct {
	URL         string      `json:"url"`
	Name        string      `json:"name"`
	Trim        TrimRequest `json:"trim"`
	RecipientID string      `json:"recipient_id"`
}

// Handle resolves the URL to a local file and submits it. Resolution
// errors reject the request; they never produce a FAILED job.
func (h *URLHandler) Handle(c *fiber.Ctx) error {
	var req URLRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
			"code":  "ERR_INVALID_BODY",
		})
	}
	if req.URL == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "URL is required",
			"code":  "ERR_NO_URL",
		})
	}

	assetID := uuid.New().String()

	path, err := h.resolver.Resolve(c.Context(), req.URL, assetID)
	if err != nil {
		log.Printf("Failed to resolve %s: %v", req.URL, err)
		return c.Status(400).JSON(fiber.Map{
			"error": "Could not download the remote source",
			"code":  "ERR_RESOLVE_FAILED",
		})
	}

	filename := req.Name
	if filename == "" {
		filename = filepath.Base(path)
	}

	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}

	handle, err := h.gateway.Submit(c.Context(), gateway.Submission{
		Asset: types.MediaAsset{
			ID:       assetID,
			Filename: filename,
			Path:     path,
			Source:   types.SourceURL,
			Size:     size,
		},
		Trim:        req.Trim.Spec(),
		RecipientID: req.RecipientID,
	})
	if err != nil {
		return submissionError(c, err)
	}

	return c.JSON(handle)
}
