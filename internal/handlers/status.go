package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/vaibh/video-segmenter/internal/gateway"
	"github.com/vaibh/video-segmenter/internal/storage"
	"github.com/vaibh/video-segmenter/internal/store"
)

// StatusHandler serves job status queries and segment listings.
type StatusHandler struct {
	gateway *gateway.Gateway
	db      *storage.MetadataDB
}

func NewStatusHandler(gw *gateway.Gateway, db *storage.MetadataDB) *StatusHandler {
	return &StatusHandler{gateway: gw, db: db}
}

// Job answers GET /jobs/:id.
func (h *StatusHandler) Job(c *fiber.Ctx) error {
	res, err := h.gateway.Status(c.Context(), c.Params("id"))
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(404).JSON(fiber.Map{
			"error": "Job not found",
			"code":  "ERR_JOB_NOT_FOUND",
		})
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(res)
}

// Jobs answers GET /jobs.
func (h *StatusHandler) Jobs(c *fiber.Ctx) error {
	return c.JSON(h.gateway.List())
}

// Asset answers GET /assets/:id from the provenance store.
func (h *StatusHandler) Asset(c *fiber.Ctx) error {
	asset, err := h.db.FindAssetByID(c.Params("id"))
	if err != nil {
		return c.Status(404).JSON(fiber.Map{
			"error": "Asset not found",
			"code":  "ERR_ASSET_NOT_FOUND",
		})
	}
	return c.JSON(asset)
}

// Segments answers GET /jobs/:id/segments from the provenance store.
func (h *StatusHandler) Segments(c *fiber.Ctx) error {
	segments, err := h.db.FindSegmentsByAssetID(c.Params("id"))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	if segments == nil {
		segments = []storage.SegmentRecord{}
	}
	return c.JSON(segments)
}
