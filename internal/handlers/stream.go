package handlers

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/vaibh/video-segmenter/internal/gateway"
	"github.com/vaibh/video-segmenter/internal/types"
)

// StreamHandler pushes live job status over a WebSocket so clients do not
// have to poll GET /jobs/:id themselves.
type StreamHandler struct {
	gateway  *gateway.Gateway
	interval time.Duration
}

func NewStreamHandler(gw *gateway.Gateway) *StreamHandler {
	return &StreamHandler{gateway: gw, interval: time.Second}
}

// Handle streams status snapshots for the job in the :id route param
// until the job reaches a terminal state or the client goes away.
func (h *StreamHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	jobID := c.Params("id")
	if jobID == "" {
		c.WriteJSON(map[string]string{"error": "job id required"})
		return
	}

	log.Printf("Status stream opened for job %s", jobID)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		res, err := h.gateway.Status(context.Background(), jobID)
		if err != nil {
			c.WriteJSON(map[string]string{"error": "job not found"})
			return
		}

		if err := c.WriteJSON(res); err != nil {
			log.Printf("Status stream for %s closed by client: %v", jobID, err)
			return
		}

		if res.Status == types.StatusCompleted || res.Status == types.StatusFailed {
			return
		}

		<-ticker.C
	}
}
