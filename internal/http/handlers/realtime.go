package handlers

import (
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/caselight/caselight-backend/internal/platform/logger"
	"github.com/caselight/caselight-backend/internal/realtime"
)

type RealtimeHandler struct {
	log *logger.Logger
	hub *realtime.Hub
}

func NewRealtimeHandler(baseLog *logger.Logger, hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{log: baseLog.With("handler", "RealtimeHandler"), hub: hub}
}

// GET /api/events/stream
// Server-sent events; one "message" event per job/document event. Dropped
// events are acceptable, clients reconcile from the database.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	events, cancel := h.hub.Subscribe()
	defer cancel()
	h.log.Info("SSE stream opened", "subscribers", h.hub.SubscriberCount())

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.log.Warn("Failed to marshal event", "error", err)
				return true
			}
			c.SSEvent("message", string(data))
			return true
		}
	})
	h.log.Info("SSE stream closed")
}
