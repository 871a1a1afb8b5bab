package handlers

import (
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/caselight/caselight-backend/internal/http/response"
	"github.com/caselight/caselight-backend/internal/ingest"
)

type IngestHandler struct {
	ingest ingest.Service
}

func NewIngestHandler(svc ingest.Service) *IngestHandler {
	return &IngestHandler{ingest: svc}
}

// POST /api/ingest/scan
// Walks a server-local folder and ingests every supported file.
func (h *IngestHandler) ScanFolder(c *gin.Context) {
	var req struct {
		Dir       string     `json:"dir"`
		ProjectID *uuid.UUID `json:"project_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.Dir == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_dir", fmt.Errorf("dir is required"))
		return
	}
	info, err := os.Stat(req.Dir)
	if err != nil || !info.IsDir() {
		response.RespondError(c, http.StatusBadRequest, "invalid_dir", fmt.Errorf("%q is not a readable directory", req.Dir))
		return
	}

	summary, err := ingest.ScanFolder(c.Request.Context(), h.ingest, req.Dir, req.ProjectID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "scan_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"summary": summary})
}
