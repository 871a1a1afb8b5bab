package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/caselight/caselight-backend/internal/domain"
	"github.com/caselight/caselight-backend/internal/http/response"
	"github.com/caselight/caselight-backend/internal/jobs/queue"
)

var enqueueableJobTypes = map[string]bool{
	types.JobTypeSplit:             true,
	types.JobTypeOCRPage:           true,
	types.JobTypeParseMiniDoc:      true,
	types.JobTypeEmbedChunk:        true,
	types.JobTypeRelationshipBuild: true,
}

type JobHandler struct {
	queue queue.Service
}

func NewJobHandler(q queue.Service) *JobHandler {
	return &JobHandler{queue: q}
}

// POST /api/jobs
func (h *JobHandler) EnqueueJob(c *gin.Context) {
	var req struct {
		JobType    string         `json:"job_type"`
		EntityType string         `json:"entity_type"`
		EntityID   *uuid.UUID     `json:"entity_id"`
		Payload    map[string]any `json:"payload"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if !enqueueableJobTypes[req.JobType] {
		response.RespondError(c, http.StatusBadRequest, "unknown_job_type",
			fmt.Errorf("job type %q not recognized", req.JobType))
		return
	}

	job, err := h.queue.Enqueue(c.Request.Context(), nil, req.JobType, req.EntityType, req.EntityID, req.Payload)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "enqueue_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"job": job})
}

// GET /api/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.queue.GetByID(c.Request.Context(), jobID)
	if err != nil {
		response.RespondError(c, http.StatusNotFound, "job_not_found", err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

// GET /api/jobs
func (h *JobHandler) ListJobs(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			response.RespondError(c, http.StatusBadRequest, "invalid_limit",
				fmt.Errorf("limit must be an integer in [1,500]"))
			return
		}
		limit = n
	}
	jobs, err := h.queue.ListRecent(c.Request.Context(), limit)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "job_list_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"jobs": jobs})
}

// POST /api/jobs/:id/cancel
func (h *JobHandler) CancelJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.queue.Cancel(c.Request.Context(), jobID)
	if err != nil {
		response.RespondError(c, http.StatusConflict, "cancel_job_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

// POST /api/jobs/:id/restart
func (h *JobHandler) RestartJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.queue.Restart(c.Request.Context(), jobID)
	if err != nil {
		status := http.StatusBadRequest
		if strings.Contains(strings.ToLower(err.Error()), "not restartable") {
			status = http.StatusConflict
		}
		response.RespondError(c, status, "restart_job_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}
