package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/caselight/caselight-backend/internal/data/repos"
	types "github.com/caselight/caselight-backend/internal/domain"
	"github.com/caselight/caselight-backend/internal/http/response"
	"github.com/caselight/caselight-backend/internal/jobs/queue"
)

type RelationshipHandler struct {
	queue queue.Service
	rels  repos.RelationshipRepo
	canon repos.CanonicalEntityRepo
}

func NewRelationshipHandler(
	q queue.Service,
	rels repos.RelationshipRepo,
	canon repos.CanonicalEntityRepo,
) *RelationshipHandler {
	return &RelationshipHandler{queue: q, rels: rels, canon: canon}
}

// POST /api/relationships/rebuild
// At most one rebuild is runnable at a time; a second request while one is
// queued or running returns the existing job.
func (h *RelationshipHandler) Rebuild(c *gin.Context) {
	job, created, err := h.queue.EnqueueIfAbsent(
		c.Request.Context(), nil, types.JobTypeRelationshipBuild, "", nil, nil)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "rebuild_enqueue_failed", err)
		return
	}
	if !created {
		response.RespondOK(c, gin.H{"job": job, "already_queued": true})
		return
	}
	response.RespondCreated(c, gin.H{"job": job, "already_queued": false})
}

// GET /api/relationships
func (h *RelationshipHandler) ListRelationships(c *gin.Context) {
	rels, err := h.rels.GetAll(c.Request.Context(), nil)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "relationship_list_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"relationships": rels})
}

// GET /api/entities
func (h *RelationshipHandler) ListEntities(c *gin.Context) {
	entities, err := h.canon.GetAll(c.Request.Context(), nil)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "entity_list_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"entities": entities})
}

// GET /api/entities/:id/relationships
func (h *RelationshipHandler) ListEntityRelationships(c *gin.Context) {
	entityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_entity_id", err)
		return
	}
	rels, err := h.rels.GetByEntityID(c.Request.Context(), nil, entityID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "relationship_list_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"relationships": rels})
}
