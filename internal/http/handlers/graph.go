package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/caselight/caselight-backend/internal/data/graph"
	"github.com/caselight/caselight-backend/internal/http/response"
	"github.com/caselight/caselight-backend/internal/platform/logger"
	"github.com/caselight/caselight-backend/internal/platform/neo4jdb"
)

type GraphHandler struct {
	log    *logger.Logger
	client *neo4jdb.Client
}

func NewGraphHandler(baseLog *logger.Logger, client *neo4jdb.Client) *GraphHandler {
	return &GraphHandler{log: baseLog.With("handler", "GraphHandler"), client: client}
}

// GET /api/graph/centrality?limit=N
func (h *GraphHandler) Centrality(c *gin.Context) {
	limit := 25
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			response.RespondError(c, http.StatusBadRequest, "invalid_limit",
				fmt.Errorf("limit must be an integer in [1,500]"))
			return
		}
		limit = n
	}
	rows, err := graph.DegreeCentrality(c.Request.Context(), h.client, limit)
	if err != nil {
		h.respondGraphError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"centrality": rows})
}

// GET /api/graph/communities
func (h *GraphHandler) Communities(c *gin.Context) {
	rows, err := graph.Communities(c.Request.Context(), h.client, h.log)
	if err != nil {
		h.respondGraphError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"communities": rows})
}

// POST /api/graph/shortest-path
func (h *GraphHandler) ShortestPath(c *gin.Context) {
	var req struct {
		FromID uuid.UUID `json:"from_id"`
		ToID   uuid.UUID `json:"to_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.FromID == uuid.Nil || req.ToID == uuid.Nil {
		response.RespondError(c, http.StatusBadRequest, "missing_entity_ids",
			fmt.Errorf("from_id and to_id are required"))
		return
	}
	result, err := graph.ShortestPath(c.Request.Context(), h.client, req.FromID, req.ToID)
	if err != nil {
		h.respondGraphError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"path": result})
}

func (h *GraphHandler) respondGraphError(c *gin.Context, err error) {
	if errors.Is(err, graph.ErrGraphUnavailable) {
		response.RespondError(c, http.StatusServiceUnavailable, "graph_unavailable", err)
		return
	}
	response.RespondError(c, http.StatusInternalServerError, "graph_query_failed", err)
}
