package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/caselight/caselight-backend/internal/http/response"
	"github.com/caselight/caselight-backend/internal/search"
)

type SearchHandler struct {
	search search.Service
}

func NewSearchHandler(svc search.Service) *SearchHandler {
	return &SearchHandler{search: svc}
}

// POST /api/search
func (h *SearchHandler) Search(c *gin.Context) {
	var req search.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	hits, err := h.search.Search(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if strings.Contains(err.Error(), "empty query") {
			status = http.StatusBadRequest
		}
		response.RespondError(c, status, "search_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"hits": hits})
}
