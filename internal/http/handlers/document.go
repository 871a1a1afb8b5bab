package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/caselight/caselight-backend/internal/data/repos"
	types "github.com/caselight/caselight-backend/internal/domain"
	"github.com/caselight/caselight-backend/internal/http/response"
	"github.com/caselight/caselight-backend/internal/ingest"
)

const maxUploadBytes = 200 << 20

type DocumentHandler struct {
	ingest   ingest.Service
	docs     repos.DocumentRepo
	minidocs repos.MiniDocRepo
	chunks   repos.ChunkRepo
}

func NewDocumentHandler(
	svc ingest.Service,
	docs repos.DocumentRepo,
	minidocs repos.MiniDocRepo,
	chunks repos.ChunkRepo,
) *DocumentHandler {
	return &DocumentHandler{ingest: svc, docs: docs, minidocs: minidocs, chunks: chunks}
}

// POST /api/documents
// Multipart upload; field "file" is required, "project_id" is optional.
func (h *DocumentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "missing_file", err)
		return
	}
	if fileHeader.Size > maxUploadBytes {
		response.RespondError(c, http.StatusRequestEntityTooLarge, "file_too_large",
			fmt.Errorf("file exceeds %d bytes", int64(maxUploadBytes)))
		return
	}

	var projectID *uuid.UUID
	if raw := strings.TrimSpace(c.PostForm("project_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_project_id", err)
			return
		}
		projectID = &id
	}

	f, err := fileHeader.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "unreadable_file", err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "unreadable_file", err)
		return
	}

	res, err := h.ingest.IngestBytes(c.Request.Context(), data, fileHeader.Filename, projectID)
	if err != nil {
		response.RespondError(c, http.StatusUnprocessableEntity, "ingest_failed", err)
		return
	}
	if res.Duplicate {
		response.RespondOK(c, gin.H{"document": res.Document, "duplicate": true})
		return
	}
	response.RespondCreated(c, gin.H{"document": res.Document, "job": res.Job, "duplicate": false})
}

// GET /api/documents/:id
// Returns the document plus a per-window progress rollup.
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	ctx := c.Request.Context()

	doc, err := h.docs.GetByID(ctx, nil, docID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "document_lookup_failed", err)
		return
	}
	if doc == nil {
		response.RespondError(c, http.StatusNotFound, "document_not_found", fmt.Errorf("document %s not found", docID))
		return
	}

	minidocs, err := h.minidocs.GetByDocumentID(ctx, nil, docID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "minidoc_lookup_failed", err)
		return
	}
	progress := gin.H{
		"windows":     len(minidocs),
		"pending_ocr": countStatus(minidocs, types.MiniDocStatusPendingOCR),
		"ocr_done":    countStatus(minidocs, types.MiniDocStatusOCRDone),
		"parsed":      countStatus(minidocs, types.MiniDocStatusParsed),
	}

	response.RespondOK(c, gin.H{
		"document": doc,
		"minidocs": minidocs,
		"progress": progress,
	})
}

// GET /api/documents/:id/chunks
func (h *DocumentHandler) ListChunks(c *gin.Context) {
	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	chunks, err := h.chunks.GetByDocumentID(c.Request.Context(), nil, docID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "chunk_lookup_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"chunks": chunks})
}

func countStatus(minidocs []*types.MiniDoc, status string) int {
	n := 0
	for _, md := range minidocs {
		if md.Status == status {
			n++
		}
	}
	return n
}
