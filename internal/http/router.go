package http

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/caselight/caselight-backend/internal/http/handlers"
	httpMW "github.com/caselight/caselight-backend/internal/http/middleware"
	"github.com/caselight/caselight-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	HealthHandler       *httpH.HealthHandler
	DocumentHandler     *httpH.DocumentHandler
	IngestHandler       *httpH.IngestHandler
	JobHandler          *httpH.JobHandler
	RelationshipHandler *httpH.RelationshipHandler
	SearchHandler       *httpH.SearchHandler
	GraphHandler        *httpH.GraphHandler
	RealtimeHandler     *httpH.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		if cfg.DocumentHandler != nil {
			api.POST("/documents", cfg.DocumentHandler.Upload)
			api.GET("/documents/:id", cfg.DocumentHandler.GetDocument)
			api.GET("/documents/:id/chunks", cfg.DocumentHandler.ListChunks)
		}

		if cfg.IngestHandler != nil {
			api.POST("/ingest/scan", cfg.IngestHandler.ScanFolder)
		}

		if cfg.JobHandler != nil {
			api.POST("/jobs", cfg.JobHandler.EnqueueJob)
			api.GET("/jobs", cfg.JobHandler.ListJobs)
			api.GET("/jobs/:id", cfg.JobHandler.GetJob)
			api.POST("/jobs/:id/cancel", cfg.JobHandler.CancelJob)
			api.POST("/jobs/:id/restart", cfg.JobHandler.RestartJob)
		}

		if cfg.RelationshipHandler != nil {
			api.POST("/relationships/rebuild", cfg.RelationshipHandler.Rebuild)
			api.GET("/relationships", cfg.RelationshipHandler.ListRelationships)
			api.GET("/entities", cfg.RelationshipHandler.ListEntities)
			api.GET("/entities/:id/relationships", cfg.RelationshipHandler.ListEntityRelationships)
		}

		if cfg.SearchHandler != nil {
			api.POST("/search", cfg.SearchHandler.Search)
		}

		if cfg.GraphHandler != nil {
			api.GET("/graph/centrality", cfg.GraphHandler.Centrality)
			api.GET("/graph/communities", cfg.GraphHandler.Communities)
			api.POST("/graph/shortest-path", cfg.GraphHandler.ShortestPath)
		}

		if cfg.RealtimeHandler != nil {
			api.GET("/events/stream", cfg.RealtimeHandler.Stream)
		}
	}

	return r
}
