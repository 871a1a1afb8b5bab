package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/caselight/caselight-backend/internal/canon"
	"github.com/caselight/caselight-backend/internal/config"
	"github.com/caselight/caselight-backend/internal/data/db"
	"github.com/caselight/caselight-backend/internal/data/repos"
	httpserver "github.com/caselight/caselight-backend/internal/http"
	httpH "github.com/caselight/caselight-backend/internal/http/handlers"
	"github.com/caselight/caselight-backend/internal/ingest"
	"github.com/caselight/caselight-backend/internal/jobs/pipeline/embed_chunk"
	"github.com/caselight/caselight-backend/internal/jobs/pipeline/ocr_page"
	"github.com/caselight/caselight-backend/internal/jobs/pipeline/parse_minidoc"
	"github.com/caselight/caselight-backend/internal/jobs/pipeline/relationship_build"
	"github.com/caselight/caselight-backend/internal/jobs/pipeline/split"
	"github.com/caselight/caselight-backend/internal/jobs/queue"
	jobrt "github.com/caselight/caselight-backend/internal/jobs/runtime"
	"github.com/caselight/caselight-backend/internal/jobs/worker"
	"github.com/caselight/caselight-backend/internal/observability"
	"github.com/caselight/caselight-backend/internal/ocr"
	"github.com/caselight/caselight-backend/internal/platform/envutil"
	"github.com/caselight/caselight-backend/internal/platform/gcp"
	"github.com/caselight/caselight-backend/internal/platform/localmedia"
	"github.com/caselight/caselight-backend/internal/platform/logger"
	"github.com/caselight/caselight-backend/internal/platform/neo4jdb"
	"github.com/caselight/caselight-backend/internal/platform/openai"
	"github.com/caselight/caselight-backend/internal/platform/qdrant"
	"github.com/caselight/caselight-backend/internal/realtime"
	"github.com/caselight/caselight-backend/internal/realtime/bus"
	"github.com/caselight/caselight-backend/internal/search"
)

// The server runs the HTTP API plus an embedded worker pool. Run cmd/worker
// alongside for extra processing capacity; both claim from the same queue.
func main() {
	_ = godotenv.Load()

	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "caselight-server",
		Environment: envutil.GetEnv("APP_ENV", "development", log),
	})
	defer func() { _ = shutdownOtel(context.Background()) }()

	cfg, err := config.LoadPipeline(log)
	if err != nil {
		log.Fatal("Failed to load pipeline config", "error", err)
	}

	postgres, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Failed to connect to postgres", "error", err)
	}
	if err := postgres.AutoMigrateAll(); err != nil {
		log.Fatal("Failed to migrate postgres", "error", err)
	}
	gdb := postgres.DB()

	docRepo := repos.NewDocumentRepo(gdb, log)
	minidocRepo := repos.NewMiniDocRepo(gdb, log)
	pageRepo := repos.NewPageRecordRepo(gdb, log)
	chunkRepo := repos.NewChunkRepo(gdb, log)
	entityRepo := repos.NewEntityRepo(gdb, log)
	canonRepo := repos.NewCanonicalEntityRepo(gdb, log)
	contribRepo := repos.NewContributionRepo(gdb, log)
	relRepo := repos.NewRelationshipRepo(gdb, log)
	findingRepo := repos.NewFindingRepo(gdb, log)
	jobRunRepo := repos.NewJobRunRepo(gdb, log)

	eventBus, err := bus.NewRedisBus(log)
	if err != nil {
		log.Warn("Redis event bus disabled", "error", err)
		eventBus = nil
	}
	notifier := bus.NewJobNotifier(eventBus, log)

	queueSvc := queue.NewService(gdb, log, jobRunRepo, notifier)
	tools := localmedia.New(log)

	archive, err := gcp.NewArchiveService(log)
	if err != nil {
		log.Warn("Archive mirror disabled", "error", err)
		archive = nil
	}

	ingestSvc, err := ingest.NewService(log, gdb, docRepo, queueSvc, tools, archive, cfg.DefaultOCRMode)
	if err != nil {
		log.Fatal("Failed to init ingest service", "error", err)
	}

	aiClient, err := openai.NewClient(log)
	if err != nil {
		log.Fatal("Failed to init openai client", "error", err)
	}

	qdrantCfg, err := qdrant.ResolveConfigFromEnv()
	if err != nil {
		log.Fatal("Failed to resolve qdrant config", "error", err)
	}
	vecStore, err := qdrant.NewStore(qdrantCfg)
	if err != nil {
		log.Fatal("Failed to init qdrant store", "error", err)
	}
	if err := vecStore.EnsureCollection(ctx); err != nil {
		log.Fatal("Failed to ensure qdrant collection", "error", err)
	}

	graphClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Warn("Graph mirror disabled", "error", err)
		graphClient = nil
	}

	engines := map[string]ocr.Engine{}
	if visionEngine, err := ocr.ForMode("vision", log, aiClient); err != nil {
		log.Warn("Vision OCR engine unavailable", "error", err)
	} else {
		engines["vision"] = visionEngine
	}
	if vlmEngine, err := ocr.ForMode("vlm", log, aiClient); err != nil {
		log.Warn("VLM OCR engine unavailable", "error", err)
	} else {
		engines["vlm"] = vlmEngine
	}

	canonicalizer := canon.New(log, canonRepo, entityRepo, contribRepo, cfg.MatchThreshold)

	registry := jobrt.NewRegistry()
	for _, h := range []jobrt.Handler{
		split.New(gdb, log, cfg, docRepo, minidocRepo, queueSvc, tools),
		ocr_page.New(gdb, log, pageRepo, minidocRepo, queueSvc, engines),
		parse_minidoc.New(gdb, log, cfg, minidocRepo, pageRepo, chunkRepo, findingRepo, queueSvc),
		embed_chunk.New(gdb, log, cfg, chunkRepo, docRepo, minidocRepo, findingRepo, queueSvc, aiClient, vecStore, canonicalizer, notifier),
		relationship_build.New(gdb, log, canonRepo, chunkRepo, relRepo, graphClient),
	} {
		if err := registry.Register(h); err != nil {
			log.Fatal("Failed to register job handler", "error", err)
		}
	}

	w := worker.NewWorker(gdb, log, jobRunRepo, registry, notifier)
	go w.Start(ctx)

	hub := realtime.NewHub()
	if eventBus != nil {
		if err := eventBus.StartForwarder(ctx, hub.Broadcast); err != nil {
			log.Warn("Event forwarder disabled", "error", err)
		}
	}

	searchSvc := search.NewService(log, aiClient, vecStore)

	server := httpserver.NewServer(httpserver.RouterConfig{
		Log:                 log,
		HealthHandler:       httpH.NewHealthHandler(),
		DocumentHandler:     httpH.NewDocumentHandler(ingestSvc, docRepo, minidocRepo, chunkRepo),
		IngestHandler:       httpH.NewIngestHandler(ingestSvc),
		JobHandler:          httpH.NewJobHandler(queueSvc),
		RelationshipHandler: httpH.NewRelationshipHandler(queueSvc, relRepo, canonRepo),
		SearchHandler:       httpH.NewSearchHandler(searchSvc),
		GraphHandler:        httpH.NewGraphHandler(log, graphClient),
		RealtimeHandler:     httpH.NewRealtimeHandler(log, hub),
	})

	port := envutil.GetEnv("PORT", "8080", log)
	log.Info("Starting server", "port", port)
	if err := server.Run(":" + port); err != nil {
		log.Fatal("Server exited", "error", err)
	}
}
