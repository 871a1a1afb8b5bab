package worker

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/caselight/caselight-backend/internal/data/repos"
	"github.com/caselight/caselight-backend/internal/jobs/runtime"
	"github.com/caselight/caselight-backend/internal/platform/envutil"
	"github.com/caselight/caselight-backend/internal/platform/logger"
)

// Worker polls the job_run table and dispatches claimed rows to registered
// handlers. Any number of worker processes can run against the same
// database; SKIP LOCKED in the claim query keeps them from colliding.
type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.JobRunRepo
	registry *runtime.Registry
	notify   runtime.Notifier
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, registry *runtime.Registry, notify runtime.Notifier) *Worker {
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		registry: registry,
		notify:   notify,
	}
}

func (w *Worker) Start(ctx context.Context) {
	concurrency := envutil.GetEnvAsInt("WORKER_CONCURRENCY", 4, w.log)
	if concurrency < 1 {
		concurrency = 1
	}
	w.log.Info("Starting job worker pool", "concurrency", concurrency)

	for i := 0; i < concurrency; i++ {
		workerID := i + 1
		go w.runLoop(ctx, workerID)
	}
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	maxAttempts := envutil.GetEnvAsInt("WORKER_MAX_ATTEMPTS", 5, w.log)
	retryDelay := time.Duration(envutil.GetEnvAsInt("WORKER_RETRY_DELAY_SECONDS", 30, w.log)) * time.Second
	staleRunning := time.Duration(envutil.GetEnvAsInt("WORKER_STALE_RUNNING_MINUTES", 30, w.log)) * time.Minute

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			// Drain: keep claiming until the queue is empty, then go back
			// to the ticker.
			for {
				job, err := w.repo.ClaimNextRunnable(ctx, w.db, maxAttempts, retryDelay, staleRunning)
				if err != nil {
					w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
					break
				}
				if job == nil {
					break
				}

				h, ok := w.registry.Get(job.JobType)
				jc := runtime.NewContext(ctx, w.db, job, w.repo, w.notify)

				if !ok {
					w.log.Warn("No handler registered for job_type",
						"worker_id", workerID,
						"job_type", job.JobType,
						"job_id", job.ID,
					)
					jc.Fail("dispatch", fmt.Errorf("no handler registered for job_type=%s", job.JobType))
					continue
				}

				w.runOne(jc, h, workerID)
			}
		}
	}
}

func (w *Worker) runOne(jc *runtime.Context, h runtime.Handler, workerID int) {
	job := jc.Job
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Job handler panic",
				"worker_id", workerID,
				"job_id", job.ID,
				"job_type", job.JobType,
				"panic", r,
			)
			jc.Fail("panic", fmt.Errorf("panic: %v", r))
		}
	}()

	start := time.Now()
	if runErr := h.Run(jc); runErr != nil {
		// Most pipelines call jc.Fail themselves; this is a safety net.
		jc.Fail("run", runErr)
		return
	}
	w.log.Debug("Job finished",
		"worker_id", workerID,
		"job_id", job.ID,
		"job_type", job.JobType,
		"status", job.Status,
		"took", time.Since(start).String(),
	)
}
