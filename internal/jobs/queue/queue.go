package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/caselight/caselight-backend/internal/data/repos"
	types "github.com/caselight/caselight-backend/internal/domain"
	"github.com/caselight/caselight-backend/internal/platform/logger"
)

// Notifier mirrors the runtime-side interface for request-time job events.
type Notifier interface {
	JobCreated(job *types.JobRun)
	JobCanceled(job *types.JobRun)
	JobRestarted(job *types.JobRun)
}

// Service creates and manages job_run rows. Enqueue writes into the caller's
// transaction when one is passed, so a job and the state change that caused
// it commit or roll back together. Workers discover new rows by polling;
// there is no separate dispatch step.
type Service interface {
	Enqueue(ctx context.Context, tx *gorm.DB, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error)
	EnqueueIfAbsent(ctx context.Context, tx *gorm.DB, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, bool, error)
	GetByID(ctx context.Context, jobID uuid.UUID) (*types.JobRun, error)
	GetLatestForEntity(ctx context.Context, entityType string, entityID uuid.UUID, jobType string) (*types.JobRun, error)
	ListRecent(ctx context.Context, limit int) ([]*types.JobRun, error)
	Cancel(ctx context.Context, jobID uuid.UUID) (*types.JobRun, error)
	Restart(ctx context.Context, jobID uuid.UUID) (*types.JobRun, error)
}

type service struct {
	db     *gorm.DB
	log    *logger.Logger
	repo   repos.JobRunRepo
	notify Notifier
}

func NewService(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, notify Notifier) Service {
	return &service{
		db:     db,
		log:    baseLog.With("service", "JobQueue"),
		repo:   repo,
		notify: notify,
	}
}

func (s *service) Enqueue(ctx context.Context, tx *gorm.DB, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error) {
	if jobType == "" {
		return nil, fmt.Errorf("missing job_type")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	b, _ := json.Marshal(payload)

	now := time.Now()
	job := &types.JobRun{
		ID:         uuid.New(),
		JobType:    jobType,
		EntityType: entityType,
		EntityID:   entityID,
		Status:     types.JobStatusQueued,
		Stage:      "queued",
		Progress:   0,
		Attempts:   0,
		Payload:    datatypes.JSON(b),
		Result:     datatypes.JSON([]byte(`{}`)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := s.repo.Create(ctx, tx, []*types.JobRun{job}); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if s.notify != nil {
		s.notify.JobCreated(job)
	}
	return job, nil
}

func (s *service) EnqueueIfAbsent(ctx context.Context, tx *gorm.DB, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, bool, error) {
	exists, err := s.repo.ExistsRunnable(ctx, tx, jobType, entityType, entityID)
	if err != nil {
		return nil, false, err
	}
	if exists {
		return nil, false, nil
	}
	job, err := s.Enqueue(ctx, tx, jobType, entityType, entityID, payload)
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

func (s *service) GetByID(ctx context.Context, jobID uuid.UUID) (*types.JobRun, error) {
	if jobID == uuid.Nil {
		return nil, fmt.Errorf("missing job id")
	}
	job, err := s.repo.GetByID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job not found")
	}
	return job, nil
}

func (s *service) GetLatestForEntity(ctx context.Context, entityType string, entityID uuid.UUID, jobType string) (*types.JobRun, error) {
	if entityType == "" || entityID == uuid.Nil {
		return nil, fmt.Errorf("missing entity info")
	}
	return s.repo.GetLatestByEntity(ctx, nil, entityType, entityID, jobType)
}

func (s *service) ListRecent(ctx context.Context, limit int) ([]*types.JobRun, error) {
	return s.repo.ListRecent(ctx, nil, limit)
}

func (s *service) Cancel(ctx context.Context, jobID uuid.UUID) (*types.JobRun, error) {
	if jobID == uuid.Nil {
		return nil, fmt.Errorf("missing job id")
	}

	var updated *types.JobRun
	shouldNotify := false

	err := s.db.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		job, err := s.repo.GetByID(ctx, txx, jobID)
		if err != nil {
			return err
		}
		if job == nil {
			return fmt.Errorf("job not found")
		}

		switch strings.ToLower(strings.TrimSpace(job.Status)) {
		case types.JobStatusSucceeded, types.JobStatusFailed, types.JobStatusCanceled:
			updated = job
			return nil
		}

		now := time.Now().UTC()
		if err := s.repo.UpdateFields(ctx, txx, jobID, map[string]interface{}{
			"status":       types.JobStatusCanceled,
			"locked_at":    nil,
			"heartbeat_at": now,
			"updated_at":   now,
		}); err != nil {
			return err
		}

		job.Status = types.JobStatusCanceled
		job.LockedAt = nil
		job.HeartbeatAt = &now
		job.UpdatedAt = now
		updated = job
		shouldNotify = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if shouldNotify && s.notify != nil && updated != nil {
		s.notify.JobCanceled(updated)
	}
	return updated, nil
}

func (s *service) Restart(ctx context.Context, jobID uuid.UUID) (*types.JobRun, error) {
	if jobID == uuid.Nil {
		return nil, fmt.Errorf("missing job id")
	}

	var updated *types.JobRun
	shouldNotify := false

	err := s.db.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		job, err := s.repo.GetByID(ctx, txx, jobID)
		if err != nil {
			return err
		}
		if job == nil {
			return fmt.Errorf("job not found")
		}

		status := strings.ToLower(strings.TrimSpace(job.Status))
		if status != types.JobStatusCanceled && status != types.JobStatusFailed {
			return fmt.Errorf("job not restartable")
		}

		now := time.Now().UTC()
		if err := s.repo.UpdateFields(ctx, txx, jobID, map[string]interface{}{
			"status":        types.JobStatusQueued,
			"stage":         "queued",
			"progress":      0,
			"attempts":      0,
			"error":         "",
			"last_error_at": nil,
			"locked_at":     nil,
			"heartbeat_at":  now,
			"updated_at":    now,
		}); err != nil {
			return err
		}

		job.Status = types.JobStatusQueued
		job.Stage = "queued"
		job.Progress = 0
		job.Attempts = 0
		job.Error = ""
		job.LastErrorAt = nil
		job.LockedAt = nil
		job.HeartbeatAt = &now
		job.UpdatedAt = now
		updated = job
		shouldNotify = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if shouldNotify && s.notify != nil && updated != nil {
		s.notify.JobRestarted(updated)
	}
	return updated, nil
}
