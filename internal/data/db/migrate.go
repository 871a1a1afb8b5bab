package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/caselight/caselight-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// Pipeline core
		&types.Document{},
		&types.MiniDoc{},
		&types.PageRecord{},
		&types.Chunk{},

		// Entities + graph
		&types.Entity{},
		&types.CanonicalEntity{},
		&types.ChunkEntityContribution{},
		&types.EntityRelationship{},

		// Per-chunk findings
		&types.Anomaly{},
		&types.SensitiveDataMatch{},
		&types.DateMention{},

		// Queue
		&types.JobRun{},
	)
}

func EnsurePipelineIndexes(db *gorm.DB) error {
	// uuid-ossp is already enabled in NewPostgresService, but safe to re-run
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		return fmt.Errorf("enable uuid-ossp: %w", err)
	}

	// Lexical fallback retrieval over chunk text for dashboards.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_chunk_fts
		ON chunk
		USING GIN (to_tsvector('english', text))
		WHERE deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_chunk_fts: %w", err)
	}

	// Completion checks aggregate over these constantly.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_mini_doc_document_status
		ON mini_doc (document_id, status);
	`).Error; err != nil {
		return fmt.Errorf("create idx_mini_doc_document_status: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_page_record_doc_page_range
		ON page_record (document_id, page_num);
	`).Error; err != nil {
		return fmt.Errorf("create idx_page_record_doc_page_range: %w", err)
	}

	// Worker claim scan.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_job_run_claim
		ON job_run (status, created_at)
		WHERE deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_job_run_claim: %w", err)
	}

	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsurePipelineIndexes(s.db); err != nil {
		s.log.Error("Pipeline index migration failed", "error", err)
		return err
	}
	return nil
}
