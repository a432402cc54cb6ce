package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/exampaper-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(domain.Models()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}

// EnsurePipelineIndexes creates the partial unique indexes behind the
// one-live-job-per-key rule. The syntax is valid on postgres and sqlite.
func EnsurePipelineIndexes(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS ux_index_job_live
		ON index_job(document_id)
		WHERE status IN ('pending', 'processing');
	`).Error; err != nil {
		return fmt.Errorf("create ux_index_job_live: %w", err)
	}
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS ux_generation_job_live
		ON generation_job(paper_id)
		WHERE status IN ('pending', 'processing');
	`).Error; err != nil {
		return fmt.Errorf("create ux_generation_job_live: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_document_chunk_subject_unit
		ON document_chunk(subject_id, unit_number);
	`).Error; err != nil {
		return fmt.Errorf("create idx_document_chunk_subject_unit: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_index_job_document_created
		ON index_job(document_id, created_at);
	`).Error; err != nil {
		return fmt.Errorf("create idx_index_job_document_created: %w", err)
	}
	return nil
}
