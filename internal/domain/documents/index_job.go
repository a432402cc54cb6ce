package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IndexJob tracks one semantic indexing attempt of a document at a given content version.
type IndexJob struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID      uuid.UUID  `gorm:"type:uuid;column:document_id;not null;index" json:"document_id"`
	DocumentVersion int        `gorm:"column:document_version;not null" json:"document_version"`
	Status          Status     `gorm:"column:status;not null;index" json:"status"`
	Error           string     `gorm:"column:error" json:"error,omitempty"`
	ChunkCount      int        `gorm:"column:chunk_count;not null;default:0" json:"chunk_count"`
	Attempts        int        `gorm:"column:attempts;not null;default:0" json:"attempts"`
	StartedAt       *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt     *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt       time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"not null;index" json:"updated_at"`
}

func (IndexJob) TableName() string { return "index_job" }

func (j *IndexJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}
