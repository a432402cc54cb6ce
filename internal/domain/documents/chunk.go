package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DocumentChunk is one retrievable slice of a document's extracted text.
// Embedding is only populated when vectors are kept in the database.
type DocumentChunk struct {
	ID         uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID uuid.UUID                   `gorm:"type:uuid;column:document_id;not null;index" json:"document_id"`
	IndexJobID uuid.UUID                   `gorm:"type:uuid;column:index_job_id;not null;index" json:"index_job_id"`
	SubjectID  uuid.UUID                   `gorm:"type:uuid;column:subject_id;not null;index" json:"subject_id"`
	UnitNumber int                         `gorm:"column:unit_number;not null;index" json:"unit_number"`
	ChunkIndex int                         `gorm:"column:chunk_index;not null" json:"chunk_index"`
	FileName   string                      `gorm:"column:file_name" json:"file_name,omitempty"`
	Content    string                      `gorm:"column:content;type:text;not null" json:"content"`
	Embedding  datatypes.JSONSlice[float32] `gorm:"column:embedding" json:"-"`
	CreatedAt  time.Time                   `gorm:"not null" json:"created_at"`
}

func (DocumentChunk) TableName() string { return "document_chunk" }

func (c *DocumentChunk) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
