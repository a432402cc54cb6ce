package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether s is absorbing for a document or index job.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Document is the single content submission for one (subject, unit) pair.
type Document struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SubjectID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_document_subject_unit,priority:1" json:"subject_id"`
	UnitNumber     int       `gorm:"column:unit_number;not null;uniqueIndex:ux_document_subject_unit,priority:2" json:"unit_number"`
	FilePath       *string   `gorm:"column:file_path" json:"file_path,omitempty"`
	FileName       *string   `gorm:"column:file_name" json:"file_name,omitempty"`
	FileType       *string   `gorm:"column:file_type" json:"file_type,omitempty"`
	SyllabusText   *string   `gorm:"column:syllabus_text;type:text" json:"syllabus_text,omitempty"`
	Status         Status    `gorm:"column:status;not null;index" json:"status"`
	ExtractedText  *string   `gorm:"column:extracted_text;type:text" json:"-"`
	Error          string    `gorm:"column:error" json:"error,omitempty"`
	ContentVersion int       `gorm:"column:content_version;not null;default:1" json:"content_version"`
	SubmittedBy    uuid.UUID `gorm:"type:uuid;column:submitted_by;index" json:"submitted_by"`
	CreatedAt      time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null;index" json:"updated_at"`
}

func (Document) TableName() string { return "document" }

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

func (d *Document) HasFile() bool {
	return d != nil && d.FilePath != nil && *d.FilePath != ""
}

func (d *Document) HasSyllabus() bool {
	return d != nil && d.SyllabusText != nil && *d.SyllabusText != ""
}
