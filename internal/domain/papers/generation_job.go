package papers

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Shortfall records a question type the generator under-delivered on.
type Shortfall struct {
	Type      QuestionType `json:"type"`
	Requested int          `json:"requested"`
	Returned  int          `json:"returned"`
}

// GenerationJob is one generation attempt for a paper. Failed attempts are kept.
type GenerationJob struct {
	ID          uuid.UUID                     `gorm:"type:uuid;primaryKey" json:"id"`
	PaperID     uuid.UUID                     `gorm:"type:uuid;column:paper_id;not null;index" json:"paper_id"`
	Status      Status                        `gorm:"column:status;not null;index" json:"status"`
	Error       string                        `gorm:"column:error" json:"error,omitempty"`
	Shortfall   datatypes.JSONSlice[Shortfall] `gorm:"column:shortfall" json:"shortfall,omitempty"`
	Attempts    int                           `gorm:"column:attempts;not null;default:0" json:"attempts"`
	StartedAt   *time.Time                    `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time                    `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time                     `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time                     `gorm:"not null;index" json:"updated_at"`
}

func (GenerationJob) TableName() string { return "generation_job" }

func (j *GenerationJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}
