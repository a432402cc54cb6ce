package papers

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Status string

const (
	StatusDraft      Status = "draft"
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusGenerated  Status = "generated"
	StatusFailed     Status = "failed"
)

// Terminal reports whether s ends a generation attempt. Draft is not terminal.
func (s Status) Terminal() bool {
	return s == StatusGenerated || s == StatusFailed
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func (d Difficulty) Valid() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

// QuestionConfig maps a question type to the number of questions requested.
type QuestionConfig map[QuestionType]int

func (c QuestionConfig) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// InlineSyllabi carries syllabus text supplied on the paper itself, keyed by unit number.
type InlineSyllabi map[int]string

type Paper struct {
	ID                 uuid.UUID                          `gorm:"type:uuid;primaryKey" json:"id"`
	SubjectID          uuid.UUID                          `gorm:"type:uuid;column:subject_id;not null;index" json:"subject_id"`
	Title              string                             `gorm:"column:title;not null" json:"title"`
	Units              datatypes.JSONSlice[int]           `gorm:"column:units;not null" json:"units"`
	Difficulty         Difficulty                         `gorm:"column:difficulty;not null" json:"difficulty"`
	QuestionConfig     datatypes.JSONType[QuestionConfig] `gorm:"column:question_config;not null" json:"question_config"`
	CustomInstructions string                             `gorm:"column:custom_instructions;type:text" json:"custom_instructions"`
	InlineSyllabi      datatypes.JSONType[InlineSyllabi]  `gorm:"column:inline_syllabi" json:"inline_syllabi,omitempty"`
	Status             Status                             `gorm:"column:status;not null;index" json:"status"`
	Error              string                             `gorm:"column:error" json:"error,omitempty"`
	CreatedBy          uuid.UUID                          `gorm:"type:uuid;column:created_by;not null;index" json:"created_by"`
	CreatedAt          time.Time                          `gorm:"not null;index" json:"created_at"`
	UpdatedAt          time.Time                          `gorm:"not null;index" json:"updated_at"`
}

func (Paper) TableName() string { return "paper" }

func (p *Paper) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (p *Paper) Config() QuestionConfig {
	if p == nil {
		return QuestionConfig{}
	}
	cfg := p.QuestionConfig.Data()
	if cfg == nil {
		return QuestionConfig{}
	}
	return cfg
}

func (p *Paper) Syllabi() InlineSyllabi {
	if p == nil {
		return InlineSyllabi{}
	}
	s := p.InlineSyllabi.Data()
	if s == nil {
		return InlineSyllabi{}
	}
	return s
}
