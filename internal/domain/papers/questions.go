package papers

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type QuestionType string

const (
	QuestionMCQ        QuestionType = "mcq"
	QuestionFillBlanks QuestionType = "fill_blanks"
	QuestionShort      QuestionType = "short"
	QuestionLong       QuestionType = "long"
)

// QuestionTypes lists every bucket in presentation order.
var QuestionTypes = []QuestionType{QuestionMCQ, QuestionFillBlanks, QuestionShort, QuestionLong}

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionMCQ, QuestionFillBlanks, QuestionShort, QuestionLong:
		return true
	default:
		return false
	}
}

type MCQ struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation,omitempty"`
	Marks         int      `json:"marks"`
	Unit          int      `json:"unit"`
}

type FillBlank struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Marks    int    `json:"marks"`
	Unit     int    `json:"unit"`
}

type ShortAnswer struct {
	Question       string   `json:"question"`
	ExpectedPoints []string `json:"expected_points"`
	Marks          int      `json:"marks"`
	Unit           int      `json:"unit"`
}

type LongAnswer struct {
	Question       string   `json:"question"`
	ExpectedPoints []string `json:"expected_points"`
	Marks          int      `json:"marks"`
	Unit           int      `json:"unit"`
}

// QuestionBundle is what a generation engine hands back before it is materialized.
type QuestionBundle struct {
	MCQ        []MCQ         `json:"mcq"`
	FillBlanks []FillBlank   `json:"fill_blanks"`
	Short      []ShortAnswer `json:"short"`
	Long       []LongAnswer  `json:"long"`
}

func (b *QuestionBundle) Count(t QuestionType) int {
	if b == nil {
		return 0
	}
	switch t {
	case QuestionMCQ:
		return len(b.MCQ)
	case QuestionFillBlanks:
		return len(b.FillBlanks)
	case QuestionShort:
		return len(b.Short)
	case QuestionLong:
		return len(b.Long)
	default:
		return 0
	}
}

func (b *QuestionBundle) Total() int {
	n := 0
	for _, t := range QuestionTypes {
		n += b.Count(t)
	}
	return n
}

// Reconcile compares the bundle against cfg. Over-delivered buckets are cut to
// the requested count; under-delivered ones are reported and left untouched.
func (b *QuestionBundle) Reconcile(cfg QuestionConfig) []Shortfall {
	var short []Shortfall
	for _, t := range QuestionTypes {
		want := cfg[t]
		got := b.Count(t)
		if got < want {
			short = append(short, Shortfall{Type: t, Requested: want, Returned: got})
			continue
		}
		switch t {
		case QuestionMCQ:
			b.MCQ = b.MCQ[:want]
		case QuestionFillBlanks:
			b.FillBlanks = b.FillBlanks[:want]
		case QuestionShort:
			b.Short = b.Short[:want]
		case QuestionLong:
			b.Long = b.Long[:want]
		}
	}
	return short
}

// QuestionSet is the immutable output attached to a generated paper.
type QuestionSet struct {
	ID              uuid.UUID                       `gorm:"type:uuid;primaryKey" json:"id"`
	PaperID         uuid.UUID                       `gorm:"type:uuid;column:paper_id;not null;uniqueIndex" json:"paper_id"`
	GenerationJobID uuid.UUID                       `gorm:"type:uuid;column:generation_job_id;not null" json:"generation_job_id"`
	MCQ             datatypes.JSONSlice[MCQ]         `gorm:"column:mcq" json:"mcq"`
	FillBlanks      datatypes.JSONSlice[FillBlank]   `gorm:"column:fill_blanks" json:"fill_blanks"`
	Short           datatypes.JSONSlice[ShortAnswer] `gorm:"column:short" json:"short"`
	Long            datatypes.JSONSlice[LongAnswer]  `gorm:"column:long" json:"long"`
	TotalMarks      int                             `gorm:"column:total_marks;not null;default:0" json:"total_marks"`
	CreatedAt       time.Time                       `gorm:"not null" json:"created_at"`
}

func (QuestionSet) TableName() string { return "question_set" }

func (q *QuestionSet) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}

// NewQuestionSet materializes b for a paper.
func NewQuestionSet(paperID, jobID uuid.UUID, b QuestionBundle) *QuestionSet {
	qs := &QuestionSet{
		PaperID:         paperID,
		GenerationJobID: jobID,
		MCQ:             datatypes.NewJSONSlice(nonNil(b.MCQ)),
		FillBlanks:      datatypes.NewJSONSlice(nonNil(b.FillBlanks)),
		Short:           datatypes.NewJSONSlice(nonNil(b.Short)),
		Long:            datatypes.NewJSONSlice(nonNil(b.Long)),
	}
	for _, q := range b.MCQ {
		qs.TotalMarks += q.Marks
	}
	for _, q := range b.FillBlanks {
		qs.TotalMarks += q.Marks
	}
	for _, q := range b.Short {
		qs.TotalMarks += q.Marks
	}
	for _, q := range b.Long {
		qs.TotalMarks += q.Marks
	}
	return qs
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
