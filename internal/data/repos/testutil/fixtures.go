package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/exampaper-backend/internal/domain"
)

func SeedSyllabusDocument(tb testing.TB, ctx context.Context, tx *gorm.DB, subjectID uuid.UUID, unit int, syllabus string) *types.Document {
	tb.Helper()
	d := &types.Document{
		ID:             uuid.New(),
		SubjectID:      subjectID,
		UnitNumber:     unit,
		SyllabusText:   &syllabus,
		Status:         types.DocumentPending,
		ContentVersion: 1,
		SubmittedBy:    uuid.New(),
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return d
}

func SeedFileDocument(tb testing.TB, ctx context.Context, tx *gorm.DB, subjectID uuid.UUID, unit int, status types.DocumentStatus) *types.Document {
	tb.Helper()
	path := "caller/1700000000_notes.txt"
	name := "notes.txt"
	kind := "text/plain"
	d := &types.Document{
		ID:             uuid.New(),
		SubjectID:      subjectID,
		UnitNumber:     unit,
		FilePath:       &path,
		FileName:       &name,
		FileType:       &kind,
		Status:         status,
		ContentVersion: 1,
		SubmittedBy:    uuid.New(),
	}
	if status == types.DocumentCompleted {
		text := "extracted text"
		d.ExtractedText = &text
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return d
}

func SeedIndexJob(tb testing.TB, ctx context.Context, tx *gorm.DB, doc *types.Document, status types.DocumentStatus) *types.IndexJob {
	tb.Helper()
	j := &types.IndexJob{
		ID:              uuid.New(),
		DocumentID:      doc.ID,
		DocumentVersion: doc.ContentVersion,
		Status:          status,
	}
	if err := tx.WithContext(ctx).Create(j).Error; err != nil {
		tb.Fatalf("seed index job: %v", err)
	}
	return j
}

func SeedPaper(tb testing.TB, ctx context.Context, tx *gorm.DB, subjectID uuid.UUID, units []int, cfg types.QuestionConfig) *types.Paper {
	tb.Helper()
	p := &types.Paper{
		ID:             uuid.New(),
		SubjectID:      subjectID,
		Title:          "paper",
		Units:          datatypes.NewJSONSlice(units),
		Difficulty:     "medium",
		QuestionConfig: datatypes.NewJSONType(cfg),
		InlineSyllabi:  datatypes.NewJSONType(types.InlineSyllabi{}),
		Status:         types.PaperDraft,
		CreatedBy:      uuid.New(),
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed paper: %v", err)
	}
	return p
}
