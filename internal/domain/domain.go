package domain

import (
	"github.com/yungbote/exampaper-backend/internal/domain/documents"
	"github.com/yungbote/exampaper-backend/internal/domain/identity"
	"github.com/yungbote/exampaper-backend/internal/domain/papers"
)

type Document = documents.Document
type DocumentStatus = documents.Status
type IndexJob = documents.IndexJob
type DocumentChunk = documents.DocumentChunk

type Paper = papers.Paper
type PaperStatus = papers.Status
type Difficulty = papers.Difficulty
type QuestionType = papers.QuestionType
type QuestionConfig = papers.QuestionConfig
type InlineSyllabi = papers.InlineSyllabi
type GenerationJob = papers.GenerationJob
type Shortfall = papers.Shortfall
type QuestionSet = papers.QuestionSet
type QuestionBundle = papers.QuestionBundle
type MCQ = papers.MCQ
type FillBlank = papers.FillBlank
type ShortAnswer = papers.ShortAnswer
type LongAnswer = papers.LongAnswer

var NewQuestionSet = papers.NewQuestionSet

// QuestionTypes lists every bucket in presentation order.
var QuestionTypes = papers.QuestionTypes

type Caller = identity.Caller
type Role = identity.Role

const (
	DocumentPending    = documents.StatusPending
	DocumentProcessing = documents.StatusProcessing
	DocumentCompleted  = documents.StatusCompleted
	DocumentFailed     = documents.StatusFailed

	PaperDraft      = papers.StatusDraft
	PaperPending    = papers.StatusPending
	PaperProcessing = papers.StatusProcessing
	PaperGenerated  = papers.StatusGenerated
	PaperFailed     = papers.StatusFailed

	DifficultyEasy   = papers.DifficultyEasy
	DifficultyMedium = papers.DifficultyMedium
	DifficultyHard   = papers.DifficultyHard

	QuestionMCQ        = papers.QuestionMCQ
	QuestionFillBlanks = papers.QuestionFillBlanks
	QuestionShort      = papers.QuestionShort
	QuestionLong       = papers.QuestionLong
)

// Models lists every persisted model in migration order.
func Models() []any {
	return []any{
		&documents.Document{},
		&documents.IndexJob{},
		&documents.DocumentChunk{},
		&papers.Paper{},
		&papers.GenerationJob{},
		&papers.QuestionSet{},
	}
}
