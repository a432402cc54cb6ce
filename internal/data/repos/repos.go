package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/exampaper-backend/internal/data/repos/documents"
	"github.com/yungbote/exampaper-backend/internal/data/repos/papers"
	"github.com/yungbote/exampaper-backend/internal/platform/logger"
)

type DocumentRepo = documents.DocumentRepo
type IndexJobRepo = documents.IndexJobRepo
type ChunkRepo = documents.ChunkRepo

type PaperRepo = papers.PaperRepo
type GenerationJobRepo = papers.GenerationJobRepo
type QuestionSetRepo = papers.QuestionSetRepo

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return documents.NewDocumentRepo(db, baseLog)
}
func NewIndexJobRepo(db *gorm.DB, baseLog *logger.Logger) IndexJobRepo {
	return documents.NewIndexJobRepo(db, baseLog)
}
func NewChunkRepo(db *gorm.DB, baseLog *logger.Logger) ChunkRepo {
	return documents.NewChunkRepo(db, baseLog)
}

func NewPaperRepo(db *gorm.DB, baseLog *logger.Logger) PaperRepo {
	return papers.NewPaperRepo(db, baseLog)
}
func NewGenerationJobRepo(db *gorm.DB, baseLog *logger.Logger) GenerationJobRepo {
	return papers.NewGenerationJobRepo(db, baseLog)
}
func NewQuestionSetRepo(db *gorm.DB, baseLog *logger.Logger) QuestionSetRepo {
	return papers.NewQuestionSetRepo(db, baseLog)
}
