package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/exampaper-backend/internal/data/repos"
	"github.com/yungbote/exampaper-backend/internal/platform/logger"
)

type Repos struct {
	Document      repos.DocumentRepo
	IndexJob      repos.IndexJobRepo
	Chunk         repos.ChunkRepo
	Paper         repos.PaperRepo
	GenerationJob repos.GenerationJobRepo
	QuestionSet   repos.QuestionSetRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Document:      repos.NewDocumentRepo(db, log),
		IndexJob:      repos.NewIndexJobRepo(db, log),
		Chunk:         repos.NewChunkRepo(db, log),
		Paper:         repos.NewPaperRepo(db, log),
		GenerationJob: repos.NewGenerationJobRepo(db, log),
		QuestionSet:   repos.NewQuestionSetRepo(db, log),
	}
}
