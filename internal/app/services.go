package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/exampaper-backend/internal/extraction"
	"github.com/yungbote/exampaper-backend/internal/indexing"
	"github.com/yungbote/exampaper-backend/internal/jobs/queue"
	"github.com/yungbote/exampaper-backend/internal/jobs/supervisor"
	"github.com/yungbote/exampaper-backend/internal/modules/generation"
	"github.com/yungbote/exampaper-backend/internal/modules/ingestion"
	"github.com/yungbote/exampaper-backend/internal/modules/status"
	"github.com/yungbote/exampaper-backend/internal/platform/auth"
	"github.com/yungbote/exampaper-backend/internal/platform/logger"
	"github.com/yungbote/exampaper-backend/internal/questiongen"
)

type Services struct {
	Queue      *queue.Queue
	Ingestion  *ingestion.Coordinator
	Generation *generation.Coordinator
	Status     *status.Service
	Extractor  *extraction.Service
	Indexer    *indexing.Service
	Engine     *questiongen.Service
	Supervisor *supervisor.Supervisor
	Verifier   auth.Verifier
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	verifier, err := auth.NewVerifier(log, cfg.JWTSecretKey)
	if err != nil {
		return Services{}, fmt.Errorf("init verifier: %w", err)
	}

	q := queue.New(cfg.QueueSize, log)

	ingest := ingestion.NewCoordinator(ingestion.CoordinatorDeps{
		DB:          db,
		Log:         log,
		Documents:   reposet.Document,
		IndexJobs:   reposet.IndexJob,
		Objects:     clients.Objects,
		Queue:       q,
		AutoAdvance: cfg.Pipeline.AutoAdvance,
	})
	gen := generation.NewCoordinator(generation.CoordinatorDeps{
		DB:             db,
		Log:            log,
		Papers:         reposet.Paper,
		GenerationJobs: reposet.GenerationJob,
		QuestionSets:   reposet.QuestionSet,
		Documents:      reposet.Document,
		IndexJobs:      reposet.IndexJob,
		Queue:          q,
	})

	extractor := extraction.NewService(log, clients.Objects, clients.OCR, cfg.MaxUploadBytes)
	indexer := indexing.NewService(log, reposet.Chunk, clients.OpenAI, clients.Vectors, indexing.Config{})
	engine, err := questiongen.NewService(log, clients.OpenAI, indexer)
	if err != nil {
		return Services{}, fmt.Errorf("init question generator: %w", err)
	}

	sup, err := supervisor.New(supervisor.Deps{
		Log:            log,
		Ingestion:      ingest,
		Generation:     gen,
		Documents:      reposet.Document,
		IndexJobs:      reposet.IndexJob,
		GenerationJobs: reposet.GenerationJob,
		Extractor:      extractor,
		Indexer:        indexer,
		Engine:         engine,
		Queue:          q,
		Notifier:       clients.Status,
	}, cfg.Pipeline)
	if err != nil {
		return Services{}, fmt.Errorf("init supervisor: %w", err)
	}

	return Services{
		Queue:      q,
		Ingestion:  ingest,
		Generation: gen,
		Status:     status.NewService(reposet.Document, reposet.IndexJob, reposet.Paper),
		Extractor:  extractor,
		Indexer:    indexer,
		Engine:     engine,
		Supervisor: sup,
		Verifier:   verifier,
	}, nil
}
