package app

import (
	httpH "github.com/yungbote/exampaper-backend/internal/http/handlers"
	"github.com/yungbote/exampaper-backend/internal/platform/logger"
)

type Handlers struct {
	Document *httpH.DocumentHandler
	Paper    *httpH.PaperHandler
	Search   *httpH.SearchHandler
	Health   *httpH.HealthHandler
}

func wireHandlers(log *logger.Logger, cfg Config, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Document: httpH.NewDocumentHandler(log, services.Ingestion, services.Status, cfg.MaxUploadBytes),
		Paper:    httpH.NewPaperHandler(log, services.Generation, services.Status),
		Search:   httpH.NewSearchHandler(services.Indexer),
		Health:   httpH.NewHealthHandler(),
	}
}
