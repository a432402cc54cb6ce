package app

import (
	apphttp "github.com/yungbote/exampaper-backend/internal/http"
	"github.com/yungbote/exampaper-backend/internal/observability"
	"github.com/yungbote/exampaper-backend/internal/platform/logger"
)

func wireRouter(log *logger.Logger, cfg Config, metrics *observability.Metrics, handlers Handlers, mw Middleware) apphttp.RouterConfig {
	return apphttp.RouterConfig{
		Log:             log,
		ServiceName:     cfg.ServiceName,
		CORSOrigins:     cfg.CORSOrigins,
		Metrics:         metrics,
		AuthMiddleware:  mw.Auth,
		DocumentHandler: handlers.Document,
		PaperHandler:    handlers.Paper,
		SearchHandler:   handlers.Search,
		HealthHandler:   handlers.Health,
	}
}
