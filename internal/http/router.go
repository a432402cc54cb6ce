package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/exampaper-backend/internal/http/handlers"
	httpMW "github.com/yungbote/exampaper-backend/internal/http/middleware"
	"github.com/yungbote/exampaper-backend/internal/observability"
	"github.com/yungbote/exampaper-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	CORSOrigins    []string
	Metrics        *observability.Metrics
	AuthMiddleware *httpMW.AuthMiddleware

	DocumentHandler *httpH.DocumentHandler
	PaperHandler    *httpH.PaperHandler
	SearchHandler   *httpH.SearchHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "exampaper"
	}
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/metrics", cfg.HealthHandler.Metrics)
	}

	protected := r.Group("/api")
	if cfg.AuthMiddleware != nil {
		protected.Use(cfg.AuthMiddleware.RequireAuth())
	}

	// Documents
	if h := cfg.DocumentHandler; h != nil {
		protected.POST("/documents", h.Submit)
		protected.POST("/documents/upload", h.Upload)
		protected.POST("/documents/:id/process", h.Process)
		protected.GET("/documents/:id/status", h.Status)
		protected.GET("/documents/:id/content", h.Content)
		protected.POST("/documents/:id/index", h.Index)
		protected.GET("/documents/:id/index-status", h.IndexStatus)
		protected.GET("/subjects/:id/documents", h.ListBySubject)
	}

	// Papers
	if h := cfg.PaperHandler; h != nil {
		protected.POST("/papers", h.Create)
		protected.GET("/papers", h.List)
		protected.POST("/papers/:id/generate", h.Generate)
		protected.GET("/papers/:id/generation-status", h.Status)
		protected.GET("/papers/:id", h.Get)
	}

	if cfg.SearchHandler != nil {
		protected.POST("/search", cfg.SearchHandler.Search)
	}

	return r
}
