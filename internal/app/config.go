package app

import (
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/exampaper-backend/internal/data/db"
	"github.com/yungbote/exampaper-backend/internal/jobs/supervisor"
	"github.com/yungbote/exampaper-backend/internal/observability"
	"github.com/yungbote/exampaper-backend/internal/platform/envutil"
	"github.com/yungbote/exampaper-backend/internal/platform/logger"
	"github.com/yungbote/exampaper-backend/internal/platform/openai"
	"github.com/yungbote/exampaper-backend/internal/platform/qdrant"
	"github.com/yungbote/exampaper-backend/internal/platform/redis"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	OCRProviderNone       = "none"
	OCRProviderVision     = "vision"
	OCRProviderDocumentAI = "documentai"
)

type Config struct {
	Port        string
	ServiceName string
	Environment string
	Version     string

	DBDriver   string
	SQLitePath string
	Postgres   db.PostgresConfig

	JWTSecretKey string
	CORSOrigins  []string

	QueueSize      int
	MaxUploadBytes int64
	Pipeline       supervisor.Config

	OpenAI         openai.Config
	VectorProvider VectorProvider
	Qdrant         qdrant.Config
	OCRProvider    string

	Redis          redis.Config
	RedisForward   bool
	MetricsEnabled bool
	Otel           observability.OtelConfig
}

func LoadConfig(log *logger.Logger) Config {
	env := envutil.NewLoader(log)

	cfg := Config{
		Port:        env.String("PORT", "8080"),
		ServiceName: env.String("SERVICE_NAME", "exampaper"),
		Environment: env.String("APP_ENV", "development"),
		Version:     env.String("APP_VERSION", "dev"),

		DBDriver:   strings.ToLower(env.String("DB_DRIVER", DBDriverPostgres)),
		SQLitePath: env.String("SQLITE_PATH", "exampaper.db"),
		Postgres: db.PostgresConfig{
			Host:     env.String("POSTGRES_HOST", "localhost"),
			Port:     env.String("POSTGRES_PORT", "5432"),
			User:     env.String("POSTGRES_USER", "postgres"),
			Password: env.String("POSTGRES_PASSWORD", ""),
			Name:     env.String("POSTGRES_NAME", "exampaper"),
			SSLMode:  env.String("POSTGRES_SSLMODE", "disable"),
		},

		JWTSecretKey: env.String("JWT_SECRET_KEY", ""),
		CORSOrigins:  splitList(env.String("CORS_ALLOWED_ORIGINS", "")),

		QueueSize:      env.Int("QUEUE_SIZE", 256),
		MaxUploadBytes: int64(env.Int("MAX_UPLOAD_BYTES", 50<<20)),
		Pipeline: supervisor.Config{
			Concurrency:       env.Int("WORKER_CONCURRENCY", 4),
			ExtractionTimeout: env.Duration("EXTRACTION_TIMEOUT", 5*time.Minute),
			IndexingTimeout:   env.Duration("INDEXING_TIMEOUT", 10*time.Minute),
			GenerationTimeout: env.Duration("GENERATION_TIMEOUT", 10*time.Minute),
			MaxAttempts:       env.Int("RETRY_MAX_ATTEMPTS", 3),
			RetryBaseDelay:    env.Duration("RETRY_BASE_DELAY", time.Second),
			RetryMaxDelay:     env.Duration("RETRY_MAX_DELAY", 30*time.Second),
			StaleAfter:        env.Duration("STALE_PROCESSING_AFTER", 0),
			SweepInterval:     env.Duration("SWEEP_INTERVAL", 30*time.Second),
			SweepBatch:        env.Int("SWEEP_BATCH", 50),
			AutoAdvance:       env.Bool("PIPELINE_AUTO_ADVANCE", true),
		},

		OpenAI: openai.Config{
			APIKey:     env.String("OPENAI_API_KEY", ""),
			BaseURL:    env.String("OPENAI_BASE_URL", ""),
			Model:      env.String("OPENAI_MODEL", ""),
			EmbedModel: env.String("OPENAI_EMBED_MODEL", ""),
			Timeout:    env.Duration("OPENAI_TIMEOUT", 180*time.Second),
			MaxRetries: env.Int("OPENAI_MAX_RETRIES", 3),
		},
		VectorProvider: VectorProvider(strings.ToLower(env.String("VECTOR_PROVIDER", string(VectorProviderDB)))),
		Qdrant: qdrant.Config{
			URL:              env.String("QDRANT_URL", ""),
			APIKey:           env.String("QDRANT_API_KEY", ""),
			Collection:       env.String("QDRANT_COLLECTION", "exampaper_chunks"),
			NamespacePrefix:  env.String("QDRANT_NAMESPACE_PREFIX", "ep"),
			VectorDim:        env.Int("QDRANT_VECTOR_DIM", 1536),
			CreateCollection: env.Bool("QDRANT_CREATE_COLLECTION", true),
		},
		OCRProvider: strings.ToLower(env.String("OCR_PROVIDER", OCRProviderNone)),

		Redis: redis.Config{
			Addr:     env.String("REDIS_ADDR", ""),
			Password: env.String("REDIS_PASSWORD", ""),
			DB:       env.Int("REDIS_DB", 0),
			Channel:  env.String("REDIS_CHANNEL", redis.DefaultChannel),
		},
		RedisForward:   env.Bool("REDIS_FORWARD_LOG", false),
		MetricsEnabled: env.Bool("METRICS_ENABLED", true),
	}

	if raw := env.String("OPENAI_TEMPERATURE", ""); raw != "" {
		if t, err := strconv.ParseFloat(raw, 64); err == nil {
			cfg.OpenAI.Temperature = &t
		} else {
			log.Warn("Ignoring invalid OPENAI_TEMPERATURE", "value", raw)
		}
	}

	cfg.Otel = observability.OtelConfig{
		Enabled:     env.Bool("OTEL_ENABLED", false),
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
		Endpoint:    env.String("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		Headers:     env.String("OTEL_EXPORTER_OTLP_HEADERS", ""),
		Insecure:    env.Bool("OTEL_EXPORTER_OTLP_INSECURE", false),
		SampleRatio: float64(env.Int("OTEL_SAMPLE_PERCENT", 100)) / 100,
	}
	return cfg
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
