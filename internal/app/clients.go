package app

import (
	"context"
	"fmt"
	"io"

	"github.com/yungbote/exampaper-backend/internal/extraction"
	"github.com/yungbote/exampaper-backend/internal/platform/gcp"
	"github.com/yungbote/exampaper-backend/internal/platform/logger"
	"github.com/yungbote/exampaper-backend/internal/platform/openai"
	"github.com/yungbote/exampaper-backend/internal/platform/redis"
	"github.com/yungbote/exampaper-backend/internal/platform/storage"
	"github.com/yungbote/exampaper-backend/internal/platform/vectorstore"
)

// Clients are the external collaborators. closers run in reverse on shutdown.
type Clients struct {
	OpenAI  openai.Client
	OCR     extraction.OCR
	Objects storage.ObjectStore
	Vectors vectorstore.Store
	Status  redis.StatusBus

	closers []io.Closer
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config, reposet Repos) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	ai, err := openai.NewClient(log, cfg.OpenAI)
	if err != nil {
		return out, fmt.Errorf("init openai: %w", err)
	}
	out.OpenAI = ai

	objects, err := resolveObjectStore(ctx, log)
	if err != nil {
		return out, err
	}
	out.Objects = objects
	out.track(objects)

	ocr, err := resolveOCR(ctx, log, cfg.OCRProvider)
	if err != nil {
		out.Close()
		return out, err
	}
	if ocr != nil {
		out.OCR = ocr
		out.track(ocr)
	}

	vectors, err := resolveVectorStore(ctx, log, cfg, reposet.Chunk)
	if err != nil {
		out.Close()
		return out, err
	}
	out.Vectors = vectors

	out.Status = redis.Nop{}
	if cfg.Redis.Addr != "" {
		bus, err := redis.NewStatusBus(ctx, log, cfg.Redis)
		if err != nil {
			// Status fan-out is best effort; the pipeline runs without it.
			log.Warn("Redis status bus unavailable, continuing without it", "addr", cfg.Redis.Addr, "error", err)
		} else {
			out.Status = bus
			out.track(bus)
		}
	}
	return out, nil
}

func resolveOCR(ctx context.Context, log *logger.Logger, provider string) (extraction.OCR, error) {
	switch provider {
	case "", OCRProviderNone:
		log.Info("OCR disabled; image uploads will be rejected")
		return nil, nil
	case OCRProviderVision:
		v, err := gcp.NewVisionOCR(ctx, log)
		if err != nil {
			return nil, fmt.Errorf("init vision ocr: %w", err)
		}
		return v, nil
	case OCRProviderDocumentAI:
		dcfg := gcp.DocumentAIConfigFromEnv()
		if !dcfg.Enabled() {
			return nil, fmt.Errorf("OCR_PROVIDER=documentai requires DOCUMENTAI_PROJECT_ID and DOCUMENTAI_PROCESSOR_ID")
		}
		d, err := gcp.NewDocumentOCR(ctx, log, dcfg)
		if err != nil {
			return nil, fmt.Errorf("init documentai ocr: %w", err)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unsupported OCR_PROVIDER %q (allowed: %q, %q, %q)", provider, OCRProviderNone, OCRProviderVision, OCRProviderDocumentAI)
	}
}

func (c *Clients) track(v any) {
	if closer, ok := v.(io.Closer); ok {
		c.closers = append(c.closers, closer)
	}
}

func (c *Clients) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i].Close()
	}
	c.closers = nil
}
