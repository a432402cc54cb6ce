package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/exampaper-backend/internal/data/repos"
	"github.com/yungbote/exampaper-backend/internal/indexing"
	"github.com/yungbote/exampaper-backend/internal/platform/logger"
	"github.com/yungbote/exampaper-backend/internal/platform/qdrant"
	"github.com/yungbote/exampaper-backend/internal/platform/vectorstore"
)

var newQdrantVectorStore = func(ctx context.Context, log *logger.Logger, cfg qdrant.Config) (vectorstore.Store, error) {
	return qdrant.NewVectorStore(ctx, log, cfg)
}

type VectorProvider string

const (
	// VectorProviderDB keeps embeddings on the chunk rows and scans them in process.
	VectorProviderDB     VectorProvider = "db"
	VectorProviderQdrant VectorProvider = "qdrant"
)

type VectorProviderBootstrapErrorCode string

const (
	VectorProviderBootstrapErrorInvalidProvider     VectorProviderBootstrapErrorCode = "invalid_provider"
	VectorProviderBootstrapErrorMissingQdrantURL    VectorProviderBootstrapErrorCode = "missing_qdrant_url"
	VectorProviderBootstrapErrorInvalidQdrantURL    VectorProviderBootstrapErrorCode = "invalid_qdrant_url"
	VectorProviderBootstrapErrorMissingQdrantColl   VectorProviderBootstrapErrorCode = "missing_qdrant_collection"
	VectorProviderBootstrapErrorInvalidQdrantVector VectorProviderBootstrapErrorCode = "invalid_qdrant_vector_dim"
	VectorProviderBootstrapErrorConnectFailed       VectorProviderBootstrapErrorCode = "connect_failed"
)

type VectorProviderBootstrapError struct {
	Code     VectorProviderBootstrapErrorCode
	Provider string
	Cause    error
}

func (e *VectorProviderBootstrapError) Error() string {
	if e == nil {
		return "vector provider bootstrap failed"
	}
	return fmt.Sprintf("vector provider bootstrap failed (code=%s provider=%q): %v", e.Code, e.Provider, e.Cause)
}

func (e *VectorProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveVectorStore returns the configured store wrapped with metrics.
func resolveVectorStore(ctx context.Context, log *logger.Logger, cfg Config, chunks repos.ChunkRepo) (vectorstore.Store, error) {
	provider := VectorProvider(strings.TrimSpace(strings.ToLower(string(cfg.VectorProvider))))
	if provider == "" {
		provider = VectorProviderDB
	}
	log.Info("Selecting vector store provider", "provider", provider)

	switch provider {
	case VectorProviderDB:
		return instrumentVectorStore(string(provider), indexing.NewDBStore(chunks)), nil
	case VectorProviderQdrant:
		qcfg := cfg.Qdrant
		if err := qdrant.ValidateConfig(qcfg); err != nil {
			return nil, classifyVectorProviderBootstrapError(provider, err)
		}
		store, err := newQdrantVectorStore(ctx, log, qcfg)
		if err != nil {
			classified := classifyVectorProviderBootstrapError(provider, err)
			log.Error("Vector store bootstrap failed", "provider", provider, "error", classified)
			return nil, classified
		}
		return instrumentVectorStore(string(provider), store), nil
	default:
		return nil, &VectorProviderBootstrapError{
			Code:     VectorProviderBootstrapErrorInvalidProvider,
			Provider: string(provider),
			Cause:    fmt.Errorf("unsupported VECTOR_PROVIDER %q (allowed: %q, %q)", provider, VectorProviderDB, VectorProviderQdrant),
		}
	}
}

func classifyVectorProviderBootstrapError(provider VectorProvider, err error) error {
	code := VectorProviderBootstrapErrorConnectFailed
	var qerr *qdrant.ConfigError
	if errors.As(err, &qerr) {
		switch qerr.Code {
		case qdrant.ConfigErrorMissingURL:
			code = VectorProviderBootstrapErrorMissingQdrantURL
		case qdrant.ConfigErrorInvalidURL:
			code = VectorProviderBootstrapErrorInvalidQdrantURL
		case qdrant.ConfigErrorMissingCollection:
			code = VectorProviderBootstrapErrorMissingQdrantColl
		case qdrant.ConfigErrorInvalidVectorDim:
			code = VectorProviderBootstrapErrorInvalidQdrantVector
		}
	}
	return &VectorProviderBootstrapError{Code: code, Provider: string(provider), Cause: err}
}
