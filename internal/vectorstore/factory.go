package vectorstore

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/healthqa/internal/config"
	"go.uber.org/zap"
)

// NewStore creates the configured Store. dimension is the embedder's output
// size and is only needed by backends that declare a schema up front.
func NewStore(ctx context.Context, cfg config.VectorStoreConfig, embedder Embedder, dimension int, logger *zap.Logger) (Store, error) {
	switch cfg.Provider {
	case "chromem", "":
		return NewChromemStore(ChromemConfig{
			Path:       cfg.Chromem.Path,
			Compress:   cfg.Chromem.Compress,
			Collection: cfg.Collection,
		}, embedder, logger)
	case "qdrant":
		if dimension <= 0 {
			return nil, fmt.Errorf("%w: qdrant requires a positive embedding dimension", ErrInvalidConfig)
		}
		return NewQdrantStore(ctx, QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			APIKey:     cfg.Qdrant.APIKey.Value(),
			UseTLS:     cfg.Qdrant.UseTLS,
			Collection: cfg.Collection,
			VectorSize: uint64(dimension),
		}, embedder, logger)
	default:
		return nil, fmt.Errorf("%w: unknown vectorstore provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
