package vector

import (
	"fmt"

	"github.com/hyperjump/docchat/internal/config"
	"github.com/hyperjump/docchat/internal/storage"
	"go.uber.org/zap"
)

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeLocal keeps records in the SQLite database and searches them in memory.
	IndexTypeLocal IndexType = "local"
	// IndexTypeQdrant stores records in a Qdrant collection.
	IndexTypeQdrant IndexType = "qdrant"
)

// NewVectorIndex creates the vector index selected by cfg.Type.
// store backs the local index and may be nil for qdrant.
func NewVectorIndex(cfg *config.VectorConfig, store storage.Storage, dimensions int, logger *zap.Logger) (VectorIndex, error) {
	switch IndexType(cfg.Type) {
	case IndexTypeLocal, "":
		if store == nil {
			return nil, fmt.Errorf("local index requires storage")
		}
		var opts []LocalOption
		if logger != nil {
			opts = append(opts, WithLogger(logger))
		}
		return NewLocalIndex(store, dimensions, opts...)
	case IndexTypeQdrant:
		return NewQdrantIndex(QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     config.APIKey(cfg.APIKeyEnv),
			Collection: cfg.Collection,
			Dimensions: dimensions,
			Timeout:    cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: local, qdrant)", cfg.Type)
	}
}
