package vectorstore

import (
	"fmt"

	"go.uber.org/zap"
)

// Config selects and addresses a vector store backend.
type Config struct {
	Driver   string // chroma, qdrant, chromem
	Endpoint string // chroma base URL, qdrant host:port, chromem directory ("" = memory)
	APIKey   string
}

// New builds the configured backend.
func New(cfg Config, logger *zap.Logger) (Store, error) {
	logger = logger.Named("vectorstore")
	switch cfg.Driver {
	case "chroma":
		return NewChromaStore(cfg.Endpoint, logger)
	case "qdrant":
		return NewQdrantStore(cfg.Endpoint, cfg.APIKey, logger)
	case "chromem":
		return NewChromemStore(cfg.Endpoint, logger)
	default:
		return nil, fmt.Errorf("unknown vector store driver %q", cfg.Driver)
	}
}
