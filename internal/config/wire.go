package config

import (
	"context"
	"log/slog"

	"github.com/bull/statute-rag/internal/embedding"
	"github.com/bull/statute-rag/internal/storage"
)

// OpenStore connects to Qdrant when a host is configured, otherwise opens
// the local bbolt store.
func (c *Config) OpenStore(ctx context.Context, logger *slog.Logger) (storage.VectorStore, error) {
	if c.UsesQdrant() {
		return storage.NewQdrantStore(ctx, storage.QdrantConfig{
			Host:   c.Store.Host,
			Port:   c.Store.Port,
			APIKey: c.Store.APIKey,
		}, logger)
	}
	return storage.NewBoltStore(c.Store.Path, logger)
}

// NewEmbedder builds the configured embedding gateway.
func (c *Config) NewEmbedder() (embedding.Gateway, error) {
	if c.Embedding.Provider == "hash" {
		return embedding.NewHashEmbedder(c.Embedding.Dimension), nil
	}

	client, err := embedding.NewClient(embedding.ClientConfig{
		BaseURL: c.Embedding.BaseURL,
		APIKey:  c.Embedding.APIKey,
		Timeout: c.QueryTimeout,
	})
	if err != nil {
		return nil, err
	}
	return embedding.NewEmbedder(client, embedding.Options{
		Model:             c.Embedding.Model,
		Dimension:         c.Embedding.Dimension,
		BatchSize:         c.Embedding.BatchSize,
		RequestsPerSecond: c.Embedding.RequestsPerSecond,
	}), nil
}
