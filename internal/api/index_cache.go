package api

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"mri-organoids/internal/domain"
	"mri-organoids/internal/indexstore"
	"mri-organoids/internal/service"
)

// IndexCache serves searches from a persisted index, reloading it only when
// the build id in config.json changes. Indexes without a build id are
// reloaded on every search.
type IndexCache struct {
	dir     string
	indexer *service.DocumentIndexer
	logger  *slog.Logger

	mu      sync.Mutex
	loaded  bool
	buildID string
}

func NewIndexCache(dir string, indexer *service.DocumentIndexer, logger *slog.Logger) *IndexCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexCache{dir: dir, indexer: indexer, logger: logger}
}

func (c *IndexCache) Search(question string, topK int) ([]domain.SearchResult, error) {
	if err := c.refresh(); err != nil {
		return nil, err
	}
	return c.indexer.Search(question, topK)
}

func (c *IndexCache) refresh() error {
	cfg, err := indexstore.ReadConfig(c.dir)
	if err != nil {
		if errors.Is(err, indexstore.ErrNotFound) {
			return fmt.Errorf("%w: %s", service.ErrIndexNotFound, c.dir)
		}
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded && cfg.BuildID != "" && cfg.BuildID == c.buildID {
		return nil
	}
	if err := c.indexer.LoadIndex(c.dir); err != nil {
		c.loaded = false
		return err
	}
	if c.loaded {
		c.logger.Info("documentation index reloaded", "build_id", cfg.BuildID)
	}
	c.loaded = true
	c.buildID = cfg.BuildID
	return nil
}

// IndexStatus is the on-disk and in-memory state of the index.
type IndexStatus struct {
	Exists    bool   `json:"exists"`
	Loaded    bool   `json:"loaded"`
	Model     string `json:"model,omitempty"`
	Chunks    int    `json:"chunks"`
	Dimension int    `json:"dimension,omitempty"`
	BuildID   string `json:"build_id,omitempty"`
}

func (c *IndexCache) Status() IndexStatus {
	cfg, err := indexstore.ReadConfig(c.dir)
	if err != nil {
		return IndexStatus{Exists: indexstore.Exists(c.dir)}
	}
	c.mu.Lock()
	loaded := c.loaded && c.buildID == cfg.BuildID
	c.mu.Unlock()
	return IndexStatus{
		Exists:    true,
		Loaded:    loaded,
		Model:     cfg.ModelName,
		Chunks:    cfg.NumChunks,
		Dimension: cfg.EmbeddingDimension,
		BuildID:   cfg.BuildID,
	}
}
