package service

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"mri-organoids/internal/domain"
	"mri-organoids/internal/indexstore"
	"mri-organoids/internal/vectorindex/flat"
)

var (
	ErrIndexNotReady = errors.New("index not built or loaded")
	ErrIndexNotFound = errors.New("documentation index not found")
	ErrNoIndexToSave = errors.New("no index to save, build the index first")
	ErrModelMismatch = errors.New("index was built with a different embedding model")
)

// rootPatterns are matched against the base directory in order; a file
// matched by an earlier pattern keeps its position.
var rootPatterns = []string{
	"COMPLETE_PROJECT_DOCUMENTATION.md",
	"PROJECT_README.md",
	"API_DOCS.md",
	"README.md",
	"*.md",
}

// Options tunes a DocumentIndexer.
type Options struct {
	StrictModelCheck bool
	Logger           *slog.Logger
}

// DocumentIndexer builds, persists and queries the documentation index.
// A build or load swaps the in-memory index under a write lock; searches
// share a read lock.
type DocumentIndexer struct {
	chunker  domain.Chunker
	embedder domain.Embedder
	strict   bool
	logger   *slog.Logger

	mu     sync.RWMutex
	index  *flat.Index
	chunks []domain.DocChunk
	config indexstore.Config
}

func NewDocumentIndexer(chunker domain.Chunker, embedder domain.Embedder, opts Options) *DocumentIndexer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &DocumentIndexer{
		chunker:  chunker,
		embedder: embedder,
		strict:   opts.StrictModelCheck,
		logger:   opts.Logger,
	}
}

// CollectDocumentationFiles returns markdown files in baseDir followed by
// every markdown file under baseDir/docs. Each path appears once.
func (s *DocumentIndexer) CollectDocumentationFiles(baseDir string) []string {
	var files []string
	seen := make(map[string]struct{})
	add := func(path string) {
		clean := filepath.Clean(path)
		if _, ok := seen[clean]; ok {
			return
		}
		info, err := os.Stat(clean)
		if err != nil || !info.Mode().IsRegular() {
			return
		}
		seen[clean] = struct{}{}
		files = append(files, clean)
	}

	for _, pattern := range rootPatterns {
		matches, err := filepath.Glob(filepath.Join(baseDir, pattern))
		if err != nil {
			continue
		}
		sort.Strings(matches)
		for _, m := range matches {
			add(m)
		}
	}

	docsDir := filepath.Join(baseDir, "docs")
	if info, err := os.Stat(docsDir); err == nil && info.IsDir() {
		err := filepath.WalkDir(docsDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				s.logger.Warn("skipping unreadable path", "path", path, "error", err)
				return nil
			}
			if !d.IsDir() && strings.HasSuffix(d.Name(), ".md") {
				add(path)
			}
			return nil
		})
		if err != nil {
			s.logger.Warn("walking docs directory failed", "dir", docsDir, "error", err)
		}
	}
	return files
}

// BuildIndex chunks and embeds every documentation file under baseDir and
// replaces the in-memory index. With nothing to index it returns (0, 0, nil)
// and leaves the current state untouched.
func (s *DocumentIndexer) BuildIndex(baseDir string) (int, int, error) {
	s.logger.Info("collecting documentation files", "base_dir", baseDir)
	files := s.CollectDocumentationFiles(baseDir)
	s.logger.Info("found documentation files", "count", len(files))

	var chunks []domain.DocChunk
	for _, f := range files {
		chunks = append(chunks, s.chunker.ChunkFile(f)...)
	}
	s.logger.Info("split documents into chunks", "chunks", len(chunks))
	if len(chunks) == 0 {
		s.logger.Warn("no chunks created, nothing to index")
		return 0, 0, nil
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	s.logger.Info("generating embeddings", "model", s.embedder.Name())
	vectors, err := s.embedder.EmbedBatch(texts)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}
	index, err := flat.New(len(vectors[0]))
	if err != nil {
		return 0, 0, err
	}
	if err := index.Add(vectors); err != nil {
		return 0, 0, fmt.Errorf("failed to add vectors: %w", err)
	}

	s.mu.Lock()
	s.index = index
	s.chunks = chunks
	s.config = indexstore.NewConfig(s.embedder.Name(), len(chunks), index.Dimension())
	s.mu.Unlock()

	s.logger.Info("index built", "files", len(files), "chunks", len(chunks), "dimension", index.Dimension())
	return len(files), len(chunks), nil
}

// SaveIndex persists the current index into dir.
func (s *DocumentIndexer) SaveIndex(dir string) error {
	s.mu.RLock()
	snap := &indexstore.Snapshot{Config: s.config, Chunks: s.chunks, Index: s.index}
	s.mu.RUnlock()
	if snap.Index == nil {
		return ErrNoIndexToSave
	}
	if err := indexstore.Save(dir, snap); err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}
	s.logger.Info("index saved", "dir", dir, "build_id", snap.Config.BuildID)
	return nil
}

// LoadIndex replaces the in-memory index with the one persisted in dir.
// A model name differing from the current embedder is a warning unless
// strict model checking is on.
func (s *DocumentIndexer) LoadIndex(dir string) error {
	snap, err := indexstore.Load(dir)
	if err != nil {
		if errors.Is(err, indexstore.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrIndexNotFound, dir)
		}
		return fmt.Errorf("failed to load index: %w", err)
	}
	if snap.Config.ModelName != s.embedder.Name() {
		if s.strict {
			return fmt.Errorf("%w: index uses %q, embedder is %q", ErrModelMismatch, snap.Config.ModelName, s.embedder.Name())
		}
		s.logger.Warn("index model differs from configured embedder",
			"index_model", snap.Config.ModelName, "embedder", s.embedder.Name())
	}

	s.mu.Lock()
	s.index = snap.Index
	s.chunks = snap.Chunks
	s.config = snap.Config
	s.mu.Unlock()

	s.logger.Info("index loaded", "dir", dir, "chunks", len(snap.Chunks), "build_id", snap.Config.BuildID)
	return nil
}

// Search embeds query and returns up to topK chunks, most similar first.
func (s *DocumentIndexer) Search(query string, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	index, chunks := s.index, s.chunks
	s.mu.RUnlock()
	if index == nil {
		return nil, ErrIndexNotReady
	}
	if topK <= 0 {
		return []domain.SearchResult{}, nil
	}

	vec, err := s.embedder.Embed(query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	distances, labels, err := index.Search(vec, topK)
	if err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(labels))
	for i, label := range labels {
		if label < 0 || label >= len(chunks) {
			continue
		}
		results = append(results, domain.SearchResult{
			Chunk: chunks[label],
			Score: 1 / (1 + float64(distances[i])),
		})
	}
	return results, nil
}

// Ready reports whether an index is built or loaded.
func (s *DocumentIndexer) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index != nil
}

// Stats describes the current index.
type Stats struct {
	Ready     bool   `json:"ready"`
	Model     string `json:"model"`
	Chunks    int    `json:"chunks"`
	Dimension int    `json:"dimension"`
	BuildID   string `json:"build_id"`
}

func (s *DocumentIndexer) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil {
		return Stats{Model: s.embedder.Name()}
	}
	return Stats{
		Ready:     true,
		Model:     s.config.ModelName,
		Chunks:    len(s.chunks),
		Dimension: s.index.Dimension(),
		BuildID:   s.config.BuildID,
	}
}
