package indexstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"mri-organoids/internal/domain"
	"mri-organoids/internal/vectorindex/flat"
)

const (
	IndexFile    = "index.flat"
	MetadataFile = "metadata.json"
	ConfigFile   = "config.json"
)

var (
	ErrNotFound = errors.New("index directory not found")
	ErrCorrupt  = errors.New("index artifacts are inconsistent")
)

// Config describes a persisted index build.
type Config struct {
	ModelName          string    `json:"model_name"`
	NumChunks          int       `json:"num_chunks"`
	EmbeddingDimension int       `json:"embedding_dimension"`
	BuildID            string    `json:"build_id,omitempty"`
	BuiltAt            time.Time `json:"built_at,omitzero"`
}

// Snapshot is everything that makes up a queryable index.
type Snapshot struct {
	Config Config
	Chunks []domain.DocChunk
	Index  *flat.Index
}

// NewConfig stamps a fresh build id and time for the given model and index.
func NewConfig(modelName string, numChunks, dimension int) Config {
	return Config{
		ModelName:          modelName,
		NumChunks:          numChunks,
		EmbeddingDimension: dimension,
		BuildID:            uuid.NewString(),
		BuiltAt:            time.Now().UTC(),
	}
}

// Save writes the three artifacts into dir, creating it if needed. Each file
// is written to a temp file and renamed into place; config.json goes last so
// readers polling it see a complete build.
func Save(dir string, snap *Snapshot) error {
	if snap == nil || snap.Index == nil {
		return errors.New("nothing to save")
	}
	if snap.Index.Len() != len(snap.Chunks) {
		return fmt.Errorf("%w: %d vectors for %d chunks", ErrCorrupt, snap.Index.Len(), len(snap.Chunks))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	data, err := snap.Index.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode vectors: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, IndexFile), data); err != nil {
		return err
	}
	chunks := snap.Chunks
	if chunks == nil {
		chunks = []domain.DocChunk{}
	}
	meta, err := json.MarshalIndent(chunks, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, MetadataFile), meta); err != nil {
		return err
	}
	cfg, err := json.MarshalIndent(snap.Config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return writeAtomic(filepath.Join(dir, ConfigFile), cfg)
}

// ReadConfig reads only config.json.
func ReadConfig(dir string) (Config, error) {
	var cfg Config
	if err := checkDir(dir); err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: config: %v", ErrCorrupt, err)
	}
	return cfg, nil
}

// Load reads all artifacts from dir and checks that they agree.
func Load(dir string) (*Snapshot, error) {
	cfg, err := ReadConfig(dir)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, IndexFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read vectors: %w", err)
	}
	idx, err := flat.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	meta, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	var chunks []domain.DocChunk
	if err := json.Unmarshal(meta, &chunks); err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrCorrupt, err)
	}
	if len(chunks) != idx.Len() {
		return nil, fmt.Errorf("%w: %d chunks but %d vectors", ErrCorrupt, len(chunks), idx.Len())
	}
	if cfg.EmbeddingDimension != 0 && cfg.EmbeddingDimension != idx.Dimension() {
		return nil, fmt.Errorf("%w: config dimension %d, vectors %d", ErrCorrupt, cfg.EmbeddingDimension, idx.Dimension())
	}
	return &Snapshot{Config: cfg, Chunks: chunks, Index: idx}, nil
}

// Exists reports whether dir exists.
func Exists(dir string) bool {
	return checkDir(dir) == nil
}

func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", dir, ErrNotFound)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory: %w", dir, ErrNotFound)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
