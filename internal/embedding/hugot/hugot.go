package hugot

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
)

const (
	DefaultModel    = "sentence-transformers/all-MiniLM-L6-v2"
	DefaultModelDir = "models"
	DefaultOnnxFile = "onnx/model.onnx"
)

// Config configures the local sentence-transformer embedder.
type Config struct {
	ModelName     string
	ModelDir      string
	OnnxFile      string
	AllowDownload bool
	Logger        *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.ModelName == "" {
		c.ModelName = DefaultModel
	}
	if c.ModelDir == "" {
		c.ModelDir = DefaultModelDir
	}
	if c.OnnxFile == "" {
		c.OnnxFile = DefaultOnnxFile
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// ModelPath is where a downloaded model lives inside dir.
func ModelPath(dir, modelName string) string {
	return filepath.Join(dir, strings.ReplaceAll(modelName, "/", "_"))
}

// ModelAvailable reports whether the model files are present locally.
func ModelAvailable(dir, modelName string) bool {
	info, err := os.Stat(ModelPath(dir, modelName))
	return err == nil && info.IsDir()
}

// PrepareModel returns the local model path, downloading the model first when
// it is missing and downloads are allowed.
func PrepareModel(cfg Config) (string, error) {
	cfg.applyDefaults()
	modelPath := ModelPath(cfg.ModelDir, cfg.ModelName)
	if _, err := os.Stat(modelPath); err == nil {
		return modelPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to stat model directory: %w", err)
	}
	if !cfg.AllowDownload {
		return "", fmt.Errorf("model %s not found in %s", cfg.ModelName, cfg.ModelDir)
	}
	if err := os.MkdirAll(cfg.ModelDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}
	cfg.Logger.Info("downloading embedding model", "model", cfg.ModelName, "dir", cfg.ModelDir)
	opts := hugot.NewDownloadOptions()
	opts.OnnxFilePath = cfg.OnnxFile
	downloaded, err := hugot.DownloadModel(cfg.ModelName, cfg.ModelDir, opts)
	if err != nil {
		return "", fmt.Errorf("failed to download model: %w", err)
	}
	return downloaded, nil
}

// Embedder runs a feature-extraction pipeline on the pure Go backend and
// returns L2-normalized sentence embeddings.
type Embedder struct {
	name      string
	dimension int
	session   *hugot.Session
	run       func([]string) ([][]float32, error)
	mu        sync.Mutex
}

// NewEmbedder prepares the model, opens a session and probes the embedding
// dimension. Callers must Close the embedder.
func NewEmbedder(cfg Config) (*Embedder, error) {
	cfg.applyDefaults()
	modelPath, err := PrepareModel(cfg)
	if err != nil {
		return nil, err
	}
	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}
	pipeline, err := hugot.NewPipeline(session, hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "docs-embedder",
	})
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create sentence pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create sentence pipeline: %w", err)
	}
	e := &Embedder{
		name:    cfg.ModelName,
		session: session,
		run: func(texts []string) ([][]float32, error) {
			result, err := pipeline.RunPipeline(texts)
			if err != nil {
				return nil, err
			}
			return result.Embeddings, nil
		},
	}
	probe, err := e.Embed("dimension probe")
	if err != nil {
		_ = e.Close()
		return nil, err
	}
	e.dimension = len(probe)
	cfg.Logger.Info("embedding model loaded", "model", cfg.ModelName, "dimension", e.dimension)
	return e, nil
}

func (e *Embedder) Name() string   { return e.name }
func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) Embed(text string) ([]float32, error) {
	out, err := e.EmbedBatch([]string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *Embedder) EmbedBatch(texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.run == nil {
		return nil, errors.New("embedder is closed")
	}
	vecs, err := e.run(texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vecs))
	}
	for i := range vecs {
		l2normalize(vecs[i])
	}
	return vecs, nil
}

// Close releases the underlying session.
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.run = nil
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	return err
}

func l2normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
