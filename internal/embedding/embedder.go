package embedding

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"mri-organoids/internal/config"
	"mri-organoids/internal/domain"
	"mri-organoids/internal/embedding/hashing"
	"mri-organoids/internal/embedding/hugot"
	"mri-organoids/internal/embedding/openai"
)

// Capability describes whether the configured embedding backend can run.
type Capability struct {
	Available bool
	Backend   string
	Reason    string
	Hint      string
}

// UnavailableError is returned by New when the backend cannot run.
type UnavailableError struct {
	Capability Capability
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("embedding backend %s unavailable: %s", e.Capability.Backend, e.Capability.Reason)
}

// Check evaluates the backend selected by cfg without loading any model.
func Check(cfg config.EmbedderConfig) Capability {
	switch cfg.Type {
	case "", config.EmbedderHashing:
		return Capability{Available: true, Backend: config.EmbedderHashing}
	case config.EmbedderOpenAI:
		keyEnv := "OPENAI_API_KEY"
		if cfg.OpenAI != nil && cfg.OpenAI.APIKeyEnv != "" {
			keyEnv = cfg.OpenAI.APIKeyEnv
		}
		if os.Getenv(keyEnv) == "" {
			return Capability{
				Backend: config.EmbedderOpenAI,
				Reason:  fmt.Sprintf("missing API key in env %s", keyEnv),
				Hint:    fmt.Sprintf("Set %s or switch embedder.type to hashing", keyEnv),
			}
		}
		return Capability{Available: true, Backend: config.EmbedderOpenAI}
	case config.EmbedderHugot:
		h := config.HugotEmbedderConfig{}
		if cfg.Hugot != nil {
			h = *cfg.Hugot
		}
		if h.ModelName == "" {
			h.ModelName = hugot.DefaultModel
		}
		if h.ModelDir == "" {
			h.ModelDir = hugot.DefaultModelDir
		}
		if h.AllowDownload || hugot.ModelAvailable(h.ModelDir, h.ModelName) {
			return Capability{Available: true, Backend: config.EmbedderHugot}
		}
		return Capability{
			Backend: config.EmbedderHugot,
			Reason:  fmt.Sprintf("model %s not found in %s", h.ModelName, h.ModelDir),
			Hint:    "Set embedder.hugot.allow_download: true or place the ONNX model under " + hugot.ModelPath(h.ModelDir, h.ModelName),
		}
	default:
		return Capability{
			Backend: cfg.Type,
			Reason:  "unknown embedder type",
			Hint:    "Use one of: hashing, openai, hugot",
		}
	}
}

// New builds the embedder selected by cfg. A backend that fails Check is
// reported as *UnavailableError.
func New(cfg config.EmbedderConfig, logger *slog.Logger) (domain.Embedder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	capability := Check(cfg)
	if !capability.Available {
		return nil, &UnavailableError{Capability: capability}
	}
	switch capability.Backend {
	case config.EmbedderOpenAI:
		oc := config.OpenAIEmbedderConfig{}
		if cfg.OpenAI != nil {
			oc = *cfg.OpenAI
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:   oc.BaseURL,
			APIKeyEnv: oc.APIKeyEnv,
			Model:     oc.Model,
			Timeout:   time.Duration(oc.TimeoutSecs) * time.Second,
			BatchSize: oc.BatchSize,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.EmbedderHugot:
		hc := config.HugotEmbedderConfig{}
		if cfg.Hugot != nil {
			hc = *cfg.Hugot
		}
		emb, err := hugot.NewEmbedder(hugot.Config{
			ModelName:     hc.ModelName,
			ModelDir:      hc.ModelDir,
			OnnxFile:      hc.OnnxFile,
			AllowDownload: hc.AllowDownload,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		return emb, nil
	default:
		dim := 0
		if cfg.Hashing != nil {
			dim = cfg.Hashing.Dimension
		}
		return hashing.NewEmbedder(dim), nil
	}
}
