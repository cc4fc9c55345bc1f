package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EmbedderHashing = "hashing"
	EmbedderOpenAI  = "openai"
	EmbedderHugot   = "hugot"
)

// AssistantConfig controls the documentation assistant itself.
type AssistantConfig struct {
	Enabled          bool   `yaml:"enabled"`
	IndexPath        string `yaml:"index_path"`
	BaseDir          string `yaml:"base_dir"`
	DefaultTopK      int    `yaml:"default_top_k"`
	StrictModelCheck bool   `yaml:"strict_model_check"`
}

// HashingEmbedderConfig configures the offline hashing embedder.
type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
}

// HugotEmbedderConfig configures the local sentence-transformer embedder.
type HugotEmbedderConfig struct {
	ModelName     string `yaml:"model_name"`
	ModelDir      string `yaml:"model_dir"`
	OnnxFile      string `yaml:"onnx_file"`
	AllowDownload bool   `yaml:"allow_download"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type    string                 `yaml:"type"`
	Hashing *HashingEmbedderConfig `yaml:"hashing,omitempty"`
	OpenAI  *OpenAIEmbedderConfig  `yaml:"openai,omitempty"`
	Hugot   *HugotEmbedderConfig   `yaml:"hugot,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	ChunkSize int `yaml:"chunk_size"`
	Overlap   int `yaml:"overlap"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LLMConfig describes the answer-generation provider. Only its presence is
// consulted; answers are not generated.
type LLMConfig struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

// Configured reports whether both a provider and an API key are set.
func (c LLMConfig) Configured() bool {
	return strings.TrimSpace(c.Provider) != "" && strings.TrimSpace(c.APIKey) != ""
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Assistant AssistantConfig `yaml:"assistant"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Log       LogConfig       `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnv(cfg)
			applyConfigDefaults(cfg)
			return cfg, nil
		}
		return nil, err
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	applyEnv(cfg)
	applyConfigDefaults(cfg)
	return cfg, nil
}

// LoadDefault loads .env if present, then tries ./config.yaml first, then
// ~/.config/mri-organoids/config.yaml. If neither exists, it writes defaults
// to the user path and returns them.
func LoadDefault() (*AppConfig, string, error) {
	_ = godotenv.Load()
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	if err := Save(userPath, defaultConfig()); err != nil {
		return nil, "", err
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

// LoadFrom loads the given path, or falls back to LoadDefault when path is empty.
func LoadFrom(path string) (*AppConfig, string, error) {
	if path == "" {
		return LoadDefault()
	}
	_ = godotenv.Load()
	cfg, err := Load(path)
	return cfg, path, err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "mri-organoids", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Assistant: AssistantConfig{
			Enabled:     true,
			IndexPath:   filepath.Join("data", "vector_index"),
			BaseDir:     ".",
			DefaultTopK: 5,
		},
		Embedder: EmbedderConfig{
			Type:    EmbedderHashing,
			Hashing: &HashingEmbedderConfig{Dimension: 384},
		},
		Chunker: ChunkerConfig{ChunkSize: 500, Overlap: 50},
		Server:  ServerConfig{Addr: ":8000"},
		Log:     LogConfig{Level: "info"},
	}
}

func applyEnv(cfg *AppConfig) {
	if v, ok := os.LookupEnv("AI_ASSISTANT_ENABLED"); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.Assistant.Enabled = b
		}
	}
	if v := os.Getenv("AI_VECTOR_INDEX_PATH"); v != "" {
		cfg.Assistant.IndexPath = v
	}
	if v := os.Getenv("AI_DOCS_BASE_DIR"); v != "" {
		cfg.Assistant.BaseDir = v
	}
	if v := os.Getenv("AI_EMBEDDER"); v != "" {
		cfg.Embedder.Type = strings.ToLower(v)
	}
	if v := os.Getenv("AI_EMBEDDING_MODEL"); v != "" {
		switch cfg.Embedder.Type {
		case EmbedderOpenAI:
			if cfg.Embedder.OpenAI == nil {
				cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
			}
			cfg.Embedder.OpenAI.Model = v
		case EmbedderHugot:
			if cfg.Embedder.Hugot == nil {
				cfg.Embedder.Hugot = &HugotEmbedderConfig{}
			}
			cfg.Embedder.Hugot.ModelName = v
		}
	}
	if v := os.Getenv("AI_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("AI_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("AI_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Assistant.IndexPath == "" {
		cfg.Assistant.IndexPath = filepath.Join("data", "vector_index")
	}
	if cfg.Assistant.BaseDir == "" {
		cfg.Assistant.BaseDir = "."
	}
	if cfg.Assistant.DefaultTopK <= 0 {
		cfg.Assistant.DefaultTopK = 5
	}
	if cfg.Chunker.ChunkSize <= 0 {
		cfg.Chunker.ChunkSize = 500
	}
	if cfg.Chunker.Overlap < 0 {
		cfg.Chunker.Overlap = 0
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = EmbedderHashing
	}
	switch cfg.Embedder.Type {
	case EmbedderHashing:
		if cfg.Embedder.Hashing == nil {
			cfg.Embedder.Hashing = &HashingEmbedderConfig{}
		}
		if cfg.Embedder.Hashing.Dimension <= 0 {
			cfg.Embedder.Hashing.Dimension = 384
		}
	case EmbedderOpenAI:
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 32
		}
	case EmbedderHugot:
		if cfg.Embedder.Hugot == nil {
			cfg.Embedder.Hugot = &HugotEmbedderConfig{}
		}
		if cfg.Embedder.Hugot.ModelName == "" {
			cfg.Embedder.Hugot.ModelName = "sentence-transformers/all-MiniLM-L6-v2"
		}
		if cfg.Embedder.Hugot.ModelDir == "" {
			cfg.Embedder.Hugot.ModelDir = "models"
		}
		if cfg.Embedder.Hugot.OnnxFile == "" {
			cfg.Embedder.Hugot.OnnxFile = "onnx/model.onnx"
		}
	}
}
