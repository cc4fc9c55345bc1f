package embedding

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mri-organoids/internal/config"
	"mri-organoids/internal/embedding/hugot"
)

func TestCheck(t *testing.T) {
	t.Run("Hashing is always available", func(t *testing.T) {
		c := Check(config.EmbedderConfig{Type: config.EmbedderHashing})

		assert.True(t, c.Available)
		assert.Equal(t, "hashing", c.Backend)
	})

	t.Run("OpenAI without key is unavailable", func(t *testing.T) {
		t.Setenv("DOCS_TEST_OPENAI_KEY", "")

		c := Check(config.EmbedderConfig{
			Type:   config.EmbedderOpenAI,
			OpenAI: &config.OpenAIEmbedderConfig{APIKeyEnv: "DOCS_TEST_OPENAI_KEY"},
		})

		assert.False(t, c.Available)
		assert.Contains(t, c.Reason, "DOCS_TEST_OPENAI_KEY")
		assert.NotEmpty(t, c.Hint)
	})

	t.Run("OpenAI with key is available", func(t *testing.T) {
		t.Setenv("DOCS_TEST_OPENAI_KEY", "sk-test")

		c := Check(config.EmbedderConfig{
			Type:   config.EmbedderOpenAI,
			OpenAI: &config.OpenAIEmbedderConfig{APIKeyEnv: "DOCS_TEST_OPENAI_KEY"},
		})

		assert.True(t, c.Available)
	})

	t.Run("Hugot needs a local model or download permission", func(t *testing.T) {
		dir := t.TempDir()
		cfg := config.EmbedderConfig{
			Type:  config.EmbedderHugot,
			Hugot: &config.HugotEmbedderConfig{ModelDir: dir},
		}

		assert.False(t, Check(cfg).Available)

		cfg.Hugot.AllowDownload = true
		assert.True(t, Check(cfg).Available)

		cfg.Hugot.AllowDownload = false
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "sentence-transformers_all-MiniLM-L6-v2"), 0o755))
		assert.True(t, Check(cfg).Available)
		assert.Equal(t, hugot.ModelPath(dir, hugot.DefaultModel), filepath.Join(dir, "sentence-transformers_all-MiniLM-L6-v2"))
	})

	t.Run("Unknown type is unavailable", func(t *testing.T) {
		c := Check(config.EmbedderConfig{Type: "word2vec"})

		assert.False(t, c.Available)
		assert.Equal(t, "word2vec", c.Backend)
	})
}

func TestNew(t *testing.T) {
	t.Run("Hashing backend", func(t *testing.T) {
		e, err := New(config.EmbedderConfig{
			Type:    config.EmbedderHashing,
			Hashing: &config.HashingEmbedderConfig{Dimension: 64},
		}, nil)

		require.NoError(t, err)
		assert.Equal(t, 64, e.Dimension())
	})

	t.Run("Unavailable backend returns typed error", func(t *testing.T) {
		_, err := New(config.EmbedderConfig{Type: "word2vec"}, nil)

		var unavailable *UnavailableError
		require.True(t, errors.As(err, &unavailable))
		assert.Equal(t, "word2vec", unavailable.Capability.Backend)
	})
}
