package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mri-organoids/internal/chunker"
	"mri-organoids/internal/config"
	"mri-organoids/internal/domain"
	"mri-organoids/internal/embedding"
	"mri-organoids/internal/embedding/hashing"
	"mri-organoids/internal/service"
)

const readmeDoc = `# Test Project

This is a test project for AI assistant.

## Installation
Run ` + "`pip install -r requirements.txt`" + ` to install dependencies.
`

const apiDoc = `# API Documentation

## Endpoints

### POST /api/ai/ask-docs/
Ask a question about the project documentation.
`

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	return &config.AppConfig{
		Assistant: config.AssistantConfig{
			Enabled:     true,
			IndexPath:   filepath.Join(t.TempDir(), "vector_index"),
			DefaultTopK: 5,
		},
		Embedder: config.EmbedderConfig{
			Type:    config.EmbedderHashing,
			Hashing: &config.HashingEmbedderConfig{Dimension: 128},
		},
		Chunker: config.ChunkerConfig{ChunkSize: 500, Overlap: 50},
	}
}

func buildIndex(t *testing.T, cfg *config.AppConfig, docs map[string]string) {
	t.Helper()
	base := t.TempDir()
	for name, content := range docs {
		require.NoError(t, os.WriteFile(filepath.Join(base, name), []byte(content), 0o644))
	}
	indexer := service.NewDocumentIndexer(
		chunker.NewMarkdownChunker(cfg.Chunker.ChunkSize, cfg.Chunker.Overlap),
		hashing.NewEmbedder(cfg.Embedder.Hashing.Dimension),
		service.Options{},
	)
	_, _, err := indexer.BuildIndex(base)
	require.NoError(t, err)
	require.NoError(t, indexer.SaveIndex(cfg.Assistant.IndexPath))
}

func ask(t *testing.T, s *Server, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func TestAskDocs(t *testing.T) {
	t.Run("Returns ranked snippets with note", func(t *testing.T) {
		cfg := testConfig(t)
		buildIndex(t, cfg, map[string]string{"README.md": readmeDoc, "API_DOCS.md": apiDoc})
		s := NewServer(cfg, nil)

		code, body := ask(t, s, "/api/ai/ask-docs/", `{"question": "How do I install dependencies?"}`)

		require.Equal(t, http.StatusOK, code)
		assert.Nil(t, body["answer"])
		assert.Equal(t, snippetsNote, body["note"])
		chunks, ok := body["chunks"].([]any)
		require.True(t, ok)
		require.Len(t, chunks, 2)
		top := chunks[0].(map[string]any)
		assert.Equal(t, "README.md", top["filename"])
		assert.Contains(t, top["text"], "install")
		for _, key := range []string{"text", "filename", "heading", "line_start", "line_end", "score"} {
			assert.Contains(t, top, key)
		}
		score := top["score"].(float64)
		assert.Greater(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
		assert.InDelta(t, score, float64(int(score*1000+0.5))/1000, 1e-9)
	})

	t.Run("Path without trailing slash and top_k", func(t *testing.T) {
		cfg := testConfig(t)
		buildIndex(t, cfg, map[string]string{"README.md": readmeDoc, "API_DOCS.md": apiDoc})
		s := NewServer(cfg, nil)

		code, body := ask(t, s, "/api/ai/ask-docs", `{"question": "API endpoints", "top_k": 1}`)

		require.Equal(t, http.StatusOK, code)
		chunks := body["chunks"].([]any)
		require.Len(t, chunks, 1)
		assert.Contains(t, strings.ToLower(chunks[0].(map[string]any)["text"].(string)), "api")
	})

	t.Run("Configured LLM clears the note", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.LLM = config.LLMConfig{Provider: "openai", APIKey: "sk-test"}
		buildIndex(t, cfg, map[string]string{"README.md": readmeDoc})
		s := NewServer(cfg, nil)

		code, body := ask(t, s, "/api/ai/ask-docs/", `{"question": "install"}`)

		require.Equal(t, http.StatusOK, code)
		assert.Contains(t, body, "note")
		assert.Nil(t, body["note"])
	})

	t.Run("Disabled assistant", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Assistant.Enabled = false
		s := NewServer(cfg, nil)

		code, body := ask(t, s, "/api/ai/ask-docs/", `{"question": "install"}`)

		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "AI Assistant is disabled", body["error"])
	})

	t.Run("Missing or blank question", func(t *testing.T) {
		s := NewServer(testConfig(t), nil)

		for _, payload := range []string{`{}`, `{"question": ""}`, `{"question": "   "}`} {
			code, body := ask(t, s, "/api/ai/ask-docs/", payload)

			assert.Equal(t, http.StatusBadRequest, code, payload)
			assert.Equal(t, "Missing required field: question", body["error"], payload)
			assert.Equal(t, map[string]any{"question": "required"}, body["errors"], payload)
		}
	})

	t.Run("Malformed body", func(t *testing.T) {
		s := NewServer(testConfig(t), nil)

		code, body := ask(t, s, "/api/ai/ask-docs/", `{"question": `)

		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "invalid JSON request", body["error"])
	})

	t.Run("Out of range top_k", func(t *testing.T) {
		s := NewServer(testConfig(t), nil)

		for _, payload := range []string{`{"question": "q", "top_k": 0}`, `{"question": "q", "top_k": 51}`} {
			code, body := ask(t, s, "/api/ai/ask-docs/", payload)

			assert.Equal(t, http.StatusBadRequest, code, payload)
			assert.Equal(t, "invalid field: top_k", body["error"], payload)
			assert.Contains(t, body["errors"], "top_k", payload)
		}
	})

	t.Run("Unavailable backend", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Embedder = config.EmbedderConfig{Type: "word2vec"}
		s := NewServer(cfg, nil)

		code, body := ask(t, s, "/api/ai/ask-docs/", `{"question": "install"}`)

		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "AI Assistant dependencies not installed", body["error"])
		assert.NotEmpty(t, body["note"])
	})

	t.Run("Index not built", func(t *testing.T) {
		s := NewServer(testConfig(t), nil)

		code, body := ask(t, s, "/api/ai/ask-docs/", `{"question": "install"}`)

		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, "Documentation index not found", body["error"])
		assert.Equal(t, "Run: build-ai-index", body["note"])
	})

	t.Run("Search failure", func(t *testing.T) {
		h := NewAskDocsHandler(AskDocsOptions{
			Enabled:    true,
			Capability: embedding.Capability{Available: true, Backend: "hashing"},
			Index:      failingIndex{err: errors.New("disk on fire")},
		})
		s := &Server{app: NewApp(h, NewCheckHandler(nil))}

		code, body := ask(t, s, "/api/ai/ask-docs/", `{"question": "install"}`)

		assert.Equal(t, http.StatusInternalServerError, code)
		assert.Equal(t, "Search failed: disk on fire", body["error"])
	})
}

func TestIndexCacheReload(t *testing.T) {
	cfg := testConfig(t)
	buildIndex(t, cfg, map[string]string{"README.md": readmeDoc})
	s := NewServer(cfg, nil)

	code, body := ask(t, s, "/api/ai/ask-docs/", `{"question": "API endpoints"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["chunks"], 1)
	first := indexStatus(t, s)
	assert.True(t, first.Loaded)

	buildIndex(t, cfg, map[string]string{"README.md": readmeDoc, "API_DOCS.md": apiDoc})
	code, body = ask(t, s, "/api/ai/ask-docs/", `{"question": "API endpoints"}`)

	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["chunks"], 2)
	second := indexStatus(t, s)
	assert.True(t, second.Loaded)
	assert.NotEqual(t, first.BuildID, second.BuildID)
	assert.Equal(t, 2, second.Chunks)
}

type closingEmbedder struct {
	domain.Embedder
	closed bool
}

func (e *closingEmbedder) Close() error {
	e.closed = true
	return nil
}

func TestServerStopClosesEmbedder(t *testing.T) {
	s := NewServer(testConfig(t), nil)
	emb := &closingEmbedder{Embedder: s.embedder}
	s.embedder = emb

	_ = s.Stop()

	assert.True(t, emb.closed)
}

func TestCheckHandlers(t *testing.T) {
	t.Run("Healthy", func(t *testing.T) {
		s := NewServer(testConfig(t), nil)
		req := httptest.NewRequest(http.MethodGet, "/check/healthy", nil)

		resp, err := s.App().Test(req, -1)

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("Index status before build", func(t *testing.T) {
		status := indexStatus(t, NewServer(testConfig(t), nil))

		assert.False(t, status.Exists)
		assert.False(t, status.Loaded)
	})
}

func indexStatus(t *testing.T, s *Server) IndexStatus {
	t.Helper()
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/check/index", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	var status IndexStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	return status
}

type failingIndex struct{ err error }

func (f failingIndex) Search(string, int) ([]domain.SearchResult, error) { return nil, f.err }
