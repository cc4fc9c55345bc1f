package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"
	openai "github.com/sashabaranov/go-openai"
)

// maxInputTokens is the per-input limit of the OpenAI embedding models.
const maxInputTokens = 8191

// Client is an OpenAI-compatible embeddings client.
type Client struct {
	client     *openai.Client
	model      string
	timeout    time.Duration
	batchSize  int
	maxRetries int
	logger     *slog.Logger

	mu        sync.RWMutex
	dimension int

	encOnce  sync.Once
	encoding *tiktoken.Tiktoken
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
	BatchSize int
	Logger    *slog.Logger
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	clientCfg := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: t}
	return &Client{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		timeout:    t,
		dimension:  knownDimension(cfg.Model),
		batchSize:  cfg.BatchSize,
		maxRetries: 5,
		logger:     cfg.Logger,
	}, nil
}

// Name returns the embedding model identifier.
func (c *Client) Name() string { return c.model }

// Dimension returns the dimensionality of the produced embedding vectors.
// For models of unknown size it is learned from the first response.
func (c *Client) Dimension() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dimension
}

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(text string) ([]float32, error) {
	out, err := c.EmbedBatch([]string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in request batches of the configured size and
// returns vectors in input order.
func (c *Client) EmbedBatch(texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	inputs := make([]string, len(texts))
	total := 0
	for i, text := range texts {
		in, n := c.fitTokens(text)
		inputs[i] = in
		total += n
	}
	if total > 0 {
		c.logger.Info("embedding batch", "model", c.model, "inputs", len(inputs), "tokens", total)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(inputs); start += c.batchSize {
		end := min(start+c.batchSize, len(inputs))
		vecs, err := c.embedWithRetry(inputs[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *Client) embedWithRetry(inputs []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		vecs, err := c.embedOnce(inputs)
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		if !retryable(err) || attempt == c.maxRetries {
			break
		}
		delay := retryDelay(attempt)
		c.logger.Warn("embedding request failed, retrying", "attempt", attempt+1, "delay", delay, "error", err)
		time.Sleep(delay)
	}
	return nil, fmt.Errorf("openai embeddings failed: %w", lastErr)
}

func (c *Client) embedOnce(inputs []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: inputs,
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(inputs), len(resp.Data))
	}
	vecs := make([][]float32, len(inputs))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(inputs) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		if len(d.Embedding) == 0 {
			return nil, errors.New("empty embedding")
		}
		vecs[d.Index] = d.Embedding
	}
	c.learnDimension(len(vecs[0]))
	return vecs, nil
}

// fitTokens truncates text to the model's input limit and reports its token
// count. Without a tokenizer the text is passed through untouched.
func (c *Client) fitTokens(text string) (string, int) {
	enc := c.tokenizer()
	if enc == nil {
		return text, 0
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxInputTokens {
		return text, len(tokens)
	}
	c.logger.Warn("truncating embedding input", "tokens", len(tokens), "limit", maxInputTokens)
	return enc.Decode(tokens[:maxInputTokens]), maxInputTokens
}

func (c *Client) learnDimension(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dimension == 0 {
		c.dimension = n
	}
}

func (c *Client) tokenizer() *tiktoken.Tiktoken {
	c.encOnce.Do(c.loadEncoding)
	return c.encoding
}

func (c *Client) loadEncoding() {
	enc, err := tiktoken.EncodingForModel(c.model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		c.logger.Debug("tokenizer unavailable, skipping token accounting", "error", err)
		return
	}
	c.encoding = enc
}

func knownDimension(model string) int {
	switch openai.EmbeddingModel(model) {
	case openai.SmallEmbedding3, openai.AdaEmbeddingV2:
		return 1536
	case openai.LargeEmbedding3:
		return 3072
	default:
		return 0
	}
}

func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return !errors.Is(err, context.Canceled)
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
