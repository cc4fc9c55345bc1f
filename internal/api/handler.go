package api

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"mri-organoids/internal/domain"
	"mri-organoids/internal/embedding"
	"mri-organoids/internal/service"
)

const (
	DefaultTopK = 5
	MaxTopK     = 50

	snippetsNote = "Showing relevant documentation snippets. LLM-generated answers not configured in this version."
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	return v
}

// DocsIndex answers documentation queries.
type DocsIndex interface {
	Search(question string, topK int) ([]domain.SearchResult, error)
}

type AskDocsRequest struct {
	Question string `json:"question" validate:"required"`
	TopK     *int   `json:"top_k" validate:"omitempty,min=1,max=50"`
}

// Validate returns failing fields, keyed by their JSON name, mapped to the
// tag they failed on.
func (r *AskDocsRequest) Validate() map[string]string {
	if err := validate.Struct(r); err != nil {
		var errs validator.ValidationErrors
		if !errors.As(err, &errs) {
			return map[string]string{"request": err.Error()}
		}
		out := make(map[string]string, len(errs))
		for _, e := range errs {
			out[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return out
	}
	return nil
}

type ChunkResponse struct {
	Text      string  `json:"text"`
	Filename  string  `json:"filename"`
	Heading   string  `json:"heading"`
	LineStart int     `json:"line_start"`
	LineEnd   int     `json:"line_end"`
	Score     float64 `json:"score"`
}

type AskDocsResponse struct {
	Answer *string         `json:"answer"`
	Chunks []ChunkResponse `json:"chunks"`
	Note   *string         `json:"note"`
}

type AskDocsOptions struct {
	Enabled       bool
	DefaultTopK   int
	LLMConfigured bool
	Capability    embedding.Capability
	Index         DocsIndex
	Logger        *slog.Logger
}

type AskDocsHandler struct {
	opts   AskDocsOptions
	logger *slog.Logger
}

func NewAskDocsHandler(opts AskDocsOptions) *AskDocsHandler {
	if opts.DefaultTopK <= 0 || opts.DefaultTopK > MaxTopK {
		opts.DefaultTopK = DefaultTopK
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AskDocsHandler{opts: opts, logger: logger}
}

func (h *AskDocsHandler) HandleAskDocs(c *fiber.Ctx) error {
	if !h.opts.Enabled {
		return ErrAssistantDisabled()
	}

	var params AskDocsRequest
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	params.Question = strings.TrimSpace(params.Question)
	if errs := params.Validate(); len(errs) > 0 {
		if _, ok := errs["question"]; ok {
			return ErrMissingQuestion()
		}
		return ErrInvalidField("top_k", errs["top_k"])
	}
	topK := h.opts.DefaultTopK
	if params.TopK != nil {
		if *params.TopK < 1 || *params.TopK > MaxTopK {
			return ErrInvalidField("top_k", fmt.Sprintf("must be between 1 and %d", MaxTopK))
		}
		topK = *params.TopK
	}

	if !h.opts.Capability.Available || h.opts.Index == nil {
		return ErrDependenciesMissing(h.opts.Capability.Hint)
	}

	results, err := h.opts.Index.Search(params.Question, topK)
	if err != nil {
		if errors.Is(err, service.ErrIndexNotFound) {
			return ErrIndexNotFound()
		}
		h.logger.Error("documentation search failed", "error", err)
		return ErrSearchFailed(err)
	}

	chunks := make([]ChunkResponse, len(results))
	for i, r := range results {
		chunks[i] = ChunkResponse{
			Text:      r.Chunk.Text,
			Filename:  r.Chunk.Filename,
			Heading:   r.Chunk.Heading,
			LineStart: r.Chunk.LineStart,
			LineEnd:   r.Chunk.LineEnd,
			Score:     math.Round(r.Score*1000) / 1000,
		}
	}
	resp := AskDocsResponse{Chunks: chunks}
	if !h.opts.LLMConfigured {
		note := snippetsNote
		resp.Note = &note
	}
	return c.JSON(resp)
}
