package api

import (
	"io"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"mri-organoids/internal/chunker"
	"mri-organoids/internal/config"
	"mri-organoids/internal/domain"
	"mri-organoids/internal/embedding"
	"mri-organoids/internal/service"
)

type Server struct {
	listenAddr string
	logger     *slog.Logger
	app        *fiber.App
	embedder   domain.Embedder
}

// NewServer wires the documentation endpoints for cfg. An embedding backend
// that cannot start leaves the server up and answering 503.
func NewServer(cfg *config.AppConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{listenAddr: cfg.Server.Addr, logger: logger}

	capability := embedding.Check(cfg.Embedder)
	var cache *IndexCache
	if cfg.Assistant.Enabled && capability.Available {
		emb, err := embedding.New(cfg.Embedder, logger)
		if err != nil {
			logger.Error("embedding backend failed to start", "backend", capability.Backend, "error", err)
			capability = embedding.Capability{Backend: capability.Backend, Reason: err.Error(), Hint: capability.Hint}
		} else {
			s.embedder = emb
			indexer := service.NewDocumentIndexer(
				chunker.NewMarkdownChunker(cfg.Chunker.ChunkSize, cfg.Chunker.Overlap).WithLogger(logger),
				emb,
				service.Options{StrictModelCheck: cfg.Assistant.StrictModelCheck, Logger: logger},
			)
			cache = NewIndexCache(cfg.Assistant.IndexPath, indexer, logger)
		}
	}
	if !capability.Available {
		logger.Warn("documentation assistant unavailable", "backend", capability.Backend, "reason", capability.Reason)
	}

	opts := AskDocsOptions{
		Enabled:       cfg.Assistant.Enabled,
		DefaultTopK:   cfg.Assistant.DefaultTopK,
		LLMConfigured: cfg.LLM.Configured(),
		Capability:    capability,
		Logger:        logger,
	}
	var statuser IndexStatuser
	if cache != nil {
		opts.Index = cache
		statuser = cache
	}
	s.app = NewApp(NewAskDocsHandler(opts), NewCheckHandler(statuser))
	return s
}

// NewApp registers the routes on a fresh fiber app.
func NewApp(askDocs *AskDocsHandler, check *CheckHandler) *fiber.App {
	var (
		app    = fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
		checks = app.Group("/check")
		ai     = app.Group("/api/ai")
	)
	checks.Get("/healthy", check.HandleHealthy)
	checks.Get("/index", check.HandleIndex)
	ai.Post("/ask-docs", askDocs.HandleAskDocs)
	ai.Post("/ask-docs/", askDocs.HandleAskDocs)
	return app
}

func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Run() error {
	s.logger.Info("server listening", "addr", s.listenAddr)
	if err := s.app.Listen(s.listenAddr); err != nil {
		s.logger.Error("error to start server", "error", err.Error())
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	err := s.app.Shutdown()
	if closer, ok := s.embedder.(io.Closer); ok {
		if cerr := closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	s.logger.Info("server stopped")
	return err
}
