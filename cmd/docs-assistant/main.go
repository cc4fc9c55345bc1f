package main

import (
	"flag"
	"fmt"
	"io"
	"log"

	tea "github.com/charmbracelet/bubbletea"

	"mri-organoids/internal/chunker"
	"mri-organoids/internal/config"
	"mri-organoids/internal/embedding"
	"mri-organoids/internal/logging"
	"mri-organoids/internal/service"
	"mri-organoids/internal/tui"
)

func main() {
	var cfgPath string
	var topK int
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/mri-organoids/config.yaml if not provided)")
	flag.IntVar(&topK, "top-k", 0, "Snippets per question (defaults to assistant.default_top_k)")
	flag.Parse()

	cfg, _, err := config.LoadFrom(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	// keep log lines off the terminal UI
	logger := logging.Setup("error")
	if topK <= 0 {
		topK = cfg.Assistant.DefaultTopK
	}

	emb, err := embedding.New(cfg.Embedder, logger)
	if err != nil {
		log.Fatalf("embedder init failed: %v", err)
	}
	if closer, ok := emb.(io.Closer); ok {
		defer closer.Close()
	}
	indexer := service.NewDocumentIndexer(
		chunker.NewMarkdownChunker(cfg.Chunker.ChunkSize, cfg.Chunker.Overlap),
		emb,
		service.Options{StrictModelCheck: cfg.Assistant.StrictModelCheck, Logger: logger},
	)
	if err := indexer.LoadIndex(cfg.Assistant.IndexPath); err != nil {
		log.Fatalf("failed to load index: %v (run build-ai-index first)", err)
	}

	stats := indexer.Stats()
	summary := fmt.Sprintf("%d chunks · model %s · build %s", stats.Chunks, stats.Model, stats.BuildID)
	m := tui.New(indexer, topK, summary)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		log.Fatal(err)
	}
}
