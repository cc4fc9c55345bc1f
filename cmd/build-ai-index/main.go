package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/fatih/color"

	"mri-organoids/internal/chunker"
	"mri-organoids/internal/config"
	"mri-organoids/internal/embedding"
	"mri-organoids/internal/indexstore"
	"mri-organoids/internal/logging"
	"mri-organoids/internal/service"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("build-ai-index", flag.ContinueOnError)
	var (
		cfgPath = fs.String("config", "", "Path to YAML config file (optional; uses ~/.config/mri-organoids/config.yaml if not provided)")
		baseDir = fs.String("base-dir", "", "Project directory to index (overrides assistant.base_dir)")
		force   = fs.Bool("force", false, "Force rebuild even if index already exists")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _, err := config.LoadFrom(*cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.Setup(cfg.Log.Level)
	if *baseDir != "" {
		cfg.Assistant.BaseDir = *baseDir
	}

	if !cfg.Assistant.Enabled {
		return errors.New("AI Assistant is disabled. Set assistant.enabled: true in config or AI_ASSISTANT_ENABLED=true")
	}

	warn := color.New(color.FgYellow).SprintFunc()
	success := color.New(color.FgGreen).SprintFunc()
	rule := strings.Repeat("=", 60)

	fmt.Fprintln(out, "Building AI Assistant Documentation Index...")
	fmt.Fprintln(out, rule)

	capability := embedding.Check(cfg.Embedder)
	if !capability.Available {
		return fmt.Errorf("AI Assistant dependencies not installed: %s\n%s", capability.Reason, capability.Hint)
	}

	indexPath := cfg.Assistant.IndexPath
	if indexstore.Exists(indexPath) && !*force {
		fmt.Fprintln(out, warn(fmt.Sprintf("\nIndex already exists at: %s\nUse --force to rebuild.", indexPath)))
		return nil
	}

	fmt.Fprintln(out, "\nInitializing indexer...")
	emb, err := embedding.New(cfg.Embedder, logger)
	if err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}
	if closer, ok := emb.(io.Closer); ok {
		defer closer.Close()
	}
	indexer := service.NewDocumentIndexer(
		chunker.NewMarkdownChunker(cfg.Chunker.ChunkSize, cfg.Chunker.Overlap).WithLogger(logger),
		emb,
		service.Options{StrictModelCheck: cfg.Assistant.StrictModelCheck, Logger: logger},
	)

	fmt.Fprintf(out, "\nSearching for documentation in: %s\n", cfg.Assistant.BaseDir)
	numFiles, numChunks, err := indexer.BuildIndex(cfg.Assistant.BaseDir)
	if err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}
	if numChunks == 0 {
		fmt.Fprintln(out, warn("\nNo documentation found or indexed.\nMake sure you have .md files in your project root or docs/ directory."))
		return nil
	}

	fmt.Fprintf(out, "\nSaving index to: %s\n", indexPath)
	if err := indexer.SaveIndex(indexPath); err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}

	fmt.Fprintln(out, "\n"+rule)
	fmt.Fprintln(out, success(fmt.Sprintf(
		"\nSuccessfully built documentation index:\n  - Files processed: %d\n  - Chunks created: %d\n  - Index location: %s\n",
		numFiles, numChunks, indexPath)))
	fmt.Fprintln(out, "\nThe AI assistant is now ready to answer documentation questions!")
	fmt.Fprintln(out, warn("\nReminder: This is for documentation/research support only.\nNOT for clinical diagnosis or patient treatment."))
	return nil
}
