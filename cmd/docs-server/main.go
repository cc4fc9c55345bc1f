package main

import (
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"mri-organoids/internal/api"
	"mri-organoids/internal/config"
	"mri-organoids/internal/logging"
)

type server interface {
	Run() error
	Stop() error
}

func main() {
	var cfgPath, addr string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/mri-organoids/config.yaml if not provided)")
	flag.StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	flag.Parse()

	cfg, path, err := config.LoadFrom(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	logger := logging.Setup(cfg.Log.Level)
	logger.Info("config loaded", "path", path, "embedder", cfg.Embedder.Type, "index_path", cfg.Assistant.IndexPath)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	if err := serve(api.NewServer(cfg, logger), sig, logger); err != nil {
		os.Exit(1)
	}
}

// serve runs srv until a signal arrives and returns once Stop has finished.
func serve(srv server, sig <-chan os.Signal, logger *slog.Logger) error {
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-sig
		if err := srv.Stop(); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	if err := srv.Run(); err != nil {
		return err
	}
	// Run returns as soon as shutdown starts; the embedder may still be closing
	<-stopped
	return nil
}
