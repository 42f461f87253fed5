package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/personium/personium-engine/internal/infrastructure/config"
	"github.com/personium/personium-engine/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override environment and file values
	flag.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "Server port")
	flag.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "Server host")
	flag.StringVar(&cfg.Extension.Dir, "extensions", cfg.Extension.Dir, "Extension directory")
	flag.StringVar(&cfg.Source.FsRoot, "fs-root", cfg.Source.FsRoot, "Root confining service collection paths")
	flag.StringVar(&cfg.Source.TestDir, "test-dir", cfg.Source.TestDir, "Directory of test scripts")
	flag.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "Development mode (debug route, console logs)")
	flag.Parse()

	if cfg.Logging.Development && os.Getenv("LOG_LEVEL") == "" {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	// Wait for shutdown signal or error
	select {
	case <-sigChan:
		log.Println("Shutting down gracefully...")
		if err := srv.Close(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	case err := <-errChan:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}
}
