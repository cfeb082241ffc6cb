package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GriffinCanCode/sitepack/internal/domain/auth"
	"github.com/GriffinCanCode/sitepack/internal/infrastructure/config"
	"github.com/GriffinCanCode/sitepack/internal/infrastructure/server"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Parse flags
	port := flag.String("port", "", "Server port (overrides SERVER_PORT)")
	dev := flag.Bool("dev", false, "Development mode (colored logs, debug level)")
	hash := flag.String("hash-password", "", "Print a bcrypt hash for the users file and exit")
	flag.Parse()

	if *hash != "" {
		h, err := auth.HashPassword(*hash)
		if err != nil {
			log.Fatalf("Failed to hash password: %v", err)
		}
		fmt.Println(h)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	// Create server
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
		if err := srv.Run(); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-sigChan:
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	case err := <-errChan:
		srv.Close()
		log.Fatalf("Server error: %v", err)
	}
}
