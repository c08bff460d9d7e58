// File: cmd/server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log" // Standard log for critical startup/shutdown messages before/after zap is active
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"calma_backend/internal/assessment"
	"calma_backend/internal/config"
)

func main() {
	reconcileCmd := flag.NewFlagSet("reconcile-assessments", flag.ExitOnError)
	timeout := reconcileCmd.Duration("timeout", 2*time.Minute, "Upper bound for a single reconcile pass")

	if len(os.Args) > 1 && os.Args[1] == "reconcile-assessments" {
		_ = reconcileCmd.Parse(os.Args[2:])
		if err := runReconcile(*timeout); err != nil {
			log.Fatalf("FATAL: Assessment reconcile failed: %v", err)
		}
		return
	}

	// Default: Start server
	startServer()
}

func startServer() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	server, cleanup, err := initializeServer(cfg)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize server: %v", err)
	}
	defer cleanup()

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("FATAL: Server failed to start or crashed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("INFO: Received signal '%s'. Shutting down server...", sig)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ServerTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: Server forced to shutdown due to error: %v", err)
	} else {
		log.Println("INFO: Server shutdown complete.")
	}
	log.Println("INFO: Application exiting.")
}

// runReconcile performs a single pass over pending assessments and exits.
func runReconcile(timeout time.Duration) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	job, cleanup, err := initializeReconcileJob(cfg)
	if err != nil {
		return fmt.Errorf("initialize reconcile job: %w", err)
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result, err := job.RunOnce(ctx)
	if err != nil {
		return err
	}
	return reportReconcile(result)
}

func reportReconcile(result assessment.ReconcileResult) error {
	log.Printf("INFO: Reconcile finished: recorded=%d unresolved=%d failed=%d",
		result.Recorded, result.Unresolved, result.Failed)
	if result.Failed > 0 {
		return fmt.Errorf("%d pending assessments failed to reconcile", result.Failed)
	}
	return nil
}
