package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ecucondorSA/Devaltamedica-Independent-sub009/internal/auditchain"
	"github.com/ecucondorSA/Devaltamedica-Independent-sub009/internal/gateway"
	"github.com/ecucondorSA/Devaltamedica-Independent-sub009/internal/rbac"
	"github.com/ecucondorSA/Devaltamedica-Independent-sub009/pkg/config"
	"github.com/ecucondorSA/Devaltamedica-Independent-sub009/pkg/database"
	"github.com/ecucondorSA/Devaltamedica-Independent-sub009/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel)
	log.WithField("version", "1.0.0").Info("Starting Audit Service")

	// Initialize database connection
	db, err := database.NewConnection(&cfg.Database, log)
	if err != nil {
		log.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	// Initialize audit chain components
	auditStore, err := auditchain.NewPostgresStore(db.DB, log)
	if err != nil {
		log.WithError(err).Error("Failed to initialize audit log store")
		os.Exit(1)
	}

	fallbackSink := auditchain.NewLogFallbackSink(log)
	chainEngine := auditchain.NewChainEngine(auditStore, fallbackSink, log)

	// Initialize access decision components
	relationshipStore, err := rbac.NewPostgresRelationshipStore(db.DB, log)
	if err != nil {
		log.WithError(err).Error("Failed to initialize relationship store")
		os.Exit(1)
	}

	accessEngine := rbac.NewAccessEngine(relationshipStore, chainEngine, log)

	// Initialize gateway service
	service := gateway.NewService(cfg, accessEngine, auditStore, db, log)

	// Start server
	errCh := make(chan error, 1)
	go func() {
		errCh <- service.Start()
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("Server error")
			os.Exit(1)
		}
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("Shutdown signal received")
	}

	// Drain in-flight requests so pending audit appends complete before exit.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := service.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
		os.Exit(1)
	}

	log.Info("Audit service stopped")
}
