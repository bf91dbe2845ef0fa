package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/openscience/moderation/internal/config"
	"github.com/openscience/moderation/internal/container"
	httpserver "github.com/openscience/moderation/internal/interfaces/http"
	"github.com/openscience/moderation/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting moderation service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	// Build and start the container: database, repositories, external
	// adapters, machines, services and the sweep scheduler.
	c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		logger.Fatal("Failed to create container", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Start(ctx); err != nil {
		logger.Fatal("Failed to start container", zap.Error(err))
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Container shutdown reported errors", zap.Error(err))
		}
	}()

	// Assemble the HTTP server over the container's components
	machines := c.Machines()
	services := c.Services()
	serverLogger := utils.NewKVLogger(logger)

	server := httpserver.NewServer(
		httpserver.ServerConfig{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		httpserver.Machines{
			Reviews:          machines.Reviews,
			NodeRequests:     machines.NodeRequests,
			PreprintRequests: machines.PreprintRequests,
			Sanctions:        machines.Sanctions,
			Collections:      machines.Collections,
		},
		services.Queue,
		services.Export,
		serverLogger,
	)

	// Stop on interrupt
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("Shutdown signal received")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		logger.Error("HTTP server exited with error", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}
