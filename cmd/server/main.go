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

	"github.com/hzvision/cutvision/internal/api/rest"
	"github.com/hzvision/cutvision/internal/api/websocket"
	"github.com/hzvision/cutvision/internal/cameras"
	"github.com/hzvision/cutvision/internal/config"
	"github.com/hzvision/cutvision/internal/supervisor"
	"github.com/hzvision/cutvision/internal/types"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the config file")
	dumpConfig := flag.Bool("dump-config", false, "print the effective configuration and exit")
	flag.Parse()

	// Logger initialisieren
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Config laden
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	if *dumpConfig {
		out, err := cfg.Dump()
		if err != nil {
			logger.Fatal("Failed to dump config", zap.Error(err))
		}
		fmt.Print(out)
		return
	}

	logger.Info("Config loaded successfully")

	// Kamera-Registerkarte laden und validieren
	cameraMap, err := cameras.Load(cfg.CamerasFile)
	if err != nil {
		logger.Fatal("Failed to load camera map", zap.Error(err))
	}

	logger.Info("Camera map loaded",
		zap.String("file", cfg.CamerasFile),
		zap.Int("cameras", len(cameraMap.Cameras)))

	// WebSocket Hub für Status-Broadcasts
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()

	sup := supervisor.New(cfg, cameraMap, logger, supervisor.Options{
		OnStatus: func(status types.WorkerStatus) {
			wsHub.Broadcast(websocket.NewCameraStatusMessage(status))
		},
	})

	if err := sup.Start(); err != nil {
		logger.Fatal("Failed to start supervisor", zap.Error(err))
	}

	// PLC-Linkstatus an die GUI melden
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		previous := sup.ConnectionState()
		for range ticker.C {
			current := sup.ConnectionState()
			if current != previous {
				wsHub.Broadcast(websocket.NewPLCStateMessage(string(current), string(previous)))
				previous = current
			}
		}
	}()

	restServer := rest.NewServer(cfg, sup, logger, wsHub)
	if err := restServer.Start(); err != nil {
		logger.Fatal("Failed to start REST API", zap.Error(err))
	}

	logger.Info("cutvision started successfully",
		zap.Int("http_port", cfg.Server.HTTPPort),
		zap.Bool("plc_simulated", cfg.PLC.Simulate))

	// Graceful Shutdown auf Signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := restServer.Shutdown(ctx); err != nil {
		logger.Error("REST shutdown failed", zap.Error(err))
	}

	if err := sup.Stop(ctx); err != nil {
		logger.Error("Supervisor shutdown failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("cutvision stopped successfully")
}
