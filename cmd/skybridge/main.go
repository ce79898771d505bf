package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/adsbtools/skybridge/internal/api"
	"github.com/adsbtools/skybridge/internal/config"
	"github.com/adsbtools/skybridge/internal/realtime"
	"github.com/adsbtools/skybridge/internal/storage/sqlite"
	"github.com/adsbtools/skybridge/internal/tracker"
	"github.com/adsbtools/skybridge/internal/websocket"
	"github.com/adsbtools/skybridge/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting skybridge",
		logger.String("version", Version),
		logger.String("upstream", cfg.Upstream.WebSocketURL),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Position store and interpolation engine
	store := tracker.NewStore(log)
	engine := tracker.NewEngine(store, cfg.Interpolation, log)

	// Track history persistence, optional
	var (
		storage  *sqlite.PositionStorage
		recorder *sqlite.Recorder
	)
	if cfg.Storage.Enabled {
		if dir := filepath.Dir(cfg.Storage.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				log.Error("Failed to create database directory", logger.Error(err), logger.String("path", dir))
				os.Exit(1)
			}
		}

		storage, err = sqlite.NewPositionStorage(cfg.Storage.SQLitePath, cfg.Storage.MaxPositionsInAPI, log)
		if err != nil {
			log.Error("Failed to create SQLite storage", logger.Error(err))
			os.Exit(1)
		}
		defer storage.Close()
		log.Info("Using SQLite storage", logger.String("path", cfg.Storage.SQLitePath))

		recorder = sqlite.NewRecorder(storage, log)
		if err := recorder.Start(ctx); err != nil {
			log.Error("Failed to start position recorder", logger.Error(err))
			os.Exit(1)
		}
		store.SetCommitListener(recorder.Record)
	}

	// Downstream WebSocket hub
	wsServer := websocket.NewServer(log)
	go wsServer.Run()

	// Downstream delta broadcaster
	broadcaster := websocket.NewBroadcaster(wsServer, store,
		time.Duration(cfg.Broadcast.IntervalMs)*time.Millisecond, log)
	if err := broadcaster.Start(ctx); err != nil {
		log.Error("Failed to start broadcaster", logger.Error(err))
		os.Exit(1)
	}

	// Interpolation engine frame loop
	if err := engine.Start(ctx); err != nil {
		log.Error("Failed to start interpolation engine", logger.Error(err))
		os.Exit(1)
	}

	// Upstream feed client, with optional REST fallback
	var rest *realtime.RESTClient
	if cfg.Upstream.EnableHTTPFallback {
		rest = realtime.NewRESTClient(cfg.Upstream, log)
	}
	upstream := realtime.NewClient(cfg.Upstream, engine, rest, log)
	if err := upstream.Start(ctx); err != nil {
		log.Error("Failed to start upstream client", logger.Error(err))
		os.Exit(1)
	}

	// API router and handlers
	handler := api.NewHandler(engine, upstream, storage, wsServer, cfg, log)
	wsServer.SetMessageHandler(api.NewWSHandler(engine, store, handler, log))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// Wait for interrupt signal or a fatal component error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received signal, shutting down", logger.String("signal", sig.String()))
	case <-gctx.Done():
		log.Error("Component failed, shutting down")
	}

	log.Info("Stopping upstream client...")
	upstream.Stop()

	log.Info("Stopping interpolation engine...")
	engine.Stop()

	log.Info("Stopping broadcaster...")
	broadcaster.Stop()

	log.Info("Stopping WebSocket server...")
	wsServer.Stop()

	if recorder != nil {
		log.Info("Stopping position recorder...")
		recorder.Stop()
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.Error(err))
	}

	if err := g.Wait(); err != nil {
		log.Error("Component error", logger.Error(err))
	}

	log.Info("Server fully stopped")
}
