package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aryaprasad08/slouch/common/database"
	logpkg "github.com/aryaprasad08/slouch/common/logger"
	"github.com/aryaprasad08/slouch/internal/config"
	"github.com/aryaprasad08/slouch/internal/proxy"
	"github.com/aryaprasad08/slouch/internal/repository"
	"github.com/aryaprasad08/slouch/internal/transport"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadProxy()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, "posture-proxy")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}

	gin.SetMode(gin.ReleaseMode)

	var (
		sink proxy.FeedSink
		db   *sql.DB
	)
	switch cfg.Sink {
	case config.SinkPostgres:
		db, err = database.NewPostgresDB(&cfg.Database)
		if err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		repo := repository.NewPostgresFeedRepository(db, log)
		if err := repo.EnsureSchema(context.Background()); err != nil {
			log.Fatal("Failed to prepare feed_data table", zap.Error(err))
		}
		sink = proxy.NewPostgresSink(repo)
	default:
		sink = proxy.NewAIOSink(transport.NewAIOClient(cfg.AIO.BaseURL, cfg.AIO.Username, cfg.AIO.Key, log))
	}
	log.Info("Feed sink configured", zap.String("sink", cfg.Sink))

	router := proxy.NewRouter(proxy.NewHandler(sink, cfg.HTTP.WriteTimeout, log), log)
	srv := proxy.NewServer(cfg.HTTP.Addr, router, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			log.Error("HTTP server error", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping HTTP server", zap.Error(err))
	}
	if err := database.Close(db); err != nil {
		log.Error("Error closing database", zap.Error(err))
	}

	log.Info("Service stopped")
}
