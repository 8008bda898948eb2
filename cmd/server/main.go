package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docscope/backend/internal/config"
	delivery "github.com/docscope/backend/internal/delivery/http"
	"github.com/docscope/backend/internal/embedding"
	"github.com/docscope/backend/internal/executor"
	"github.com/docscope/backend/internal/planner"
	"github.com/docscope/backend/internal/repository/postgres"
	"github.com/docscope/backend/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))
	logger.Info("docscope backend starting", "port", cfg.Server.Port)

	pool, err := connectWithRetry(cfg, logger)
	if err != nil {
		logger.Error("could not connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	embedder := embedding.NewClient(cfg.Embedding, logger)
	paperRepo := postgres.NewPaperRepository(pool)

	pln := planner.New(cfg.Query.EnabledSources, cfg.Query.MaxLimit)
	exec := executor.New(pool, cfg.Query.MainQueryTimeout, cfg.Query.CountTimeout, logger)

	queryUsecase := usecase.NewQueryUsecase(pln, exec, embedder, logger)
	paperUsecase := usecase.NewPaperUsecase(paperRepo, cfg.Query.EnabledSources)

	handler := delivery.NewHandler(queryUsecase, paperUsecase)
	router := delivery.NewRouter(handler, logger, cfg.CORS.AllowedOrigins)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// connectWithRetry gives the database a few chances to come up; container
// orchestration often starts the backend first.
func connectWithRetry(cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConns = int32(cfg.Database.PoolSize)

	var lastErr error
	for attempt := 1; attempt <= 5; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if pingErr := pool.Ping(ctx); pingErr == nil {
				cancel()
				logger.Info("connected to postgres")
				return pool, nil
			} else {
				pool.Close()
				lastErr = pingErr
			}
		} else {
			lastErr = err
		}
		cancel()
		logger.Warn("database connection attempt failed", "attempt", attempt, "error", lastErr)
		time.Sleep(time.Duration(attempt) * 2 * time.Second)
	}
	return nil, lastErr
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug", "DEBUG":
		return slog.LevelDebug
	case "warn", "WARN":
		return slog.LevelWarn
	case "error", "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
