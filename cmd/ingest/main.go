package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docscope/backend/internal/config"
	"github.com/docscope/backend/internal/embedding"
	"github.com/docscope/backend/internal/ingest"
	"github.com/docscope/backend/internal/repository/postgres"
)

func main() {
	var (
		file      = flag.String("file", "", "path to a JSONL dump (required)")
		source    = flag.String("source", "", "source name: openalex, arxiv, randpub, extpub (required)")
		batchSize = flag.Int("batch", ingest.DefaultBatchSize, "records per transaction")
		refresh   = flag.Bool("refresh-view", true, "refresh the year-sorted materialized view after the run")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if *file == "" || *source == "" {
		fmt.Fprintln(os.Stderr, "usage: ingest --file papers.jsonl --source openalex")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		logger.Error("could not connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("database unreachable", "error", err)
		os.Exit(1)
	}

	f, err := os.Open(*file)
	if err != nil {
		logger.Error("could not open input", "file", *file, "error", err)
		os.Exit(1)
	}
	defer f.Close()

	embedder := embedding.NewClient(cfg.Embedding, logger)
	pipeline := ingest.NewPipeline(pool, embedder, *batchSize, logger)

	logger.Info("ingestion starting", "source", *source, "file", *file, "batch_size", *batchSize)
	start := time.Now()

	report, err := pipeline.Run(ctx, *source, ingest.NewJSONLStream(f))
	if err != nil {
		logger.Error("ingestion aborted", "error", err,
			"total", report.Total, "processed", report.Processed)
		os.Exit(1)
	}

	logger.Info("ingestion complete",
		"source", *source,
		"total", report.Total,
		"processed", report.Processed,
		"skipped", report.Skipped,
		"errors", report.Errors,
		"elapsed", time.Since(start).Round(time.Second).String(),
	)

	if *refresh && report.Processed > 0 {
		logger.Info("refreshing year-sorted view")
		repo := postgres.NewPaperRepository(pool)
		if err := repo.RefreshSortedView(ctx); err != nil {
			logger.Error("view refresh failed", "error", err)
			os.Exit(1)
		}
		logger.Info("view refreshed")
	}
}
