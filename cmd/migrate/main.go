package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docscope/backend/internal/config"
)

// schema lists every statement in dependency order. Each is idempotent, so
// the migrator can run on every deploy.
func schema(dim int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS papers (
			paper_id uuid PRIMARY KEY,
			source text NOT NULL,
			source_id text NOT NULL,
			title text NOT NULL,
			abstract text,
			authors text[],
			primary_date date,
			publication_year integer,
			doi text,
			links text,
			embedding vector(%d),
			embedding_2d point,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now(),
			UNIQUE (source, source_id)
		)`, dim),

		`CREATE TABLE IF NOT EXISTS openalex_metadata (
			paper_id uuid PRIMARY KEY REFERENCES papers(paper_id) ON DELETE CASCADE,
			openalex_type text,
			cited_by_count numeric,
			venue text,
			is_open_access text
		)`,
		`CREATE TABLE IF NOT EXISTS arxiv_metadata (
			paper_id uuid PRIMARY KEY REFERENCES papers(paper_id) ON DELETE CASCADE,
			arxiv_categories text[],
			arxiv_primary_category text,
			arxiv_comments text
		)`,
		`CREATE TABLE IF NOT EXISTS randpub_metadata (
			paper_id uuid PRIMARY KEY REFERENCES papers(paper_id) ON DELETE CASCADE,
			rand_doc_type text,
			rand_division text,
			rand_url text
		)`,
		`CREATE TABLE IF NOT EXISTS extpub_metadata (
			paper_id uuid PRIMARY KEY REFERENCES papers(paper_id) ON DELETE CASCADE,
			ext_publisher text,
			ext_venue text,
			ext_relationship text
		)`,
		`CREATE TABLE IF NOT EXISTS enrichment_country (
			paper_id uuid PRIMARY KEY REFERENCES papers(paper_id) ON DELETE CASCADE,
			country_name text,
			country_uschina text,
			institution_name text,
			enrichment_method text
		)`,

		`CREATE INDEX IF NOT EXISTS idx_papers_source ON papers (source)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_year ON papers (publication_year DESC NULLS LAST)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_embedding_2d ON papers USING gist (embedding_2d)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_embedding ON papers
			USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,

		// The matview bakes in the default sort so the common browse query
		// can scan and stop without an ORDER BY.
		`CREATE MATERIALIZED VIEW IF NOT EXISTS papers_sorted_by_year AS
			SELECT * FROM papers
			ORDER BY publication_year DESC NULLS LAST, paper_id ASC`,
		// CONCURRENTLY refresh requires a unique index on the view.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_sorted_by_year_pk ON papers_sorted_by_year (paper_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sorted_by_year_source ON papers_sorted_by_year (source)`,
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

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

	for i, stmt := range schema(cfg.Embedding.Dim) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			logger.Error("migration failed", "statement", i+1, "error", err)
			os.Exit(1)
		}
	}
	logger.Info("migrations applied", "statements", len(schema(cfg.Embedding.Dim)))
}
