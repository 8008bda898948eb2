// Package ingest normalizes heterogeneous source dumps into canonical paper
// rows and writes them in atomic batches. The pipeline is lazy and
// restartable at batch granularity: a partial batch is never committed.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/docscope/backend/internal/catalog"
	"github.com/docscope/backend/internal/domain"
	"github.com/docscope/backend/internal/embedding"
)

const DefaultBatchSize = 1000

// Stream yields raw records one at a time; Next returns io.EOF at end.
type Stream interface {
	Next() (json.RawMessage, error)
}

// JSONLStream reads one JSON object per line, skipping blanks.
type JSONLStream struct {
	scanner *bufio.Scanner
}

func NewJSONLStream(r io.Reader) *JSONLStream {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 10*1024*1024), 10*1024*1024)
	return &JSONLStream{scanner: s}
}

func (s *JSONLStream) Next() (json.RawMessage, error) {
	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		out := make(json.RawMessage, len(line))
		copy(out, line)
		return out, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Report is the pipeline's per-run accounting.
type Report struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
	Skipped   int `json:"skipped"`
}

type Pipeline struct {
	pool      *pgxpool.Pool
	embedder  *embedding.Client
	batchSize int
	logger    *slog.Logger
}

func NewPipeline(pool *pgxpool.Pool, embedder *embedding.Client, batchSize int, logger *slog.Logger) *Pipeline {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Pipeline{pool: pool, embedder: embedder, batchSize: batchSize, logger: logger}
}

// Run streams records through filter → transform → validate → batch →
// upsert. Per-record errors are counted and skipped; a batch-level error
// aborts the run.
func (p *Pipeline) Run(ctx context.Context, source string, stream Stream) (*Report, error) {
	tf, err := TransformerFor(source)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	batch := make([]*Row, 0, p.batchSize)
	start := time.Now()
	lastLog := time.Now()

	for {
		raw, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return report, fmt.Errorf("read record: %w", err)
		}
		report.Total++

		row, err := tf(raw)
		if errors.Is(err, ErrSkip) {
			report.Skipped++
			continue
		}
		if err != nil {
			report.Errors++
			continue
		}
		batch = append(batch, row)

		if len(batch) >= p.batchSize {
			if err := p.flush(ctx, batch, report); err != nil {
				return report, err
			}
			batch = batch[:0]
		}
		if time.Since(lastLog) > 10*time.Second {
			elapsed := time.Since(start).Seconds()
			p.logger.Info("ingestion progress",
				"total", report.Total, "processed", report.Processed,
				"errors", report.Errors, "rate_per_sec", int(float64(report.Total)/elapsed))
			lastLog = time.Now()
		}
	}
	if len(batch) > 0 {
		if err := p.flush(ctx, batch, report); err != nil {
			return report, err
		}
	}
	return report, nil
}

// flush embeds the batch and writes it in a single transaction.
func (p *Pipeline) flush(ctx context.Context, batch []*Row, report *Report) error {
	p.embedBatch(ctx, batch, report)

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, row := range batch {
		if err := upsertRow(ctx, tx, row); err != nil {
			return fmt.Errorf("upsert %s/%s: %w", row.Paper.Source, row.Paper.SourceID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	report.Processed += len(batch)
	return nil
}

// embedBatch fills in embeddings, degrading record-by-record with retry when
// the batched call fails. A record whose embedding cannot be computed is
// written with a null embedding and stays invisible to semantic queries.
func (p *Pipeline) embedBatch(ctx context.Context, batch []*Row, report *Report) {
	texts := make([]string, len(batch))
	for i, row := range batch {
		texts[i] = row.EmbedInput
	}
	vecs, err := p.embedder.EmbedBatch(ctx, texts)
	if err == nil {
		for i, row := range batch {
			row.Paper.Embedding = vecs[i]
		}
		return
	}
	p.logger.Warn("batch embedding failed, retrying per record", "error", err)
	for _, row := range batch {
		vec, err := p.embedder.EmbedWithRetry(ctx, row.EmbedInput)
		if err != nil {
			p.logger.Warn("embedding permanently failed, inserting null",
				"source", row.Paper.Source, "source_id", row.Paper.SourceID)
			report.Errors++
			continue
		}
		row.Paper.Embedding = vec
	}
}

const upsertPaperSQL = `
INSERT INTO papers (paper_id, source, source_id, title, abstract, authors, primary_date, publication_year, doi, links, embedding, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
ON CONFLICT (source, source_id) DO UPDATE SET
	title = EXCLUDED.title,
	abstract = EXCLUDED.abstract,
	authors = EXCLUDED.authors,
	primary_date = EXCLUDED.primary_date,
	publication_year = EXCLUDED.publication_year,
	doi = EXCLUDED.doi,
	links = EXCLUDED.links,
	embedding = EXCLUDED.embedding,
	updated_at = now()
RETURNING paper_id
`

func upsertRow(ctx context.Context, tx pgx.Tx, row *Row) error {
	var emb any
	if row.Paper.Embedding != nil {
		emb = pgvector.NewVector(row.Paper.Embedding)
	}
	var paperID uuid.UUID
	err := tx.QueryRow(ctx, upsertPaperSQL,
		uuid.New(), row.Paper.Source, row.Paper.SourceID, row.Paper.Title,
		nullIfEmpty(row.Paper.Abstract), row.Paper.Authors, row.Paper.PrimaryDate,
		row.Paper.PublicationYear, nullIfEmpty(row.Paper.DOI), nullIfEmpty(row.Paper.Links),
		emb,
	).Scan(&paperID)
	if err != nil {
		return fmt.Errorf("upsert paper: %w", err)
	}
	row.Paper.PaperID = paperID

	// Enrichment rows are upserted independently, one row per (table, paper).
	for i := range row.Enrichments {
		row.Enrichments[i].PaperID = paperID
		if err := upsertEnrichment(ctx, tx, &row.Enrichments[i]); err != nil {
			return fmt.Errorf("upsert %s: %w", row.Enrichments[i].Table, err)
		}
	}
	return nil
}

// upsertEnrichment builds the statement from catalog-validated column names;
// values are always bound as parameters.
func upsertEnrichment(ctx context.Context, tx pgx.Tx, e *domain.EnrichmentRow) error {
	if !catalog.IsTable(e.Table) || e.Table == catalog.BaseTable {
		return fmt.Errorf("unknown enrichment table %q", e.Table)
	}
	if len(e.Values) == 0 {
		return nil
	}
	cols := make([]string, 0, len(e.Values))
	for col := range e.Values {
		if _, ok := catalog.Lookup(e.Table + "." + col); !ok {
			return fmt.Errorf("unknown column %q in table %q", col, e.Table)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var sb strings.Builder
	sb.WriteString("INSERT INTO " + e.Table + " (paper_id")
	for _, c := range cols {
		sb.WriteString(", " + c)
	}
	sb.WriteString(") VALUES ($1")
	args := []any{e.PaperID}
	for i, c := range cols {
		sb.WriteString(", $" + strconv.Itoa(i+2))
		args = append(args, e.Values[c])
	}
	sb.WriteString(") ON CONFLICT (paper_id) DO UPDATE SET ")
	for i, c := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c + " = EXCLUDED." + c)
	}
	_, err := tx.Exec(ctx, sb.String(), args...)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
