package postgres

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/docscope/backend/internal/catalog"
	"github.com/docscope/backend/internal/domain"
)

type PaperRepository struct {
	db *pgxpool.Pool
}

func NewPaperRepository(db *pgxpool.Pool) *PaperRepository {
	return &PaperRepository{db: db}
}

// GetByID returns the canonical row plus every enrichment field left-joined.
// Returns nil when the paper does not exist.
func (r *PaperRepository) GetByID(ctx context.Context, id uuid.UUID) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		selects []string
		joins   []string
	)
	for _, f := range catalog.All() {
		if f.Type == catalog.TypeVector {
			continue // never ship the full embedding to clients
		}
		col := f.Qualified()
		if f.Type == catalog.TypePoint {
			col = col + "::text"
		}
		selects = append(selects, col+" AS "+f.Name)
	}
	for _, source := range domain.KnownSources {
		tables, _ := catalog.EnrichmentTables(source)
		for _, t := range tables {
			alias, _ := catalog.Alias(t)
			j := "LEFT JOIN " + t + " " + alias + " ON " + alias + ".paper_id = dp.paper_id"
			if !contains(joins, j) {
				joins = append(joins, j)
			}
		}
	}

	query := "SELECT " + strings.Join(selects, ", ") +
		"\nFROM papers dp\n" + strings.Join(joins, "\n") +
		"\nWHERE dp.paper_id = $1"

	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("get paper: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("get paper: %w", err)
		}
		return nil, nil
	}
	values, err := rows.Values()
	if err != nil {
		return nil, fmt.Errorf("scan paper: %w", err)
	}
	out := make(map[string]any, len(values))
	for i, d := range rows.FieldDescriptions() {
		// Same value shaping as the list path, so embedding_2d round-trips
		// as [x, y] on both endpoints.
		v, err := NormalizeValue(values[i])
		if err != nil {
			return nil, fmt.Errorf("normalize %s: %w", d.Name, err)
		}
		out[d.Name] = v
	}
	return out, nil
}

// Stats counts papers per source with one targeted query each, run
// concurrently. A GROUP BY over the full table would scan all 17M rows; the
// per-source counts hit the (source, source_id) index instead.
func (r *PaperRepository) Stats(ctx context.Context, sources []string) (*domain.Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	stats := &domain.Stats{}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, source := range sources {
		source := source
		g.Go(func() error {
			var n int64
			err := r.db.QueryRow(gctx, "SELECT COUNT(*) FROM papers WHERE source = $1", source).Scan(&n)
			if err != nil {
				return fmt.Errorf("count source %s: %w", source, err)
			}
			mu.Lock()
			stats.SourceDistribution = append(stats.SourceDistribution, domain.SourceCount{Source: source, Count: n})
			stats.TotalPapers += n
			mu.Unlock()
			return nil
		})
	}
	g.Go(func() error {
		err := r.db.QueryRow(gctx, "SELECT COUNT(*) FROM papers WHERE embedding IS NOT NULL").
			Scan(&stats.PapersWithEmbedding)
		if err != nil {
			return fmt.Errorf("count embedded papers: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(stats.SourceDistribution, func(i, j int) bool {
		return stats.SourceDistribution[i].Count > stats.SourceDistribution[j].Count
	})
	return stats, nil
}

// EnrichmentValue pairs a paper with one enrichment field value.
type EnrichmentValue struct {
	PaperID uuid.UUID `json:"paper_id"`
	Value   any       `json:"value"`
}

// EnrichmentData fetches one enrichment field for a list of papers.
func (r *PaperRepository) EnrichmentData(ctx context.Context, source, table, field string, paperIDs []uuid.UUID) ([]EnrichmentValue, error) {
	tables, ok := catalog.EnrichmentTables(source)
	if !ok {
		return nil, domain.NewError(domain.CodeResourceNotFound, fmt.Sprintf("unknown source %q", source))
	}
	if !contains(tables, table) {
		return nil, domain.NewError(domain.CodeResourceNotFound, fmt.Sprintf("source %q has no table %q", source, table))
	}
	f, ok := catalog.Lookup(table + "." + field)
	if !ok {
		return nil, domain.NewError(domain.CodeResourceNotFound, fmt.Sprintf("table %q has no field %q", table, field))
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := "SELECT paper_id, " + f.Column + " FROM " + table + " WHERE paper_id = ANY($1)"
	rows, err := r.db.Query(ctx, query, paperIDs)
	if err != nil {
		return nil, fmt.Errorf("enrichment data: %w", err)
	}
	defer rows.Close()

	var out []EnrichmentValue
	for rows.Next() {
		var v EnrichmentValue
		if err := rows.Scan(&v.PaperID, &v.Value); err != nil {
			return nil, fmt.Errorf("scan enrichment value: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// RefreshSortedView refreshes the pre-sorted materialized view without
// blocking readers. Called after each ingestion run.
func (r *PaperRepository) RefreshSortedView(ctx context.Context) error {
	_, err := r.db.Exec(ctx, "REFRESH MATERIALIZED VIEW CONCURRENTLY "+catalog.MatView)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", catalog.MatView, err)
	}
	return nil
}

// Ping verifies database liveness with a short deadline.
func (r *PaperRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.db.Ping(ctx)
}

func contains(xs []string, want string) bool {
	for _, x := range xs {
		if x == want {
			return true
		}
	}
	return false
}
