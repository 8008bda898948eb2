// Package executor runs compiled plans against Postgres: the main query in a
// short transaction with a per-query statement_timeout, the adaptive count,
// and the in-memory similarity post-filter.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docscope/backend/internal/domain"
	"github.com/docscope/backend/internal/planner"
	"github.com/docscope/backend/internal/repository/postgres"
)

// SQLSTATE raised when statement_timeout cancels a query.
const sqlstateQueryCanceled = "57014"

type Executor struct {
	pool         *pgxpool.Pool
	mainTimeout  time.Duration
	countTimeout time.Duration
	logger       *slog.Logger
}

func New(pool *pgxpool.Pool, mainTimeout, countTimeout time.Duration, logger *slog.Logger) *Executor {
	return &Executor{pool: pool, mainTimeout: mainTimeout, countTimeout: countTimeout, logger: logger}
}

// Result is the raw outcome of a plan execution, before response shaping.
type Result struct {
	Rows        []map[string]any
	Total       int64
	IsEstimate  bool
	Warnings    []string
	QueryTime   time.Duration
	CountTime   time.Duration
	DroppedRows int
}

// Execute runs the plan's main query and its adaptive count. The store is
// read-only within a request; everything happens in one transaction that is
// rolled back on exit.
func (e *Executor) Execute(ctx context.Context, plan *planner.Plan) (*Result, error) {
	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		return nil, domain.NewError(domain.CodeDatabaseUnavailable, "could not acquire database connection", err.Error())
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, domain.NewError(domain.CodeDatabaseUnavailable, "could not begin transaction", err.Error())
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", e.mainTimeout.Milliseconds())); err != nil {
		return nil, domain.NewError(domain.CodeDatabaseUnavailable, "could not set statement timeout", err.Error())
	}

	res := &Result{}

	start := time.Now()
	rows, err := tx.Query(ctx, plan.SQL, plan.Params...)
	if err != nil {
		return nil, classifyQueryErr(err)
	}
	res.Rows, res.DroppedRows, err = postgres.CollectRows(rows)
	res.QueryTime = time.Since(start)
	if err != nil {
		return nil, classifyQueryErr(err)
	}
	if res.DroppedRows > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d rows dropped due to parse errors", res.DroppedRows))
		e.logger.Warn("rows dropped during scan", "count", res.DroppedRows)
	}

	if plan.Semantic {
		// Ranked top-k: a global count is meaningless, and the post-filter
		// sets the total from the surviving rows.
		e.postFilter(plan, res)
		return res, nil
	}

	countStart := time.Now()
	total, isEstimate, countWarn := e.adaptiveCount(ctx, tx, plan)
	res.CountTime = time.Since(countStart)
	res.Total = total
	res.IsEstimate = isEstimate
	if countWarn != "" {
		res.Warnings = append(res.Warnings, countWarn)
	}
	return res, nil
}

// postFilter keeps rows at or above the similarity threshold and truncates
// to the requested page size. Total reflects the filtered count before
// truncation and is always flagged as an estimate.
func (e *Executor) postFilter(plan *planner.Plan, res *Result) {
	kept := res.Rows[:0]
	for _, row := range res.Rows {
		score, ok := row["similarity_score"].(float64)
		if !ok || score < plan.Threshold {
			continue
		}
		kept = append(kept, row)
	}
	res.Total = int64(len(kept))
	res.IsEstimate = true
	if len(kept) > plan.Limit {
		kept = kept[:plan.Limit]
	}
	res.Rows = kept
}

func classifyQueryErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == sqlstateQueryCanceled {
		return domain.NewError(domain.CodeQueryTimeout, "main query exceeded its time budget", pgErr.Message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewError(domain.CodeQueryTimeout, "main query exceeded its time budget")
	}
	if errors.Is(err, context.Canceled) {
		return domain.NewError(domain.CodeQueryTimeout, "request canceled")
	}
	return domain.NewError(domain.CodeDatabaseUnavailable, "query failed", err.Error())
}
