package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/docscope/backend/internal/planner"
)

// adaptiveCount runs the exact count under a short timeout and falls back to
// the planner's row estimate when it cannot finish in time. Count failures
// are always recovered locally; they never fail the request.
func (e *Executor) adaptiveCount(ctx context.Context, tx pgx.Tx, plan *planner.Plan) (total int64, isEstimate bool, warning string) {
	if exact, err := e.exactCount(ctx, tx, plan); err == nil {
		return exact, false, ""
	} else {
		e.logger.Warn("exact count failed, falling back to estimate", "error", err)
	}

	if est, err := e.estimateCount(ctx, tx, plan); err == nil {
		return est, true, "total_count is a planner estimate; exact count exceeded its time budget"
	} else {
		e.logger.Warn("count estimate failed", "error", err)
	}
	return 0, true, "total_count unavailable; count and estimate both failed"
}

// exactCount runs COUNT(*) inside a savepoint so a timeout does not poison
// the main transaction.
func (e *Executor) exactCount(ctx context.Context, tx pgx.Tx, plan *planner.Plan) (int64, error) {
	nested, err := tx.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin count savepoint: %w", err)
	}
	defer nested.Rollback(ctx)

	if _, err := nested.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", e.countTimeout.Milliseconds())); err != nil {
		return 0, fmt.Errorf("set count timeout: %w", err)
	}
	var total int64
	if err := nested.QueryRow(ctx, plan.CountSQL, plan.CountParams...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count query: %w", err)
	}
	if err := nested.Commit(ctx); err != nil {
		return 0, fmt.Errorf("release count savepoint: %w", err)
	}
	return total, nil
}

// estimateCount asks the planner instead: EXPLAIN the count's SELECT with a
// unit projection and read the top plan node's row estimate.
func (e *Executor) estimateCount(ctx context.Context, tx pgx.Tx, plan *planner.Plan) (int64, error) {
	nested, err := tx.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin estimate savepoint: %w", err)
	}
	defer nested.Rollback(ctx)

	sql := "EXPLAIN (FORMAT JSON) " + strings.Replace(plan.CountSQL, "SELECT COUNT(*)", "SELECT 1", 1)
	var raw []byte
	if err := nested.QueryRow(ctx, sql, plan.CountParams...).Scan(&raw); err != nil {
		return 0, fmt.Errorf("explain query: %w", err)
	}
	rows, err := parsePlanRows(raw)
	if err != nil {
		return 0, err
	}
	if err := nested.Commit(ctx); err != nil {
		return 0, fmt.Errorf("release estimate savepoint: %w", err)
	}
	return rows, nil
}

// parsePlanRows extracts "Plan Rows" from EXPLAIN (FORMAT JSON) output.
func parsePlanRows(raw []byte) (int64, error) {
	var out []struct {
		Plan struct {
			PlanRows float64 `json:"Plan Rows"`
		} `json:"Plan"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, fmt.Errorf("parse explain output: %w", err)
	}
	if len(out) == 0 {
		return 0, fmt.Errorf("empty explain output")
	}
	return int64(out[0].Plan.PlanRows), nil
}
