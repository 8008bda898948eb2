package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/docscope/backend/internal/domain"
	"github.com/docscope/backend/internal/embedding"
	"github.com/docscope/backend/internal/executor"
	"github.com/docscope/backend/internal/planner"
)

// QueryUsecase wires the query pipeline: resolve the search embedding (with
// graceful degradation), compile, execute, shape. Stages run strictly in
// order within one request; the struct itself is stateless.
type QueryUsecase struct {
	planner  *planner.Planner
	executor *executor.Executor
	embedder *embedding.Client
	logger   *slog.Logger
}

func NewQueryUsecase(p *planner.Planner, e *executor.Executor, emb *embedding.Client, logger *slog.Logger) *QueryUsecase {
	return &QueryUsecase{planner: p, executor: e, embedder: emb, logger: logger}
}

// ListPapers serves GET /papers end to end.
func (u *QueryUsecase) ListPapers(ctx context.Context, req domain.FilterRequest) (*domain.QueryResult, error) {
	start := time.Now()
	var warnings []string

	// Resolve the embedding before any connection is held: a request must
	// never sit on the pool while waiting on the embedding service.
	var queryEmbedding []float32
	if req.SearchText != "" {
		vec, err := u.embedder.Embed(ctx, req.SearchText)
		if err != nil {
			// Degrade to non-semantic rather than failing the request.
			u.logger.Warn("embedding service unavailable, degrading to non-semantic", "error", err)
			warnings = append(warnings,
				domain.CodeEmbeddingUnavailable+": semantic ranking skipped, results are unranked")
			req.SearchText = ""
		} else {
			queryEmbedding = vec
		}
	}

	plan, err := u.planner.Plan(req, queryEmbedding)
	if err != nil {
		return nil, err
	}

	res, err := u.executor.Execute(ctx, plan)
	if err != nil {
		return nil, err
	}

	out := &domain.QueryResult{
		Results:                   res.Rows,
		TotalCount:                res.Total,
		TotalCountIsEstimate:      res.IsEstimate,
		Warnings:                  append(append(warnings, plan.Warnings...), res.Warnings...),
		Query:                     plan.SQL,
		CountQuery:                plan.CountSQL,
		ExecutionTimeMS:           time.Since(start).Milliseconds(),
		QueryExecutionTimeMS:      res.QueryTime.Milliseconds(),
		CountQueryExecutionTimeMS: res.CountTime.Milliseconds(),
	}
	if out.Results == nil {
		out.Results = []map[string]any{}
	}
	if out.Warnings == nil {
		out.Warnings = []string{}
	}
	return out, nil
}
