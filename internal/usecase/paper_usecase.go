package usecase

import (
	"context"

	"github.com/google/uuid"

	"github.com/docscope/backend/internal/catalog"
	"github.com/docscope/backend/internal/domain"
	"github.com/docscope/backend/internal/repository/postgres"
)

// PaperUsecase serves the small non-planner operations: single-row fetch,
// stats, and catalog introspection for the UI.
type PaperUsecase struct {
	repo           *postgres.PaperRepository
	enabledSources []string
}

func NewPaperUsecase(repo *postgres.PaperRepository, enabledSources []string) *PaperUsecase {
	return &PaperUsecase{repo: repo, enabledSources: enabledSources}
}

// GetPaper returns the canonical row plus all joined enrichment fields.
func (u *PaperUsecase) GetPaper(ctx context.Context, id uuid.UUID) (map[string]any, error) {
	row, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return nil, domain.NewError(domain.CodeDatabaseUnavailable, "could not fetch paper", err.Error())
	}
	if row == nil {
		return nil, domain.NewError(domain.CodePaperNotFound, "paper not found", id.String())
	}
	return row, nil
}

// GetStats returns corpus-wide counts for the enabled sources.
func (u *PaperUsecase) GetStats(ctx context.Context) (*domain.Stats, error) {
	stats, err := u.repo.Stats(ctx, u.enabledSources)
	if err != nil {
		return nil, domain.NewError(domain.CodeDatabaseUnavailable, "could not compute stats", err.Error())
	}
	return stats, nil
}

// EnrichmentFieldInfo describes one introspectable field.
type EnrichmentFieldInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Filterable bool   `json:"filterable"`
	Sortable   bool   `json:"sortable"`
}

// EnrichmentTableInfo groups a table's fields for the UI.
type EnrichmentTableInfo struct {
	Table  string                `json:"table"`
	Fields []EnrichmentFieldInfo `json:"fields"`
}

// EnrichmentFields enumerates the enrichment tables and fields of a source.
func (u *PaperUsecase) EnrichmentFields(source string) ([]EnrichmentTableInfo, error) {
	tables, ok := catalog.EnrichmentTables(source)
	if !ok {
		return nil, domain.NewError(domain.CodeResourceNotFound, "unknown source", source)
	}
	out := make([]EnrichmentTableInfo, 0, len(tables))
	for _, t := range tables {
		info := EnrichmentTableInfo{Table: t}
		for _, f := range catalog.TableFields(t) {
			info.Fields = append(info.Fields, EnrichmentFieldInfo{
				Name:       f.Name,
				Type:       string(f.Type),
				Filterable: f.Filterable,
				Sortable:   f.Sortable,
			})
		}
		out = append(out, info)
	}
	return out, nil
}

// EnrichmentData returns one field's values for a list of papers.
func (u *PaperUsecase) EnrichmentData(ctx context.Context, source, table, field string, ids []uuid.UUID) ([]postgres.EnrichmentValue, error) {
	return u.repo.EnrichmentData(ctx, source, table, field, ids)
}

// Health pings the database.
func (u *PaperUsecase) Health(ctx context.Context) error {
	if err := u.repo.Ping(ctx); err != nil {
		return domain.NewError(domain.CodeDatabaseUnavailable, "database unreachable", err.Error())
	}
	return nil
}
