package planner

import "github.com/docscope/backend/internal/domain"

// Strategy identifies the execution shape chosen for a request.
type Strategy string

const (
	// StrategyMatView reads the pre-sorted papers_sorted_by_year view and
	// stops after limit+offset rows.
	StrategyMatView Strategy = "matview"
	// StrategyBase is the plain filtered scan over the base table.
	StrategyBase Strategy = "base"
	// StrategySemanticDirect answers the ranking straight off the ANN index.
	StrategySemanticDirect Strategy = "semantic_direct"
	// StrategySemanticCTE ranks the full corpus first, then filters the
	// candidate set in memory. Filtering first would drop the ANN index to a
	// sequential scan over the filter residue.
	StrategySemanticCTE Strategy = "semantic_cte"
)

// A filter shorter than this is considered trivially small and does not push
// a semantic query onto the CTE path.
const trivialFilterLen = 32

// Semantic floor and scaling factors for overfetching past the similarity
// threshold cut.
const (
	overfetchFloor = 500
	cteCapFloor    = 50000
)

// overfetch returns how many rows to pull for a semantic query so the
// post-filter can still fill a page of the requested size.
func overfetch(limit int) int {
	var of int
	switch {
	case limit <= 100:
		of = limit * 3
	case limit <= 1000:
		of = limit * 3 / 2
	default:
		of = limit + 500
	}
	if of < overfetchFloor {
		of = overfetchFloor
	}
	return of
}

// cteCap bounds the semantic candidate set for the CTE path.
func cteCap(overfetch int) int {
	if c := overfetch * 10; c > cteCapFloor {
		return c
	}
	return cteCapFloor
}

// selectStrategy is deterministic in the request alone.
func selectStrategy(req *domain.FilterRequest, joinTables map[string]bool) Strategy {
	if req.SearchText != "" {
		selective := req.BBox != nil || len(trimmedFilter(req.SQLFilter)) > trivialFilterLen
		if selective {
			return StrategySemanticCTE
		}
		return StrategySemanticDirect
	}
	// A bbox needs the GiST index on embedding_2d, which exists only on the
	// base table; the view would seq-scan for a sparse box.
	if defaultSort(req) && len(joinTables) == 0 && req.BBox == nil {
		return StrategyMatView
	}
	return StrategyBase
}

// defaultSort reports whether the request uses the sort the materialized
// view is stored in: publication_year DESC, paper_id ASC, sort enabled.
func defaultSort(req *domain.FilterRequest) bool {
	if req.DisableSort {
		return false
	}
	if req.SortField != "" && req.SortField != "publication_year" {
		return false
	}
	dir := req.SortDirection
	return dir == "" || dir == "desc" || dir == "DESC"
}

func trimmedFilter(f string) string {
	i, j := 0, len(f)
	for i < j && (f[i] == ' ' || f[i] == '\t' || f[i] == '\n') {
		i++
	}
	for j > i && (f[j-1] == ' ' || f[j-1] == '\t' || f[j-1] == '\n') {
		j--
	}
	return f[i:j]
}
