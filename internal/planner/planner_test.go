package planner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docscope/backend/internal/domain"
)

var testSources = []string{"openalex", "arxiv", "randpub", "extpub"}

func testPlanner() *Planner {
	return New(testSources, 1000)
}

func TestPlanDefaultBrowseUsesMatView(t *testing.T) {
	p := testPlanner()
	plan, err := p.Plan(domain.FilterRequest{}, nil)
	require.NoError(t, err)

	assert.Equal(t, StrategyMatView, plan.Strategy)
	assert.False(t, plan.Semantic)
	assert.Contains(t, plan.SQL, "FROM papers_sorted_by_year dp")
	// The view is stored pre-sorted; the fast path must not re-sort.
	assert.NotContains(t, plan.SQL, "ORDER BY")
	assert.Contains(t, plan.SQL, "dp.source = ANY($1)")
	assert.Contains(t, plan.CountSQL, "SELECT COUNT(*)")
	assert.NotContains(t, plan.CountSQL, "LIMIT")
	// limit and offset are bound, not inlined.
	require.Len(t, plan.Params, 3)
	assert.Equal(t, 100, plan.Params[1])
	assert.Equal(t, 0, plan.Params[2])
}

func TestPlanCustomSortFallsBackToBaseScan(t *testing.T) {
	p := testPlanner()
	plan, err := p.Plan(domain.FilterRequest{SortField: "title", SortDirection: "asc"}, nil)
	require.NoError(t, err)

	assert.Equal(t, StrategyBase, plan.Strategy)
	assert.Contains(t, plan.SQL, "FROM papers dp")
	assert.Contains(t, plan.SQL, "ORDER BY dp.title ASC NULLS LAST, dp.paper_id ASC")
}

func TestPlanJoinInferenceFromProjection(t *testing.T) {
	p := testPlanner()
	plan, err := p.Plan(domain.FilterRequest{
		Fields: []string{"paper_id", "title", "cited_by_count", "country_name"},
	}, nil)
	require.NoError(t, err)

	// Joined projections disqualify the matview fast path.
	assert.Equal(t, StrategyBase, plan.Strategy)
	assert.Contains(t, plan.SQL, "LEFT JOIN openalex_metadata om ON om.paper_id = dp.paper_id")
	assert.Contains(t, plan.SQL, "LEFT JOIN enrichment_country ec ON ec.paper_id = dp.paper_id")
	// A merely projected enrichment column keeps left-join semantics: no
	// IS NOT NULL guard may appear.
	assert.NotContains(t, plan.SQL, "om.paper_id IS NOT NULL")
	assert.NotContains(t, plan.SQL, "ec.paper_id IS NOT NULL")
}

func TestPlanFilterTableGetsJoinGuard(t *testing.T) {
	p := testPlanner()
	plan, err := p.Plan(domain.FilterRequest{
		SQLFilter: "cited_by_count > 100",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, StrategyBase, plan.Strategy)
	assert.Contains(t, plan.SQL, "LEFT JOIN openalex_metadata om")
	assert.Contains(t, plan.SQL, "om.paper_id IS NOT NULL")
	assert.Contains(t, plan.SQL, "(om.cited_by_count > 100)")
	// The guard and filter apply to the count too.
	assert.Contains(t, plan.CountSQL, "om.paper_id IS NOT NULL")
}

func TestPlanYearRange(t *testing.T) {
	p := testPlanner()
	plan, err := p.Plan(domain.FilterRequest{
		YearRange: &domain.YearRange{Start: 2010, End: 2020},
	}, nil)
	require.NoError(t, err)

	assert.Contains(t, plan.SQL, "dp.primary_date BETWEEN $2::date AND $3::date")
	assert.Equal(t, "2010-01-01", plan.Params[1])
	assert.Equal(t, "2020-12-31", plan.Params[2])
}

func TestPlanYearRangeSwapped(t *testing.T) {
	p := testPlanner()
	plan, err := p.Plan(domain.FilterRequest{
		YearRange: &domain.YearRange{Start: 2020, End: 2010},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "2010-01-01", plan.Params[1])
	assert.Equal(t, "2020-12-31", plan.Params[2])
}

func TestPlanBBox(t *testing.T) {
	p := testPlanner()
	plan, err := p.Plan(domain.FilterRequest{
		BBox: &domain.BBox{X1: -1.5, Y1: -2, X2: 3, Y2: 4},
	}, nil)
	require.NoError(t, err)

	assert.Contains(t, plan.SQL, "dp.embedding_2d <@ box(point($2,$3), point($4,$5))")
	assert.Equal(t, []any{testSources, -1.5, float64(-2), float64(3), float64(4), 100, 0}, plan.Params)
}

func TestPlanBBoxOnlyScansBaseTable(t *testing.T) {
	p := testPlanner()
	plan, err := p.Plan(domain.FilterRequest{
		BBox:  &domain.BBox{X1: -1, Y1: -1, X2: 1, Y2: 1},
		Limit: 1000,
	}, nil)
	require.NoError(t, err)

	// The spatial index lives on the base table only.
	assert.Equal(t, StrategyBase, plan.Strategy)
	assert.Contains(t, plan.SQL, "FROM papers dp")
	assert.NotContains(t, plan.SQL, "papers_sorted_by_year")
}

func TestPlanSemanticDirect(t *testing.T) {
	p := testPlanner()
	emb := []float32{0.1, 0.2, 0.3}
	plan, err := p.Plan(domain.FilterRequest{
		SearchText:          "reinforcement learning",
		SimilarityThreshold: 0.4,
		Limit:               50,
	}, emb)
	require.NoError(t, err)

	assert.Equal(t, StrategySemanticDirect, plan.Strategy)
	assert.True(t, plan.Semantic)
	assert.Contains(t, plan.SQL, "(1 - (dp.embedding <=> $1)) AS similarity_score")
	assert.Contains(t, plan.SQL, "dp.embedding IS NOT NULL")
	assert.Contains(t, plan.SQL, "ORDER BY dp.embedding <=> $1")
	// limit 50 -> 150, raised to the overfetch floor.
	assert.Equal(t, 500, plan.Overfetch)
	assert.Equal(t, 50, plan.Limit)
	assert.Equal(t, 0.4, plan.Threshold)
	// No global count on the ranked path.
	assert.Empty(t, plan.CountSQL)
}

func TestPlanSemanticCTEWithBBox(t *testing.T) {
	p := testPlanner()
	emb := []float32{0.1, 0.2}
	plan, err := p.Plan(domain.FilterRequest{
		SearchText: "climate policy",
		BBox:       &domain.BBox{X1: 0, Y1: 0, X2: 1, Y2: 1},
	}, emb)
	require.NoError(t, err)

	assert.Equal(t, StrategySemanticCTE, plan.Strategy)
	assert.Contains(t, plan.SQL, "WITH semantic_candidates AS (")
	assert.Contains(t, plan.SQL, "FROM semantic_candidates dp")
	assert.Contains(t, plan.SQL, "LIMIT 50000\n)")
	// The candidate CTE already enforces source and embedding guards; the
	// outer query must not repeat them.
	assert.Equal(t, 1, strings.Count(plan.SQL, "embedding IS NOT NULL"))
	assert.Equal(t, 1, strings.Count(plan.SQL, "source = ANY("))
}

func TestPlanSemanticCTEWithLongFilter(t *testing.T) {
	p := testPlanner()
	plan, err := p.Plan(domain.FilterRequest{
		SearchText: "autonomy",
		SQLFilter:  "openalex_type = 'journal-article' AND venue ILIKE '%nature%'",
	}, []float32{1})
	require.NoError(t, err)
	assert.Equal(t, StrategySemanticCTE, plan.Strategy)
	assert.Contains(t, plan.SQL, "(om.openalex_type = 'journal-article' AND om.venue ILIKE '%nature%')")
}

func TestPlanSemanticTrivialFilterStaysDirect(t *testing.T) {
	p := testPlanner()
	plan, err := p.Plan(domain.FilterRequest{
		SearchText: "autonomy",
		SQLFilter:  "source = 'arxiv'",
	}, []float32{1})
	require.NoError(t, err)
	assert.Equal(t, StrategySemanticDirect, plan.Strategy)
}

func TestPlanSemanticOffsetWarning(t *testing.T) {
	p := testPlanner()
	plan, err := p.Plan(domain.FilterRequest{SearchText: "x", Offset: 200}, []float32{1})
	require.NoError(t, err)
	assert.Contains(t, plan.Warnings, "offset is ignored for semantic queries")
}

func TestPlanEmbeddingMismatchIsPlanError(t *testing.T) {
	p := testPlanner()
	_, err := p.Plan(domain.FilterRequest{SearchText: "x"}, nil)
	require.Error(t, err)
	assert.Equal(t, domain.CodeInternalPlanError, domain.CodeOf(err))
}

func TestPlanDeterministic(t *testing.T) {
	p := testPlanner()
	req := domain.FilterRequest{
		Fields:    []string{"paper_id", "country_name", "cited_by_count", "arxiv_primary_category"},
		SQLFilter: "country_uschina = 'China' AND cited_by_count > 10",
		YearRange: &domain.YearRange{Start: 2015, End: 2024},
	}
	first, err := p.Plan(req, nil)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := p.Plan(req, nil)
		require.NoError(t, err)
		assert.Equal(t, first.SQL, again.SQL)
		assert.Equal(t, first.CountSQL, again.CountSQL)
	}
}

func TestCheckPlaceholders(t *testing.T) {
	assert.NoError(t, checkPlaceholders("SELECT $1, $2", 2))

	err := checkPlaceholders("SELECT $3", 2)
	require.Error(t, err)
	assert.Equal(t, domain.CodeInternalPlanError, domain.CodeOf(err))

	err = checkPlaceholders("SELECT $1", 2)
	require.Error(t, err)
	assert.Equal(t, domain.CodeInternalPlanError, domain.CodeOf(err))

	// Dollar signs inside string literals are not placeholders.
	assert.NoError(t, checkPlaceholders("SELECT $1 WHERE t = 'costs $9'", 1))
	assert.NoError(t, checkPlaceholders("SELECT $1 WHERE t = 'it''s $42'", 1))
}

func TestPlanDollarInsideFilterLiteral(t *testing.T) {
	p := testPlanner()
	plan, err := p.Plan(domain.FilterRequest{
		SQLFilter: "title ILIKE '%won $9 million%'",
	}, nil)
	require.NoError(t, err)
	assert.Contains(t, plan.SQL, "'%won $9 million%'")
}

func TestProjectionAliasing(t *testing.T) {
	p := testPlanner()
	plan, err := p.Plan(domain.FilterRequest{Fields: []string{"title", "venue"}}, nil)
	require.NoError(t, err)
	assert.Contains(t, plan.SQL, "dp.title AS title")
	assert.Contains(t, plan.SQL, "om.venue AS venue")
}
