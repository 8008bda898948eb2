// Package planner compiles a FilterRequest into SQL plus an ordered
// parameter vector. It never executes anything: the executor owns the
// connection, the planner owns the text.
package planner

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/docscope/backend/internal/catalog"
	"github.com/docscope/backend/internal/domain"
)

// Planner is immutable and safe for concurrent use.
type Planner struct {
	enabledSources []string
	maxLimit       int
}

func New(enabledSources []string, maxLimit int) *Planner {
	return &Planner{enabledSources: enabledSources, maxLimit: maxLimit}
}

// Plan is a compiled query. CountSQL is empty for semantic strategies, where
// a global count is deliberately not computed.
type Plan struct {
	Strategy    Strategy
	SQL         string
	Params      []any
	CountSQL    string
	CountParams []any
	Warnings    []string

	Semantic  bool
	Overfetch int
	Limit     int
	Offset    int
	Threshold float64
}

type args struct{ params []any }

func (a *args) add(v any) string {
	a.params = append(a.params, v)
	return "$" + strconv.Itoa(len(a.params))
}

// Plan validates req and compiles it. queryEmbedding must be non-nil exactly
// when req.SearchText is non-empty; the caller resolves the text through the
// embedding service (and clears SearchText when the service degrades).
func (p *Planner) Plan(req domain.FilterRequest, queryEmbedding []float32) (*Plan, error) {
	proj, warnings, err := p.validateRequest(&req)
	if err != nil {
		return nil, err
	}
	if (req.SearchText != "") != (queryEmbedding != nil) {
		return nil, domain.NewError(domain.CodeInternalPlanError,
			"search text and query embedding must be provided together")
	}

	userFilter := trimmedFilter(req.SQLFilter)
	var filterTables map[string]bool
	if userFilter != "" {
		userFilter, filterTables, err = rewriteFilter(userFilter)
		if err != nil {
			return nil, err
		}
	}

	// Join inference: every non-base table referenced by the projection, the
	// filter or the sort contributes one left join.
	joinTables := make(map[string]bool)
	for _, f := range proj {
		if f.Table != catalog.BaseTable {
			joinTables[f.Table] = true
		}
	}
	for t := range filterTables {
		if t != catalog.BaseTable {
			joinTables[t] = true
		}
	}
	if req.SortField != "" {
		if f, ok := catalog.Lookup(req.SortField); ok && f.Table != catalog.BaseTable {
			joinTables[f.Table] = true
		}
	}

	strategy := selectStrategy(&req, joinTables)

	plan := &Plan{
		Strategy:  strategy,
		Warnings:  warnings,
		Limit:     req.Limit,
		Offset:    req.Offset,
		Threshold: req.SimilarityThreshold,
	}

	switch strategy {
	case StrategySemanticDirect, StrategySemanticCTE:
		plan.Semantic = true
		plan.Overfetch = overfetch(req.Limit)
		if req.Offset > 0 {
			plan.Warnings = append(plan.Warnings, "offset is ignored for semantic queries")
		}
		p.compileSemantic(plan, &req, proj, joinTables, filterTables, userFilter, queryEmbedding)
	default:
		p.compileScan(plan, &req, proj, joinTables, filterTables, userFilter)
	}

	if err := checkPlaceholders(plan.SQL, len(plan.Params)); err != nil {
		return nil, err
	}
	if plan.CountSQL != "" {
		if err := checkPlaceholders(plan.CountSQL, len(plan.CountParams)); err != nil {
			return nil, err
		}
	}
	return plan, nil
}

// compileScan builds the non-semantic paths: the materialized-view fast path
// and the plain base-table scan.
func (p *Planner) compileScan(plan *Plan, req *domain.FilterRequest, proj []catalog.Field,
	joinTables, filterTables map[string]bool, userFilter string) {

	from := catalog.BaseTable
	if plan.Strategy == StrategyMatView {
		from = catalog.MatView
	}
	joins := joinClauses(joinTables)

	build := func(selectList string, withPaging bool) (string, []any) {
		a := &args{}
		conds := p.conds(a, req, filterTables, userFilter, true, false)

		var sb strings.Builder
		sb.WriteString("SELECT " + selectList)
		sb.WriteString("\nFROM " + from + " " + catalog.BaseAlias)
		for _, j := range joins {
			sb.WriteString("\n" + j)
		}
		if len(conds) > 0 {
			sb.WriteString("\nWHERE " + strings.Join(conds, "\n  AND "))
		}
		if withPaging {
			// The view is stored pre-sorted, so the fast path omits ORDER BY
			// and lets the engine scan and stop.
			if plan.Strategy != StrategyMatView {
				if ob := orderBy(req); ob != "" {
					sb.WriteString("\n" + ob)
				}
			}
			sb.WriteString("\nLIMIT " + a.add(req.Limit) + " OFFSET " + a.add(req.Offset))
		}
		return sb.String(), a.params
	}

	plan.SQL, plan.Params = build(projectionList(proj), true)
	plan.CountSQL, plan.CountParams = build("COUNT(*)", false)
}

// compileSemantic builds S2 (direct ANN) and S3 (semantic-first CTE).
func (p *Planner) compileSemantic(plan *Plan, req *domain.FilterRequest, proj []catalog.Field,
	joinTables, filterTables map[string]bool, userFilter string, queryEmbedding []float32) {

	a := &args{}
	emb := a.add(pgvector.NewVector(queryEmbedding))
	selectList := projectionList(proj) +
		fmt.Sprintf(", (1 - (%s.embedding <=> %s)) AS similarity_score", catalog.BaseAlias, emb)
	joins := joinClauses(joinTables)

	var sb strings.Builder
	if plan.Strategy == StrategySemanticCTE {
		// Rank the full corpus where the ANN index works, then filter the
		// candidate set.
		sb.WriteString("WITH semantic_candidates AS (\n")
		sb.WriteString("  SELECT " + catalog.BaseAlias + ".*\n")
		sb.WriteString("  FROM " + catalog.BaseTable + " " + catalog.BaseAlias + "\n")
		sb.WriteString("  WHERE " + catalog.BaseAlias + ".source = ANY(" + a.add(p.enabledSources) + ")\n")
		sb.WriteString("    AND " + catalog.BaseAlias + ".embedding IS NOT NULL\n")
		sb.WriteString("  ORDER BY " + catalog.BaseAlias + ".embedding <=> " + emb + "\n")
		sb.WriteString("  LIMIT " + strconv.Itoa(cteCap(plan.Overfetch)) + "\n)\n")

		sb.WriteString("SELECT " + selectList)
		sb.WriteString("\nFROM semantic_candidates " + catalog.BaseAlias)
		for _, j := range joins {
			sb.WriteString("\n" + j)
		}
		// Source and embedding guards already hold inside the CTE.
		conds := p.conds(a, req, filterTables, userFilter, false, false)
		if len(conds) > 0 {
			sb.WriteString("\nWHERE " + strings.Join(conds, "\n  AND "))
		}
	} else {
		sb.WriteString("SELECT " + selectList)
		sb.WriteString("\nFROM " + catalog.BaseTable + " " + catalog.BaseAlias)
		for _, j := range joins {
			sb.WriteString("\n" + j)
		}
		conds := p.conds(a, req, filterTables, userFilter, true, true)
		sb.WriteString("\nWHERE " + strings.Join(conds, "\n  AND "))
	}
	sb.WriteString("\nORDER BY " + catalog.BaseAlias + ".embedding <=> " + emb)
	sb.WriteString("\nLIMIT " + a.add(plan.Overfetch))

	plan.SQL = sb.String()
	plan.Params = a.params
}

// conds assembles the WHERE conjuncts shared by every path: enabled sources,
// the embedding guard (semantic only), bbox, year range, join guards, and
// the rewritten user filter.
func (p *Planner) conds(a *args, req *domain.FilterRequest, filterTables map[string]bool,
	userFilter string, includeSource, requireEmbedding bool) []string {

	var conds []string
	if includeSource {
		conds = append(conds, catalog.BaseAlias+".source = ANY("+a.add(p.enabledSources)+")")
	}
	if requireEmbedding {
		conds = append(conds, catalog.BaseAlias+".embedding IS NOT NULL")
	}
	if req.BBox != nil {
		conds = append(conds, fmt.Sprintf("%s.embedding_2d <@ box(point(%s,%s), point(%s,%s))",
			catalog.BaseAlias,
			a.add(req.BBox.X1), a.add(req.BBox.Y1), a.add(req.BBox.X2), a.add(req.BBox.Y2)))
	}
	if req.YearRange != nil {
		start := fmt.Sprintf("%04d-01-01", req.YearRange.Start)
		end := fmt.Sprintf("%04d-12-31", req.YearRange.End)
		conds = append(conds, fmt.Sprintf("%s.primary_date BETWEEN %s::date AND %s::date",
			catalog.BaseAlias, a.add(start), a.add(end)))
	}
	// A join key guard applies only when the filter actually constrains the
	// table; a merely projected column keeps left-join semantics.
	for _, t := range sortedTables(filterTables) {
		if t == catalog.BaseTable {
			continue
		}
		alias, _ := catalog.Alias(t)
		conds = append(conds, alias+".paper_id IS NOT NULL")
	}
	if userFilter != "" {
		conds = append(conds, "("+userFilter+")")
	}
	return conds
}

func projectionList(proj []catalog.Field) string {
	parts := make([]string, len(proj))
	for i, f := range proj {
		parts[i] = f.Qualified() + " AS " + f.Name
	}
	return strings.Join(parts, ", ")
}

func joinClauses(joinTables map[string]bool) []string {
	var out []string
	for _, t := range sortedTables(joinTables) {
		alias, _ := catalog.Alias(t)
		out = append(out, "LEFT JOIN "+t+" "+alias+" ON "+alias+".paper_id = "+catalog.BaseAlias+".paper_id")
	}
	return out
}

func orderBy(req *domain.FilterRequest) string {
	if req.DisableSort {
		return ""
	}
	field, _ := catalog.Lookup("publication_year")
	if req.SortField != "" {
		field, _ = catalog.Lookup(req.SortField)
	}
	dir := "DESC"
	if strings.EqualFold(req.SortDirection, "asc") {
		dir = "ASC"
	}
	return fmt.Sprintf("ORDER BY %s %s NULLS LAST, %s.paper_id ASC",
		field.Qualified(), dir, catalog.BaseAlias)
}

func sortedTables(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for t := range m {
		out = append(out, t)
	}
	// Deterministic plans: identical request, identical SQL.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// stripLiterals blanks single-quoted string literals so dollar signs inside
// user filter text (e.g. '$9 million') are not mistaken for placeholders.
// Doubled quotes inside a literal stay within it.
func stripLiterals(sql string) string {
	var sb strings.Builder
	sb.Grow(len(sql))
	inLiteral := false
	for i := 0; i < len(sql); i++ {
		if sql[i] == '\'' {
			if inLiteral && i+1 < len(sql) && sql[i+1] == '\'' {
				i++
				continue
			}
			inLiteral = !inLiteral
			continue
		}
		if !inLiteral {
			sb.WriteByte(sql[i])
		}
	}
	return sb.String()
}

// checkPlaceholders verifies every parameter is referenced and no reference
// is out of range. A mismatch is a planner bug, never retried.
func checkPlaceholders(sql string, nparams int) error {
	seen := make(map[int]bool)
	for _, m := range placeholderRe.FindAllStringSubmatch(stripLiterals(sql), -1) {
		n, _ := strconv.Atoi(m[1])
		if n < 1 || n > nparams {
			return domain.NewError(domain.CodeInternalPlanError,
				"placeholder out of range", fmt.Sprintf("$%d with %d params", n, nparams))
		}
		seen[n] = true
	}
	for i := 1; i <= nparams; i++ {
		if !seen[i] {
			return domain.NewError(domain.CodeInternalPlanError,
				"unreferenced parameter", fmt.Sprintf("$%d is bound but never used", i))
		}
	}
	return nil
}
