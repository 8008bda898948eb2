package planner

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/docscope/backend/internal/catalog"
	"github.com/docscope/backend/internal/domain"
)

// Hard paging bounds. MAX_LIMIT from the environment may tighten the upper
// bound but never widen it.
const (
	minLimit      = 1
	hardMaxLimit  = 50000
	defaultLimit  = 100
	maxOffset     = 10_000_000
)

// The user filter is a boolean expression over cataloged fields; none of
// these tokens have any business appearing in one.
var forbiddenKeywords = []string{
	"DROP", "DELETE", "UPDATE", "INSERT", "CREATE", "ALTER", "EXEC", "EXECUTE",
	"TRUNCATE", "MERGE", "REPLACE", "GRANT", "REVOKE", "COMMIT", "ROLLBACK",
	"SAVEPOINT", "TRANSACTION", "LOCK", "UNLOCK", "ANALYZE", "VACUUM",
	"REINDEX", "CLUSTER", "COPY", "BULK", "LOAD", "IMPORT", "EXPORT",
	"UNION", "SELECT", "FROM", "WHERE", "JOIN", "HAVING", "GROUP BY",
	"ORDER BY",
}

var forbiddenPatterns = []string{";", "--", "/*", "*/"}

var keywordRe = func() *regexp.Regexp {
	alts := make([]string, len(forbiddenKeywords))
	for i, kw := range forbiddenKeywords {
		alts[i] = strings.ReplaceAll(regexp.QuoteMeta(kw), " ", `\s+`)
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(alts, "|") + `)\b`)
}()

// validateSQLFilter rejects filters containing statement terminators,
// comments or any deny-listed keyword.
func validateSQLFilter(filter string) error {
	for _, p := range forbiddenPatterns {
		if strings.Contains(filter, p) {
			return domain.NewError(domain.CodeForbiddenSQL,
				"sql_filter contains a forbidden token", fmt.Sprintf("token %q is not allowed", p))
		}
	}
	if m := keywordRe.FindString(filter); m != "" {
		return domain.NewError(domain.CodeForbiddenSQL,
			"sql_filter contains a forbidden keyword", fmt.Sprintf("keyword %q is not allowed", strings.ToUpper(m)))
	}
	return nil
}

// ParseBBox parses "x1,y1,x2,y2" into a normalized box (x1<=x2, y1<=y2).
func ParseBBox(s string) (*domain.BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, domain.Invalid("bbox", "expected four comma-separated numbers x1,y1,x2,y2")
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, domain.Invalid("bbox", fmt.Sprintf("component %d is not a finite number", i+1))
		}
		vals[i] = v
	}
	b := &domain.BBox{X1: vals[0], Y1: vals[1], X2: vals[2], Y2: vals[3]}
	if b.X1 > b.X2 {
		b.X1, b.X2 = b.X2, b.X1
	}
	if b.Y1 > b.Y2 {
		b.Y1, b.Y2 = b.Y2, b.Y1
	}
	return b, nil
}

// validateRequest checks paging, threshold, sort and projection. Unknown
// projected fields are dropped with a warning; unknown filter or sort fields
// fail the request. It returns the effective projection.
func (p *Planner) validateRequest(req *domain.FilterRequest) ([]catalog.Field, []string, error) {
	var warnings []string

	maxLimit := p.maxLimit
	if maxLimit <= 0 || maxLimit > hardMaxLimit {
		maxLimit = hardMaxLimit
	}
	if req.Limit == 0 {
		req.Limit = defaultLimit
	}
	if req.Limit < minLimit || req.Limit > maxLimit {
		return nil, nil, domain.Invalid("limit", fmt.Sprintf("must be between %d and %d", minLimit, maxLimit))
	}
	if req.Offset < 0 || req.Offset > maxOffset {
		return nil, nil, domain.Invalid("offset", fmt.Sprintf("must be between 0 and %d", maxOffset))
	}
	if req.SimilarityThreshold < 0 || req.SimilarityThreshold > 1 {
		return nil, nil, domain.Invalid("similarity_threshold", "must be between 0 and 1")
	}
	if req.EmbeddingType != "" && req.EmbeddingType != "embedding" {
		return nil, nil, domain.Invalid("embedding_type", fmt.Sprintf("unknown embedding type %q", req.EmbeddingType))
	}
	if req.YearRange != nil && req.YearRange.Start > req.YearRange.End {
		req.YearRange.Start, req.YearRange.End = req.YearRange.End, req.YearRange.Start
	}

	if req.SQLFilter != "" {
		if err := validateSQLFilter(req.SQLFilter); err != nil {
			return nil, nil, err
		}
	}

	switch strings.ToLower(req.SortDirection) {
	case "", "asc", "desc":
	default:
		return nil, nil, domain.Invalid("sort_direction", "must be asc or desc")
	}
	if req.SortField != "" {
		f, ok := catalog.Lookup(req.SortField)
		if !ok {
			return nil, nil, domain.Invalid("sort_field", fmt.Sprintf("unknown field %q", req.SortField))
		}
		if !f.Sortable {
			return nil, nil, domain.Invalid("sort_field", fmt.Sprintf("field %q is not sortable", req.SortField))
		}
	}

	names := req.Fields
	if len(names) == 0 {
		names = []string{"paper_id", "title", "source", "publication_year"}
	}
	proj := make([]catalog.Field, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		f, ok := catalog.Lookup(name)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("unknown field %q dropped from projection", name))
			continue
		}
		if seen[f.Name] {
			continue
		}
		seen[f.Name] = true
		proj = append(proj, f)
	}
	if len(proj) == 0 {
		return nil, nil, domain.Invalid("fields", "no known fields in projection")
	}
	return proj, warnings, nil
}
