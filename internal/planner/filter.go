package planner

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/docscope/backend/internal/catalog"
	"github.com/docscope/backend/internal/domain"
)

// Words that may legitimately appear in a boolean filter expression and are
// not field references.
var sqlWords = map[string]bool{
	"and": true, "or": true, "not": true, "like": true, "ilike": true,
	"in": true, "is": true, "null": true, "between": true, "true": true,
	"false": true, "any": true, "all": true, "exists": true, "similar": true,
	"to": true, "escape": true, "case": true, "when": true, "then": true,
	"else": true, "end": true, "distinct": true,
	// Whitelisted scalar functions.
	"lower": true, "upper": true, "length": true, "trim": true,
	"coalesce": true, "nullif": true, "abs": true, "extract": true,
	"year": true, "array_length": true, "cardinality": true,
}

var identRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)?`)

// rewriteFilter resolves every field reference in a validated user filter to
// its alias-qualified column and reports the set of tables the filter
// touches. String literals are left untouched. Unknown identifiers fail the
// request: a filter over fields we cannot resolve would silently produce
// wrong joins.
func rewriteFilter(filter string) (string, map[string]bool, error) {
	tables := make(map[string]bool)
	var out strings.Builder
	var badIdent string

	inLiteral := false
	start := 0
	flush := func(end int, literal bool) {
		seg := filter[start:end]
		if literal {
			out.WriteString(seg)
			return
		}
		out.WriteString(identRe.ReplaceAllStringFunc(seg, func(ident string) string {
			if sqlWords[strings.ToLower(ident)] {
				return ident
			}
			f, ok := catalog.Lookup(ident)
			if !ok || !f.Filterable {
				if badIdent == "" {
					badIdent = ident
				}
				return ident
			}
			tables[f.Table] = true
			return f.Qualified()
		}))
	}

	for i := 0; i < len(filter); i++ {
		if filter[i] != '\'' {
			continue
		}
		// Escaped quote inside a literal ('') stays within the literal.
		if inLiteral && i+1 < len(filter) && filter[i+1] == '\'' {
			i++
			continue
		}
		flush(i, inLiteral)
		start = i
		inLiteral = !inLiteral
	}
	flush(len(filter), inLiteral)

	if inLiteral {
		return "", nil, domain.Invalid("sql_filter", "unterminated string literal")
	}
	if badIdent != "" {
		return "", nil, domain.Invalid("sql_filter", fmt.Sprintf("unknown or non-filterable field %q", badIdent))
	}
	return out.String(), tables, nil
}
