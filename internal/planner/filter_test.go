package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewriteFilterQualifiesFields(t *testing.T) {
	out, tables, err := rewriteFilter("publication_year > 2015 AND cited_by_count >= 10")
	require.NoError(t, err)
	assert.Equal(t, "dp.publication_year > 2015 AND om.cited_by_count >= 10", out)
	assert.Equal(t, map[string]bool{"papers": true, "openalex_metadata": true}, tables)
}

func TestRewriteFilterLeavesLiteralsAlone(t *testing.T) {
	// "title" inside the literal must stay a literal, not become dp.title.
	out, tables, err := rewriteFilter("title ILIKE '%title and venue%'")
	require.NoError(t, err)
	assert.Equal(t, "dp.title ILIKE '%title and venue%'", out)
	assert.Equal(t, map[string]bool{"papers": true}, tables)
}

func TestRewriteFilterEscapedQuote(t *testing.T) {
	out, _, err := rewriteFilter("venue = 'O''Reilly'")
	require.NoError(t, err)
	assert.Equal(t, "om.venue = 'O''Reilly'", out)
}

func TestRewriteFilterQualifiedName(t *testing.T) {
	out, tables, err := rewriteFilter("enrichment_country.country_name = 'France'")
	require.NoError(t, err)
	assert.Equal(t, "ec.country_name = 'France'", out)
	assert.True(t, tables["enrichment_country"])
}

func TestRewriteFilterFunctions(t *testing.T) {
	out, _, err := rewriteFilter("lower(country_uschina) = 'china' OR cardinality(arxiv_categories) > 2")
	require.NoError(t, err)
	assert.Equal(t, "lower(ec.country_uschina) = 'china' OR cardinality(am.arxiv_categories) > 2", out)
}

func TestRewriteFilterUnknownIdent(t *testing.T) {
	_, _, err := rewriteFilter("secret_column = 1")
	require.Error(t, err)

	// embedding exists in the catalog but is not filterable.
	_, _, err = rewriteFilter("embedding IS NULL")
	require.Error(t, err)
}

func TestRewriteFilterUnterminatedLiteral(t *testing.T) {
	_, _, err := rewriteFilter("title = 'unterminated")
	require.Error(t, err)
}
