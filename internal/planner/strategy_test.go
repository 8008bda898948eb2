package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/docscope/backend/internal/domain"
)

func TestOverfetch(t *testing.T) {
	cases := []struct {
		limit, want int
	}{
		{1, 500},
		{100, 500},
		{200, 500},
		{400, 600},
		{1000, 1500},
		{2000, 2500},
		{50000, 50500},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, overfetch(c.limit), "limit=%d", c.limit)
	}
}

func TestCteCap(t *testing.T) {
	assert.Equal(t, 50000, cteCap(500))
	assert.Equal(t, 50000, cteCap(5000))
	assert.Equal(t, 60000, cteCap(6000))
}

func TestSelectStrategy(t *testing.T) {
	longFilter := "venue ILIKE '%proceedings of the acm%'"
	joins := map[string]bool{"openalex_metadata": true}

	cases := []struct {
		name  string
		req   domain.FilterRequest
		joins map[string]bool
		want  Strategy
	}{
		{"default browse", domain.FilterRequest{}, nil, StrategyMatView},
		{"explicit default sort", domain.FilterRequest{SortField: "publication_year", SortDirection: "desc"}, nil, StrategyMatView},
		{"custom sort", domain.FilterRequest{SortField: "title"}, nil, StrategyBase},
		{"ascending year", domain.FilterRequest{SortDirection: "asc"}, nil, StrategyBase},
		{"sort disabled", domain.FilterRequest{DisableSort: true}, nil, StrategyBase},
		{"joined projection", domain.FilterRequest{}, joins, StrategyBase},
		{"bbox only", domain.FilterRequest{BBox: &domain.BBox{X1: -1, Y1: -1, X2: 1, Y2: 1}}, nil, StrategyBase},
		{"semantic plain", domain.FilterRequest{SearchText: "llm"}, nil, StrategySemanticDirect},
		{"semantic short filter", domain.FilterRequest{SearchText: "llm", SQLFilter: "source = 'arxiv'"}, nil, StrategySemanticDirect},
		{"semantic bbox", domain.FilterRequest{SearchText: "llm", BBox: &domain.BBox{}}, nil, StrategySemanticCTE},
		{"semantic long filter", domain.FilterRequest{SearchText: "llm", SQLFilter: longFilter}, nil, StrategySemanticCTE},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, selectStrategy(&c.req, c.joins))
		})
	}
}

func TestDefaultSort(t *testing.T) {
	assert.True(t, defaultSort(&domain.FilterRequest{}))
	assert.True(t, defaultSort(&domain.FilterRequest{SortField: "publication_year"}))
	assert.True(t, defaultSort(&domain.FilterRequest{SortDirection: "desc"}))
	assert.False(t, defaultSort(&domain.FilterRequest{SortDirection: "asc"}))
	assert.False(t, defaultSort(&domain.FilterRequest{SortField: "title"}))
	assert.False(t, defaultSort(&domain.FilterRequest{DisableSort: true}))
}
