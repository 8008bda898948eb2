package domain

// FilterRequest is the full filter tuple for GET /papers. Zero values mean
// "not provided"; the planner normalizes and validates before compiling.
type FilterRequest struct {
	Fields              []string `json:"fields"`
	SQLFilter           string   `json:"sql_filter"`
	BBox                *BBox    `json:"bbox,omitempty"`
	YearRange           *YearRange `json:"year_range,omitempty"`
	SearchText          string   `json:"search_text"`
	SimilarityThreshold float64  `json:"similarity_threshold"`
	EmbeddingType       string   `json:"embedding_type"`
	Limit               int      `json:"limit"`
	Offset              int      `json:"offset"`
	SortField           string   `json:"sort_field"`
	SortDirection       string   `json:"sort_direction"`
	DisableSort         bool     `json:"disable_sort"`
}

// BBox is an axis-aligned viewport rectangle in 2D projection coordinates,
// normalized so X1 <= X2 and Y1 <= Y2.
type BBox struct {
	X1, Y1, X2, Y2 float64
}

// YearRange is an inclusive [Start, End] publication-year window.
type YearRange struct {
	Start, End int
}

// QueryResult is the shaped response of GET /papers. Results are generic
// column maps because the projection is caller-chosen.
type QueryResult struct {
	Results                  []map[string]any `json:"results"`
	TotalCount               int64            `json:"total_count"`
	TotalCountIsEstimate     bool             `json:"total_count_is_estimate"`
	Warnings                 []string         `json:"warnings"`
	Query                    string           `json:"query"`
	CountQuery               string           `json:"count_query"`
	ExecutionTimeMS          int64            `json:"execution_time_ms"`
	QueryExecutionTimeMS     int64            `json:"query_execution_time_ms"`
	CountQueryExecutionTimeMS int64           `json:"count_query_execution_time_ms"`
}
