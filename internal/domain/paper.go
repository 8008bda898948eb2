package domain

import (
	"time"

	"github.com/google/uuid"
)

// Known provenance tags. ENABLED_SOURCES must be a subset of these.
const (
	SourceOpenAlex = "openalex"
	SourceArxiv    = "arxiv"
	SourceRandPub  = "randpub"
	SourceExtPub   = "extpub"
)

// KnownSources lists every source the schema has tables for, in display order.
var KnownSources = []string{SourceOpenAlex, SourceArxiv, SourceRandPub, SourceExtPub}

// Paper is the canonical row shared by all sources. Embedding and the 2D
// projection are nullable; rows without them are invisible to semantic and
// viewport queries respectively.
type Paper struct {
	PaperID         uuid.UUID   `json:"paper_id"`
	Source          string      `json:"source"`
	SourceID        string      `json:"source_id"`
	Title           string      `json:"title"`
	Abstract        string      `json:"abstract,omitempty"`
	Authors         []string    `json:"authors,omitempty"`
	PrimaryDate     *time.Time  `json:"primary_date,omitempty"`
	PublicationYear *int        `json:"publication_year,omitempty"`
	DOI             string      `json:"doi,omitempty"`
	Links           string      `json:"links,omitempty"`
	Embedding       []float32   `json:"embedding,omitempty"`
	Embedding2D     *[2]float64 `json:"embedding_2d,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// EnrichmentRow is one side-table row keyed by paper id. Values carries the
// table's non-key columns; absent columns are simply missing from the map.
type EnrichmentRow struct {
	Table   string         `json:"table"`
	PaperID uuid.UUID      `json:"paper_id"`
	Values  map[string]any `json:"values"`
}

// SourceCount is one element of the stats source distribution.
type SourceCount struct {
	Source string `json:"source"`
	Count  int64  `json:"count"`
}

// Stats is the payload of GET /stats.
type Stats struct {
	TotalPapers         int64         `json:"total_papers"`
	PapersWithEmbedding int64         `json:"papers_with_embeddings"`
	SourceDistribution  []SourceCount `json:"source_distribution"`
}
