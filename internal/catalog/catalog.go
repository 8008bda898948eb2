// Package catalog is the process-wide registry of every field the API can
// see: its declaring table, alias, physical column, logical type and
// capability flags. The planner validates projections, filters and sorts
// against it, and join inference walks it to find declaring tables.
package catalog

import "fmt"

// Type is the logical column type used for post-processing decisions.
type Type string

const (
	TypeText      Type = "text"
	TypeTextArray Type = "text[]"
	TypeDate      Type = "date"
	TypeTimestamp Type = "timestamp"
	TypeVector    Type = "vector"
	TypePoint     Type = "point"
	TypeUUID      Type = "uuid"
	TypeNumeric   Type = "numeric"
)

// Field is one registry entry.
type Field struct {
	Name       string
	Table      string
	Alias      string
	Column     string
	Type       Type
	Filterable bool
	Sortable   bool
	Searchable bool
}

// Qualified returns the alias-qualified SQL reference for the field.
func (f Field) Qualified() string { return f.Alias + "." + f.Column }

// Base table identity.
const (
	BaseTable = "papers"
	BaseAlias = "dp"

	// MatView is the pre-sorted projection used by the fast path. It shares
	// the base table's columns and alias.
	MatView = "papers_sorted_by_year"
)

// Table aliases are stable; the planner and tests rely on them.
var tableAliases = map[string]string{
	BaseTable:            BaseAlias,
	"openalex_metadata":  "om",
	"arxiv_metadata":     "am",
	"randpub_metadata":   "rm",
	"extpub_metadata":    "em",
	"enrichment_country": "ec",
}

// enrichmentBySource maps a source to its metadata and enrichment tables for
// the introspection endpoint. enrichment_country applies to every source.
var enrichmentBySource = map[string][]string{
	"openalex": {"openalex_metadata", "enrichment_country"},
	"arxiv":    {"arxiv_metadata", "enrichment_country"},
	"randpub":  {"randpub_metadata", "enrichment_country"},
	"extpub":   {"extpub_metadata", "enrichment_country"},
}

var fields = []Field{
	// Canonical paper columns.
	{Name: "paper_id", Table: BaseTable, Alias: BaseAlias, Column: "paper_id", Type: TypeUUID, Filterable: true, Sortable: true},
	{Name: "source", Table: BaseTable, Alias: BaseAlias, Column: "source", Type: TypeText, Filterable: true, Sortable: true},
	{Name: "source_id", Table: BaseTable, Alias: BaseAlias, Column: "source_id", Type: TypeText, Filterable: true},
	{Name: "title", Table: BaseTable, Alias: BaseAlias, Column: "title", Type: TypeText, Filterable: true, Sortable: true, Searchable: true},
	{Name: "abstract", Table: BaseTable, Alias: BaseAlias, Column: "abstract", Type: TypeText, Filterable: true, Searchable: true},
	{Name: "authors", Table: BaseTable, Alias: BaseAlias, Column: "authors", Type: TypeTextArray, Filterable: true},
	{Name: "primary_date", Table: BaseTable, Alias: BaseAlias, Column: "primary_date", Type: TypeDate, Filterable: true, Sortable: true},
	{Name: "publication_year", Table: BaseTable, Alias: BaseAlias, Column: "publication_year", Type: TypeNumeric, Filterable: true, Sortable: true},
	{Name: "doi", Table: BaseTable, Alias: BaseAlias, Column: "doi", Type: TypeText, Filterable: true},
	{Name: "links", Table: BaseTable, Alias: BaseAlias, Column: "links", Type: TypeText, Filterable: true},
	{Name: "embedding", Table: BaseTable, Alias: BaseAlias, Column: "embedding", Type: TypeVector},
	{Name: "embedding_2d", Table: BaseTable, Alias: BaseAlias, Column: "embedding_2d", Type: TypePoint},
	{Name: "created_at", Table: BaseTable, Alias: BaseAlias, Column: "created_at", Type: TypeTimestamp, Filterable: true, Sortable: true},
	{Name: "updated_at", Table: BaseTable, Alias: BaseAlias, Column: "updated_at", Type: TypeTimestamp, Filterable: true, Sortable: true},

	// OpenAlex metadata.
	{Name: "openalex_type", Table: "openalex_metadata", Alias: "om", Column: "openalex_type", Type: TypeText, Filterable: true},
	{Name: "cited_by_count", Table: "openalex_metadata", Alias: "om", Column: "cited_by_count", Type: TypeNumeric, Filterable: true, Sortable: true},
	{Name: "venue", Table: "openalex_metadata", Alias: "om", Column: "venue", Type: TypeText, Filterable: true},
	{Name: "is_open_access", Table: "openalex_metadata", Alias: "om", Column: "is_open_access", Type: TypeText, Filterable: true},

	// arXiv metadata.
	{Name: "arxiv_categories", Table: "arxiv_metadata", Alias: "am", Column: "arxiv_categories", Type: TypeTextArray, Filterable: true},
	{Name: "arxiv_primary_category", Table: "arxiv_metadata", Alias: "am", Column: "arxiv_primary_category", Type: TypeText, Filterable: true},
	{Name: "arxiv_comments", Table: "arxiv_metadata", Alias: "am", Column: "arxiv_comments", Type: TypeText, Filterable: true},

	// RAND internal publications.
	{Name: "rand_doc_type", Table: "randpub_metadata", Alias: "rm", Column: "rand_doc_type", Type: TypeText, Filterable: true},
	{Name: "rand_division", Table: "randpub_metadata", Alias: "rm", Column: "rand_division", Type: TypeText, Filterable: true},
	{Name: "rand_url", Table: "randpub_metadata", Alias: "rm", Column: "rand_url", Type: TypeText},

	// External RAND-related publications.
	{Name: "ext_publisher", Table: "extpub_metadata", Alias: "em", Column: "ext_publisher", Type: TypeText, Filterable: true},
	{Name: "ext_venue", Table: "extpub_metadata", Alias: "em", Column: "ext_venue", Type: TypeText, Filterable: true},
	{Name: "ext_relationship", Table: "extpub_metadata", Alias: "em", Column: "ext_relationship", Type: TypeText, Filterable: true},

	// Country/institution enrichment.
	{Name: "country_name", Table: "enrichment_country", Alias: "ec", Column: "country_name", Type: TypeText, Filterable: true, Sortable: true},
	{Name: "country_uschina", Table: "enrichment_country", Alias: "ec", Column: "country_uschina", Type: TypeText, Filterable: true},
	{Name: "institution_name", Table: "enrichment_country", Alias: "ec", Column: "institution_name", Type: TypeText, Filterable: true},
	{Name: "enrichment_method", Table: "enrichment_country", Alias: "ec", Column: "enrichment_method", Type: TypeText, Filterable: true},
}

var byName map[string]Field

func init() {
	byName = make(map[string]Field, 2*len(fields))
	for _, f := range fields {
		if _, dup := byName[f.Name]; dup {
			panic(fmt.Sprintf("catalog: duplicate field name %q", f.Name))
		}
		byName[f.Name] = f
		// Qualified form resolves to the same entry.
		byName[f.Table+"."+f.Column] = f
	}
}

// Lookup resolves a simple or table-qualified field name.
func Lookup(name string) (Field, bool) {
	f, ok := byName[name]
	return f, ok
}

// Alias returns the stable alias for a table.
func Alias(table string) (string, bool) {
	a, ok := tableAliases[table]
	return a, ok
}

// IsTable reports whether the name is a known table.
func IsTable(table string) bool {
	_, ok := tableAliases[table]
	return ok
}

// TableFields returns every field declared by the given table, in registry
// order.
func TableFields(table string) []Field {
	var out []Field
	for _, f := range fields {
		if f.Table == table {
			out = append(out, f)
		}
	}
	return out
}

// EnrichmentTables lists the enrichment/metadata tables attached to a source.
func EnrichmentTables(source string) ([]string, bool) {
	ts, ok := enrichmentBySource[source]
	return ts, ok
}

// All returns the full registry, for introspection endpoints.
func All() []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}
