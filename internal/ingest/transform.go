package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/docscope/backend/internal/domain"
)

// ErrSkip marks a record the pipeline silently drops (counted, not logged
// per record).
var ErrSkip = errors.New("record rejected")

const minTitleLen = 5

// Row is one transformed record ready for upsert: the canonical paper, its
// enrichment rows, and the text the embedding is computed from.
type Row struct {
	Paper       domain.Paper
	Enrichments []domain.EnrichmentRow
	EmbedInput  string
}

// A Transformer is a pure function from one raw source record to a canonical
// row. It returns ErrSkip for records that fail the acceptance rules.
type Transformer func(raw json.RawMessage) (*Row, error)

// TransformerFor returns the transformer for a source tag.
func TransformerFor(source string) (Transformer, error) {
	switch source {
	case domain.SourceOpenAlex:
		return transformOpenAlex, nil
	case domain.SourceArxiv:
		return transformArxiv, nil
	case domain.SourceRandPub:
		return transformRandPub, nil
	case domain.SourceExtPub:
		return transformExtPub, nil
	default:
		return nil, fmt.Errorf("no transformer for source %q", source)
	}
}

// accept applies the shared acceptance rules and finishes the row.
func accept(p *domain.Paper) error {
	if len(p.Title) < minTitleLen {
		return ErrSkip
	}
	if strings.TrimSpace(p.SourceID) == "" {
		return ErrSkip
	}
	if p.PrimaryDate != nil {
		y := p.PrimaryDate.Year()
		p.PublicationYear = &y
	}
	return nil
}

// Work types OpenAlex tags that are not papers.
var openAlexTypeBlocklist = map[string]bool{
	"dataset": true, "grant": true, "peer-review": true, "paratext": true,
}

type openAlexRecord struct {
	ID                    string           `json:"id"`
	DOI                   string           `json:"doi"`
	Title                 string           `json:"title"`
	DisplayName           string           `json:"display_name"`
	Type                  string           `json:"type"`
	PublicationDate       string           `json:"publication_date"`
	CitedByCount          int              `json:"cited_by_count"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
	Authorships           []struct {
		Author struct {
			DisplayName string `json:"display_name"`
		} `json:"author"`
		Institutions []struct {
			DisplayName string `json:"display_name"`
			CountryCode string `json:"country_code"`
		} `json:"institutions"`
	} `json:"authorships"`
	PrimaryLocation *struct {
		LandingPageURL string `json:"landing_page_url"`
		Source         *struct {
			DisplayName string `json:"display_name"`
		} `json:"source"`
	} `json:"primary_location"`
	OpenAccess *struct {
		IsOA bool `json:"is_oa"`
	} `json:"open_access"`
}

func transformOpenAlex(raw json.RawMessage) (*Row, error) {
	var rec openAlexRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("openalex record: %w", err)
	}
	if openAlexTypeBlocklist[rec.Type] {
		return nil, ErrSkip
	}

	title := rec.Title
	if title == "" {
		title = rec.DisplayName
	}
	p := domain.Paper{
		Source:      domain.SourceOpenAlex,
		SourceID:    strings.TrimPrefix(rec.ID, "https://openalex.org/"),
		Title:       SanitizeTitle(title),
		Abstract:    SanitizeAbstract(FlattenInvertedIndex(rec.AbstractInvertedIndex)),
		PrimaryDate: NormalizeDate(rec.PublicationDate),
		DOI:         strings.TrimPrefix(rec.DOI, "https://doi.org/"),
	}
	for _, a := range rec.Authorships {
		if name := strings.TrimSpace(a.Author.DisplayName); name != "" {
			p.Authors = append(p.Authors, name)
		}
	}
	if rec.PrimaryLocation != nil {
		p.Links = rec.PrimaryLocation.LandingPageURL
	}
	if err := accept(&p); err != nil {
		return nil, err
	}

	meta := map[string]any{
		"openalex_type":  rec.Type,
		"cited_by_count": rec.CitedByCount,
	}
	if rec.PrimaryLocation != nil && rec.PrimaryLocation.Source != nil {
		meta["venue"] = rec.PrimaryLocation.Source.DisplayName
	}
	if rec.OpenAccess != nil {
		meta["is_open_access"] = fmt.Sprintf("%t", rec.OpenAccess.IsOA)
	}
	row := &Row{
		Paper:       p,
		Enrichments: []domain.EnrichmentRow{{Table: "openalex_metadata", Values: meta}},
		EmbedInput:  EmbeddingInput(p.Title, p.Abstract),
	}
	if e := countryEnrichment(rec); e != nil {
		row.Enrichments = append(row.Enrichments, *e)
	}
	return row, nil
}

// countryEnrichment derives the country side row from the first authorship
// institution, when present.
func countryEnrichment(rec openAlexRecord) *domain.EnrichmentRow {
	for _, a := range rec.Authorships {
		for _, inst := range a.Institutions {
			if inst.DisplayName == "" {
				continue
			}
			vals := map[string]any{
				"institution_name":  inst.DisplayName,
				"enrichment_method": "openalex_authorship",
			}
			if inst.CountryCode != "" {
				vals["country_name"] = inst.CountryCode
				switch inst.CountryCode {
				case "US":
					vals["country_uschina"] = "US"
				case "CN":
					vals["country_uschina"] = "China"
				default:
					vals["country_uschina"] = "Other"
				}
			}
			return &domain.EnrichmentRow{Table: "enrichment_country", Values: vals}
		}
	}
	return nil
}

// arXiv transforms operate on the Kaggle metadata dump format.

var arxivTypeBlocklist = map[string]bool{
	"dataset": true, "software": true,
}

type arxivRecord struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Abstract      string     `json:"abstract"`
	Categories    string     `json:"categories"` // space-separated
	AuthorsParsed [][]string `json:"authors_parsed"`
	DOI           string     `json:"doi"`
	Comments      string     `json:"comments"`
	Type          string     `json:"type"`
	Versions      []struct {
		Created string `json:"created"`
	} `json:"versions"`
	UpdateDate string `json:"update_date"`
}

func transformArxiv(raw json.RawMessage) (*Row, error) {
	var rec arxivRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("arxiv record: %w", err)
	}
	if arxivTypeBlocklist[rec.Type] {
		return nil, ErrSkip
	}

	p := domain.Paper{
		Source:   domain.SourceArxiv,
		SourceID: rec.ID,
		Title:    SanitizeTitle(rec.Title),
		Abstract: SanitizeAbstract(rec.Abstract),
		DOI:      rec.DOI,
		Links:    "https://arxiv.org/abs/" + rec.ID,
	}
	for _, parts := range rec.AuthorsParsed {
		if len(parts) >= 2 {
			name := strings.TrimSpace(strings.TrimSpace(parts[1]) + " " + strings.TrimSpace(parts[0]))
			if name != "" {
				p.Authors = append(p.Authors, name)
			}
		}
	}
	if len(rec.Versions) > 0 {
		p.PrimaryDate = NormalizeDate(rec.Versions[0].Created)
	}
	if p.PrimaryDate == nil {
		p.PrimaryDate = NormalizeDate(rec.UpdateDate)
	}
	if err := accept(&p); err != nil {
		return nil, err
	}

	categories := strings.Fields(rec.Categories)
	meta := map[string]any{}
	if len(categories) > 0 {
		meta["arxiv_categories"] = categories
		meta["arxiv_primary_category"] = categories[0]
	}
	if rec.Comments != "" {
		meta["arxiv_comments"] = SanitizeAbstract(rec.Comments)
	}
	row := &Row{
		Paper:      p,
		EmbedInput: EmbeddingInput(p.Title, p.Abstract),
	}
	if len(meta) > 0 {
		row.Enrichments = append(row.Enrichments, domain.EnrichmentRow{Table: "arxiv_metadata", Values: meta})
	}
	return row, nil
}

var randTypeBlocklist = map[string]bool{
	"dataset": true, "software": true, "multimedia": true,
}

type randPubRecord struct {
	DocID    string   `json:"doc_id"`
	Title    string   `json:"title"`
	Abstract string   `json:"abstract"`
	Authors  []string `json:"authors"`
	Date     string   `json:"date"`
	DocType  string   `json:"doc_type"`
	Division string   `json:"division"`
	URL      string   `json:"url"`
	DOI      string   `json:"doi"`
}

func transformRandPub(raw json.RawMessage) (*Row, error) {
	var rec randPubRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("randpub record: %w", err)
	}
	if randTypeBlocklist[strings.ToLower(rec.DocType)] {
		return nil, ErrSkip
	}

	p := domain.Paper{
		Source:      domain.SourceRandPub,
		SourceID:    rec.DocID,
		Title:       SanitizeTitle(rec.Title),
		Abstract:    SanitizeAbstract(rec.Abstract),
		PrimaryDate: NormalizeDate(rec.Date),
		DOI:         rec.DOI,
		Links:       rec.URL,
	}
	for _, a := range rec.Authors {
		if name := strings.TrimSpace(a); name != "" {
			p.Authors = append(p.Authors, name)
		}
	}
	if err := accept(&p); err != nil {
		return nil, err
	}

	meta := map[string]any{}
	if rec.DocType != "" {
		meta["rand_doc_type"] = rec.DocType
	}
	if rec.Division != "" {
		meta["rand_division"] = rec.Division
	}
	if rec.URL != "" {
		meta["rand_url"] = rec.URL
	}
	row := &Row{Paper: p, EmbedInput: EmbeddingInput(p.Title, p.Abstract)}
	if len(meta) > 0 {
		row.Enrichments = append(row.Enrichments, domain.EnrichmentRow{Table: "randpub_metadata", Values: meta})
	}
	return row, nil
}

type extPubRecord struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Abstract     string   `json:"abstract"`
	Authors      []string `json:"authors"`
	Date         string   `json:"date"`
	Publisher    string   `json:"publisher"`
	Venue        string   `json:"venue"`
	Relationship string   `json:"relationship"`
	DOI          string   `json:"doi"`
	URL          string   `json:"url"`
}

func transformExtPub(raw json.RawMessage) (*Row, error) {
	var rec extPubRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("extpub record: %w", err)
	}

	p := domain.Paper{
		Source:      domain.SourceExtPub,
		SourceID:    rec.ID,
		Title:       SanitizeTitle(rec.Title),
		Abstract:    SanitizeAbstract(rec.Abstract),
		PrimaryDate: NormalizeDate(rec.Date),
		DOI:         rec.DOI,
		Links:       rec.URL,
	}
	for _, a := range rec.Authors {
		if name := strings.TrimSpace(a); name != "" {
			p.Authors = append(p.Authors, name)
		}
	}
	if err := accept(&p); err != nil {
		return nil, err
	}

	meta := map[string]any{}
	if rec.Publisher != "" {
		meta["ext_publisher"] = rec.Publisher
	}
	if rec.Venue != "" {
		meta["ext_venue"] = rec.Venue
	}
	if rec.Relationship != "" {
		meta["ext_relationship"] = rec.Relationship
	}
	row := &Row{Paper: p, EmbedInput: EmbeddingInput(p.Title, p.Abstract)}
	if len(meta) > 0 {
		row.Enrichments = append(row.Enrichments, domain.EnrichmentRow{Table: "extpub_metadata", Values: meta})
	}
	return row, nil
}
