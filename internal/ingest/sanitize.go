package ingest

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

const maxTitleLen = 1000

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

// Characters normalized to ASCII equivalents. Source dumps are full of
// smart quotes and typographic dashes that break downstream matching.
var unicodeReplacer = strings.NewReplacer(
	"‐", "-", "‑", "-", "‒", "-", "–", "-",
	"—", "-", "―", "-", "−", "-",
	"‘", "'", "’", "'", "‚", "'",
	"“", `"`, "”", `"`, "„", `"`,
	" ", " ",
)

// sanitizeText strips HTML, normalizes typographic punctuation, removes
// control characters and collapses whitespace.
func sanitizeText(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = unicodeReplacer.Replace(s)
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			sb.WriteByte(' ')
			continue
		}
		sb.WriteRune(r)
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// SanitizeTitle cleans and truncates a title to the canonical bound.
func SanitizeTitle(s string) string {
	s = sanitizeText(s)
	if len(s) > maxTitleLen {
		cut := s[:maxTitleLen]
		// Do not split a multi-byte rune at the boundary; Postgres rejects
		// invalid UTF-8 text outright.
		for len(cut) > 0 {
			r, size := utf8.DecodeLastRuneInString(cut)
			if r != utf8.RuneError || size > 1 {
				break
			}
			cut = cut[:len(cut)-1]
		}
		s = strings.TrimSpace(cut)
	}
	return s
}

// SanitizeAbstract cleans an abstract. Abstracts are unbounded but must not
// carry null bytes into the database.
func SanitizeAbstract(s string) string {
	return sanitizeText(strings.ReplaceAll(s, "\x00", ""))
}

// FlattenInvertedIndex rebuilds plain text from the OpenAlex inverted-index
// abstract form {"word": [pos, ...], ...} by sorting (position, word) pairs.
func FlattenInvertedIndex(idx map[string][]int) string {
	if len(idx) == 0 {
		return ""
	}
	type posWord struct {
		pos  int
		word string
	}
	var pairs []posWord
	for word, positions := range idx {
		for _, p := range positions {
			pairs = append(pairs, posWord{pos: p, word: word})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].pos != pairs[j].pos {
			return pairs[i].pos < pairs[j].pos
		}
		return pairs[i].word < pairs[j].word
	})
	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01",
	"2006",
	time.RFC3339,
	"Mon, 2 Jan 2006 15:04:05 GMT",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC1123,
	"January 2, 2006",
	"2 January 2006",
}

// NormalizeDate parses a source date string into a calendar date. Unparseable
// dates become nil rather than failing the record.
func NormalizeDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &d
		}
	}
	return nil
}

// EmbeddingInput builds the combined text the embedding model sees. The
// abstract part is omitted entirely when empty.
func EmbeddingInput(title, abstract string) string {
	if abstract == "" {
		return "Title: " + title
	}
	return "Title: " + title + " Abstract: " + abstract
}
