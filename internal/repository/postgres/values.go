package postgres

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// CollectRows converts a result set into column maps. A row that fails to
// scan is dropped and counted; one bad row must not fail the page.
func CollectRows(rows pgx.Rows) ([]map[string]any, int, error) {
	defer rows.Close()

	descs := rows.FieldDescriptions()
	names := make([]string, len(descs))
	for i, d := range descs {
		names[i] = d.Name
	}

	var out []map[string]any
	dropped := 0
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			dropped++
			continue
		}
		row := make(map[string]any, len(names))
		for i, name := range names {
			v, err := NormalizeValue(values[i])
			if err != nil {
				dropped++
				row = nil
				break
			}
			row[name] = v
		}
		if row != nil {
			out = append(out, row)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, dropped, err
	}
	return out, dropped, nil
}

// NormalizeValue maps driver values to JSON-friendly forms. Spatial points
// become [x, y]; everything else passes through.
func NormalizeValue(v any) (any, error) {
	switch val := v.(type) {
	case pgtype.Point:
		if !val.Valid {
			return nil, nil
		}
		return []float64{val.P.X, val.P.Y}, nil
	case string:
		// The vector extension returns 2D points in text form on some code
		// paths. Text columns can look point-ish, so a failed parse keeps
		// the raw string instead of dropping the row.
		if looksLikePoint(val) {
			if pt, err := parsePoint(val); err == nil {
				return pt, nil
			}
		}
		return val, nil
	case pgtype.Numeric:
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil, fmt.Errorf("numeric conversion: %w", err)
		}
		return f.Float64, nil
	case time.Time:
		return val, nil
	default:
		return v, nil
	}
}

func looksLikePoint(s string) bool {
	return len(s) >= 5 && s[0] == '(' && s[len(s)-1] == ')' && strings.Count(s, ",") == 1
}

// parsePoint parses the extension's "(x,y)" textual point form.
func parsePoint(s string) ([]float64, error) {
	inner := strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	parts := strings.SplitN(inner, ",", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("malformed point %q", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return nil, fmt.Errorf("malformed point %q: %w", s, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil, fmt.Errorf("malformed point %q: %w", s, err)
	}
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return nil, fmt.Errorf("non-finite point %q", s)
	}
	return []float64{x, y}, nil
}
