package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlanRows(t *testing.T) {
	raw := []byte(`[{"Plan": {"Node Type": "Seq Scan", "Plan Rows": 1234567, "Total Cost": 99.0}}]`)
	rows, err := parsePlanRows(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(1234567), rows)
}

func TestParsePlanRowsNested(t *testing.T) {
	// Only the top node's estimate matters.
	raw := []byte(`[{"Plan": {"Plan Rows": 42, "Plans": [{"Plan Rows": 99999}]}}]`)
	rows, err := parsePlanRows(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(42), rows)
}

func TestParsePlanRowsMalformed(t *testing.T) {
	_, err := parsePlanRows([]byte(`not json`))
	require.Error(t, err)

	_, err = parsePlanRows([]byte(`[]`))
	require.Error(t, err)
}
