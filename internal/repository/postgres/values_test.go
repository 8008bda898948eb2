package postgres

import (
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeValuePoint(t *testing.T) {
	v, err := NormalizeValue(pgtype.Point{P: pgtype.Vec2{X: 1.5, Y: -2.25}, Valid: true})
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, -2.25}, v)

	v, err = NormalizeValue(pgtype.Point{})
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestNormalizeValueTextualPoint(t *testing.T) {
	v, err := NormalizeValue("(0.5,-1.25)")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, -1.25}, v)

	// Point-shaped text that fails to parse stays a string.
	v, err = NormalizeValue("(see fig. 2, panel B)")
	require.NoError(t, err)
	assert.Equal(t, "(see fig. 2, panel B)", v)
}

func TestParsePoint(t *testing.T) {
	pt, err := parsePoint("(1.5, 2.5)")
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 2.5}, pt)

	for _, s := range []string{"(NaN,1)", "(Inf,1)", "(a,b)"} {
		_, err := parsePoint(s)
		require.Error(t, err, "point %q", s)
	}
}

func TestLooksLikePoint(t *testing.T) {
	assert.True(t, looksLikePoint("(1,2)"))
	assert.False(t, looksLikePoint("1,2"))
	assert.False(t, looksLikePoint("(1,2,3)"))
	assert.False(t, looksLikePoint("()"))
}
