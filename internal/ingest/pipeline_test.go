package ingest

import (
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLStream(t *testing.T) {
	input := "{\"a\":1}\n\n{\"b\":2}\n"
	s := NewJSONLStream(strings.NewReader(input))

	first, err := s.Next()
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(first))

	second, err := s.Next()
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":2}`, string(second))

	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestJSONLStreamCopiesLines(t *testing.T) {
	// The scanner reuses its buffer; returned records must survive the next
	// call.
	s := NewJSONLStream(strings.NewReader("{\"n\":1}\n{\"n\":2}\n"))
	first, err := s.Next()
	require.NoError(t, err)
	_, err = s.Next()
	require.NoError(t, err)

	var rec struct{ N int }
	require.NoError(t, json.Unmarshal(first, &rec))
	assert.Equal(t, 1, rec.N)
}

func TestJSONLStreamEmpty(t *testing.T) {
	s := NewJSONLStream(strings.NewReader(""))
	_, err := s.Next()
	assert.ErrorIs(t, err, io.EOF)
}
