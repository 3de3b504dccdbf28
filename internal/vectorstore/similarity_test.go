package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
		err  error
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 1}, b: []float32{-1, -1}, want: -1},
		{name: "zero magnitude", a: []float32{0, 0}, b: []float32{1, 1}, want: 0},
		{name: "empty", a: nil, b: []float32{1}, err: ErrEmptyVector},
		{name: "dimension mismatch", a: []float32{1, 2}, b: []float32{1}, err: ErrDimensionMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineSimilarity(tt.a, tt.b)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestRankByCosine(t *testing.T) {
	chunks := []Chunk{
		{ID: 1, Embedding: []float32{0, 1}},
		{ID: 2, Embedding: []float32{1, 0}},
		{ID: 3, Embedding: []float32{1, 0, 0}},
		{ID: 4, Embedding: []float32{1, 0}},
	}

	ranked := rankByCosine([]float32{1, 0}, chunks, 0)
	require.Len(t, ranked, 3, "mismatched dimensions are skipped")
	assert.Equal(t, int64(2), ranked[0].Chunk.ID)
	assert.Equal(t, int64(4), ranked[1].Chunk.ID, "ties keep insertion order")
	assert.Equal(t, int64(1), ranked[2].Chunk.ID)

	assert.Len(t, rankByCosine([]float32{1, 0}, chunks, 1), 1)
}
