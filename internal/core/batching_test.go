package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// indexEmbedder returns vectors carrying the global position of each text.
func indexEmbedder(calls *[]int) func(ctx context.Context, batch []string) ([][]float32, error) {
	return func(ctx context.Context, batch []string) ([][]float32, error) {
		*calls = append(*calls, len(batch))
		out := make([][]float32, len(batch))
		for i, t := range batch {
			var n int
			fmt.Sscanf(t, "chunk-%d", &n)
			out[i] = []float32{float32(n)}
		}
		return out, nil
	}
}

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("chunk-%d", i)
	}
	return out
}

func TestEmbedInBatches_SplitsAtCeiling(t *testing.T) {
	var calls []int
	vectors, err := EmbedInBatches(context.Background(), texts(205), 100, indexEmbedder(&calls))
	require.NoError(t, err)
	assert.Equal(t, []int{100, 100, 5}, calls)
	require.Len(t, vectors, 205)
	for i, v := range vectors {
		assert.Equal(t, float32(i), v[0])
	}
}

func TestEmbedInBatches_CallCount(t *testing.T) {
	for _, n := range []int{1, 7, 99, 100, 101, 250} {
		for _, b := range []int{1, 3, 100} {
			t.Run(fmt.Sprintf("n=%d b=%d", n, b), func(t *testing.T) {
				var calls []int
				vectors, err := EmbedInBatches(context.Background(), texts(n), b, indexEmbedder(&calls))
				require.NoError(t, err)
				assert.Len(t, calls, (n+b-1)/b)
				assert.Len(t, vectors, n)
				for _, c := range calls {
					assert.LessOrEqual(t, c, b)
				}
			})
		}
	}
}

func TestEmbedInBatches_EmptyInputSkipsProvider(t *testing.T) {
	var calls []int
	vectors, err := EmbedInBatches(context.Background(), nil, 100, indexEmbedder(&calls))
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Empty(t, calls)
}

func TestEmbedInBatches_Errors(t *testing.T) {
	boom := errors.New("quota exceeded")
	_, err := EmbedInBatches(context.Background(), texts(3), 2, func(ctx context.Context, batch []string) ([][]float32, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = EmbedInBatches(context.Background(), texts(3), 2, func(ctx context.Context, batch []string) ([][]float32, error) {
		return [][]float32{{1}}, nil
	})
	assert.Error(t, err, "short batch responses are rejected")

	_, err = EmbedInBatches(context.Background(), texts(3), 0, indexEmbedder(new([]int)))
	assert.Error(t, err)
}
