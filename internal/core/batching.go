package core

import (
	"context"
	"fmt"
)

// DefaultEmbedBatchSize is the upstream ceiling on texts per embedding call.
const DefaultEmbedBatchSize = 100

// EmbedInBatches calls fn once per slice of at most batchSize texts and
// concatenates the vectors in input order.
func EmbedInBatches(ctx context.Context, texts []string, batchSize int, fn func(ctx context.Context, batch []string) ([][]float32, error)) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		vectors, err := fn(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embedding batch %d-%d failed: %w", start, end, err)
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("embedding batch %d-%d returned %d vectors", start, end, len(vectors))
		}
		out = append(out, vectors...)
	}
	return out, nil
}
