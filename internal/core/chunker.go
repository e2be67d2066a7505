package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"tusas.com/document-qa/internal/domain"
)

// ChunkBuilder splits segment text into overlapping windows of at most Size runes.
type ChunkBuilder struct {
	Size    int
	Overlap int
}

func NewChunkBuilder(size, overlap int) (*ChunkBuilder, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &ChunkBuilder{Size: size, Overlap: overlap}, nil
}

// Build chunks every segment in order. Indexes run across the whole document
// and each chunk inherits its segment's page.
func (b *ChunkBuilder) Build(documentID, filename string, segments []domain.Segment) []domain.Chunk {
	var chunks []domain.Chunk
	index := 0
	for _, seg := range segments {
		for _, piece := range b.Split(seg.Text) {
			chunks = append(chunks, domain.Chunk{
				ID:         uuid.NewString(),
				DocumentID: documentID,
				Filename:   filename,
				Index:      index,
				Page:       seg.Page,
				Text:       piece,
			})
			index++
		}
	}
	return chunks
}

// Split windows whitespace-collapsed text. A window ending mid-word is pulled
// back to the last space when that space is past the window midpoint; a
// window with no space at all is stretched to the end of its word. Windows
// never start on a space, and a window that ends at or before the previous
// piece's end is dropped since it holds nothing new.
func (b *ChunkBuilder) Split(text string) []string {
	runes := []rune(NormalizeWhitespace(text))
	n := len(runes)
	if n == 0 {
		return nil
	}

	var parts []string
	start, lastEnd := 0, 0
	for start < n {
		end := min(start+b.Size, n)
		if end < n && runes[end] != ' ' && runes[end-1] != ' ' {
			cut := lastSpace(runes[start:end])
			switch {
			case cut > b.Size/2:
				end = start + cut
			case cut < 0:
				for end < n && runes[end] != ' ' {
					end++
				}
			}
		}

		pieceEnd := end
		for pieceEnd > start && runes[pieceEnd-1] == ' ' {
			pieceEnd--
		}
		if pieceEnd > lastEnd {
			parts = append(parts, string(runes[start:pieceEnd]))
			lastEnd = pieceEnd
		}
		if end >= n {
			break
		}

		next := max(0, end-b.Overlap)
		if next <= start {
			next = end
		}
		for next < n && runes[next] == ' ' {
			next++
		}
		start = next
	}
	return parts
}

func lastSpace(r []rune) int {
	for i := len(r) - 1; i >= 0; i-- {
		if r[i] == ' ' {
			return i
		}
	}
	return -1
}

// NormalizeWhitespace collapses every whitespace run to a single space.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
