package store

import "time"

type Document struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	FileType     string    `json:"file_type"`
	MimeType     string    `json:"mime_type"`
	StoragePath  string    `json:"-"`
	FileSize     int64     `json:"file_size"`
	Language     string    `json:"language"`
	Status       string    `json:"status"`
	ErrorMessage *string   `json:"error_message,omitempty"` // Nullable
	CreatedAt    time.Time `json:"created_at"`
}

type SegmentRecord struct {
	ID         string
	DocumentID string
	Page       *int // Nullable for non-paged sources
	Source     string
	Text       string
	CreatedAt  time.Time
}

// ChunkRecord is the relational copy of chunk metadata; the vector store
// holds the embedding.
type ChunkRecord struct {
	ID         string
	DocumentID string
	ChunkIndex int
	Page       *int
	Text       string
}
