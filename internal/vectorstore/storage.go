package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log"

	"tusas.com/document-qa/internal/domain"
)

var (
	// ErrUnavailable is returned by every operation of the Unavailable backend.
	ErrUnavailable = errors.New("vector store unavailable")
	// ErrLengthMismatch is returned when chunk and embedding counts differ.
	ErrLengthMismatch = errors.New("chunk count must equal embedding count")
)

// Store persists chunk embeddings and answers cosine-distance queries.
type Store interface {
	// Upsert replaces any existing vector per chunk id. Empty input is a no-op.
	Upsert(ctx context.Context, chunks []domain.Chunk, embeddings [][]float32) error
	// Query returns up to topK chunks owned by documentIDs, nearest first.
	// Empty documentIDs returns nothing without touching the backend.
	Query(ctx context.Context, embedding []float32, documentIDs []string, topK int) ([]domain.RetrievedChunk, error)
	// Ping is a cheap liveness probe. It never panics.
	Ping(ctx context.Context) bool
	Close() error
}

// CheckUpsertInput validates the shared upsert preconditions.
func CheckUpsertInput(chunks []domain.Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("%w: %d chunks, %d embeddings", ErrLengthMismatch, len(chunks), len(embeddings))
	}
	return nil
}

// Unavailable stands in when no real backend could initialize, so the
// service reports unhealthy instead of failing to start.
type Unavailable struct {
	Reason string
}

func NewUnavailable(reason string) *Unavailable {
	return &Unavailable{Reason: reason}
}

func (u *Unavailable) err() error {
	if u.Reason == "" {
		return ErrUnavailable
	}
	return fmt.Errorf("%w: %s", ErrUnavailable, u.Reason)
}

func (u *Unavailable) Upsert(ctx context.Context, chunks []domain.Chunk, embeddings [][]float32) error {
	return u.err()
}

func (u *Unavailable) Query(ctx context.Context, embedding []float32, documentIDs []string, topK int) ([]domain.RetrievedChunk, error) {
	return nil, u.err()
}

func (u *Unavailable) Ping(ctx context.Context) bool { return false }

func (u *Unavailable) Close() error { return nil }

// Factory opens a backend.
type Factory func(ctx context.Context) (Store, error)

// Select opens the primary backend, then the fallback (if any), and finally
// returns an Unavailable store describing why both failed.
func Select(ctx context.Context, primaryName string, primary Factory, fallbackName string, fallback Factory) Store {
	s, err := primary(ctx)
	if err == nil {
		log.Printf("Vector store: using %s backend", primaryName)
		return s
	}
	log.Printf("Vector store: %s backend failed to initialize: %v", primaryName, err)
	reason := fmt.Sprintf("%s: %v", primaryName, err)

	if fallback != nil {
		fs, ferr := fallback(ctx)
		if ferr == nil {
			log.Printf("Vector store: falling back to %s backend", fallbackName)
			return fs
		}
		log.Printf("Vector store: %s fallback failed to initialize: %v", fallbackName, ferr)
		reason = fmt.Sprintf("%s; %s: %v", reason, fallbackName, ferr)
	}

	log.Printf("Vector store: no backend available, running degraded")
	return NewUnavailable(reason)
}
