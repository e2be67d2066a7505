package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"tusas.com/document-qa/internal/domain"
)

var (
	// ErrProviderUnavailable means the AI provider cannot be constructed (usually a missing API key).
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	// ErrResponseParse means the grounded-answer response did not match the expected shape.
	ErrResponseParse = errors.New("could not parse provider response")
)

// EmbeddingTask distinguishes indexing embeddings from query embeddings.
type EmbeddingTask int

const (
	TaskRetrievalDocument EmbeddingTask = iota
	TaskRetrievalQuery
)

func (t EmbeddingTask) String() string {
	if t == TaskRetrievalQuery {
		return "retrieval_query"
	}
	return "retrieval_document"
}

type Embedder interface {
	// EmbedTexts returns one vector per text, in order.
	EmbedTexts(ctx context.Context, texts []string, task EmbeddingTask) ([][]float32, error)
}

type OCR interface {
	ExtractTextFromImage(ctx context.Context, data []byte, mimeType string) (string, error)
}

// ContextItem is one tagged chunk handed to the grounded-answer call.
type ContextItem struct {
	Tag        string `json:"cid"`
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Page       *int   `json:"page"`
	Text       string `json:"text"`
}

type Answerer interface {
	AnswerQuestion(ctx context.Context, question string, items []ContextItem) (*GroundedAnswer, error)
}

// AIClient is everything the pipeline needs from the model provider.
type AIClient interface {
	Embedder
	OCR
	Answerer
}

// AIClientSource hands out the process-wide AI client.
type AIClientSource interface {
	AIClient(ctx context.Context) (AIClient, error)
	// Configured reports whether credentials are present, without dialing.
	Configured() bool
}

// ClientFactory builds a provider client from an API key.
type ClientFactory func(ctx context.Context, apiKey string) (AIClient, error)

// ProviderCache lazily constructs one AI client and reuses it for the
// process lifetime. Concurrent first use constructs exactly once.
type ProviderCache struct {
	apiKey  string
	factory ClientFactory

	mu     sync.Mutex
	client AIClient
}

func NewProviderCache(apiKey string, factory ClientFactory) *ProviderCache {
	return &ProviderCache{apiKey: apiKey, factory: factory}
}

func (p *ProviderCache) Configured() bool {
	return p.apiKey != ""
}

func (p *ProviderCache) AIClient(ctx context.Context) (AIClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}
	if p.apiKey == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY or GOOGLE_API_KEY is not set", ErrProviderUnavailable)
	}
	client, err := p.factory(ctx, p.apiKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	p.client = client
	return client, nil
}

// Close releases the cached client if it holds resources.
func (p *ProviderCache) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.client.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			log.Printf("Error closing AI client: %v", err)
		} else {
			log.Println("AI client closed.")
		}
	}
	p.client = nil
}

var debugEnabled bool

// SetDebug toggles verbose pipeline logs.
func SetDebug(enabled bool) {
	debugEnabled = enabled
}

func debugf(format string, args ...any) {
	if debugEnabled {
		log.Printf("[DEBUG] "+format, args...)
	}
}

func citationTag(i int) string {
	return fmt.Sprintf("C%d", i+1)
}

func contextItem(tag string, rc domain.RetrievedChunk) ContextItem {
	return ContextItem{
		Tag:        tag,
		ChunkID:    rc.ChunkID,
		DocumentID: rc.DocumentID,
		Filename:   rc.Filename,
		Page:       rc.Page,
		Text:       rc.Text,
	}
}
